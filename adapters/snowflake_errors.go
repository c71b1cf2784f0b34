package adapters

import (
	"errors"
	"fmt"

	"github.com/snowflakedb/gosnowflake"

	"github.com/kndndrj/snowgate/core"
)

// warehouse error numbers that carry a meaning for the gateway
var (
	sessionLostCodes = map[int]struct{}{
		390111: {}, // session no longer exists
		390112: {}, // session token expired
		390114: {}, // authentication token expired
	}

	errorCategories = map[int]core.ErrorReason{
		1003:   core.ReasonSyntax,
		904:    core.ReasonNotFound,
		2003:   core.ReasonNotFound,
		2043:   core.ReasonNotFound,
		3001:   core.ReasonPermission,
		390100: core.ReasonAuthentication,
		390102: core.ReasonAuthentication,
		390144: core.ReasonAuthentication,
		390189: core.ReasonAuthentication,
	}

	sqlStateCategories = map[string]core.ErrorReason{
		"42601": core.ReasonSyntax,
		"42000": core.ReasonSyntax,
		"42S02": core.ReasonNotFound,
		"02000": core.ReasonNotFound,
		"42501": core.ReasonPermission,
	}
)

// translateError converts snowflake errors to core.DriverError. Other
// errors are returned unchanged.
func translateError(err error) error {
	var sfErr *gosnowflake.SnowflakeError
	if !errors.As(err, &sfErr) {
		return err
	}

	message := sfErr.Message
	if len(sfErr.MessageArgs) > 0 {
		message = fmt.Sprintf(sfErr.Message, sfErr.MessageArgs...)
	}

	de := &core.DriverError{
		Number:   sfErr.Number,
		SQLState: sfErr.SQLState,
		Message:  message,
		QueryID:  sfErr.QueryID,
		Category: errorCategory(sfErr.Number, sfErr.SQLState),
	}

	if _, ok := sessionLostCodes[sfErr.Number]; ok {
		return fmt.Errorf("%w: %w", core.ErrConnectionLost, de)
	}
	return de
}

func errorCategory(number int, sqlState string) core.ErrorReason {
	if c, ok := errorCategories[number]; ok {
		return c
	}
	if c, ok := sqlStateCategories[sqlState]; ok {
		return c
	}
	return core.ReasonOther
}

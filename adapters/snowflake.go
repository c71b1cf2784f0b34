package adapters

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/snowflakedb/gosnowflake"

	"github.com/kndndrj/snowgate/core"
	"github.com/kndndrj/snowgate/core/builders"
)

func init() {
	_ = register(&Snowflake{}, "snowflake")
}

var _ core.Adapter = (*Snowflake)(nil)

type Snowflake struct{}

func (s *Snowflake) Connect(ctx context.Context, params *core.ConnectionParams) (core.Driver, error) {
	cfg, err := snowflakeConfig(params)
	if err != nil {
		return nil, err
	}

	db := sql.OpenDB(gosnowflake.NewConnector(gosnowflake.SnowflakeDriver{}, *cfg))
	// one session per driver
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := builders.NewClient(db, semiStructuredProcessors()...)

	d, err := newSnowflakeDriver(ctx, c)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("unable to connect to snowflake: %w", translateError(err))
	}

	if !params.Defaults.IsZero() {
		if err := d.Use(ctx, params.Defaults); err != nil {
			d.Close()
			return nil, core.WithReason(fmt.Errorf("%w: applying session defaults: %w", core.ErrSessionInit, err), core.ReasonContextSetup)
		}
	}

	return d, nil
}

// snowflakeConfig maps connection parameters to a driver config for the
// resolved authentication strategy.
func snowflakeConfig(params *core.ConnectionParams) (*gosnowflake.Config, error) {
	if params == nil || params.Auth == nil {
		return nil, fmt.Errorf("%w: no authentication strategy", core.ErrConfiguration)
	}

	cfg := &gosnowflake.Config{
		Account:      params.Auth.Account(),
		User:         params.Auth.User(),
		Role:         params.Defaults.Role,
		LoginTimeout: params.LoginTimeout,
		Application:  params.Application,
	}
	if params.QueryTag != "" {
		tag := params.QueryTag
		cfg.Params = map[string]*string{"query_tag": &tag}
	}

	switch auth := params.Auth.(type) {
	case *core.PasswordAuth:
		cfg.Authenticator = gosnowflake.AuthTypeSnowflake
		cfg.Password = auth.Password
	case *core.PrivateKeyAuth:
		key, err := auth.Key()
		if err != nil {
			return nil, core.WithReason(fmt.Errorf("%w: %w", core.ErrSessionInit, err), core.ReasonKeyDecryption)
		}
		cfg.Authenticator = gosnowflake.AuthTypeJwt
		cfg.PrivateKey = key
	case *core.SSOAuth:
		cfg.Authenticator = gosnowflake.AuthTypeExternalBrowser
		cfg.ExternalBrowserTimeout = auth.BrowserTimeout
		// cache the ID token so reconnects do not open the browser again
		cfg.ClientStoreTemporaryCredential = gosnowflake.ConfigBoolTrue
	default:
		return nil, fmt.Errorf("%w: unsupported authentication strategy %q", core.ErrConfiguration, params.Auth.Name())
	}

	return cfg, nil
}

// semiStructuredProcessors compact VARIANT, OBJECT and ARRAY values, which
// the warehouse returns pretty printed.
func semiStructuredProcessors() []builders.ClientOption {
	compact := func(val any) any {
		var raw []byte
		switch v := val.(type) {
		case string:
			raw = []byte(v)
		case []byte:
			raw = v
		default:
			return val
		}

		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return string(raw)
		}
		return buf.String()
	}

	return []builders.ClientOption{
		builders.WithTypeProcessor(compact, "variant", "object", "array"),
	}
}

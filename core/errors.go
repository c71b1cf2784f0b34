package core

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrSessionInit     = errors.New("session initialization failed")
	ErrConnectionLost  = errors.New("connection lost")
	ErrPolicyViolation = errors.New("statement rejected by policy")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrPoolExhausted   = errors.New("no session available")
	ErrTimeout         = errors.New("statement timed out")
	ErrClosed          = errors.New("gateway is closed")

	ErrContextSwitchingNotSupported = errors.New("context switching not supported")
)

// ErrorKind is the top level of the error taxonomy.
type ErrorKind string

const (
	KindUnexpected      ErrorKind = "UnexpectedError"
	KindConfiguration   ErrorKind = "ConfigurationError"
	KindSessionInit     ErrorKind = "SessionInitError"
	KindConnection      ErrorKind = "ConnectionError"
	KindPolicyViolation ErrorKind = "PolicyViolation"
	KindTimeout         ErrorKind = "TimeoutError"
	KindPoolExhausted   ErrorKind = "PoolExhausted"
	KindDriver          ErrorKind = "DriverError"
)

// ErrorReason subdivides a kind.
type ErrorReason string

const (
	ReasonNone ErrorReason = ""

	ReasonInvalidConfig     ErrorReason = "invalid_config"
	ReasonAuthentication    ErrorReason = "authentication"
	ReasonKeyDecryption     ErrorReason = "key_decryption"
	ReasonContextSetup      ErrorReason = "context_setup"
	ReasonSSOTimeout        ErrorReason = "sso_timeout"
	ReasonHandshake         ErrorReason = "handshake"
	ReasonRiskClassDisabled ErrorReason = "risk_class_disabled"
	ReasonEmptyStatement    ErrorReason = "empty_statement"
	ReasonInvalidRequest    ErrorReason = "invalid_request"
	ReasonAcquireTimeout    ErrorReason = "acquire_timeout"
	ReasonDeadline          ErrorReason = "deadline"
	ReasonCanceled          ErrorReason = "canceled"
	ReasonShutdown          ErrorReason = "shutdown"
	ReasonSessionLost       ErrorReason = "session_lost"
	ReasonTransport         ErrorReason = "transport"
	ReasonSyntax            ErrorReason = "syntax"
	ReasonPermission        ErrorReason = "permission"
	ReasonNotFound          ErrorReason = "not_found"
	ReasonOther             ErrorReason = "other"
)

type reasonError struct {
	reason ErrorReason
	err    error
}

func (e *reasonError) Error() string { return e.err.Error() }
func (e *reasonError) Unwrap() error { return e.err }

// WithReason annotates err with a reason that ClassifyError reports
// instead of the kind's default.
func WithReason(err error, reason ErrorReason) error {
	if err == nil {
		return nil
	}
	return &reasonError{reason: reason, err: err}
}

func reasonOf(err error) ErrorReason {
	var re *reasonError
	if errors.As(err, &re) {
		return re.reason
	}
	return ReasonNone
}

// DriverError is a warehouse error translated by an adapter.
type DriverError struct {
	Number   int
	SQLState string
	Message  string
	QueryID  string
	// Category is one of syntax, permission, not_found or other.
	Category ErrorReason
}

func (e *DriverError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("%06d (%s): %s", e.Number, e.SQLState, e.Message)
	}
	return fmt.Sprintf("%06d: %s", e.Number, e.Message)
}

func (e *DriverError) Code() string {
	if e.Number == 0 {
		return ""
	}
	return fmt.Sprintf("%06d", e.Number)
}

// ClassifiedError is the only error shape returned across the gateway boundary.
type ClassifiedError struct {
	Kind     ErrorKind   `json:"kind"`
	Reason   ErrorReason `json:"reason"`
	Code     string      `json:"code,omitempty"`
	SQLState string      `json:"sql_state,omitempty"`
	Message  string      `json:"message"`
	Hint     string      `json:"hint"`

	err error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, e.Message)
}

func (e *ClassifiedError) Unwrap() error { return e.err }

// IsConnectionFatal reports whether err means the session can no longer be used.
func IsConnectionFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && !ne.Timeout() {
		return true
	}
	return false
}

// ClassifyError maps any error into the taxonomy. It returns nil only for a nil error.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	kind, reason := classifyKind(err)
	if r := reasonOf(err); r != ReasonNone {
		reason = r
	}

	out := &ClassifiedError{
		Kind:    kind,
		Reason:  reason,
		Message: err.Error(),
		err:     err,
	}

	var de *DriverError
	if errors.As(err, &de) {
		out.Code = de.Code()
		out.SQLState = de.SQLState
		if kind == KindDriver {
			out.Message = de.Message
		}
	}

	out.Hint = Hint(out.Kind, out.Reason)
	return out
}

func classifyKind(err error) (ErrorKind, ErrorReason) {
	var de *DriverError

	switch {
	case errors.Is(err, ErrInvalidRequest):
		return KindPolicyViolation, ReasonInvalidRequest
	case errors.Is(err, ErrPolicyViolation):
		return KindPolicyViolation, ReasonRiskClassDisabled
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration, ReasonInvalidConfig
	case errors.Is(err, ErrPoolExhausted):
		return KindPoolExhausted, ReasonAcquireTimeout
	case errors.Is(err, ErrSessionInit):
		if errors.As(err, &de) && de.Category == ReasonAuthentication {
			return KindSessionInit, ReasonAuthentication
		}
		return KindSessionInit, ReasonHandshake
	case errors.Is(err, ErrClosed):
		return KindConnection, ReasonShutdown
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout, ReasonDeadline
	case errors.Is(err, context.Canceled):
		return KindTimeout, ReasonCanceled
	case errors.Is(err, ErrConnectionLost):
		return KindConnection, ReasonSessionLost
	case errors.As(err, &de):
		if de.Category == ReasonNone {
			return KindDriver, ReasonOther
		}
		return KindDriver, de.Category
	case IsConnectionFatal(err):
		return KindConnection, ReasonTransport
	default:
		return KindUnexpected, ReasonOther
	}
}

type hintKey struct {
	kind   ErrorKind
	reason ErrorReason
}

var hints = map[hintKey]string{
	{KindConfiguration, ReasonNone}:          "check the SNOWFLAKE_* settings; account, user and exactly one credential set are required",
	{KindConfiguration, ReasonKeyDecryption}: "the private key must be a PEM encoded RSA key; check SNOWFLAKE_PRIVATE_KEY_PASSPHRASE for encrypted keys",

	{KindSessionInit, ReasonNone}:           "verify the account identifier and that the warehouse is reachable",
	{KindSessionInit, ReasonAuthentication}: "verify the user name and credentials",
	{KindSessionInit, ReasonKeyDecryption}:  "verify private key passphrase",
	{KindSessionInit, ReasonContextSetup}:   "verify the configured warehouse, database, schema and role exist and are granted to the user",
	{KindSessionInit, ReasonSSOTimeout}:     "complete the browser sign-in before the timeout or raise SNOWFLAKE_LOGIN_TIMEOUT",

	{KindConnection, ReasonNone}:     "the connection to the warehouse was lost; retry the statement",
	{KindConnection, ReasonShutdown}: "the gateway is shutting down; retry after it restarts",

	{KindPolicyViolation, ReasonNone}:           "this class of statement is disabled by policy; use a read-only statement or ask an administrator",
	{KindPolicyViolation, ReasonEmptyStatement}: "provide a non-empty SQL statement",
	{KindPolicyViolation, ReasonInvalidRequest}: "row_limit and timeout_ms must not be negative; omit them to use the defaults",

	{KindTimeout, ReasonNone}:     "narrow the query with filters or a LIMIT, or raise the timeout",
	{KindTimeout, ReasonCanceled}: "the call was canceled before the statement finished",

	{KindPoolExhausted, ReasonNone}: "all sessions are busy; retry shortly or raise SNOWFLAKE_POOL_SIZE",

	{KindDriver, ReasonNone}:       "the warehouse rejected the statement; check the message for details",
	{KindDriver, ReasonSyntax}:     "fix the SQL syntax near the reported position",
	{KindDriver, ReasonPermission}: "the role lacks a privilege on the object; request a grant or switch role",
	{KindDriver, ReasonNotFound}:   "check the object name and the current database and schema, or qualify the name fully",

	{KindUnexpected, ReasonNone}: "unexpected failure; check the gateway logs",
}

// Hint returns the fixed remediation text for kind and reason, falling back to
// the kind's general hint.
func Hint(kind ErrorKind, reason ErrorReason) string {
	if h, ok := hints[hintKey{kind, reason}]; ok {
		return h
	}
	if h, ok := hints[hintKey{kind, ReasonNone}]; ok {
		return h
	}
	return hints[hintKey{KindUnexpected, ReasonNone}]
}

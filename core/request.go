package core

import (
	"fmt"
	"strings"
	"time"
)

// StatementRequest is a single statement to execute. It is not modified
// after it is received.
type StatementRequest struct {
	Statement string
	// RowLimit caps the returned rows. Zero means the engine default.
	RowLimit int
	// Timeout is the execution budget. Zero means the engine default.
	Timeout time.Duration

	// Optional namespace overrides for this statement only.
	Database  string
	Schema    string
	Warehouse string
}

// Overrides returns the per-statement namespace overrides.
func (r *StatementRequest) Overrides() SessionContext {
	return SessionContext{
		Warehouse: strings.TrimSpace(r.Warehouse),
		Database:  strings.TrimSpace(r.Database),
		Schema:    strings.TrimSpace(r.Schema),
	}
}

// IsEmpty reports whether the statement has nothing but whitespace and comments.
func (r *StatementRequest) IsEmpty() bool {
	return stripLeading(r.Statement) == ""
}

// Validate rejects negative row limits and time budgets.
func (r *StatementRequest) Validate() error {
	if r.RowLimit < 0 {
		return fmt.Errorf("%w: row limit %d is negative", ErrInvalidRequest, r.RowLimit)
	}
	if r.Timeout < 0 {
		return fmt.Errorf("%w: timeout %s is negative", ErrInvalidRequest, r.Timeout)
	}
	return nil
}

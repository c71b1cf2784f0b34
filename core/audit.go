package core

import (
	"context"
	"encoding/json"
	"time"
)

// AuditRecord is written once per call, whatever its outcome.
type AuditRecord struct {
	Timestamp     time.Time
	CallID        CallID
	Statement     string
	StatementType string
	RiskClass     RiskClass
	Outcome       CallState
	ErrorKind     ErrorKind
	ErrorReason   ErrorReason
	Elapsed       time.Duration
	RowCount      int
	Truncated     bool
	QueryID       string
}

// AuditSink receives audit records. Implementations must be safe for
// concurrent use and must not block the caller for long.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord)
}

type auditRecordPersistent struct {
	Timestamp     string      `json:"timestamp"`
	CallID        string      `json:"call_id"`
	Statement     string      `json:"statement"`
	StatementType string      `json:"statement_type,omitempty"`
	RiskClass     RiskClass   `json:"risk_class"`
	Outcome       CallState   `json:"outcome"`
	ErrorKind     ErrorKind   `json:"error_kind,omitempty"`
	ErrorReason   ErrorReason `json:"error_reason,omitempty"`
	ElapsedMs     int64       `json:"elapsed_ms"`
	RowCount      int         `json:"row_count"`
	Truncated     bool        `json:"truncated,omitempty"`
	QueryID       string      `json:"query_id,omitempty"`
}

func (r AuditRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(auditRecordPersistent{
		Timestamp:     r.Timestamp.UTC().Format(time.RFC3339Nano),
		CallID:        string(r.CallID),
		Statement:     r.Statement,
		StatementType: r.StatementType,
		RiskClass:     r.RiskClass,
		Outcome:       r.Outcome,
		ErrorKind:     r.ErrorKind,
		ErrorReason:   r.ErrorReason,
		ElapsedMs:     r.Elapsed.Milliseconds(),
		RowCount:      r.RowCount,
		Truncated:     r.Truncated,
		QueryID:       r.QueryID,
	})
}

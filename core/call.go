package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type (
	CallID string

	// Call tracks a single statement through the gateway.
	Call struct {
		id             CallID
		statement      string
		classification Classification
		state          CallState
		timeTaken      time.Duration
		timestamp      time.Time

		result *ExecutionResult
		// any error that occurred during the call, already classified
		err *ClassifiedError
	}
)

func newCall(statement string, now time.Time) *Call {
	return &Call{
		id:        CallID(uuid.New().String()),
		statement: statement,
		state:     CallStateUnknown,
		timestamp: now,
	}
}

func (c *Call) classify(cl Classification) {
	c.classification = cl
}

func (c *Call) start() {
	c.state = CallStateExecuting
}

// finish settles the final state from the outcome of the call.
func (c *Call) finish(res *ExecutionResult, err *ClassifiedError, now time.Time) {
	c.timeTaken = now.Sub(c.timestamp)
	c.result = res
	c.err = err

	switch {
	case err == nil:
		c.state = CallStateSucceeded
	case err.Kind == KindPolicyViolation:
		c.state = CallStateRejected
	case errors.Is(err, context.Canceled):
		c.state = CallStateCanceled
	default:
		c.state = CallStateExecutingFailed
	}
}

// AuditRecord summarizes the call for an AuditSink.
func (c *Call) AuditRecord() AuditRecord {
	rec := AuditRecord{
		Timestamp:     c.timestamp,
		CallID:        c.id,
		Statement:     c.statement,
		StatementType: c.classification.StatementType,
		RiskClass:     c.classification.Risk,
		Outcome:       c.state,
		Elapsed:       c.timeTaken,
	}
	if c.result != nil {
		rec.RowCount = c.result.Meta.RowCount
		rec.Truncated = c.result.Meta.Truncated
		rec.QueryID = c.result.Meta.QueryID
	}
	if c.err != nil {
		rec.ErrorKind = c.err.Kind
		rec.ErrorReason = c.err.Reason
	}
	return rec
}

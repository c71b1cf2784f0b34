package audit

import (
	"context"
	"log/slog"
)

// SlogSink writes records as structured log lines.
type SlogSink struct {
	log   *slog.Logger
	level slog.Level
}

func NewSlogSink(log *slog.Logger, level slog.Level) *SlogSink {
	return &SlogSink{log: log, level: level}
}

func (s *SlogSink) Record(ctx context.Context, rec Record) {
	attrs := []slog.Attr{
		slog.String("call", string(rec.CallID)),
		slog.Time("timestamp", rec.Timestamp),
		slog.String("statement", rec.Statement),
		slog.String("statement_type", rec.StatementType),
		slog.String("risk_class", rec.RiskClass.String()),
		slog.String("outcome", rec.Outcome.String()),
		slog.Duration("elapsed", rec.Elapsed),
		slog.Int("rows", rec.RowCount),
	}
	if rec.Truncated {
		attrs = append(attrs, slog.Bool("truncated", true))
	}
	if rec.ErrorKind != "" {
		attrs = append(attrs,
			slog.String("error_kind", string(rec.ErrorKind)),
			slog.String("error_reason", string(rec.ErrorReason)),
		)
	}
	if rec.QueryID != "" {
		attrs = append(attrs, slog.String("query_id", rec.QueryID))
	}

	s.log.LogAttrs(ctx, s.level, "audit: call", attrs...)
}

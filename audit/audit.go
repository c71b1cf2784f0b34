// Package audit provides sinks for the record the gateway writes once per call.
package audit

import (
	"context"

	"github.com/kndndrj/snowgate/core"
)

type (
	Sink   = core.AuditSink
	Record = core.AuditRecord
)

var (
	_ Sink = Nop{}
	_ Sink = Multi(nil)
	_ Sink = (*SlogSink)(nil)
	_ Sink = (*FileSink)(nil)
)

// Nop drops every record.
type Nop struct{}

func (Nop) Record(context.Context, Record) {}

// Multi fans a record out to several sinks in order.
type Multi []Sink

func (m Multi) Record(ctx context.Context, rec Record) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, rec)
		}
	}
}

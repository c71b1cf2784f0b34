package mock

import (
	"context"
	"sync"

	"github.com/kndndrj/snowgate/core"
)

var _ core.AuditSink = (*AuditRecorder)(nil)

// AuditRecorder keeps every record in memory.
type AuditRecorder struct {
	mu      sync.Mutex
	records []core.AuditRecord
}

func (r *AuditRecorder) Record(_ context.Context, rec core.AuditRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *AuditRecorder) Records() []core.AuditRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.AuditRecord(nil), r.records...)
}

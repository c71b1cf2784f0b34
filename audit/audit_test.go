package audit_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kndndrj/snowgate/audit"
	"github.com/kndndrj/snowgate/core"
	"github.com/kndndrj/snowgate/core/mock"
)

func newRecord(id string) audit.Record {
	return audit.Record{
		Timestamp:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		CallID:        core.CallID(id),
		Statement:     "SELECT 1",
		StatementType: "SELECT",
		RiskClass:     core.RiskReadOnly,
		Outcome:       core.CallStateSucceeded,
		Elapsed:       1500 * time.Millisecond,
		RowCount:      1,
		QueryID:       "01b2-query",
	}
}

func TestFileSink(t *testing.T) {
	r := require.New(t)

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := audit.OpenFile(path, nil)
	r.NoError(err)

	failed := newRecord("call-2")
	failed.Outcome = core.CallStateRejected
	failed.RiskClass = core.RiskDestructive
	failed.Statement = "DROP TABLE t"
	failed.StatementType = "DROP"
	failed.ErrorKind = core.KindPolicyViolation
	failed.ErrorReason = core.ReasonRiskClassDisabled
	failed.RowCount = 0
	failed.QueryID = ""

	sink.Record(context.Background(), newRecord("call-1"))
	sink.Record(context.Background(), failed)
	r.NoError(sink.Close())

	// records after close are dropped
	sink.Record(context.Background(), newRecord("call-3"))
	r.NoError(sink.Close())

	f, err := os.Open(path)
	r.NoError(err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]any
		r.NoError(json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	r.NoError(scanner.Err())
	r.Len(lines, 2)

	r.Equal("call-1", lines[0]["call_id"])
	r.Equal("2024-03-01T12:00:00Z", lines[0]["timestamp"])
	r.Equal("read_only", lines[0]["risk_class"])
	r.Equal("succeeded", lines[0]["outcome"])
	r.EqualValues(1500, lines[0]["elapsed_ms"])
	r.Equal("01b2-query", lines[0]["query_id"])
	r.NotContains(lines[0], "error_kind")

	r.Equal("destructive", lines[1]["risk_class"])
	r.Equal("PolicyViolation", lines[1]["error_kind"])
	r.Equal("risk_class_disabled", lines[1]["error_reason"])
	r.NotContains(lines[1], "query_id")
}

func TestFileSink_Append(t *testing.T) {
	r := require.New(t)

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	for _, id := range []string{"a", "b"} {
		sink, err := audit.OpenFile(path, nil)
		r.NoError(err)
		sink.Record(context.Background(), newRecord(id))
		r.NoError(sink.Close())
	}

	data, err := os.ReadFile(path)
	r.NoError(err)
	r.Equal(2, bytes.Count(data, []byte("\n")))
}

func TestFileSink_Concurrent(t *testing.T) {
	r := require.New(t)

	var buf bytes.Buffer
	sink := audit.NewFileSink(nopCloser{&buf}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Record(context.Background(), newRecord("c"))
		}()
	}
	wg.Wait()

	r.Equal(20, bytes.Count(buf.Bytes(), []byte("\n")))
}

type nopCloser struct {
	*bytes.Buffer
}

func (nopCloser) Close() error { return nil }

func TestSlogSink(t *testing.T) {
	r := require.New(t)

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	sink := audit.NewSlogSink(log, slog.LevelInfo)

	rec := newRecord("call-1")
	rec.Truncated = true
	sink.Record(context.Background(), rec)

	var line map[string]any
	r.NoError(json.Unmarshal(buf.Bytes(), &line))
	r.Equal("audit: call", line["msg"])
	r.Equal("call-1", line["call"])
	r.Equal("read_only", line["risk_class"])
	r.Equal("succeeded", line["outcome"])
	r.Equal(true, line["truncated"])
	r.NotContains(line, "error_kind")
}

func TestMulti(t *testing.T) {
	r := require.New(t)

	first, second := &mock.AuditRecorder{}, &mock.AuditRecorder{}
	sink := audit.Multi{first, nil, audit.Nop{}, second}

	sink.Record(context.Background(), newRecord("x"))

	r.Len(first.Records(), 1)
	r.Len(second.Records(), 1)
	r.Equal(core.CallID("x"), second.Records()[0].CallID)
}

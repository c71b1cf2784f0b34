package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// FileSink appends records to a file as JSON lines.
type FileSink struct {
	mu  sync.Mutex
	w   io.WriteCloser
	enc *json.Encoder
	log *slog.Logger
}

// OpenFile opens path for appending, creating it if needed.
func OpenFile(path string, log *slog.Logger) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("os.OpenFile: %w", err)
	}
	return NewFileSink(f, log), nil
}

func NewFileSink(w io.WriteCloser, log *slog.Logger) *FileSink {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &FileSink{
		w:   w,
		enc: json.NewEncoder(w),
		log: log,
	}
}

func (s *FileSink) Record(_ context.Context, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enc == nil {
		return
	}
	if err := s.enc.Encode(rec); err != nil {
		s.log.Error("audit: failed to write record", "call", rec.CallID, "error", err)
	}
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enc == nil {
		return nil
	}
	s.enc = nil
	return s.w.Close()
}

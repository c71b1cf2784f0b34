package core

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kndndrj/snowgate/metrics"
)

const (
	DefaultRowLimit    = 1000
	DefaultMaxRowLimit = 10000
	DefaultTimeout     = 60 * time.Second

	restoreTimeout = 10 * time.Second
)

type EngineConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	// DefaultRowLimit applies to requests without a row limit.
	DefaultRowLimit int
	// MaxRowLimit caps the row limit a request may ask for.
	MaxRowLimit int
	// DefaultTimeout applies to requests without a timeout.
	DefaultTimeout time.Duration
}

func (cfg *EngineConfig) Validate() error {
	if cfg.DefaultRowLimit < 0 {
		return fmt.Errorf("invalid default row limit %d", cfg.DefaultRowLimit)
	}
	if cfg.DefaultTimeout < 0 {
		return fmt.Errorf("invalid default timeout %s", cfg.DefaultTimeout)
	}
	if cfg.MaxRowLimit < 0 {
		return fmt.Errorf("invalid max row limit %d", cfg.MaxRowLimit)
	}
	if cfg.DefaultRowLimit == 0 {
		cfg.DefaultRowLimit = DefaultRowLimit
	}
	if cfg.MaxRowLimit == 0 {
		cfg.MaxRowLimit = max(DefaultMaxRowLimit, cfg.DefaultRowLimit)
	}
	if cfg.DefaultRowLimit > cfg.MaxRowLimit {
		return fmt.Errorf("default row limit %d exceeds max row limit %d", cfg.DefaultRowLimit, cfg.MaxRowLimit)
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Engine runs one statement on one session within a row cap and a time budget.
type Engine struct {
	cfg EngineConfig
	log *slog.Logger
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: engine: %w", ErrConfiguration, err)
	}
	return &Engine{cfg: cfg, log: cfg.Logger}, nil
}

// limits returns the effective row limit and time budget of a validated request.
func (e *Engine) limits(req *StatementRequest) (int, time.Duration) {
	limit := req.RowLimit
	if limit == 0 {
		limit = e.cfg.DefaultRowLimit
	}
	limit = min(limit, e.cfg.MaxRowLimit)

	timeout := req.Timeout
	if timeout == 0 {
		timeout = e.cfg.DefaultTimeout
	}
	return limit, timeout
}

type runOutcome struct {
	result *ExecutionResult
	err    error
}

// Run executes req on s. When the time budget runs out the statement context
// is canceled, the session is marked broken and ErrTimeout is returned.
func (e *Engine) Run(ctx context.Context, s *Session, req *StatementRequest, cl Classification) (*ExecutionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	limit, timeout := e.limits(req)
	start := e.cfg.Clock.Now()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan runOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.MarkBroken()
				e.log.Error("engine: recovered from panic", "session", s.GetID(), "panic", r, "stack", string(debug.Stack()))
				done <- runOutcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := e.run(runCtx, s, req, cl, limit)
		done <- runOutcome{result: res, err: err}
	}()

	var out runOutcome
	select {
	case out = <-done:
	case <-runCtx.Done():
	}

	if out.result == nil && runCtx.Err() != nil {
		cancel()
		s.MarkBroken()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("engine.Run: %w", ctx.Err())
		}
		e.log.Warn("engine: statement timed out", "session", s.GetID(), "timeout", timeout, "statement", Abbreviate(req.Statement))
		return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	if out.err != nil {
		return nil, out.err
	}

	res := out.result
	res.Meta.Elapsed = e.cfg.Clock.Since(start)
	if res.Meta.Truncated {
		metrics.Truncations.Inc()
	}
	return res, nil
}

func (e *Engine) run(ctx context.Context, s *Session, req *StatementRequest, cl Classification, limit int) (*ExecutionResult, error) {
	driver := s.Driver()
	sc := s.Context()

	if cl.ChangesSession {
		// the state this statement leaves behind must not reach the next caller
		s.MarkBroken()
	}

	if overrides := req.Overrides(); !overrides.IsZero() {
		switcher, ok := driver.(ContextSwitcher)
		if !ok {
			return nil, ErrContextSwitchingNotSupported
		}
		if err := switcher.Use(ctx, overrides); err != nil {
			// some of the USE statements may have been applied
			s.MarkBroken()
			return nil, fmt.Errorf("switcher.Use: %w", err)
		}
		defer e.restore(ctx, s, switcher, sc, overrides)
		sc = sc.Merge(overrides)
	}

	var (
		res *ExecutionResult
		err error
	)
	if cl.ReturnsRows {
		res, err = e.query(ctx, driver, req.Statement, limit)
	} else {
		res, err = e.exec(ctx, driver, req.Statement)
	}
	if err != nil {
		return nil, err
	}

	if switcher, ok := driver.(ContextSwitcher); ok && cl.ChangesSession {
		current, err := switcher.CurrentContext(ctx)
		if err != nil {
			e.log.Debug("engine: could not read session context", "session", s.GetID(), "error", err)
		} else {
			sc = current
		}
	}

	res.Meta.StatementType = cl.StatementType
	res.Meta.RiskClass = cl.Risk
	res.Meta.Context = sc
	return res, nil
}

func (e *Engine) query(ctx context.Context, driver Driver, statement string, limit int) (*ExecutionResult, error) {
	stream, err := driver.Query(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	// one row past the limit tells whether there is more
	rows := make([]Row, 0, min(limit, 255)+1)
	for len(rows) <= limit && stream.HasNext() {
		row, err := stream.Next()
		if err != nil {
			return nil, fmt.Errorf("stream.Next: %w", err)
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	truncated := len(rows) > limit
	if truncated {
		rows = rows[:limit]
	}

	res := Normalize(stream.Header(), stream.ColumnTypes(), rows)
	res.Meta.Truncated = truncated
	if meta := stream.Meta(); meta != nil {
		res.Meta.QueryID = meta.QueryID
	}
	return res, nil
}

func (e *Engine) exec(ctx context.Context, driver Driver, statement string) (*ExecutionResult, error) {
	stream, err := driver.Exec(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	res := Normalize(nil, nil, nil)
	if meta := stream.Meta(); meta != nil {
		res.Meta.RowsAffected = meta.RowsAffected
		res.Meta.QueryID = meta.QueryID
	}
	return res, nil
}

// restore puts back the session context that was in place before the
// overrides. Sessions that cannot be restored are marked broken.
func (e *Engine) restore(ctx context.Context, s *Session, switcher ContextSwitcher, orig, overrides SessionContext) {
	if s.IsBroken() {
		return
	}

	target, ok := restoreTarget(orig, overrides)
	if !ok {
		s.MarkBroken()
		return
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()

	if err := switcher.Use(rctx, target); err != nil {
		e.log.Warn("engine: could not restore session context", "session", s.GetID(), "error", err)
		s.MarkBroken()
	}
}

// restoreTarget returns the original values of the overridden fields. It
// fails when a field had no original value, because a USE cannot unset it.
func restoreTarget(orig, overrides SessionContext) (SessionContext, bool) {
	var target SessionContext
	pick := func(o, over string, dst *string) bool {
		if over == "" || over == o {
			return true
		}
		if o == "" {
			return false
		}
		*dst = o
		return true
	}

	ok := pick(orig.Warehouse, overrides.Warehouse, &target.Warehouse) &&
		pick(orig.Database, overrides.Database, &target.Database) &&
		pick(orig.Schema, overrides.Schema, &target.Schema)
	if ok && overrides.Database != "" && overrides.Schema == "" && orig.Schema != "" {
		// USE DATABASE resets the schema to PUBLIC
		target.Schema = orig.Schema
	}
	return target, ok
}

// Abbreviate shortens a statement for log lines.
func Abbreviate(statement string) string {
	const maxLen = 50
	r := []rune(stripLeading(statement))
	if len(r) <= maxLen {
		return string(r)
	}
	return string(r[:maxLen]) + "..."
}

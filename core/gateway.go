package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/kndndrj/snowgate/metrics"
)

type GatewayConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Pool   *Pool
	Engine *Engine
	// Policy is the set of disabled risk classes. Nil allows everything.
	Policy *Policy
	Audit  AuditSink
}

func (cfg *GatewayConfig) Validate() error {
	if cfg.Pool == nil {
		return errors.New("pool is required")
	}
	if cfg.Engine == nil {
		return errors.New("engine is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Gateway is the single entry point for statement execution.
type Gateway struct {
	cfg GatewayConfig
	log *slog.Logger

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: gateway: %w", ErrConfiguration, err)
	}
	return &Gateway{
		cfg: cfg,
		log: cfg.Logger,
	}, nil
}

// Execute classifies, gates and runs a statement. It returns either a result
// or a *ClassifiedError, never both, and never panics.
func (g *Gateway) Execute(ctx context.Context, req *StatementRequest) (res *ExecutionResult, err error) {
	statement := ""
	if req != nil {
		statement = req.Statement
	}
	call := newCall(statement, g.cfg.Clock.Now())

	defer func() {
		if r := recover(); r != nil {
			g.log.Error("gateway: recovered from panic", "call", call.id, "panic", r, "stack", string(debug.Stack()))
			res = nil
			err = fmt.Errorf("panic: %v", r)
		}

		var cerr *ClassifiedError
		if err != nil {
			cerr = ClassifyError(err)
			res, err = nil, cerr
		}
		call.finish(res, cerr, g.cfg.Clock.Now())
		g.observe(ctx, call)
	}()

	if !g.enter() {
		return nil, ErrClosed
	}
	defer g.inflight.Done()

	if req == nil || req.IsEmpty() {
		return nil, WithReason(fmt.Errorf("%w: statement is empty", ErrPolicyViolation), ReasonEmptyStatement)
	}

	cl := ClassifyStatement(req.Statement)
	call.classify(cl)

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := g.cfg.Policy.Check(cl.Risk); err != nil {
		return nil, err
	}
	if cl.Risk.Dangerous() {
		g.log.Warn("gateway: executing dangerous statement", "call", call.id, "risk_class", cl.Risk, "statement_type", cl.StatementType, "statement", Abbreviate(req.Statement))
	}

	call.start()
	err = g.cfg.Pool.Do(ctx, func(ctx context.Context, s *Session) error {
		r, err := g.cfg.Engine.Run(ctx, s, req, cl)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (g *Gateway) enter() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return false
	}
	g.inflight.Add(1)
	return true
}

func (g *Gateway) observe(ctx context.Context, call *Call) {
	rec := call.AuditRecord()

	metrics.Executions.WithLabelValues(rec.RiskClass.String(), rec.Outcome.String()).Inc()
	metrics.ExecutionDuration.WithLabelValues(rec.RiskClass.String()).Observe(rec.Elapsed.Seconds())

	if rec.Outcome == CallStateSucceeded {
		g.log.Info("gateway: statement executed",
			"call", rec.CallID,
			"risk_class", rec.RiskClass,
			"statement", Abbreviate(rec.Statement),
			"rows", rec.RowCount,
			"truncated", rec.Truncated,
			"took", rec.Elapsed,
		)
	} else {
		g.log.Warn("gateway: statement failed",
			"call", rec.CallID,
			"risk_class", rec.RiskClass,
			"statement", Abbreviate(rec.Statement),
			"outcome", rec.Outcome,
			"kind", rec.ErrorKind,
			"reason", rec.ErrorReason,
			"took", rec.Elapsed,
		)
	}

	if g.cfg.Audit != nil {
		g.cfg.Audit.Record(context.WithoutCancel(ctx), rec)
	}
}

// Close rejects new calls, waits for in-flight ones and closes the pool.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		g.log.Warn("gateway: shutdown deadline reached with calls in flight")
	}

	if err := g.cfg.Pool.Close(ctx); err != nil {
		return fmt.Errorf("pool.Close: %w", err)
	}
	return nil
}

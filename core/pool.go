package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/kndndrj/snowgate/metrics"
)

const (
	DefaultPoolSize       = 2
	DefaultAcquireTimeout = 30 * time.Second
)

type PoolConfig struct {
	Adapter Adapter
	Params  *ConnectionParams
	// Size is the maximum number of concurrently open sessions.
	Size int
	// AcquireTimeout bounds the wait for a free session. It does not bound
	// the handshake itself.
	AcquireTimeout time.Duration
	Logger         *slog.Logger
	Clock          clockwork.Clock
}

func (cfg *PoolConfig) Validate() error {
	if cfg.Adapter == nil {
		return errors.New("adapter is required")
	}
	if cfg.Params == nil || cfg.Params.Auth == nil {
		return errors.New("connection params with an auth strategy are required")
	}
	if cfg.Size < 0 {
		return fmt.Errorf("invalid pool size %d", cfg.Size)
	}
	if cfg.Size == 0 {
		cfg.Size = DefaultPoolSize
	}
	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Pool hands out warehouse sessions. Sessions are opened lazily on the first
// acquisition that finds no idle one, and reused while healthy.
type Pool struct {
	cfg PoolConfig
	log *slog.Logger

	slots       *semaphore.Weighted
	interactive *semaphore.Weighted

	mu     sync.Mutex
	idle   []*Session
	closed bool

	opened atomic.Int64
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: pool: %w", ErrConfiguration, err)
	}

	return &Pool{
		cfg:         cfg,
		log:         cfg.Logger,
		slots:       semaphore.NewWeighted(int64(cfg.Size)),
		interactive: semaphore.NewWeighted(1),
	}, nil
}

// Opened returns the number of sessions opened over the pool's lifetime.
func (p *Pool) Opened() int64 {
	return p.opened.Load()
}

// Idle returns the number of healthy sessions waiting for reuse.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Acquire checks out a session, opening one when none is idle. The caller
// must hand it back with Release.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	err := p.slots.Acquire(waitCtx, 1)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pool.Acquire: %w", ctx.Err())
		}
		metrics.PoolExhausted.Inc()
		return nil, fmt.Errorf("%w: all %d sessions busy for %s", ErrPoolExhausted, p.cfg.Size, p.cfg.AcquireTimeout)
	}

	s, err := p.checkout(ctx)
	if err != nil {
		p.slots.Release(1)
		return nil, err
	}

	metrics.SessionsInUse.Inc()
	return s, nil
}

func (p *Pool) checkout(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	for len(p.idle) > 0 {
		s := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if !s.IsBroken() {
			p.mu.Unlock()
			return s, nil
		}
		go s.close()
	}
	p.mu.Unlock()

	return p.open(ctx)
}

// open performs the handshake. Interactive handshakes are serialized and
// bounded by their own timeout.
func (p *Pool) open(ctx context.Context) (*Session, error) {
	params := p.cfg.Params
	interactive := params.Auth.Interactive()

	if interactive {
		if err := p.interactive.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("pool.open: %w", err)
		}
		defer p.interactive.Release(1)
	}

	hsCtx := ctx
	if timeout := params.HandshakeTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		hsCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := p.cfg.Clock.Now()
	p.log.Debug("pool: opening session", "auth", params.Auth.Name(), "account", params.Auth.Account(), "interactive", interactive)

	driver, err := p.cfg.Adapter.Connect(hsCtx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pool.open: %w", ctx.Err())
		}
		err = fmt.Errorf("%w: %w", ErrSessionInit, err)
		if interactive && errors.Is(hsCtx.Err(), context.DeadlineExceeded) {
			err = WithReason(err, ReasonSSOTimeout)
		}
		p.log.Error("pool: handshake failed", "auth", params.Auth.Name(), "error", err)
		return nil, err
	}

	sc := params.Defaults
	if switcher, ok := driver.(ContextSwitcher); ok {
		current, err := switcher.CurrentContext(ctx)
		if err != nil {
			p.log.Warn("pool: could not read session context", "error", err)
		} else {
			sc = sc.Merge(current)
		}
	}

	s := newSession(SessionID(uuid.New().String()), driver, sc, p.cfg.Clock.Now())
	p.opened.Add(1)
	metrics.SessionsOpened.Inc()
	p.log.Info("pool: session opened",
		"session", s.id,
		"auth", params.Auth.Name(),
		"warehouse", sc.Warehouse,
		"database", sc.Database,
		"schema", sc.Schema,
		"role", sc.Role,
		"took", p.cfg.Clock.Since(start),
	)

	return s, nil
}

// Release returns a checked out session. Broken sessions are closed instead
// of being kept for reuse.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	defer func() {
		metrics.SessionsInUse.Dec()
		p.slots.Release(1)
	}()

	if s.IsBroken() {
		metrics.SessionsInvalidated.Inc()
		p.log.Info("pool: session discarded", "session", s.id, "age", p.cfg.Clock.Since(s.createdAt))
		go s.close()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		go s.close()
		return
	}
	p.idle = append(p.idle, s)
}

// Invalidate marks a session as unusable and starts closing it. The caller
// still owns the slot and must Release the session.
func (p *Pool) Invalidate(s *Session) {
	if s == nil {
		return
	}
	s.MarkBroken()
	go s.close()
}

// Do runs fn on a checked out session. When fn fails with a connection-fatal
// error the session is invalidated and fn runs once more on a fresh one. A
// second fatal failure is reported as ErrConnectionLost.
func (p *Pool) Do(ctx context.Context, fn func(context.Context, *Session) error) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		s, err := p.Acquire(ctx)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}

		err = fn(ctx, s)
		if err != nil && IsConnectionFatal(err) {
			p.Invalidate(s)
			p.Release(s)
			p.log.Warn("pool: session lost", "session", s.id, "attempt", attempt, "error", err)
			return struct{}{}, err
		}

		p.Release(s)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(&backoff.ZeroBackOff{}), backoff.WithMaxTries(2))

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	if err != nil && IsConnectionFatal(err) && !errors.Is(err, ErrConnectionLost) {
		err = fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	return err
}

// Close stops handing out sessions, waits for checked out ones to come back
// and closes everything.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.slots.Acquire(ctx, int64(p.cfg.Size))
	if err == nil {
		defer p.slots.Release(int64(p.cfg.Size))
	}

	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, s := range idle {
		s.close()
	}

	p.log.Info("pool: closed", "sessions_opened", p.opened.Load())

	if err != nil {
		return fmt.Errorf("pool.Close: %w", err)
	}
	return nil
}

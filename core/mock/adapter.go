package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kndndrj/snowgate/core"
)

var (
	_ core.Driver          = (*driver)(nil)
	_ core.ContextSwitcher = (*driver)(nil)
)

type driver struct {
	adapter *Adapter

	mu      sync.Mutex
	current core.SessionContext
	closed  atomic.Bool
}

func (d *driver) sideEffect(ctx context.Context, query string) error {
	eff, ok := d.adapter.config.querySideEffects[query]
	if !ok {
		eff = d.adapter.config.anyQuerySideEffect
	}
	if eff == nil {
		return nil
	}
	if err := eff(ctx); err != nil {
		return fmt.Errorf("side effect error: %w", err)
	}
	return nil
}

func (d *driver) Query(ctx context.Context, query string) (core.ResultStream, error) {
	d.adapter.queries.Add(1)
	if err := d.sideEffect(ctx, query); err != nil {
		return nil, err
	}

	return NewResultStream(d.adapter.data, d.adapter.config.resultStreamOptions...), nil
}

func (d *driver) Exec(ctx context.Context, query string) (core.ResultStream, error) {
	d.adapter.queries.Add(1)
	if err := d.sideEffect(ctx, query); err != nil {
		return nil, err
	}

	affected := d.adapter.config.rowsAffected
	return NewResultStream(
		[]core.Row{{affected}},
		ResultStreamWithHeader(core.Header{"Rows Affected"}),
		ResultStreamWithMeta(&core.Meta{RowsAffected: &affected}),
	), nil
}

func (d *driver) Use(ctx context.Context, sc core.SessionContext) error {
	if eff := d.adapter.config.useSideEffect; eff != nil {
		if err := eff(ctx, sc); err != nil {
			return err
		}
	}

	d.mu.Lock()
	d.current = d.current.Merge(sc)
	d.mu.Unlock()

	d.adapter.recordUse(sc)
	return nil
}

func (d *driver) CurrentContext(context.Context) (core.SessionContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, nil
}

func (d *driver) Close() {
	if d.closed.CompareAndSwap(false, true) {
		d.adapter.closes.Add(1)
	}
}

var _ core.Adapter = (*Adapter)(nil)

// Adapter opens mocked sessions that return data for every query.
type Adapter struct {
	data   []core.Row
	config *adapterConfig

	connects atomic.Int64
	closes   atomic.Int64
	queries  atomic.Int64

	mu   sync.Mutex
	uses []core.SessionContext
}

func NewAdapter(data []core.Row, opts ...AdapterOption) *Adapter {
	config := &adapterConfig{
		querySideEffects: make(map[string]func(context.Context) error),

		resultStreamOptions: []ResultStreamOption{},
	}
	for _, opt := range opts {
		opt(config)
	}

	return &Adapter{
		data:   data,
		config: config,
	}
}

func (a *Adapter) Connect(ctx context.Context, params *core.ConnectionParams) (core.Driver, error) {
	if eff := a.config.connectSideEffect; eff != nil {
		if err := eff(ctx, params); err != nil {
			return nil, err
		}
	}
	a.connects.Add(1)

	current := a.config.currentContext
	if params != nil {
		current = current.Merge(params.Defaults)
	}

	return &driver{
		adapter: a,
		current: current,
	}, nil
}

// Connects returns the number of successful Connect calls.
func (a *Adapter) Connects() int {
	return int(a.connects.Load())
}

// Closes returns the number of closed sessions.
func (a *Adapter) Closes() int {
	return int(a.closes.Load())
}

// Queries returns the number of statements sent to any session.
func (a *Adapter) Queries() int {
	return int(a.queries.Load())
}

// Uses returns every context passed to Use, in order.
func (a *Adapter) Uses() []core.SessionContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]core.SessionContext(nil), a.uses...)
}

func (a *Adapter) recordUse(sc core.SessionContext) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uses = append(a.uses, sc)
}

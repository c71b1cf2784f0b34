package core_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/kndndrj/snowgate/core"
	"github.com/kndndrj/snowgate/core/mock"
)

func newTestEngine(t *testing.T, clock clockwork.Clock) *core.Engine {
	t.Helper()

	engine, err := core.NewEngine(core.EngineConfig{
		Clock:           clock,
		DefaultRowLimit: 100,
		DefaultTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	return engine
}

func runStatement(t *testing.T, engine *core.Engine, pool *core.Pool, req *core.StatementRequest) (*core.ExecutionResult, *core.Session, error) {
	t.Helper()

	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(s)

	res, err := engine.Run(context.Background(), s, req, core.ClassifyStatement(req.Statement))
	return res, s, err
}

func TestEngine_RowLimit(t *testing.T) {
	testCases := []struct {
		name      string
		available int
		limit     int
		expected  int
		truncated bool
	}{
		{"more rows than limit", 15, 10, 10, true},
		{"fewer rows than limit", 5, 10, 5, false},
		{"exactly the limit", 10, 10, 10, false},
		{"limit plus one", 11, 10, 10, true},
		{"no rows", 0, 10, 0, false},
		{"default limit", 150, 0, 100, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := require.New(t)

			rows := mock.NewRows(0, tc.available)
			pool := newTestPool(t, mock.NewAdapter(rows, mock.AdapterWithResultStreamOpts(
				mock.ResultStreamWithHeader(core.Header{"id", "name"}),
			)), 1)
			engine := newTestEngine(t, nil)

			res, _, err := runStatement(t, engine, pool, &core.StatementRequest{Statement: "SELECT * FROM t", RowLimit: tc.limit})
			r.NoError(err)

			r.Len(res.Rows, tc.expected)
			r.Equal(tc.expected, res.Meta.RowCount)
			r.Equal(tc.truncated, res.Meta.Truncated)
			r.Equal("SELECT", res.Meta.StatementType)
			r.Equal(core.RiskReadOnly, res.Meta.RiskClass)

			for i, row := range res.Rows {
				r.Equal(core.IntegerValue(int64(i)), row[0])
			}
		})
	}
}

func TestEngine_RowLimitCap(t *testing.T) {
	testCases := []struct {
		name      string
		max       int
		available int
		limit     int
		expected  int
		truncated bool
	}{
		{"largest int", 0, 3, math.MaxInt, 3, false},
		{"above the cap", 5, 15, 100, 5, true},
		{"below the cap", 5, 15, 4, 4, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := require.New(t)

			pool := newTestPool(t, mock.NewAdapter(mock.NewRows(0, tc.available)), 1)
			engine, err := core.NewEngine(core.EngineConfig{DefaultRowLimit: 2, MaxRowLimit: tc.max})
			r.NoError(err)

			res, s, err := runStatement(t, engine, pool, &core.StatementRequest{Statement: "SELECT * FROM t", RowLimit: tc.limit})
			r.NoError(err)
			r.Len(res.Rows, tc.expected)
			r.Equal(tc.truncated, res.Meta.Truncated)
			r.False(s.IsBroken())
		})
	}
}

func TestEngine_InvalidLimits(t *testing.T) {
	testCases := []struct {
		name string
		req  *core.StatementRequest
	}{
		{"negative row limit", &core.StatementRequest{Statement: "SELECT 1", RowLimit: -1}},
		{"negative timeout", &core.StatementRequest{Statement: "SELECT 1", Timeout: -time.Second}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := require.New(t)

			adapter := mock.NewAdapter(mock.NewRows(0, 1))
			pool := newTestPool(t, adapter, 1)
			engine := newTestEngine(t, nil)

			_, s, err := runStatement(t, engine, pool, tc.req)
			r.ErrorIs(err, core.ErrInvalidRequest)
			r.False(s.IsBroken())
			r.Equal(0, adapter.Queries())

			ce := core.ClassifyError(err)
			r.Equal(core.KindPolicyViolation, ce.Kind)
			r.Equal(core.ReasonInvalidRequest, ce.Reason)
		})
	}
}

func TestEngineConfig_RowLimits(t *testing.T) {
	_, err := core.NewEngine(core.EngineConfig{DefaultRowLimit: 50, MaxRowLimit: 10})
	require.ErrorIs(t, err, core.ErrConfiguration)

	_, err = core.NewEngine(core.EngineConfig{MaxRowLimit: -1})
	require.ErrorIs(t, err, core.ErrConfiguration)
}

func TestEngine_Elapsed(t *testing.T) {
	r := require.New(t)

	clock := clockwork.NewFakeClock()
	pool := newTestPool(t, mock.NewAdapter(mock.NewRows(0, 1), mock.AdapterWithQuerySideEffect("SELECT 1", func(context.Context) error {
		clock.Advance(1500 * time.Millisecond)
		return nil
	})), 1)
	engine := newTestEngine(t, clock)

	res, _, err := runStatement(t, engine, pool, &core.StatementRequest{Statement: "SELECT 1"})
	r.NoError(err)
	r.Equal(1500*time.Millisecond, res.Meta.Elapsed)
}

func TestEngine_Timeout(t *testing.T) {
	r := require.New(t)

	canceled := make(chan struct{})
	pool := newTestPool(t, mock.NewAdapter(nil, mock.AdapterWithQuerySideEffect("SELECT SYSTEM$WAIT(10)", func(ctx context.Context) error {
		<-ctx.Done()
		close(canceled)
		return ctx.Err()
	})), 1)
	engine := newTestEngine(t, nil)

	res, s, err := runStatement(t, engine, pool, &core.StatementRequest{
		Statement: "SELECT SYSTEM$WAIT(10)",
		Timeout:   50 * time.Millisecond,
	})
	r.Nil(res)
	r.ErrorIs(err, core.ErrTimeout)
	r.True(s.IsBroken())

	ce := core.ClassifyError(err)
	r.Equal(core.KindTimeout, ce.Kind)

	// the in-flight statement saw the cancellation
	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("statement context was not canceled")
	}
}

func TestEngine_CallerCanceled(t *testing.T) {
	r := require.New(t)

	pool := newTestPool(t, mock.NewAdapter(nil, mock.AdapterWithAnyQuerySideEffect(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})), 1)
	engine := newTestEngine(t, nil)

	s, err := pool.Acquire(context.Background())
	r.NoError(err)
	defer pool.Release(s)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err = engine.Run(ctx, s, &core.StatementRequest{Statement: "SELECT 1"}, core.ClassifyStatement("SELECT 1"))
	r.ErrorIs(err, context.Canceled)
	r.NotErrorIs(err, core.ErrTimeout)
}

func TestEngine_Exec(t *testing.T) {
	r := require.New(t)

	pool := newTestPool(t, mock.NewAdapter(nil, mock.AdapterWithRowsAffected(7)), 1)
	engine := newTestEngine(t, nil)

	res, _, err := runStatement(t, engine, pool, &core.StatementRequest{Statement: "UPDATE t SET a = 1"})
	r.NoError(err)

	r.Empty(res.Rows)
	r.Empty(res.Columns)
	r.Equal(0, res.Meta.RowCount)
	r.NotNil(res.Meta.RowsAffected)
	r.EqualValues(7, *res.Meta.RowsAffected)
	r.Equal(core.RiskDataModifying, res.Meta.RiskClass)
}

func TestEngine_DriverError(t *testing.T) {
	r := require.New(t)

	driverErr := &core.DriverError{Number: 1003, Message: "syntax error", Category: core.ReasonSyntax}
	pool := newTestPool(t, mock.NewAdapter(nil, mock.AdapterWithAnyQuerySideEffect(func(context.Context) error {
		return driverErr
	})), 1)
	engine := newTestEngine(t, nil)

	_, s, err := runStatement(t, engine, pool, &core.StatementRequest{Statement: "SELEC 1"})
	r.ErrorIs(err, driverErr)
	r.False(s.IsBroken())
}

func TestEngine_RowError(t *testing.T) {
	r := require.New(t)

	rowErr := errors.New("result chunk download failed")
	pool := newTestPool(t, mock.NewAdapter(mock.NewRows(0, 5), mock.AdapterWithResultStreamOpts(
		mock.ResultStreamWithRowError(3, rowErr),
	)), 1)
	engine := newTestEngine(t, nil)

	res, _, err := runStatement(t, engine, pool, &core.StatementRequest{Statement: "SELECT * FROM t"})
	r.Nil(res)
	r.ErrorIs(err, rowErr)
}

func TestEngine_ClosesStream(t *testing.T) {
	r := require.New(t)

	stream := mock.NewResultStream(mock.NewRows(0, 15))
	pool := newTestPool(t, streamAdapter{stream: stream}, 1)
	engine := newTestEngine(t, nil)

	res, _, err := runStatement(t, engine, pool, &core.StatementRequest{Statement: "SELECT * FROM t", RowLimit: 10})
	r.NoError(err)
	r.True(res.Meta.Truncated)
	// rows past the look-ahead row are never fetched
	r.True(stream.HasNext())
	r.True(stream.Closed())
}

func TestEngine_Overrides(t *testing.T) {
	r := require.New(t)

	adapter := mock.NewAdapter(mock.NewRows(0, 1))
	pool := newTestPool(t, adapter, 1)
	engine := newTestEngine(t, nil)

	res, s, err := runStatement(t, engine, pool, &core.StatementRequest{
		Statement: "SELECT 1",
		Database:  "SALES",
		Warehouse: "BIG_WH",
	})
	r.NoError(err)
	r.False(s.IsBroken())

	r.Equal(core.SessionContext{Warehouse: "BIG_WH", Database: "SALES", Schema: "PUBLIC"}, res.Meta.Context)
	r.Equal([]core.SessionContext{
		{Warehouse: "BIG_WH", Database: "SALES"},
		// switching the database resets the schema, so it is restored too
		{Warehouse: "COMPUTE_WH", Database: "ANALYTICS", Schema: "PUBLIC"},
	}, adapter.Uses())

	// the session is back in its original context
	sc, err := s.Driver().(core.ContextSwitcher).CurrentContext(context.Background())
	r.NoError(err)
	r.Equal(s.Context(), sc)
}

func TestEngine_SessionChangingStatements(t *testing.T) {
	testCases := []struct {
		statement string
		broken    bool
	}{
		{"SELECT 1", false},
		{"INSERT INTO t VALUES (1)", false},
		{"USE DATABASE other", true},
		{"ALTER SESSION SET TIMEZONE = 'UTC'", true},
		{"SET x = 1", true},
		{"SELECT 1; SELECT 2", true},
	}

	for _, tc := range testCases {
		t.Run(tc.statement, func(t *testing.T) {
			r := require.New(t)

			pool := newTestPool(t, mock.NewAdapter(mock.NewRows(0, 1)), 1)
			engine := newTestEngine(t, nil)

			_, s, err := runStatement(t, engine, pool, &core.StatementRequest{Statement: tc.statement})
			r.NoError(err)
			r.Equal(tc.broken, s.IsBroken())
		})
	}
}

func TestEngine_SessionChangeSkipsRestore(t *testing.T) {
	r := require.New(t)

	adapter := mock.NewAdapter(mock.NewRows(0, 1))
	pool := newTestPool(t, adapter, 1)
	engine := newTestEngine(t, nil)

	res, s, err := runStatement(t, engine, pool, &core.StatementRequest{Statement: "USE SCHEMA RAW", Database: "SALES"})
	r.NoError(err)
	r.True(s.IsBroken())

	// only the override, no restore
	r.Equal([]core.SessionContext{{Database: "SALES"}}, adapter.Uses())

	// the reported context is read back from the session
	sc, err := s.Driver().(core.ContextSwitcher).CurrentContext(context.Background())
	r.NoError(err)
	r.Equal(sc, res.Meta.Context)
	r.Equal("SALES", res.Meta.Context.Database)
}

func TestEngine_OverrideWithoutOriginalBreaksSession(t *testing.T) {
	r := require.New(t)

	adapter := mock.NewAdapter(mock.NewRows(0, 1))
	pool, err := core.NewPool(core.PoolConfig{
		Adapter: adapter,
		Params:  &core.ConnectionParams{Auth: core.NewPasswordAuth("a", "u", "p")},
		Size:    1,
	})
	r.NoError(err)
	defer pool.Close(context.Background())
	engine := newTestEngine(t, nil)

	res, s, err := runStatement(t, engine, pool, &core.StatementRequest{Statement: "SELECT 1", Schema: "STAGING"})
	r.NoError(err)
	r.Equal("STAGING", res.Meta.Context.Schema)
	// a schema cannot be unset again, so the session is not reused
	r.True(s.IsBroken())
}

func TestEngine_OverrideFailure(t *testing.T) {
	r := require.New(t)

	useErr := &core.DriverError{Number: 2043, Message: "Object does not exist", Category: core.ReasonNotFound}
	adapter := mock.NewAdapter(nil, mock.AdapterWithUseSideEffect(func(context.Context, core.SessionContext) error {
		return useErr
	}))
	pool := newTestPool(t, adapter, 1)
	engine := newTestEngine(t, nil)

	_, s, err := runStatement(t, engine, pool, &core.StatementRequest{Statement: "SELECT 1", Database: "NOPE"})
	r.ErrorIs(err, useErr)
	r.True(s.IsBroken())
	r.Equal(0, adapter.Queries())
}

func TestEngine_OverridesNotSupported(t *testing.T) {
	r := require.New(t)

	pool := newTestPool(t, plainAdapter{}, 1)
	engine := newTestEngine(t, nil)

	_, _, err := runStatement(t, engine, pool, &core.StatementRequest{Statement: "SELECT 1", Database: "X"})
	r.True(errors.Is(err, core.ErrContextSwitchingNotSupported))
}

// plainAdapter opens sessions that cannot switch context.
type plainAdapter struct{}

type plainDriver struct{}

func (plainAdapter) Connect(context.Context, *core.ConnectionParams) (core.Driver, error) {
	return plainDriver{}, nil
}

func (plainDriver) Query(context.Context, string) (core.ResultStream, error) {
	return mock.NewResultStream(nil), nil
}

func (plainDriver) Exec(context.Context, string) (core.ResultStream, error) {
	return mock.NewResultStream(nil), nil
}

func (plainDriver) Close() {}

// streamAdapter opens sessions that return the same stream for every statement.
type streamAdapter struct {
	stream *mock.ResultStream
}

type streamDriver struct {
	stream *mock.ResultStream
}

func (a streamAdapter) Connect(context.Context, *core.ConnectionParams) (core.Driver, error) {
	return streamDriver{stream: a.stream}, nil
}

func (d streamDriver) Query(context.Context, string) (core.ResultStream, error) {
	return d.stream, nil
}

func (d streamDriver) Exec(context.Context, string) (core.ResultStream, error) {
	return d.stream, nil
}

func (streamDriver) Close() {}

package core_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/kndndrj/snowgate/core"
	"github.com/kndndrj/snowgate/core/mock"
)

type gatewayFixture struct {
	gateway *core.Gateway
	pool    *core.Pool
	adapter *mock.Adapter
	audit   *mock.AuditRecorder
}

func newTestGateway(t *testing.T, adapter *mock.Adapter, size int, policy *core.Policy) *gatewayFixture {
	t.Helper()
	r := require.New(t)

	pool, err := core.NewPool(core.PoolConfig{
		Adapter:        adapter,
		Params:         newTestParams(),
		Size:           size,
		AcquireTimeout: 5 * time.Second,
	})
	r.NoError(err)

	engine, err := core.NewEngine(core.EngineConfig{DefaultRowLimit: 10, DefaultTimeout: 5 * time.Second})
	r.NoError(err)

	audit := &mock.AuditRecorder{}
	gateway, err := core.NewGateway(core.GatewayConfig{
		Pool:   pool,
		Engine: engine,
		Policy: policy,
		Audit:  audit,
	})
	r.NoError(err)
	t.Cleanup(func() { _ = gateway.Close(context.Background()) })

	return &gatewayFixture{
		gateway: gateway,
		pool:    pool,
		adapter: adapter,
		audit:   audit,
	}
}

func requireClassified(t *testing.T, err error) *core.ClassifiedError {
	t.Helper()

	var ce *core.ClassifiedError
	require.True(t, errors.As(err, &ce), "error is not classified: %v", err)
	return ce
}

func TestGateway_Execute(t *testing.T) {
	r := require.New(t)

	f := newTestGateway(t, mock.NewAdapter(mock.NewRows(0, 15)), 2, nil)

	res, err := f.gateway.Execute(context.Background(), &core.StatementRequest{Statement: "SELECT * FROM t", RowLimit: 10})
	r.NoError(err)
	r.Len(res.Rows, 10)
	r.True(res.Meta.Truncated)

	records := f.audit.Records()
	r.Len(records, 1)
	r.Equal(core.CallStateSucceeded, records[0].Outcome)
	r.Equal(core.RiskReadOnly, records[0].RiskClass)
	r.Equal(10, records[0].RowCount)
	r.True(records[0].Truncated)
	r.Equal("SELECT * FROM t", records[0].Statement)
	r.NotEmpty(records[0].CallID)
}

func TestGateway_PolicyViolationOpensNoSession(t *testing.T) {
	r := require.New(t)

	adapter := mock.NewAdapter(nil)
	f := newTestGateway(t, adapter, 2, core.NewPolicy(core.RiskDestructive))

	res, err := f.gateway.Execute(context.Background(), &core.StatementRequest{Statement: "DROP TABLE customers"})
	r.Nil(res)

	ce := requireClassified(t, err)
	r.Equal(core.KindPolicyViolation, ce.Kind)
	r.Equal(core.ReasonRiskClassDisabled, ce.Reason)
	r.NotEmpty(ce.Hint)

	r.Equal(0, adapter.Connects())
	r.EqualValues(0, f.pool.Opened())

	records := f.audit.Records()
	r.Len(records, 1)
	r.Equal(core.CallStateRejected, records[0].Outcome)
	r.Equal(core.RiskDestructive, records[0].RiskClass)
	r.Equal(core.KindPolicyViolation, records[0].ErrorKind)
}

func TestGateway_EmptyStatement(t *testing.T) {
	for _, statement := range []string{"", "   \n\t", "-- just a comment", "/* nothing */"} {
		r := require.New(t)

		adapter := mock.NewAdapter(nil)
		f := newTestGateway(t, adapter, 1, nil)

		_, err := f.gateway.Execute(context.Background(), &core.StatementRequest{Statement: statement})
		ce := requireClassified(t, err)
		r.Equal(core.KindPolicyViolation, ce.Kind)
		r.Equal(core.ReasonEmptyStatement, ce.Reason)
		r.Equal(0, adapter.Connects())
		r.Len(f.audit.Records(), 1)
	}
}

func TestGateway_NilRequest(t *testing.T) {
	f := newTestGateway(t, mock.NewAdapter(nil), 1, nil)

	_, err := f.gateway.Execute(context.Background(), nil)
	ce := requireClassified(t, err)
	require.Equal(t, core.ReasonEmptyStatement, ce.Reason)
}

func TestGateway_LargestRowLimit(t *testing.T) {
	r := require.New(t)

	adapter := mock.NewAdapter(mock.NewRows(0, 3))
	f := newTestGateway(t, adapter, 1, nil)

	for i := 0; i < 2; i++ {
		res, err := f.gateway.Execute(context.Background(), &core.StatementRequest{Statement: "SELECT 1", RowLimit: math.MaxInt})
		r.NoError(err)
		r.Len(res.Rows, 3)
		r.False(res.Meta.Truncated)
	}
	// the session survived and was reused
	r.Equal(1, adapter.Connects())
}

func TestGateway_SessionChangeIsNotReused(t *testing.T) {
	testCases := []struct {
		statement string
		connects  int
	}{
		{"SELECT 1", 1},
		{"USE DATABASE other", 2},
		{"ALTER SESSION SET TIMEZONE = 'UTC'", 2},
		{"SELECT 1; USE SCHEMA s", 2},
	}

	for _, tc := range testCases {
		t.Run(tc.statement, func(t *testing.T) {
			r := require.New(t)

			adapter := mock.NewAdapter(mock.NewRows(0, 1))
			f := newTestGateway(t, adapter, 1, nil)

			_, err := f.gateway.Execute(context.Background(), &core.StatementRequest{Statement: tc.statement})
			r.NoError(err)
			_, err = f.gateway.Execute(context.Background(), &core.StatementRequest{Statement: "SELECT 1"})
			r.NoError(err)

			r.Equal(tc.connects, adapter.Connects())
		})
	}
}

func TestGateway_NegativeRowLimit(t *testing.T) {
	r := require.New(t)

	adapter := mock.NewAdapter(mock.NewRows(0, 3))
	f := newTestGateway(t, adapter, 1, nil)

	_, err := f.gateway.Execute(context.Background(), &core.StatementRequest{Statement: "SELECT 1", RowLimit: -5})
	ce := requireClassified(t, err)
	r.Equal(core.KindPolicyViolation, ce.Kind)
	r.Equal(core.ReasonInvalidRequest, ce.Reason)
	r.Equal(0, adapter.Connects())

	records := f.audit.Records()
	r.Len(records, 1)
	r.Equal(core.CallStateRejected, records[0].Outcome)
}

func TestGateway_TimeoutThenRecovery(t *testing.T) {
	r := require.New(t)

	adapter := mock.NewAdapter(mock.NewRows(0, 3), mock.AdapterWithQuerySideEffect("SELECT SYSTEM$WAIT(60)", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	f := newTestGateway(t, adapter, 1, nil)

	_, err := f.gateway.Execute(context.Background(), &core.StatementRequest{Statement: "SELECT SYSTEM$WAIT(60)", Timeout: 50 * time.Millisecond})
	ce := requireClassified(t, err)
	r.Equal(core.KindTimeout, ce.Kind)

	// the next call gets a fresh session and succeeds
	res, err := f.gateway.Execute(context.Background(), &core.StatementRequest{Statement: "SELECT 1"})
	r.NoError(err)
	r.Len(res.Rows, 3)
	r.Equal(2, adapter.Connects())

	records := f.audit.Records()
	r.Len(records, 2)
	r.Equal(core.CallStateExecutingFailed, records[0].Outcome)
	r.Equal(core.KindTimeout, records[0].ErrorKind)
	r.Equal(core.CallStateSucceeded, records[1].Outcome)
}

func TestGateway_PoolOfOneSerializes(t *testing.T) {
	r := require.New(t)

	var (
		running    atomic.Int32
		maxRunning atomic.Int32
	)
	adapter := mock.NewAdapter(mock.NewRows(0, 1), mock.AdapterWithAnyQuerySideEffect(func(context.Context) error {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return nil
	}))
	f := newTestGateway(t, adapter, 1, nil)

	const calls = 8
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < calls; i++ {
		g.Go(func() error {
			_, err := f.gateway.Execute(ctx, &core.StatementRequest{Statement: "SELECT 1"})
			return err
		})
	}
	r.NoError(g.Wait())

	r.EqualValues(1, maxRunning.Load())
	r.Equal(calls, adapter.Queries())
	r.Equal(1, adapter.Connects())
	r.Len(f.audit.Records(), calls)
}

func TestGateway_ConcurrentCallsUseSeveralSessions(t *testing.T) {
	r := require.New(t)

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	adapter := mock.NewAdapter(mock.NewRows(0, 1), mock.AdapterWithAnyQuerySideEffect(func(context.Context) error {
		started.Done()
		<-release
		return nil
	}))
	f := newTestGateway(t, adapter, 2, nil)

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := f.gateway.Execute(context.Background(), &core.StatementRequest{Statement: "SELECT 1"})
			return err
		})
	}

	// both statements are in flight at the same time
	started.Wait()
	close(release)
	r.NoError(g.Wait())
	r.Equal(2, adapter.Connects())
}

func TestGateway_SessionInitError(t *testing.T) {
	r := require.New(t)

	adapter := mock.NewAdapter(nil, mock.AdapterWithConnectSideEffect(func(context.Context, *core.ConnectionParams) error {
		return core.WithReason(errors.New("pkcs8: incorrect password"), core.ReasonKeyDecryption)
	}))
	f := newTestGateway(t, adapter, 1, nil)

	_, err := f.gateway.Execute(context.Background(), &core.StatementRequest{Statement: "SELECT 1"})
	ce := requireClassified(t, err)
	r.Equal(core.KindSessionInit, ce.Kind)
	r.Equal(core.ReasonKeyDecryption, ce.Reason)
	r.Equal("verify private key passphrase", ce.Hint)
}

func TestGateway_RecoversPanics(t *testing.T) {
	r := require.New(t)

	adapter := mock.NewAdapter(nil, mock.AdapterWithAnyQuerySideEffect(func(context.Context) error {
		panic("driver bug")
	}))
	f := newTestGateway(t, adapter, 1, nil)

	var (
		res *core.ExecutionResult
		err error
	)
	r.NotPanics(func() {
		res, err = f.gateway.Execute(context.Background(), &core.StatementRequest{Statement: "SELECT 1"})
	})
	r.Nil(res)

	ce := requireClassified(t, err)
	r.Equal(core.KindUnexpected, ce.Kind)
	r.Contains(ce.Message, "driver bug")
	r.Len(f.audit.Records(), 1)
}

func TestGateway_Close(t *testing.T) {
	r := require.New(t)

	release := make(chan struct{})
	adapter := mock.NewAdapter(mock.NewRows(0, 1), mock.AdapterWithQuerySideEffect("SELECT 'slow'", func(context.Context) error {
		<-release
		return nil
	}))
	f := newTestGateway(t, adapter, 1, nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.gateway.Execute(context.Background(), &core.StatementRequest{Statement: "SELECT 'slow'"})
		done <- err
	}()
	r.Eventually(func() bool { return adapter.Queries() == 1 }, time.Second, 5*time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- f.gateway.Close(context.Background()) }()

	// new calls are refused while draining
	r.Eventually(func() bool {
		// the only session is busy, so a call that gets in before the drain
		// starts gives up quickly instead of outliving the condition tick
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := f.gateway.Execute(ctx, &core.StatementRequest{Statement: "SELECT 1"})
		var ce *core.ClassifiedError
		return errors.As(err, &ce) && ce.Reason == core.ReasonShutdown
	}, time.Second, 5*time.Millisecond)

	close(release)
	r.NoError(<-done)
	r.NoError(<-closed)
	r.Eventually(func() bool { return adapter.Closes() == 1 }, time.Second, 10*time.Millisecond)
}

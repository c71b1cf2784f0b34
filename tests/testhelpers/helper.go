// Package testhelpers provides helpers for integration tests.
package testhelpers

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kndndrj/snowgate/adapters"
	"github.com/kndndrj/snowgate/config"
	"github.com/kndndrj/snowgate/core"
	"github.com/kndndrj/snowgate/core/mock"
)

const (
	// EnableEnvVar must be set for integration tests to run. They need a
	// real account described by the SNOWFLAKE_* variables.
	EnableEnvVar = "SNOWGATE_INTEGRATION"

	// callTimeout is the maximum time to wait for a call to finish
	callTimeout = 2 * time.Minute
)

// Gateway is a gateway wired to a real warehouse.
type Gateway struct {
	*core.Gateway
	Audit *mock.AuditRecorder
}

// NewGateway builds a gateway from the environment, skipping the test when
// integration tests are not enabled. Disabled classes are applied on top of
// the configured policy.
func NewGateway(t *testing.T, disabled ...core.RiskClass) *Gateway {
	t.Helper()

	if os.Getenv(EnableEnvVar) == "" {
		t.Skipf("%s not set", EnableEnvVar)
	}

	cfg, err := config.Load(config.LoadOptions{})
	require.NoError(t, err)
	cfg.DisabledRiskClasses = append(cfg.DisabledRiskClasses, disabled...)

	res, err := config.Resolve(cfg)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	pool, err := adapters.NewPool(core.PoolConfig{
		Params:         cfg.ConnectionParams(res.Strategy),
		Size:           cfg.PoolSize,
		AcquireTimeout: cfg.PoolAcquireTimeout,
		Logger:         log,
	})
	require.NoError(t, err)

	engine, err := core.NewEngine(core.EngineConfig{
		Logger:          log,
		DefaultRowLimit: cfg.MaxRows,
		MaxRowLimit:     cfg.MaxRowLimit,
		DefaultTimeout:  cfg.QueryTimeout,
	})
	require.NoError(t, err)

	recorder := &mock.AuditRecorder{}
	g, err := core.NewGateway(core.GatewayConfig{
		Logger: log,
		Pool:   pool,
		Engine: engine,
		Policy: cfg.Policy(),
		Audit:  recorder,
	})
	require.NoError(t, err)

	return &Gateway{Gateway: g, Audit: recorder}
}

// Execute runs req within the call timeout.
func (g *Gateway) Execute(t *testing.T, req *core.StatementRequest) (*core.ExecutionResult, *core.ClassifiedError) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	res, err := g.Gateway.Execute(ctx, req)
	if err != nil {
		return nil, core.ClassifyError(err)
	}
	return res, nil
}

// Close drains the gateway and closes every session.
func (g *Gateway) Close(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	require.NoError(t, g.Gateway.Close(ctx))
}

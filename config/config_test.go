package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kndndrj/snowgate/config"
	"github.com/kndndrj/snowgate/core"
)

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "valid"},
		{name: "missing account", mutate: func(c *config.Config) { c.Account = "" }, wantErr: "account is required"},
		{name: "missing user", mutate: func(c *config.Config) { c.User = "" }, wantErr: "user is required"},
		{name: "negative rows", mutate: func(c *config.Config) { c.MaxRows = -1 }, wantErr: "max rows"},
		{name: "row limit cap below max rows", mutate: func(c *config.Config) {
			c.MaxRows = 500
			c.MaxRowLimit = 100
		}, wantErr: "max row limit"},
		{name: "pool too large", mutate: func(c *config.Config) { c.PoolSize = 5 }, wantErr: "pool size"},
		{name: "negative timeout", mutate: func(c *config.Config) { c.QueryTimeout = -time.Second }, wantErr: "query timeout"},
		{name: "unknown risk class", mutate: func(c *config.Config) {
			c.DisabledRiskClasses = []core.RiskClass{core.RiskUnknown}
		}, wantErr: "unknown risk class"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{Account: "org-acct", User: "svc"}
			if tc.mutate != nil {
				tc.mutate(cfg)
			}

			err := cfg.Validate()
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_ValidateFillsDefaults(t *testing.T) {
	r := require.New(t)

	cfg := &config.Config{Account: "org-acct", User: "svc"}
	r.NoError(cfg.Validate())

	r.Equal(config.DefaultType, cfg.Type)
	r.Equal(config.DefaultMaxRows, cfg.MaxRows)
	r.Equal(config.DefaultMaxRowLimit, cfg.MaxRowLimit)
	r.Equal(config.DefaultQueryTimeout, cfg.QueryTimeout)
	r.Equal(config.DefaultPoolSize, cfg.PoolSize)
	r.Equal(config.DefaultPoolAcquireTimeout, cfg.PoolAcquireTimeout)
	r.Equal(config.DefaultLoginTimeout, cfg.LoginTimeout)
}

func TestConfig_ConnectionParams(t *testing.T) {
	r := require.New(t)

	cfg := config.Default()
	cfg.Account = "org-acct"
	cfg.User = "svc"
	cfg.Defaults = core.SessionContext{Warehouse: "WH", Role: "ANALYST"}
	cfg.QueryTag = "assistant"
	cfg.DisabledRiskClasses = []core.RiskClass{core.RiskDestructive}

	auth := core.NewPasswordAuth(cfg.Account, cfg.User, "pw")
	params := cfg.ConnectionParams(auth)

	r.Equal("snowflake", params.Type)
	r.Same(auth, params.Auth)
	r.Equal(cfg.Defaults, params.Defaults)
	r.Equal(config.DefaultLoginTimeout, params.LoginTimeout)
	r.Equal("assistant", params.QueryTag)
	r.Equal(config.DefaultApplication, params.Application)

	policy := cfg.Policy()
	r.False(policy.Allows(core.RiskDestructive))
	r.True(policy.Allows(core.RiskReadOnly))
}

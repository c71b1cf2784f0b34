package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kndndrj/snowgate/core"
)

const (
	DefaultType               = "snowflake"
	DefaultApplication        = "snowgate"
	DefaultMaxRows            = core.DefaultRowLimit
	DefaultMaxRowLimit        = core.DefaultMaxRowLimit
	DefaultQueryTimeout       = core.DefaultTimeout
	DefaultPoolSize           = core.DefaultPoolSize
	DefaultPoolAcquireTimeout = core.DefaultAcquireTimeout
	DefaultLoginTimeout       = 2 * time.Minute

	MaxPoolSize = 4
)

// Config is the complete gateway configuration.
type Config struct {
	Type        string              `yaml:"type"`
	Account     string              `yaml:"account"`
	User        string              `yaml:"user"`
	Credentials Credentials         `yaml:"credentials"`
	Defaults    core.SessionContext `yaml:"defaults"`

	MaxRows            int           `yaml:"max_rows"`
	MaxRowLimit        int           `yaml:"max_row_limit"`
	QueryTimeout       time.Duration `yaml:"query_timeout"`
	PoolSize           int           `yaml:"pool_size"`
	PoolAcquireTimeout time.Duration `yaml:"pool_acquire_timeout"`

	// LoginTimeout also bounds the browser sign-in of SSO.
	LoginTimeout time.Duration `yaml:"login_timeout"`

	DisabledRiskClasses []core.RiskClass `yaml:"disabled_risk_classes"`

	QueryTag    string     `yaml:"query_tag"`
	Application string     `yaml:"application"`
	LogLevel    slog.Level `yaml:"log_level"`
	// AuditFile receives JSON lines when set.
	AuditFile string `yaml:"audit_file"`
}

// Credentials is the full credential field set. Resolve picks exactly one
// strategy from it.
type Credentials struct {
	Password             string `yaml:"password"`
	PrivateKey           string `yaml:"private_key"`
	PrivateKeyPath       string `yaml:"private_key_path"`
	PrivateKeyPassphrase string `yaml:"private_key_passphrase"`
	Authenticator        string `yaml:"authenticator"`
}

// Default returns a config with every optional field set.
func Default() *Config {
	return &Config{
		Type:               DefaultType,
		Application:        DefaultApplication,
		MaxRows:            DefaultMaxRows,
		MaxRowLimit:        DefaultMaxRowLimit,
		QueryTimeout:       DefaultQueryTimeout,
		PoolSize:           DefaultPoolSize,
		PoolAcquireTimeout: DefaultPoolAcquireTimeout,
		LoginTimeout:       DefaultLoginTimeout,
		LogLevel:           slog.LevelInfo,
	}
}

func (c *Config) Validate() error {
	if c.Type == "" {
		c.Type = DefaultType
	}
	if c.Account == "" {
		return errors.New("account is required")
	}
	if c.User == "" {
		return errors.New("user is required")
	}

	if c.MaxRows == 0 {
		c.MaxRows = DefaultMaxRows
	}
	if c.MaxRows < 0 {
		return errors.New("max rows must be > 0")
	}

	if c.MaxRowLimit == 0 {
		c.MaxRowLimit = max(DefaultMaxRowLimit, c.MaxRows)
	}
	if c.MaxRowLimit < c.MaxRows {
		return fmt.Errorf("max row limit %d must not be below max rows %d", c.MaxRowLimit, c.MaxRows)
	}

	if c.QueryTimeout == 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.QueryTimeout < 0 {
		return errors.New("query timeout must be > 0")
	}

	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.PoolSize < 0 || c.PoolSize > MaxPoolSize {
		return fmt.Errorf("pool size must be between 1 and %d", MaxPoolSize)
	}

	if c.PoolAcquireTimeout == 0 {
		c.PoolAcquireTimeout = DefaultPoolAcquireTimeout
	}
	if c.PoolAcquireTimeout < 0 {
		return errors.New("pool acquire timeout must be > 0")
	}

	if c.LoginTimeout == 0 {
		c.LoginTimeout = DefaultLoginTimeout
	}
	if c.LoginTimeout < 0 {
		return errors.New("login timeout must be > 0")
	}

	for _, rc := range c.DisabledRiskClasses {
		if rc == core.RiskUnknown {
			return errors.New("unknown risk class in disabled risk classes")
		}
	}

	return nil
}

// Policy returns the risk policy built from the disabled classes.
func (c *Config) Policy() *core.Policy {
	return core.NewPolicy(c.DisabledRiskClasses...)
}

// ConnectionParams combines the config with a resolved strategy.
func (c *Config) ConnectionParams(auth core.AuthStrategy) *core.ConnectionParams {
	return &core.ConnectionParams{
		Type:         c.Type,
		Auth:         auth,
		Defaults:     c.Defaults,
		LoginTimeout: c.LoginTimeout,
		QueryTag:     c.QueryTag,
		Application:  c.Application,
	}
}

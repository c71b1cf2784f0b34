package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kndndrj/snowgate/core"
)

// LoadOptions select the sources Load reads on top of the defaults.
type LoadOptions struct {
	// File is an optional YAML file.
	File string
	// EnvFile is an optional dotenv file. Variables already present in the
	// process environment win over it.
	EnvFile string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load builds the config from defaults, the YAML file, the dotenv file and
// the environment, in increasing order of priority. Templates are expanded
// last and the result is validated.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("%w: reading config file: %w", core.ErrConfiguration, err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing config file %s: %w", core.ErrConfiguration, opts.File, err)
		}
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if opts.EnvFile != "" {
		dotenv, err := godotenv.Read(opts.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading env file: %w", core.ErrConfiguration, err)
		}
		lookup = withFallback(lookup, dotenv)
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}

	getenv := func(key string) string {
		v, _ := lookup(key)
		return v
	}
	if err := cfg.expandAll(getenv); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}

	return cfg, nil
}

// decodeYAML fails on unknown fields.
func decodeYAML(data []byte, out *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	err := decoder.Decode(out)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func withFallback(lookup func(string) (string, bool), fallback map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := fallback[key]
		return v, ok
	}
}

type envBinding struct {
	name string
	set  func(c *Config, value string) error
}

func setString(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, value string) error {
		*dst(c) = value
		return nil
	}
}

func setInt(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, value string) error {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid integer %q", value)
		}
		*dst(c) = n
		return nil
	}
}

func setDuration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, value string) error {
		d, err := parseDuration(value)
		if err != nil {
			return err
		}
		*dst(c) = d
		return nil
	}
}

// parseDuration accepts Go durations and plain integers, which are seconds.
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return d, nil
}

func parseRiskClasses(value string) ([]core.RiskClass, error) {
	var out []core.RiskClass
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var rc core.RiskClass
		if err := rc.UnmarshalText([]byte(part)); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, nil
}

var envBindings = []envBinding{
	{"SNOWFLAKE_TYPE", setString(func(c *Config) *string { return &c.Type })},
	{"SNOWFLAKE_ACCOUNT", setString(func(c *Config) *string { return &c.Account })},
	{"SNOWFLAKE_USER", setString(func(c *Config) *string { return &c.User })},
	{"SNOWFLAKE_USERNAME", setString(func(c *Config) *string { return &c.User })},
	{"SNOWFLAKE_PASSWORD", setString(func(c *Config) *string { return &c.Credentials.Password })},
	{"SNOWFLAKE_PRIVATE_KEY", setString(func(c *Config) *string { return &c.Credentials.PrivateKey })},
	{"SNOWFLAKE_PRIVATE_KEY_PATH", setString(func(c *Config) *string { return &c.Credentials.PrivateKeyPath })},
	{"SNOWFLAKE_PRIVATE_KEY_PASSPHRASE", setString(func(c *Config) *string { return &c.Credentials.PrivateKeyPassphrase })},
	{"SNOWFLAKE_AUTHENTICATOR", setString(func(c *Config) *string { return &c.Credentials.Authenticator })},
	{"SNOWFLAKE_WAREHOUSE", setString(func(c *Config) *string { return &c.Defaults.Warehouse })},
	{"SNOWFLAKE_DATABASE", setString(func(c *Config) *string { return &c.Defaults.Database })},
	{"SNOWFLAKE_SCHEMA", setString(func(c *Config) *string { return &c.Defaults.Schema })},
	{"SNOWFLAKE_ROLE", setString(func(c *Config) *string { return &c.Defaults.Role })},
	{"SNOWFLAKE_MAX_ROWS", setInt(func(c *Config) *int { return &c.MaxRows })},
	{"SNOWFLAKE_MAX_ROW_LIMIT", setInt(func(c *Config) *int { return &c.MaxRowLimit })},
	{"SNOWFLAKE_QUERY_TIMEOUT", setDuration(func(c *Config) *time.Duration { return &c.QueryTimeout })},
	{"SNOWFLAKE_POOL_SIZE", setInt(func(c *Config) *int { return &c.PoolSize })},
	{"SNOWFLAKE_POOL_ACQUIRE_TIMEOUT", setDuration(func(c *Config) *time.Duration { return &c.PoolAcquireTimeout })},
	{"SNOWFLAKE_LOGIN_TIMEOUT", setDuration(func(c *Config) *time.Duration { return &c.LoginTimeout })},
	{"SNOWFLAKE_QUERY_TAG", setString(func(c *Config) *string { return &c.QueryTag })},
	{"SNOWFLAKE_APPLICATION", setString(func(c *Config) *string { return &c.Application })},
	{"SNOWFLAKE_AUDIT_FILE", setString(func(c *Config) *string { return &c.AuditFile })},
	{"SNOWFLAKE_DISABLED_RISK_CLASSES", func(c *Config, value string) error {
		classes, err := parseRiskClasses(value)
		if err != nil {
			return err
		}
		c.DisabledRiskClasses = classes
		return nil
	}},
	{"SNOWFLAKE_LOG_LEVEL", func(c *Config, value string) error {
		return c.LogLevel.UnmarshalText([]byte(strings.TrimSpace(value)))
	}},
}

// applyEnv overrides fields with the variables that are set and not empty. Later bindings
// win, so SNOWFLAKE_USERNAME takes precedence over SNOWFLAKE_USER.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		value, ok := lookup(b.name)
		if !ok || value == "" {
			continue
		}
		if err := b.set(c, value); err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/kndndrj/snowgate/core"
)

const (
	authenticatorSnowflake       = "snowflake"
	authenticatorExternalBrowser = "externalbrowser"
)

// Resolution is the outcome of credential resolution.
type Resolution struct {
	Strategy core.AuthStrategy
	// Shadowed names the strategies that were configured but lost on
	// precedence.
	Shadowed []string
}

// Resolve picks exactly one authentication strategy. Private key wins over
// password, password wins over SSO.
func Resolve(cfg *Config) (*Resolution, error) {
	if cfg.Account == "" || cfg.User == "" {
		return nil, fmt.Errorf("%w: account and user are required", core.ErrConfiguration)
	}

	creds := cfg.Credentials
	authenticator := strings.ToLower(strings.TrimSpace(creds.Authenticator))

	hasKey := creds.PrivateKey != "" || creds.PrivateKeyPath != ""
	hasPassword := creds.Password != ""
	hasSSO := authenticator != "" && authenticator != authenticatorSnowflake

	var present []string
	if hasKey {
		present = append(present, "private_key")
	}
	if hasPassword {
		present = append(present, "password")
	}
	if hasSSO {
		present = append(present, "sso")
	}
	if len(present) == 0 {
		return nil, fmt.Errorf("%w: no credentials configured; set a private key, a password or an SSO authenticator", core.ErrConfiguration)
	}

	var (
		strategy core.AuthStrategy
		err      error
	)
	switch present[0] {
	case "private_key":
		strategy, err = resolvePrivateKey(cfg)
	case "password":
		strategy = core.NewPasswordAuth(cfg.Account, cfg.User, creds.Password)
	case "sso":
		if authenticator != authenticatorExternalBrowser {
			return nil, fmt.Errorf("%w: unsupported authenticator %q", core.ErrConfiguration, creds.Authenticator)
		}
		strategy = core.NewSSOAuth(cfg.Account, cfg.User, authenticator, cfg.LoginTimeout)
	}
	if err != nil {
		return nil, err
	}

	res := &Resolution{Strategy: strategy}
	if len(present) > 1 {
		res.Shadowed = present[1:]
	}
	return res, nil
}

func resolvePrivateKey(cfg *Config) (core.AuthStrategy, error) {
	creds := cfg.Credentials

	key := []byte(creds.PrivateKey)
	if len(key) == 0 {
		data, err := os.ReadFile(creds.PrivateKeyPath)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: private key file not found: %s", core.ErrConfiguration, creds.PrivateKeyPath)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading private key: %w", core.ErrConfiguration, err)
		}
		key = data
	}

	auth := core.NewPrivateKeyAuth(cfg.Account, cfg.User, key, creds.PrivateKeyPassphrase)
	if _, err := auth.Key(); err != nil {
		return nil, core.WithReason(fmt.Errorf("%w: private key: %w", core.ErrConfiguration, err), core.ReasonKeyDecryption)
	}
	return auth, nil
}

package core

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/youmark/pkcs8"
)

// AuthStrategy is one of *PasswordAuth, *PrivateKeyAuth or *SSOAuth.
// Exactly one strategy is resolved per process.
type AuthStrategy interface {
	// Name is a short identifier used in logs.
	Name() string
	Account() string
	User() string
	// Interactive reports whether the handshake needs a human.
	Interactive() bool

	authStrategy()
}

var (
	_ AuthStrategy = (*PasswordAuth)(nil)
	_ AuthStrategy = (*PrivateKeyAuth)(nil)
	_ AuthStrategy = (*SSOAuth)(nil)
)

type principal struct {
	AccountID string
	Username  string
}

func (p principal) Account() string { return p.AccountID }
func (p principal) User() string    { return p.Username }

// PasswordAuth binds with a username and password.
type PasswordAuth struct {
	principal
	Password string
}

func NewPasswordAuth(account, user, password string) *PasswordAuth {
	return &PasswordAuth{
		principal: principal{AccountID: account, Username: user},
		Password:  password,
	}
}

func (*PasswordAuth) Name() string      { return "password" }
func (*PasswordAuth) Interactive() bool { return false }
func (*PasswordAuth) authStrategy()     {}

// PrivateKeyAuth signs a JWT with a PEM encoded private key.
// Passphrase is only needed for encrypted keys.
type PrivateKeyAuth struct {
	principal
	PrivateKey []byte
	Passphrase string
}

func NewPrivateKeyAuth(account, user string, key []byte, passphrase string) *PrivateKeyAuth {
	return &PrivateKeyAuth{
		principal:  principal{AccountID: account, Username: user},
		PrivateKey: key,
		Passphrase: passphrase,
	}
}

func (*PrivateKeyAuth) Name() string      { return "private_key" }
func (*PrivateKeyAuth) Interactive() bool { return false }
func (*PrivateKeyAuth) authStrategy()     {}

var errUnsupportedKey = errors.New("unsupported private key")

// Key decodes the PEM encoded RSA key. Encrypted PKCS#8 keys need the
// passphrase.
func (a *PrivateKeyAuth) Key() (*rsa.PrivateKey, error) {
	return parsePrivateKey(a.PrivateKey, a.Passphrase)
}

func parsePrivateKey(data []byte, passphrase string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("private key is not PEM encoded")
	}

	switch block.Type {
	case "ENCRYPTED PRIVATE KEY":
		if passphrase == "" {
			return nil, errors.New("private key is encrypted but no passphrase was provided")
		}
		key, err := pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("pkcs8.ParsePKCS8PrivateKeyRSA: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("x509.ParsePKCS8PrivateKey: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: %T", errUnsupportedKey, key)
		}
		return rsaKey, nil
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("x509.ParsePKCS1PrivateKey: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: PEM block %q", errUnsupportedKey, block.Type)
	}
}

// SSOAuth opens an external browser and blocks until the identity provider
// redirects back or BrowserTimeout elapses.
type SSOAuth struct {
	principal
	Authenticator  string
	BrowserTimeout time.Duration
}

func NewSSOAuth(account, user, authenticator string, browserTimeout time.Duration) *SSOAuth {
	return &SSOAuth{
		principal:      principal{AccountID: account, Username: user},
		Authenticator:  authenticator,
		BrowserTimeout: browserTimeout,
	}
}

func (*SSOAuth) Name() string      { return "sso" }
func (*SSOAuth) Interactive() bool { return true }
func (*SSOAuth) authStrategy()     {}

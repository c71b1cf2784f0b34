package core

import (
	"encoding/json"
	"time"
)

// ConnectionParams are everything an Adapter needs to open a session.
type ConnectionParams struct {
	// Type selects the registered adapter.
	Type string
	Auth AuthStrategy
	// Defaults are applied with USE statements after the handshake.
	Defaults SessionContext

	LoginTimeout time.Duration
	QueryTag     string
	Application  string
}

// MarshalJSON never includes secrets.
func (cp *ConnectionParams) MarshalJSON() ([]byte, error) {
	var account, user, auth string
	if cp.Auth != nil {
		account = cp.Auth.Account()
		user = cp.Auth.User()
		auth = cp.Auth.Name()
	}

	return json.Marshal(struct {
		Type         string         `json:"type"`
		Account      string         `json:"account"`
		User         string         `json:"user"`
		Auth         string         `json:"auth"`
		Defaults     SessionContext `json:"defaults"`
		LoginTimeout string         `json:"login_timeout,omitempty"`
		QueryTag     string         `json:"query_tag,omitempty"`
		Application  string         `json:"application,omitempty"`
	}{
		Type:         cp.Type,
		Account:      account,
		User:         user,
		Auth:         auth,
		Defaults:     cp.Defaults,
		LoginTimeout: durationString(cp.LoginTimeout),
		QueryTag:     cp.QueryTag,
		Application:  cp.Application,
	})
}

// HandshakeTimeout is the time budget of an authentication handshake.
// Interactive strategies use their own browser timeout when one is set.
func (cp *ConnectionParams) HandshakeTimeout() time.Duration {
	if sso, ok := cp.Auth.(*SSOAuth); ok && sso.BrowserTimeout > 0 {
		return sso.BrowserTimeout
	}
	return cp.LoginTimeout
}

func durationString(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

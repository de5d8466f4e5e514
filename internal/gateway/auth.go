package gateway

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/soyeahso/taskpilot/internal/config"
)

var (
	errNoCredentials  = errors.New("no credentials provided")
	errNotConfigured  = errors.New("gateway secret not configured")
	errBadCredentials = errors.New("invalid credentials")
)

// authenticator checks the shared gateway secret for WebSocket connects and
// HTTP bearer headers alike.
type authenticator struct {
	mode   string // "token" | "password" | "none"
	secret string
}

// newAuthenticator picks the mode and its secret. A password (from config or
// TASKPILOT_GATEWAY_PASSWORD) implies password mode when none is set.
func newAuthenticator(cfg config.GatewayAuth) authenticator {
	password := cfg.Password
	if password == "" {
		password = os.Getenv("TASKPILOT_GATEWAY_PASSWORD")
	}

	a := authenticator{mode: cfg.Mode}
	if a.mode == "" {
		a.mode = "token"
		if password != "" {
			a.mode = "password"
		}
	}
	switch a.mode {
	case "token":
		a.secret = cfg.Token
	case "password":
		a.secret = password
	}
	return a
}

// check returns nil when creds satisfy the configured mode.
func (a authenticator) check(creds *ConnectAuth) error {
	switch a.mode {
	case "none":
		return nil
	case "token", "password":
	default:
		return fmt.Errorf("unknown auth mode %q", a.mode)
	}
	if a.secret == "" {
		return errNotConfigured
	}
	if creds == nil {
		return errNoCredentials
	}

	got := creds.Token
	if a.mode == "password" {
		got = creds.Password
	}
	if got == "" {
		return errNoCredentials
	}
	if !safeEqual(got, a.secret) {
		return errBadCredentials
	}
	return nil
}

// bearerAuth extracts HTTP credentials. The bearer value is offered as both
// token and password so either mode can be satisfied by one header.
func bearerAuth(r *http.Request) *ConnectAuth {
	secret, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || secret == "" {
		return nil
	}
	return &ConnectAuth{Token: secret, Password: secret}
}

// safeEqual compares in constant time, including the length check.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

// Package auth provides optional inbound authentication for the gateway.
// Credentials arrive as bearer tokens; the configured authenticator
// validates them and yields the caller identity.
package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/polygate-dev/polygate/pkg/config"
)

// ErrUnauthenticated rejects a request with missing or invalid credentials.
var ErrUnauthenticated = errors.New("authentication required")

// Identity represents an authenticated caller.
type Identity struct {
	// Subject is the unique caller identifier.
	Subject string
}

// Authenticator validates the credentials of an incoming request.
type Authenticator interface {
	Authenticate(r *http.Request) (*Identity, error)
}

// FromConfig builds the authenticator selected by cfg.Type. A nil return
// with nil error means authentication is disabled.
func FromConfig(cfg config.AuthConfig) (Authenticator, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "apikey":
		return newAPIKeyAuthenticator(cfg.APIKeys), nil
	case "jwt":
		return newJWTAuthenticator(cfg.JWT)
	}
	return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrUnauthenticated
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", ErrUnauthenticated
	}
	return header[len(prefix):], nil
}

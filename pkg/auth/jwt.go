package auth

import (
	"errors"
	"fmt"
	"net/http"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/polygate-dev/polygate/pkg/config"
)

// jwtAuthenticator validates HMAC-signed bearer JWTs against a shared
// secret, with optional issuer and audience checks.
type jwtAuthenticator struct {
	secret   []byte
	issuer   string
	audience string
}

func newJWTAuthenticator(cfg config.JWTConfig) (*jwtAuthenticator, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt auth requires a secret")
	}
	return &jwtAuthenticator{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}, nil
}

func (a *jwtAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	token, err := bearerToken(r)
	if err != nil {
		return nil, err
	}

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwtlib.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.audience))
	}

	claims := jwtlib.MapClaims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if !parsed.Valid {
		return nil, ErrUnauthenticated
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		subject = "jwt"
	}
	return &Identity{Subject: subject}, nil
}

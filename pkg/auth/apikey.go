package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/polygate-dev/polygate/pkg/config"
)

// keyEntry maps a key hash to an identity. Keys are hashed at build time;
// plaintext keys are not retained.
type keyEntry struct {
	hash    [32]byte
	subject string
}

type apiKeyAuthenticator struct {
	keys []keyEntry
}

func newAPIKeyAuthenticator(entries []config.APIKeyConfig) *apiKeyAuthenticator {
	a := &apiKeyAuthenticator{}
	for _, e := range entries {
		subject := e.Subject
		if subject == "" {
			subject = "apikey"
		}
		a.keys = append(a.keys, keyEntry{
			hash:    sha256.Sum256([]byte(e.Key)),
			subject: subject,
		})
	}
	return a
}

// Authenticate hashes the presented token and compares it against the
// stored hashes in constant time.
func (a *apiKeyAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	token, err := bearerToken(r)
	if err != nil {
		return nil, err
	}

	tokenHash := sha256.Sum256([]byte(token))
	for _, entry := range a.keys {
		if subtle.ConstantTimeCompare(tokenHash[:], entry.hash[:]) == 1 {
			return &Identity{Subject: entry.subject}, nil
		}
	}
	return nil, ErrUnauthenticated
}

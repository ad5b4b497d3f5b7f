package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// HashAuthenticator accepts keys matching one of a fixed set of bcrypt hashes.
type HashAuthenticator struct {
	hashes [][]byte
	cache  *AuthCache
	logger *zap.Logger
}

// NewHashAuthenticator validates every hash up front.
func NewHashAuthenticator(hashes []string, cacheTTL time.Duration, logger *zap.Logger) (*HashAuthenticator, error) {
	if len(hashes) == 0 {
		return nil, errors.New("NewHashAuthenticator: no key hashes configured")
	}
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &HashAuthenticator{cache: NewAuthCache(cacheTTL), logger: logger}
	for i, h := range hashes {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("NewHashAuthenticator: hash %d: %w", i, err)
		}
		a.hashes = append(a.hashes, []byte(h))
	}
	return a, nil
}

func (a *HashAuthenticator) Authenticate(ctx context.Context) (*Principal, error) {
	token, err := ExtractBearerToken(ctx)
	if err != nil {
		return nil, err
	}
	if p, ok := a.cache.Get(token); ok {
		return p, nil
	}

	for _, h := range a.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(token)) == nil {
			p := &Principal{KeyID: keyID(token)}
			a.cache.Set(token, p)
			return p, nil
		}
	}
	a.logger.Warn("rejected gateway api key", zap.String("key_id", keyID(token)))
	return nil, ErrUnauthenticated
}

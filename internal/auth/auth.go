// Package auth authenticates gateway callers by API key.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/metadata"
)

// KeyPrefix marks gateway API keys.
const KeyPrefix = "msk_"

// Authenticator validates incoming requests.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Principal, error)
}

// Principal identifies an authenticated caller. Only a short key prefix is
// kept so it can be logged.
type Principal struct {
	KeyID string
	Name  string // set when the key store records one
}

// ErrUnauthenticated is returned when no valid credentials are found.
var ErrUnauthenticated = errors.New("unauthenticated")

// ExtractBearerToken extracts an msk_ API key from gRPC metadata.
func ExtractBearerToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", ErrUnauthenticated
	}
	token := values[0]
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")
	if !strings.HasPrefix(token, KeyPrefix) || len(token) <= len(KeyPrefix)+4 {
		return "", ErrUnauthenticated
	}
	return token, nil
}

func keyID(token string) string {
	return token[:len(KeyPrefix)+4]
}

// GenerateKey returns a new API key and its bcrypt hash.
func GenerateKey() (key, hash string, err error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("GenerateKey: %w", err)
	}
	key = KeyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("GenerateKey: %w", err)
	}
	return key, string(h), nil
}

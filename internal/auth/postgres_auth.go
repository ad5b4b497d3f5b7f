package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// KeysDDL creates the gateway_keys table.
const KeysDDL = `
CREATE TABLE IF NOT EXISTS gateway_keys (
	key_id     TEXT PRIMARY KEY,
	key_hash   TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	revoked    BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// KeyStore abstracts DB queries for testability.
type KeyStore interface {
	LookupKey(ctx context.Context, keyID string) (*keyRow, error)
	InsertKey(ctx context.Context, row *keyRow) error
}

type keyRow struct {
	KeyID   string
	KeyHash string
	Name    string
	Revoked bool
}

// errKeyNotFound is returned by a KeyStore when no row matches.
var errKeyNotFound = errors.New("key not found")

type sqlKeyStore struct {
	db *sql.DB
}

func (s *sqlKeyStore) LookupKey(ctx context.Context, keyID string) (*keyRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key_id, key_hash, name, revoked
		FROM gateway_keys
		WHERE key_id = $1
	`, keyID)

	var r keyRow
	if err := row.Scan(&r.KeyID, &r.KeyHash, &r.Name, &r.Revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errKeyNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *sqlKeyStore) InsertKey(ctx context.Context, r *keyRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gateway_keys (key_id, key_hash, name)
		VALUES ($1, $2, $3)
	`, r.KeyID, r.KeyHash, r.Name)
	return err
}

// EnsureKeysSchema creates the gateway_keys table if it does not exist.
func EnsureKeysSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, KeysDDL); err != nil {
		return fmt.Errorf("EnsureKeysSchema: %w", err)
	}
	return nil
}

// PostgresAuthenticator validates API keys against the gateway_keys table.
// Keys are looked up by their id prefix and checked with bcrypt.
type PostgresAuthenticator struct {
	store  KeyStore
	cache  *AuthCache
	logger *zap.Logger
}

type PostgresAuthConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	Logger   *zap.Logger
}

func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	return newPostgresAuthenticatorWithStore(&sqlKeyStore{db: cfg.DB}, cfg.CacheTTL, cfg.Logger)
}

func newPostgresAuthenticatorWithStore(store KeyStore, cacheTTL time.Duration, logger *zap.Logger) *PostgresAuthenticator {
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresAuthenticator{
		store:  store,
		cache:  NewAuthCache(cacheTTL),
		logger: logger,
	}
}

func (a *PostgresAuthenticator) Authenticate(ctx context.Context) (*Principal, error) {
	token, err := ExtractBearerToken(ctx)
	if err != nil {
		return nil, err
	}
	if p, ok := a.cache.Get(token); ok {
		return p, nil
	}

	p, err := a.authenticateFromDB(ctx, token)
	if err != nil {
		if !errors.Is(err, ErrUnauthenticated) {
			a.logger.Warn("gateway key lookup failed", zap.String("key_id", keyID(token)), zap.Error(err))
		}
		return nil, fmt.Errorf("Authenticate: %w", err)
	}
	a.cache.Set(token, p)
	return p, nil
}

func (a *PostgresAuthenticator) authenticateFromDB(ctx context.Context, token string) (*Principal, error) {
	id := keyID(token)
	row, err := a.store.LookupKey(ctx, id)
	if errors.Is(err, errKeyNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("authenticateFromDB: %w", err)
	}
	if row.Revoked {
		return nil, ErrUnauthenticated
	}
	if err := bcrypt.CompareHashAndPassword([]byte(row.KeyHash), []byte(token)); err != nil {
		return nil, ErrUnauthenticated
	}
	return &Principal{KeyID: id, Name: row.Name}, nil
}

// Register generates a key, stores its hash under name and returns the key.
// The key itself is never stored.
func (a *PostgresAuthenticator) Register(ctx context.Context, name string) (string, error) {
	key, hash, err := GenerateKey()
	if err != nil {
		return "", err
	}
	if err := a.store.InsertKey(ctx, &keyRow{KeyID: keyID(key), KeyHash: hash, Name: name}); err != nil {
		return "", fmt.Errorf("Register: %w", err)
	}
	return key, nil
}

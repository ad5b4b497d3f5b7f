package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

const testAPIKey = "msk_test_valid_key_1234567890abcdef"

// memoryKeyStore implements KeyStore for testing.
type memoryKeyStore struct {
	mu        sync.Mutex
	rows      map[string]*keyRow
	err       error
	callCount atomic.Int32
}

func newMemoryKeyStore() *memoryKeyStore {
	return &memoryKeyStore{rows: map[string]*keyRow{}}
}

func (m *memoryKeyStore) LookupKey(_ context.Context, id string) (*keyRow, error) {
	m.callCount.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, errKeyNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memoryKeyStore) InsertKey(_ context.Context, row *keyRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[row.KeyID]; exists {
		return errors.New("duplicate key id")
	}
	m.rows[row.KeyID] = row
	return nil
}

func TestPostgresAuth_ValidKey(t *testing.T) {
	store := newMemoryKeyStore()
	store.rows["msk_test"] = &keyRow{KeyID: "msk_test", KeyHash: mustHash(t, testAPIKey), Name: "ci"}
	a := newPostgresAuthenticatorWithStore(store, time.Minute, zap.NewNop())

	p, err := a.Authenticate(bearerContext("Bearer " + testAPIKey))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if p.KeyID != "msk_test" || p.Name != "ci" {
		t.Fatalf("unexpected principal %+v", p)
	}

	// Second call is served from the cache.
	if _, err := a.Authenticate(bearerContext("Bearer " + testAPIKey)); err != nil {
		t.Fatal(err)
	}
	if n := store.callCount.Load(); n != 1 {
		t.Fatalf("expected 1 store lookup, got %d", n)
	}
}

func TestPostgresAuth_Rejections(t *testing.T) {
	store := newMemoryKeyStore()
	store.rows["msk_test"] = &keyRow{KeyID: "msk_test", KeyHash: mustHash(t, "msk_test_some_other_key")}
	store.rows["msk_revo"] = &keyRow{KeyID: "msk_revo", KeyHash: mustHash(t, "msk_revoked_key"), Revoked: true}
	a := newPostgresAuthenticatorWithStore(store, time.Minute, zap.NewNop())

	cases := map[string]string{
		"wrong secret": "Bearer " + testAPIKey,
		"revoked":      "Bearer msk_revoked_key",
		"unknown id":   "Bearer msk_zzzz_unknown",
	}
	for name, header := range cases {
		if _, err := a.Authenticate(bearerContext(header)); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("%s: expected ErrUnauthenticated, got %v", name, err)
		}
	}
}

func TestPostgresAuth_StoreError(t *testing.T) {
	store := newMemoryKeyStore()
	store.err = errors.New("connection refused")
	a := newPostgresAuthenticatorWithStore(store, time.Minute, zap.NewNop())

	_, err := a.Authenticate(bearerContext("Bearer " + testAPIKey))
	if err == nil || errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestPostgresAuth_Register(t *testing.T) {
	store := newMemoryKeyStore()
	a := newPostgresAuthenticatorWithStore(store, time.Minute, nil)

	key, err := a.Register(context.Background(), "deploy-bot")
	if err != nil {
		t.Fatal(err)
	}
	row, ok := store.rows[keyID(key)]
	if !ok {
		t.Fatalf("expected row for %s", keyID(key))
	}
	if row.KeyHash == key {
		t.Fatal("raw key must not be stored")
	}

	p, err := a.Authenticate(bearerContext("Bearer " + key))
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "deploy-bot" {
		t.Fatalf("unexpected principal %+v", p)
	}
}

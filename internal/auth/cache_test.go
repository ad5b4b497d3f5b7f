package auth

import (
	"testing"
	"time"
)

func TestAuthCache_FreshHit(t *testing.T) {
	c := NewAuthCache(30 * time.Second)
	c.Set("msk_key", &Principal{KeyID: "msk_key"})

	p, ok := c.Get("msk_key")
	if !ok || p.KeyID != "msk_key" {
		t.Fatalf("expected hit, got %v %v", p, ok)
	}
}

func TestAuthCache_Expiry(t *testing.T) {
	c := NewAuthCache(time.Millisecond)
	c.Set("msk_key", &Principal{KeyID: "msk_key"})

	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("msk_key"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

package credentials

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestOAuth2Provider_FetchesAndCaches(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("unexpected grant_type %q", r.Form.Get("grant_type"))
		}
		n := hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer","expires_in":3600}`, n)
	}))
	defer server.Close()

	p, err := NewOAuth2Provider(OAuth2Config{
		TokenURL:     server.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		Scopes:       []string{"datastore"},
	}, server.Client())
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		tok, err := p.AccessToken(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if tok != "tok-1" {
			t.Fatalf("expected cached tok-1, got %s", tok)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 token request, got %d", hits.Load())
	}
}

func TestOAuth2Provider_TokenEndpointError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_client"}`)
	}))
	defer server.Close()

	p, err := NewOAuth2Provider(OAuth2Config{TokenURL: server.URL, ClientID: "c", ClientSecret: "s"}, server.Client())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.AccessToken(context.Background()); err == nil {
		t.Fatal("expected token fetch error")
	}
}

func TestOAuth2Config_Validate(t *testing.T) {
	if _, err := NewOAuth2Provider(OAuth2Config{TokenURL: "http://x"}, nil); err == nil {
		t.Fatal("expected missing client credentials to be rejected")
	}
}

func TestStatic(t *testing.T) {
	tok, err := Static("abc").AccessToken(context.Background())
	if err != nil || tok != "abc" {
		t.Fatalf("unexpected token %q, err %v", tok, err)
	}
}

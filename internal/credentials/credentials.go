// Package credentials supplies bearer tokens for the remote tool endpoint.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenProvider returns the current access token. Implementations may rotate
// the value between calls.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) AccessToken(ctx context.Context) (string, error) { return f(ctx) }

// Static returns a provider that always yields token.
func Static(token string) TokenProvider {
	return TokenFunc(func(context.Context) (string, error) { return token, nil })
}

// OAuth2Config configures the client-credentials grant.
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Validate reports missing required fields.
func (c OAuth2Config) Validate() error {
	if c.TokenURL == "" || c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("oauth2: tokenUrl, clientId and clientSecret are required")
	}
	return nil
}

// OAuth2Provider fetches and caches client-credentials tokens, refreshing them
// shortly before expiry.
type OAuth2Provider struct {
	source oauth2.TokenSource
}

// NewOAuth2Provider creates a provider. httpClient may be nil.
func NewOAuth2Provider(cfg OAuth2Config, httpClient *http.Client) (*OAuth2Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	// The token source keeps this context for every later refresh.
	ctx := context.Background()
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	return &OAuth2Provider{source: cc.TokenSource(ctx)}, nil
}

func (p *OAuth2Provider) AccessToken(_ context.Context) (string, error) {
	tok, err := p.source.Token()
	if err != nil {
		return "", fmt.Errorf("AccessToken: %w", err)
	}
	return tok.AccessToken, nil
}

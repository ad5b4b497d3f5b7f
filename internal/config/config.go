// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/triage-ai/mcpstore/internal/credentials"
	"github.com/triage-ai/mcpstore/internal/mcp"
	"github.com/triage-ai/mcpstore/internal/model"
	"github.com/triage-ai/mcpstore/internal/session"
)

// Config is everything the binaries read from the environment.
type Config struct {
	Transport string
	URL       string

	DirectToken string
	OAuth2      credentials.OAuth2Config
	APIKey      string

	ClientName    string
	ClientVersion string

	ModelsPath string
	LogLevel   string

	GatewayPort      string
	GatewayKeyHashes []string
	ClickHouseDSN    string
	PostgresDSN      string
	RegistryCacheTTL time.Duration
}

// Load reads the MCPSTORE_* variables plus CLICKHOUSE_DSN and POSTGRES_DSN.
func Load() Config {
	return Config{
		Transport:   envOrDefault("MCPSTORE_TRANSPORT", string(mcp.KindStreamable)),
		URL:         os.Getenv("MCPSTORE_URL"),
		DirectToken: os.Getenv("MCPSTORE_OAUTH_TOKEN"),
		OAuth2: credentials.OAuth2Config{
			TokenURL:     os.Getenv("MCPSTORE_OAUTH_TOKEN_URL"),
			ClientID:     os.Getenv("MCPSTORE_OAUTH_CLIENT_ID"),
			ClientSecret: os.Getenv("MCPSTORE_OAUTH_CLIENT_SECRET"),
			Scopes:       splitList(os.Getenv("MCPSTORE_OAUTH_SCOPES")),
		},
		APIKey:           os.Getenv("MCPSTORE_API_KEY"),
		ClientName:       envOrDefault("MCPSTORE_CLIENT_NAME", session.DefaultClientName),
		ClientVersion:    envOrDefault("MCPSTORE_CLIENT_VERSION", session.DefaultClientVersion),
		ModelsPath:       os.Getenv("MCPSTORE_MODELS"),
		LogLevel:         envOrDefault("MCPSTORE_LOG_LEVEL", "info"),
		GatewayPort:      envOrDefault("MCPSTORE_GATEWAY_PORT", "50061"),
		GatewayKeyHashes: splitList(os.Getenv("MCPSTORE_GATEWAY_API_KEY_HASHES")),
		ClickHouseDSN:    os.Getenv("CLICKHOUSE_DSN"),
		PostgresDSN:      os.Getenv("POSTGRES_DSN"),
		RegistryCacheTTL: time.Duration(envOrDefaultInt("MCPSTORE_REGISTRY_CACHE_TTL_S", 60)) * time.Second,
	}
}

// OAuth2Configured reports whether any client-credentials field is set.
func (c Config) OAuth2Configured() bool {
	return c.OAuth2.TokenURL != "" || c.OAuth2.ClientID != "" || c.OAuth2.ClientSecret != ""
}

// SessionConfig builds the session configuration. A direct token wins over
// client credentials; the API key is always passed through and only used
// when neither is present.
func (c Config) SessionConfig(httpClient *http.Client) (session.Config, error) {
	kind, err := mcp.ParseKind(c.Transport)
	if err != nil {
		return session.Config{}, fmt.Errorf("SessionConfig: %w", err)
	}
	if c.URL == "" {
		return session.Config{}, errors.New("SessionConfig: MCPSTORE_URL is required")
	}

	sc := session.Config{
		Transport:   kind,
		URL:         c.URL,
		ClientInfo:  mcp.Implementation{Name: c.ClientName, Version: c.ClientVersion},
		DirectToken: c.DirectToken,
		APIKey:      c.APIKey,
		HTTPClient:  httpClient,
	}
	if c.DirectToken == "" && c.OAuth2Configured() {
		provider, err := credentials.NewOAuth2Provider(c.OAuth2, httpClient)
		if err != nil {
			return session.Config{}, fmt.Errorf("SessionConfig: %w", err)
		}
		sc.TokenProvider = provider
	}
	return sc, nil
}

// Catalog loads the model catalog named by MCPSTORE_MODELS.
func (c Config) Catalog() (*model.Catalog, error) {
	if c.ModelsPath == "" {
		return nil, errors.New("Catalog: MCPSTORE_MODELS is required")
	}
	return model.LoadCatalog(c.ModelsPath)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Package session owns the live connection to the remote tool endpoint.
//
// A Manager connects lazily and decides, on every EnsureConnected call, whether
// the current client is still usable. Credential precedence is a direct bearer
// token, then a TokenProvider (reconnecting whenever the token value changes),
// then an optional API key. All connect paths run under one mutex, so
// concurrent callers never race to replace the client.
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/triage-ai/mcpstore/internal/credentials"
	"github.com/triage-ai/mcpstore/internal/mcp"
	"github.com/triage-ai/mcpstore/internal/storeerr"
)

// ErrClosed is returned by EnsureConnected after Close.
var ErrClosed = errors.New("session: manager closed")

const (
	DefaultClientName    = "mcpstore"
	DefaultClientVersion = "1.0.0"
)

// Config is fixed at construction.
type Config struct {
	Transport mcp.Kind
	URL       string

	// ClientInfo is sent during initialize. Empty fields take the defaults.
	ClientInfo mcp.Implementation

	// DirectToken is a bearer token used as-is for the life of the manager.
	DirectToken string
	// TokenProvider is consulted before every call when DirectToken is empty.
	TokenProvider credentials.TokenProvider
	// APIKey is sent as x-api-key when no bearer credential is configured.
	APIKey string

	HTTPClient *http.Client
}

// Client is a connected endpoint handle.
type Client interface {
	CallTool(ctx context.Context, id string, params mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// Dialer builds a transport with creds and connects a client over it.
type Dialer func(ctx context.Context, creds mcp.Credentials) (Client, error)

type Option func(*Manager)

// WithDialer replaces the default MCP dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dial = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager is the only owner of the session state.
type Manager struct {
	cfg    Config
	dial   Dialer
	logger *zap.Logger

	mu     sync.Mutex
	client Client
	token  string
	closed bool
}

func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.Transport == "" {
		cfg.Transport = mcp.KindStreamable
	}
	kind, err := mcp.ParseKind(string(cfg.Transport))
	if err != nil {
		return nil, err
	}
	cfg.Transport = kind
	if cfg.URL == "" {
		return nil, errors.New("session: url is required")
	}
	if cfg.ClientInfo.Name == "" {
		cfg.ClientInfo.Name = DefaultClientName
	}
	if cfg.ClientInfo.Version == "" {
		cfg.ClientInfo.Version = DefaultClientVersion
	}

	m := &Manager{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.dial == nil {
		m.dial = m.dialMCP
	}
	return m, nil
}

// EnsureConnected returns a live client, connecting or reconnecting as the
// configured credential requires. Connect failures are returned as
// storeerr.ErrConnection and are not retried.
func (m *Manager) EnsureConnected(ctx context.Context) (Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	switch {
	case m.cfg.DirectToken != "":
		if m.client != nil {
			return m.client, nil
		}
		return m.connect(ctx, mcp.Credentials{BearerToken: m.cfg.DirectToken}, "direct_token")

	case m.cfg.TokenProvider != nil:
		token, err := m.cfg.TokenProvider.AccessToken(ctx)
		if err != nil {
			return nil, storeerr.Wrap(storeerr.Connection, "fetch access token", err)
		}
		if m.client != nil && token == m.token {
			return m.client, nil
		}
		if m.client != nil {
			m.logger.Info("access token rotated, reconnecting", zap.String("url", m.cfg.URL))
			m.closeClient()
		}
		c, err := m.connect(ctx, mcp.Credentials{BearerToken: token}, "oauth2")
		if err != nil {
			return nil, err
		}
		m.token = token
		return c, nil

	default:
		if m.client != nil {
			return m.client, nil
		}
		auth := "none"
		if m.cfg.APIKey != "" {
			auth = "api_key"
		}
		return m.connect(ctx, mcp.Credentials{APIKey: m.cfg.APIKey}, auth)
	}
}

// Invalidate drops c if it is still the current client, so the next
// EnsureConnected builds a new one. Stale handles are ignored.
func (m *Manager) Invalidate(c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c == nil || m.client != c {
		return
	}
	m.logger.Info("dropping session after transport failure", zap.String("url", m.cfg.URL))
	m.closeClient()
}

// Close disconnects and rejects further use.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client, m.token = nil, ""
	m.logger.Info("session closed", zap.String("url", m.cfg.URL))
	return err
}

// connect must be called with mu held.
func (m *Manager) connect(ctx context.Context, creds mcp.Credentials, auth string) (Client, error) {
	c, err := m.dial(ctx, creds)
	if err != nil {
		m.logger.Warn("session connect failed",
			zap.String("url", m.cfg.URL),
			zap.String("transport", string(m.cfg.Transport)),
			zap.Error(err),
		)
		return nil, storeerr.Wrap(storeerr.Connection, "connect to "+m.cfg.URL, err)
	}
	m.client = c
	fields := []zap.Field{
		zap.String("url", m.cfg.URL),
		zap.String("transport", string(m.cfg.Transport)),
		zap.String("auth", auth),
	}
	if s, ok := c.(interface{ ServerInfo() mcp.InitializeResult }); ok {
		info := s.ServerInfo()
		fields = append(fields,
			zap.String("server_name", info.ServerInfo.Name),
			zap.String("server_version", info.ServerInfo.Version),
			zap.String("protocol_version", info.ProtocolVersion),
		)
	}
	m.logger.Info("session connected", fields...)
	return c, nil
}

// closeClient must be called with mu held.
func (m *Manager) closeClient() {
	if err := m.client.Close(); err != nil {
		m.logger.Warn("failed to close session client", zap.Error(err))
	}
	m.client, m.token = nil, ""
}

func (m *Manager) dialMCP(ctx context.Context, creds mcp.Credentials) (Client, error) {
	t, err := mcp.NewTransport(m.cfg.Transport, m.cfg.URL, creds, m.cfg.HTTPClient)
	if err != nil {
		return nil, err
	}
	c := mcp.NewClient(m.cfg.ClientInfo)
	if err := c.Connect(ctx, t); err != nil {
		return nil, err
	}
	return c, nil
}

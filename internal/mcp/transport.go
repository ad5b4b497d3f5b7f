package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Kind selects the transport framing.
type Kind string

const (
	// KindStreamable posts every message and reads the reply from the same
	// HTTP exchange (JSON body or event stream).
	KindStreamable Kind = "http"
	// KindEventStream holds one GET event stream open for replies and posts
	// messages to the endpoint the stream announces.
	KindEventStream Kind = "sse"
)

// ParseKind validates a transport kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case KindStreamable:
		return KindStreamable, nil
	case KindEventStream:
		return KindEventStream, nil
	}
	return "", fmt.Errorf("unsupported connection type: %q", s)
}

// Credentials are injected as headers when a transport is built and never
// change for that transport's lifetime.
type Credentials struct {
	BearerToken string
	APIKey      string
}

func (c Credentials) headers() http.Header {
	h := make(http.Header)
	if c.BearerToken != "" {
		h.Set("Authorization", "Bearer "+c.BearerToken)
	}
	if c.APIKey != "" {
		h.Set("x-api-key", c.APIKey)
	}
	return h
}

// Transport carries JSON-RPC messages to the endpoint.
type Transport interface {
	// Start opens the underlying connection, if the framing needs one.
	Start(ctx context.Context) error

	// Send delivers a request and waits for its response.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Notify delivers a notification; no response is expected.
	Notify(ctx context.Context, req *Request) error

	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// HTTPError is a non-success HTTP status from the endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// NewTransport builds a transport of the given kind. A nil httpClient selects
// a client without an overall timeout, since event streams are long-lived.
func NewTransport(kind Kind, endpoint string, creds Credentials, httpClient *http.Client) (Transport, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	switch kind {
	case KindStreamable:
		return NewStreamableTransport(endpoint, creds, httpClient), nil
	case KindEventStream:
		return NewEventStreamTransport(endpoint, creds, httpClient), nil
	}
	return nil, fmt.Errorf("NewTransport: unsupported connection type: %q", kind)
}

func newPost(ctx context.Context, url string, headers http.Header, req *Request) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

// decodeMessage parses one event payload. ok is false for server-initiated
// requests and notifications.
func decodeMessage(data string) (resp *Response, ok bool, err error) {
	var m message
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, false, fmt.Errorf("failed to parse message: %w", err)
	}
	if m.Method != "" || len(m.ID) == 0 {
		return nil, false, nil
	}
	return &m.Response, true, nil
}

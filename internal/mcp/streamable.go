package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sync"
)

const sessionHeader = "Mcp-Session-Id"

// StreamableTransport posts each message to a single endpoint. Replies come
// back either as a JSON body or as an event stream on the same response.
type StreamableTransport struct {
	endpoint string
	headers  http.Header
	client   *http.Client

	mu        sync.Mutex
	sessionID string
	closed    bool
}

func NewStreamableTransport(endpoint string, creds Credentials, httpClient *http.Client) *StreamableTransport {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &StreamableTransport{
		endpoint: endpoint,
		headers:  creds.headers(),
		client:   httpClient,
	}
}

// Start is a no-op; the first request opens the session.
func (t *StreamableTransport) Start(context.Context) error { return nil }

func (t *StreamableTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	resp, err := t.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Send: %w", statusError(resp))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch mediaType {
	case "text/event-stream":
		var out *Response
		err := ReadEvents(resp.Body, func(ev Event) error {
			if ev.Name != "message" {
				return nil
			}
			r, ok, err := decodeMessage(ev.Data)
			if err != nil {
				return err
			}
			if ok && r.IDString() == req.ID {
				out = r
				return errStopStream
			}
			return nil
		})
		if out != nil {
			return out, nil
		}
		if err == nil {
			err = errors.New("stream ended without a response")
		}
		return nil, fmt.Errorf("Send: %w", err)
	default:
		var out Response
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("Send: failed to decode response: %w", err)
		}
		return &out, nil
	}
}

func (t *StreamableTransport) Notify(ctx context.Context, req *Request) error {
	resp, err := t.post(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Notify: %w", statusError(resp))
	}
	return nil
}

// Close ends the server-side session when one was assigned.
func (t *StreamableTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	sessionID := t.sessionID
	t.mu.Unlock()

	if sessionID == "" {
		return nil
	}
	httpReq, err := http.NewRequest(http.MethodDelete, t.endpoint, nil)
	if err != nil {
		return fmt.Errorf("Close: %w", err)
	}
	t.setHeaders(httpReq.Header, sessionID)
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("Close: %w", err)
	}
	resp.Body.Close()
	return nil
}

func (t *StreamableTransport) post(ctx context.Context, req *Request) (*http.Response, error) {
	t.mu.Lock()
	closed, sessionID := t.closed, t.sessionID
	t.mu.Unlock()
	if closed {
		return nil, errTransportClosed
	}

	httpReq, err := newPost(ctx, t.endpoint, t.headers, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		httpReq.Header.Set(sessionHeader, sessionID)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if id := resp.Header.Get(sessionHeader); id != "" {
		t.mu.Lock()
		t.sessionID = id
		t.mu.Unlock()
	}
	return resp, nil
}

func (t *StreamableTransport) setHeaders(h http.Header, sessionID string) {
	for k, vs := range t.headers {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	h.Set(sessionHeader, sessionID)
}

var (
	errStopStream      = errors.New("stop stream")
	errTransportClosed = errors.New("transport closed")
)

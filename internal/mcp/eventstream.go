package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// EventStreamTransport holds a GET event stream open for replies and posts
// requests to the message endpoint announced by the stream's first
// "endpoint" event.
type EventStreamTransport struct {
	endpoint string
	headers  http.Header
	client   *http.Client

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	postURL   string
	pending   map[string]chan *Response
	streamErr error
}

func NewEventStreamTransport(endpoint string, creds Credentials, httpClient *http.Client) *EventStreamTransport {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &EventStreamTransport{
		endpoint: endpoint,
		headers:  creds.headers(),
		client:   httpClient,
		pending:  make(map[string]chan *Response),
	}
}

// Start opens the event stream and waits for the message endpoint.
func (t *EventStreamTransport) Start(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.Background())
	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.endpoint, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("Start: %w", err)
	}
	for k, vs := range t.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	// The stream request must outlive ctx, so ctx only bounds the wait below.
	type dialResult struct {
		resp *http.Response
		err  error
	}
	dialed := make(chan dialResult, 1)
	go func() {
		resp, err := t.client.Do(httpReq)
		dialed <- dialResult{resp, err}
	}()

	var resp *http.Response
	select {
	case r := <-dialed:
		if r.err != nil {
			cancel()
			return fmt.Errorf("Start: %w", r.err)
		}
		resp = r.resp
	case <-ctx.Done():
		cancel()
		go func() {
			if r := <-dialed; r.resp != nil {
				r.resp.Body.Close()
			}
		}()
		return fmt.Errorf("Start: %w", ctx.Err())
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		cancel()
		return fmt.Errorf("Start: %w", statusError(resp))
	}

	t.cancel = cancel
	t.done = make(chan struct{})
	endpointCh := make(chan string, 1)
	go t.readLoop(resp.Body, endpointCh)

	select {
	case raw := <-endpointCh:
		postURL, err := t.resolve(raw)
		if err != nil {
			t.Close()
			return fmt.Errorf("Start: %w", err)
		}
		t.mu.Lock()
		t.postURL = postURL
		t.mu.Unlock()
		return nil
	case <-t.done:
		t.Close()
		return fmt.Errorf("Start: %w", t.err())
	case <-ctx.Done():
		t.Close()
		return fmt.Errorf("Start: %w", ctx.Err())
	}
}

func (t *EventStreamTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	ch := make(chan *Response, 1)
	t.mu.Lock()
	if _, busy := t.pending[req.ID]; busy {
		t.mu.Unlock()
		return nil, fmt.Errorf("Send: %w: %s", ErrDuplicateID, req.ID)
	}
	t.pending[req.ID] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
	}()

	if err := t.post(ctx, req); err != nil {
		return nil, fmt.Errorf("Send: %w", err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-t.done:
		return nil, fmt.Errorf("Send: %w", t.err())
	case <-ctx.Done():
		return nil, fmt.Errorf("Send: %w", ctx.Err())
	}
}

func (t *EventStreamTransport) Notify(ctx context.Context, req *Request) error {
	if err := t.post(ctx, req); err != nil {
		return fmt.Errorf("Notify: %w", err)
	}
	return nil
}

func (t *EventStreamTransport) Close() error {
	t.closeOnce.Do(func() {
		if t.cancel == nil {
			return
		}
		t.cancel()
		<-t.done
	})
	return nil
}

func (t *EventStreamTransport) post(ctx context.Context, req *Request) error {
	if t.done == nil {
		return errors.New("transport not started")
	}
	select {
	case <-t.done:
		return t.err()
	default:
	}

	t.mu.Lock()
	postURL := t.postURL
	t.mu.Unlock()

	httpReq, err := newPost(ctx, postURL, t.headers, req)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (t *EventStreamTransport) readLoop(body io.ReadCloser, endpointCh chan<- string) {
	defer body.Close()

	err := ReadEvents(body, func(ev Event) error {
		switch ev.Name {
		case "endpoint":
			select {
			case endpointCh <- ev.Data:
			default:
			}
		case "message":
			resp, ok, err := decodeMessage(ev.Data)
			if err != nil || !ok {
				// Unparseable or server-initiated messages are skipped.
				return nil
			}
			t.mu.Lock()
			ch := t.pending[resp.IDString()]
			t.mu.Unlock()
			if ch != nil {
				select {
				case ch <- resp:
				default:
				}
			}
		}
		return nil
	})
	if err == nil {
		err = io.EOF
	}

	t.mu.Lock()
	t.streamErr = fmt.Errorf("event stream closed: %w", err)
	t.mu.Unlock()
	close(t.done)
}

func (t *EventStreamTransport) err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.streamErr == nil {
		return errTransportClosed
	}
	return t.streamErr
}

// resolve turns the announced endpoint into an absolute URL on the stream's origin.
func (t *EventStreamTransport) resolve(raw string) (string, error) {
	base, err := url.Parse(t.endpoint)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint event %q: %w", raw, err)
	}
	u := base.ResolveReference(ref)
	if u.Scheme != base.Scheme || u.Host != base.Host {
		return "", fmt.Errorf("endpoint origin %s does not match stream origin %s", u.Host, base.Host)
	}
	return u.String(), nil
}

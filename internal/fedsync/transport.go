package fedsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPTransport implements OriginTransport against a partner's logout-sync
// endpoint. Opening the hidden document becomes a GET to
// {origin}/logout-sync; the acknowledgement the partner would post to its
// parent window arrives as the JSON response body, tagged with the scheme and
// host the response actually came from.
type HTTPTransport struct {
	client *http.Client
	path   string
}

// NewHTTPTransport creates a transport with its own bounded-timeout client.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
		path:   "/logout-sync",
	}
}

// Open implements OriginTransport.Open. The request runs in its own
// goroutine; cancelling the context or calling teardown abandons it.
func (t *HTTPTransport) Open(ctx context.Context, origin string) (<-chan Envelope, func(), error) {
	endpoint, err := url.JoinPath(origin, t.path)
	if err != nil {
		return nil, nil, fmt.Errorf("building logout-sync URL for %q: %w", origin, err)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("building logout-sync request: %w", err)
	}

	messages := make(chan Envelope, 1)
	go func() {
		defer close(messages)

		resp, err := t.client.Do(req)
		if err != nil {
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return
		}

		var msg Message
		if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
			return
		}

		// The origin is derived from where the response actually came from,
		// not from the message body.
		responseOrigin := resp.Request.URL.Scheme + "://" + resp.Request.URL.Host
		select {
		case messages <- Envelope{Origin: responseOrigin, Message: msg}:
		case <-reqCtx.Done():
		}
	}()

	return messages, cancel, nil
}

var _ OriginTransport = (*HTTPTransport)(nil)

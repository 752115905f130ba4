package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// maxResponseSize caps a single reply body.
const maxResponseSize = 32 << 20

// Transport carries one encoded JSON-RPC envelope to an endpoint URL and
// returns the HTTP-equivalent status and the raw reply body. Implementations
// must be safe for concurrent use.
type Transport interface {
	RoundTrip(ctx context.Context, url string, body []byte) (status int, reply []byte, err error)
}

// httpTransport posts envelopes with a shared http.Client, which pools
// connections and is safe for concurrent use.
type httpTransport struct {
	client *http.Client
}

func newHTTPTransport(client *http.Client) *httpTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &httpTransport{client: client}
}

func (t *httpTransport) RoundTrip(ctx context.Context, url string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, reply, nil
}

// wsTransport opens one websocket connection per call, writes the envelope
// and reads a single reply frame.
type wsTransport struct {
	dialer *websocket.Dialer
}

func newWSTransport() *wsTransport {
	return &wsTransport{dialer: &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}}
}

func (t *wsTransport) RoundTrip(ctx context.Context, url string, body []byte) (int, []byte, error) {
	conn, resp, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return resp.StatusCode, nil, err
		}
		return 0, nil, err
	}
	defer conn.Close()
	conn.SetReadLimit(maxResponseSize)

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}
	// Unblock the read if the context is cancelled without a deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return 0, nil, fmt.Errorf("ws write: %w", err)
	}
	_, reply, err := conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		return 0, nil, fmt.Errorf("ws read: %w", err)
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return http.StatusOK, reply, nil
}

// schemeTransport routes ws:// and wss:// URLs to the websocket transport and
// everything else to HTTP.
type schemeTransport struct {
	http Transport
	ws   Transport
}

func (t *schemeTransport) RoundTrip(ctx context.Context, url string, body []byte) (int, []byte, error) {
	lower := strings.ToLower(url)
	if strings.HasPrefix(lower, "ws://") || strings.HasPrefix(lower, "wss://") {
		return t.ws.RoundTrip(ctx, url, body)
	}
	return t.http.RoundTrip(ctx, url, body)
}

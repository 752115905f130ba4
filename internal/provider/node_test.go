package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type handlerFunc func(ctx context.Context, params []json.RawMessage) (any, *RPCError)

type recordedCall struct {
	ID     uint64
	Method string
	Params []json.RawMessage
}

// fakeNode is an in-process JSON-RPC endpoint.
type fakeNode struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	methods  map[string]handlerFunc
	calls    []recordedCall
	status   int    // forces an HTTP status when non-zero
	rawReply string // returned verbatim when set
	idOffset uint64 // added to the reply id
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()
	n := &fakeNode{t: t, methods: make(map[string]handlerFunc)}
	n.srv = httptest.NewServer(http.HandlerFunc(n.serveHTTP))
	t.Cleanup(n.srv.Close)
	return n
}

func (n *fakeNode) URL() string { return n.srv.URL }

// on registers a handler for method.
func (n *fakeNode) on(method string, h handlerFunc) *fakeNode {
	n.mu.Lock()
	n.methods[method] = h
	n.mu.Unlock()
	return n
}

// result registers a constant result for method.
func (n *fakeNode) result(method string, v any) *fakeNode {
	return n.on(method, func(context.Context, []json.RawMessage) (any, *RPCError) { return v, nil })
}

func (n *fakeNode) failWith(status int) *fakeNode {
	n.mu.Lock()
	n.status = status
	n.mu.Unlock()
	return n
}

func (n *fakeNode) reply(raw string) *fakeNode {
	n.mu.Lock()
	n.rawReply = raw
	n.mu.Unlock()
	return n
}

func (n *fakeNode) Calls() []recordedCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]recordedCall(nil), n.calls...)
}

func (n *fakeNode) CallCount(method string) int {
	count := 0
	for _, c := range n.Calls() {
		if c.Method == method {
			count++
		}
	}
	return count
}

func (n *fakeNode) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     uint64            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls = append(n.calls, recordedCall{ID: req.ID, Method: req.Method, Params: req.Params})
	status, raw, offset := n.status, n.rawReply, n.idOffset
	h := n.methods[req.Method]
	n.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if raw != "" {
		_, _ = io.WriteString(w, raw)
		return
	}

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID + offset}
	if h == nil {
		resp["error"] = &RPCError{Code: -32601, Message: "method not found"}
	} else if res, rpcErr := h(r.Context(), req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = res
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// blockUntilDone is a handler that never answers before the request is abandoned.
func blockUntilDone(ctx context.Context, _ []json.RawMessage) (any, *RPCError) {
	<-ctx.Done()
	return nil, &RPCError{Code: -1, Message: "abandoned"}
}

// delayed wraps a constant result with a delay.
func delayed(d time.Duration, v any) handlerFunc {
	return func(ctx context.Context, _ []json.RawMessage) (any, *RPCError) {
		select {
		case <-time.After(d):
			return v, nil
		case <-ctx.Done():
			return nil, &RPCError{Code: -1, Message: "abandoned"}
		}
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProvider(t *testing.T, nodes ...*fakeNode) *Provider {
	t.Helper()
	p := New(
		WithLogger(testLogger()),
		WithTimeout(time.Second),
		WithPollInterval(20*time.Millisecond),
	)
	for i, n := range nodes {
		require.NoError(t, p.AddClient(nodeName(i), n.URL()))
	}
	t.Cleanup(p.DisconnectFromNetwork)
	return p
}

func nodeName(i int) string {
	return string(rune('a' + i))
}

func paramString(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

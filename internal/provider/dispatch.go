package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Call issues method with params against the endpoints in order and returns
// the first successful raw result. A JSON null result is a success.
func (p *Provider) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	res, _, err := p.call(ctx, method, params)
	return res, err
}

func (p *Provider) call(ctx context.Context, method string, params []any) (json.RawMessage, Endpoint, error) {
	p.mu.Lock()
	if len(p.clients) == 0 {
		p.mu.Unlock()
		return nil, Endpoint{}, fmt.Errorf("%w: %s", ErrNoEndpoints, method)
	}
	endpoints := p.orderedLocked()
	timeout := p.timeout
	id := p.allocIDLocked()
	p.mu.Unlock()

	return p.sweep(ctx, endpoints, timeout, id, method, params)
}

// sweep makes one pass over endpoints, stopping at the first usable reply.
// It runs without p.mu held.
func (p *Provider) sweep(ctx context.Context, endpoints []Endpoint, timeout time.Duration, id uint64, method string, params []any) (json.RawMessage, Endpoint, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		return nil, Endpoint{}, fmt.Errorf("encode %s request: %w", method, err)
	}

	errs := make([]error, 0, len(endpoints))
	for i, ep := range endpoints {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, Endpoint{}, fmt.Errorf("%s aborted: %w", method, ctxErr)
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, Endpoint{}, fmt.Errorf("rate limiter error: %w", err)
		}

		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := p.attempt(attemptCtx, ep, id, body)
		cancel()
		p.metrics.RecordRPCRequest(ep.Name, method, time.Since(start), err == nil)

		if err == nil {
			if i > 0 {
				p.metrics.RecordFailover(method)
			}
			return result, ep, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", ep.Name, err))
		p.log.Warn("rpc_endpoint_failed",
			slog.String("endpoint", ep.Name),
			slog.String("method", method),
			slog.Uint64("id", id),
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, Endpoint{}, fmt.Errorf("%s aborted: %w", method, ctxErr)
		}
	}

	p.metrics.RecordExhausted(method)
	p.log.Error("rpc_all_endpoints_failed",
		slog.String("method", method),
		slog.Uint64("id", id),
		slog.Int("endpoints", len(endpoints)),
	)
	return nil, Endpoint{}, fmt.Errorf("%w for %s: %w", ErrAllEndpointsFailed, method, errors.Join(errs...))
}

// attempt performs a single round trip and validates the envelope.
func (p *Provider) attempt(ctx context.Context, ep Endpoint, id uint64, body []byte) (json.RawMessage, error) {
	status, reply, err := p.transport.RoundTrip(ctx, ep.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: http status %d", ErrTransport, status)
	}

	var resp rpcResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		return nil, protocolError("invalid json reply: %v", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if !idMatches(resp.ID, id) {
		return nil, protocolError("reply id %s does not match request id %d", string(resp.ID), id)
	}
	if len(resp.Result) == 0 {
		return nil, protocolError("reply has neither result nor error")
	}
	return resp.Result, nil
}

func idMatches(raw json.RawMessage, id uint64) bool {
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n == id
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == strconv.FormatUint(id, 10)
	}
	return false
}

// request runs a synchronous call and decodes its result.
func request[T any](ctx context.Context, p *Provider, method string, params []any, decode decoder[T]) (T, error) {
	raw, _, err := p.call(ctx, method, params)
	if err != nil {
		var zero T
		return zero, err
	}
	v, err := decode(raw)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", method, err)
	}
	return v, nil
}

// requestAsync submits a call whose result is decoded on the dispatch
// goroutine before cb runs.
func requestAsync[T any](p *Provider, method string, params []any, decode decoder[T], cb Callback[T]) error {
	if cb == nil {
		return ErrNilCallback
	}
	return p.submit(method, params, func(r Result[json.RawMessage], _ Endpoint) {
		if r.Err != nil {
			cb(Result[T]{Err: r.Err})
			return
		}
		v, err := decode(r.Value)
		if err != nil {
			cb(Result[T]{Err: fmt.Errorf("%s: %w", method, err)})
			return
		}
		cb(Result[T]{Value: v})
	})
}

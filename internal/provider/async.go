package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"web3-provider-go/internal/recovery"
)

// WorkerState is the lifecycle of the async dispatch goroutine.
type WorkerState int32

const (
	WorkerNotStarted WorkerState = iota
	WorkerRunning
	WorkerDraining
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerNotStarted:
		return "not_started"
	case WorkerRunning:
		return "running"
	case WorkerDraining:
		return "draining"
	case WorkerStopped:
		return "stopped"
	default:
		return fmt.Sprintf("WorkerState(%d)", int32(s))
	}
}

// rawCallback receives a raw result together with the endpoint that produced it.
type rawCallback func(Result[json.RawMessage], Endpoint)

type pendingRequest struct {
	id       uint64
	method   string
	callback rawCallback
}

// completion is sent by an attempt goroutine once its sweep resolves.
type completion struct {
	id       uint64
	result   json.RawMessage
	endpoint Endpoint
	err      error
}

// asyncRegistry is the in-flight bookkeeping of a Provider. Every field is
// guarded by Provider.mu; the channels are replaced only by reset, after all
// goroutines of the previous generation have exited.
type asyncRegistry struct {
	pending    map[uint64]*pendingRequest
	ready      chan completion
	quit       chan struct{}
	quitClosed bool
	workerDone chan struct{}
	worker     WorkerState
	closed     bool // new submissions refused
	stopping   bool // forced stop: completions are discarded
	ctx        context.Context
	cancel     context.CancelFunc
	inflight   sync.WaitGroup
}

func (a *asyncRegistry) reset() {
	a.pending = make(map[uint64]*pendingRequest)
	a.ready = make(chan completion, readyBuffer)
	a.quit = make(chan struct{})
	a.quitClosed = false
	a.workerDone = nil
	a.worker = WorkerNotStarted
	a.closed = false
	a.stopping = false
	a.ctx, a.cancel = context.WithCancel(context.Background())
}

// CallAsync submits method with params and returns immediately. cb runs
// exactly once on the dispatch goroutine unless the provider is shut down
// first, in which case it never runs. The error return reports only
// submission failures; cb is not invoked when it is non-nil.
func (p *Provider) CallAsync(method string, params []any, cb Callback[json.RawMessage]) error {
	return requestAsync(p, method, params, decodeRaw, cb)
}

// WorkerState reports the dispatch goroutine's lifecycle state.
func (p *Provider) WorkerState() WorkerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.async.worker
}

// PendingRequests returns the number of async requests awaiting delivery.
func (p *Provider) PendingRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.async.pending)
}

func (p *Provider) submit(method string, params []any, cb rawCallback) error {
	p.mu.Lock()
	a := &p.async
	if a.closed {
		p.mu.Unlock()
		return ErrProviderClosed
	}
	if len(p.clients) == 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoEndpoints, method)
	}
	if a.worker == WorkerNotStarted {
		a.worker = WorkerRunning
		a.workerDone = make(chan struct{})
		go p.runWorker(a.quit, a.ready, a.workerDone)
	}
	id := p.allocIDLocked()
	a.pending[id] = &pendingRequest{id: id, method: method, callback: cb}
	endpoints := p.orderedLocked()
	timeout := p.timeout
	ctx, ready, quit := a.ctx, a.ready, a.quit
	a.inflight.Add(1)
	p.mu.Unlock()

	p.metrics.AsyncPending.Inc()

	go func() {
		defer a.inflight.Done()
		result, ep, err := p.sweep(ctx, endpoints, timeout, id, method, params)
		select {
		case ready <- completion{id: id, result: result, endpoint: ep, err: err}:
		case <-quit:
		}
	}()
	return nil
}

// runWorker is the single consumer of ready. It exits on quit, or once a
// drain has emptied the pending map.
func (p *Provider) runWorker(quit <-chan struct{}, ready <-chan completion, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-quit:
			return
		case c := <-ready:
			p.deliver(c)
			if p.drained() {
				return
			}
		}
	}
}

func (p *Provider) deliver(c completion) {
	p.mu.Lock()
	req, ok := p.async.pending[c.id]
	if ok {
		delete(p.async.pending, c.id)
	}
	stopping := p.async.stopping
	p.mu.Unlock()

	if !ok {
		return
	}
	p.metrics.AsyncPending.Dec()
	if stopping {
		p.metrics.AsyncDropped.Inc()
		return
	}

	p.metrics.AsyncDelivered.Inc()
	if recovery.Run(p.log, "async_callback:"+req.method, func() {
		req.callback(Result[json.RawMessage]{Value: c.result, Err: c.err}, c.endpoint)
	}) {
		p.metrics.AsyncCallbackPanics.Inc()
	}
}

func (p *Provider) drained() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.async.worker == WorkerDraining && len(p.async.pending) == 0
}

// Shutdown refuses new async submissions and waits for in-flight requests to
// be delivered. If ctx ends first the remaining requests are dropped without
// their callbacks and ctx's error is returned.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	a := &p.async
	a.closed = true
	if a.worker != WorkerRunning {
		p.mu.Unlock()
		p.forceStop()
		return nil
	}
	a.worker = WorkerDraining
	empty := len(a.pending) == 0
	done := a.workerDone
	p.mu.Unlock()

	p.log.Debug("async_draining")
	if empty {
		p.forceStop()
		return nil
	}
	select {
	case <-done:
		p.forceStop()
		return nil
	case <-ctx.Done():
		p.forceStop()
		return ctx.Err()
	}
}

// forceStop ends the worker immediately and discards whatever is pending.
// No callback runs after it returns.
func (p *Provider) forceStop() {
	p.mu.Lock()
	a := &p.async
	a.closed = true
	a.stopping = true
	if !a.quitClosed {
		close(a.quit)
		a.quitClosed = true
	}
	a.cancel()
	done := a.workerDone
	p.mu.Unlock()

	if done != nil {
		<-done
	}
	a.inflight.Wait()

	p.mu.Lock()
	dropped := len(a.pending)
	clear(a.pending)
	a.worker = WorkerStopped
	p.mu.Unlock()

	if dropped > 0 {
		p.metrics.AsyncPending.Sub(float64(dropped))
		p.metrics.AsyncDropped.Add(float64(dropped))
		p.log.Warn("async_requests_dropped", slog.Int("count", dropped))
	}
}

// Package provider is a JSON-RPC client for Ethereum-style nodes. Calls are
// attempted against an ordered list of endpoints until one answers, either
// on the caller's goroutine or asynchronously with callbacks delivered by a
// single dispatch goroutine per Provider.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"web3-provider-go/internal/limiter"
)

const (
	// DefaultTimeout bounds each transport attempt.
	DefaultTimeout = 3 * time.Second
	// DefaultPollInterval is the receipt polling period of WaitForTransaction.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultMempoolTimeout bounds SendTransaction's mempool visibility check.
	DefaultMempoolTimeout = 5 * time.Second
	// DefaultTxWaitTimeout is a reasonable deadline for WaitForTransaction.
	DefaultTxWaitTimeout = 320 * time.Second

	readyBuffer = 64
)

// State is the provider's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// Provider dispatches JSON-RPC calls across its endpoints. The zero value is
// not usable; construct with New.
type Provider struct {
	mu            sync.Mutex
	clients       []Endpoint
	order         []int
	timeout       time.Duration
	nextRequestID uint64
	state         State
	async         asyncRegistry

	transport      Transport
	limiter        *limiter.RateLimiter
	log            *slog.Logger
	metrics        *Metrics
	recorder       TxRecorder
	pollInterval   time.Duration
	mempoolTimeout time.Duration
}

// Option configures a Provider.
type Option func(*Provider)

// WithTimeout sets the per-attempt transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// WithHTTPClient replaces the HTTP client used for http(s) endpoints.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.transport = &schemeTransport{http: newHTTPTransport(c), ws: newWSTransport()}
	}
}

// WithTransport replaces the transport entirely.
func WithTransport(t Transport) Option {
	return func(p *Provider) { p.transport = t }
}

// WithRateLimit paces attempts across all endpoints. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(p *Provider) { p.limiter = limiter.NewRateLimiter(rps, burst) }
}

// WithTxRecorder registers a sink for broadcast transactions and their receipts.
func WithTxRecorder(r TxRecorder) Option {
	return func(p *Provider) { p.recorder = r }
}

// WithPollInterval sets the receipt polling period.
func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) { p.pollInterval = d }
}

// WithMempoolTimeout sets how long SendTransaction waits for the node to see the transaction.
func WithMempoolTimeout(d time.Duration) Option {
	return func(p *Provider) { p.mempoolTimeout = d }
}

// New creates a Provider with no endpoints.
func New(opts ...Option) *Provider {
	p := &Provider{
		timeout:        DefaultTimeout,
		transport:      &schemeTransport{http: newHTTPTransport(nil), ws: newWSTransport()},
		log:            slog.Default(),
		metrics:        GetMetrics(),
		pollInterval:   DefaultPollInterval,
		mempoolTimeout: DefaultMempoolTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	p.async.reset()
	return p
}

// AddClient appends an endpoint. Duplicates are not rejected; the list order
// is the failover order.
func (p *Provider) AddClient(name, url string) error {
	if url == "" {
		return ErrEmptyURL
	}
	p.mu.Lock()
	p.clients = append(p.clients, Endpoint{Name: name, URL: url})
	p.order = append(p.order, len(p.clients)-1)
	p.mu.Unlock()
	p.log.Debug("rpc_endpoint_added", slog.String("name", name), slog.String("url", maskURL(url)))
	return nil
}

// Clients returns a copy of the endpoint list in failover order.
func (p *Provider) Clients() []Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.clients)
}

// ClientOrder returns the indexes into Clients in the order calls try them.
func (p *Provider) ClientOrder() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.order)
}

// SetClientOrder sets which endpoints calls try, and in what order, as
// indexes into Clients. Endpoints left out are skipped until a later order
// includes them. Clients added afterwards are appended to the order.
func (p *Provider) SetClientOrder(order []int) error {
	if len(order) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidClientOrder)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := make(map[int]bool, len(order))
	for _, i := range order {
		if i < 0 || i >= len(p.clients) {
			return fmt.Errorf("%w: index %d out of range [0,%d)", ErrInvalidClientOrder, i, len(p.clients))
		}
		if seen[i] {
			return fmt.Errorf("%w: index %d repeated", ErrInvalidClientOrder, i)
		}
		seen[i] = true
	}
	p.order = slices.Clone(order)
	return nil
}

// orderedLocked returns the endpoints in client order. p.mu must be held.
func (p *Provider) orderedLocked() []Endpoint {
	out := make([]Endpoint, len(p.order))
	for i, idx := range p.order {
		out[i] = p.clients[idx]
	}
	return out
}

// NumClients returns the number of configured endpoints.
func (p *Provider) NumClients() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// SetTimeout changes the per-attempt timeout for subsequent calls.
func (p *Provider) SetTimeout(d time.Duration) {
	p.mu.Lock()
	p.timeout = d
	p.mu.Unlock()
}

// RateLimit returns the configured requests per second; 0 means unlimited.
func (p *Provider) RateLimit() float64 {
	return p.limiter.RPS()
}

// State returns the connection state.
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ConnectToNetwork asks the endpoints, in order, for their chain id and
// reports whether any of them answered. A provider stopped by
// DisconnectFromNetwork accepts async requests again after a successful connect.
func (p *Provider) ConnectToNetwork(ctx context.Context) bool {
	if _, err := p.Call(ctx, "eth_chainId"); err != nil {
		p.log.Warn("network_connect_failed", slog.String("error", err.Error()))
		return false
	}

	p.mu.Lock()
	p.state = StateConnected
	if p.async.worker == WorkerStopped {
		p.async.reset()
	}
	p.mu.Unlock()

	p.log.Debug("network_connected")
	return true
}

// DisconnectFromNetwork stops the dispatch goroutine and discards pending
// async requests without invoking their callbacks. It must not be called
// from inside a callback.
func (p *Provider) DisconnectFromNetwork() {
	p.forceStop()
	p.mu.Lock()
	p.state = StateDisconnected
	p.mu.Unlock()
	p.log.Debug("network_disconnected")
}

// Close is DisconnectFromNetwork.
func (p *Provider) Close() error {
	p.DisconnectFromNetwork()
	return nil
}

// allocIDLocked returns the next request id. p.mu must be held.
func (p *Provider) allocIDLocked() uint64 {
	p.nextRequestID++
	return p.nextRequestID
}

// maskURL hides most of a URL, which often embeds an API key.
func maskURL(url string) string {
	if len(url) > 20 {
		return url[:10] + "..." + url[len(url)-10:]
	}
	return url
}

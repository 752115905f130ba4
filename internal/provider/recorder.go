package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"web3-provider-go/internal/recovery"
)

// SubmittedTx describes a transaction accepted by an endpoint.
type SubmittedTx struct {
	Hash        string
	Endpoint    string
	Nonce       uint64
	To          string // empty for contract creation
	Value       *uint256.Int
	SubmittedAt time.Time
}

// TxRecorder receives transactions broadcast through the provider and the
// receipts later observed for them. Implementations must be safe for
// concurrent use. Their errors are logged and never fail the operation.
type TxRecorder interface {
	RecordSubmitted(ctx context.Context, tx SubmittedTx) error
	RecordOutcome(ctx context.Context, hash string, receipt *Receipt) error
}

func newSubmittedTx(hash, endpoint string, tx *types.Transaction) SubmittedTx {
	s := SubmittedTx{Hash: hash, Endpoint: endpoint, SubmittedAt: time.Now().UTC()}
	if tx == nil {
		return s
	}
	s.Nonce = tx.Nonce()
	if to := tx.To(); to != nil {
		s.To = to.Hex()
	}
	if v, overflow := uint256.FromBig(tx.Value()); !overflow {
		s.Value = v
	}
	return s
}

func (p *Provider) recordSubmitted(ctx context.Context, s SubmittedTx) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordSubmitted(ctx, s); err != nil {
		p.log.Warn("tx_record_failed", slog.String("hash", s.Hash), slog.String("error", err.Error()))
	}
}

// recordSubmittedDetached records s off the dispatch goroutine, bounded by
// the request timeout, so a slow recorder cannot hold up callbacks or shutdown.
func (p *Provider) recordSubmittedDetached(s SubmittedTx) {
	if p.recorder == nil {
		return
	}
	p.mu.Lock()
	timeout := p.timeout
	p.mu.Unlock()
	recovery.Go(p.log, "tx_record", func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		p.recordSubmitted(ctx, s)
	})
}

func (p *Provider) recordOutcome(ctx context.Context, hash string, r *Receipt) {
	if p.recorder == nil || r == nil {
		return
	}
	if err := p.recorder.RecordOutcome(ctx, hash, r); err != nil {
		p.log.Warn("tx_outcome_record_failed", slog.String("hash", hash), slog.String("error", err.Error()))
	}
}

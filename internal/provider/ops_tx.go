package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

func decodeReceipt(raw json.RawMessage) (*Receipt, error) {
	if isNull(raw) {
		return nil, nil
	}
	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, protocolError("invalid receipt: %v", err)
	}
	r.Raw = raw
	return &r, nil
}

// GetTransactionByHash returns the node's transaction object, or nil when the
// node does not know the hash.
func (p *Provider) GetTransactionByHash(ctx context.Context, hash string) (json.RawMessage, error) {
	return request(ctx, p, "eth_getTransactionByHash", []any{hash}, decodeNullable)
}

func (p *Provider) GetTransactionByHashAsync(hash string, cb Callback[json.RawMessage]) error {
	return requestAsync(p, "eth_getTransactionByHash", []any{hash}, decodeNullable, cb)
}

// GetTransactionReceipt returns the receipt of hash, or nil while the
// transaction is not yet included.
func (p *Provider) GetTransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	return request(ctx, p, "eth_getTransactionReceipt", []any{hash}, decodeReceipt)
}

func (p *Provider) GetTransactionReceiptAsync(hash string, cb Callback[*Receipt]) error {
	return requestAsync(p, "eth_getTransactionReceipt", []any{hash}, decodeReceipt, cb)
}

// SendRawTransaction broadcasts signed transaction bytes and returns the hash
// the node assigned, without checking the mempool.
func (p *Provider) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	return p.sendRaw(ctx, raw, nil)
}

func (p *Provider) sendRaw(ctx context.Context, raw []byte, tx *types.Transaction) (string, error) {
	result, ep, err := p.call(ctx, "eth_sendRawTransaction", []any{hexutil.Encode(raw)})
	if err != nil {
		return "", err
	}
	hash, err := decodeHexData(result)
	if err != nil {
		return "", fmt.Errorf("eth_sendRawTransaction: %w", err)
	}
	p.log.Info("tx_submitted", slog.String("hash", hash), slog.String("endpoint", ep.Name))
	p.recordSubmitted(ctx, newSubmittedTx(hash, ep.Name, tx))
	return hash, nil
}

// SendUncheckedTransaction broadcasts a signed transaction and returns its
// hash immediately.
func (p *Provider) SendUncheckedTransaction(ctx context.Context, tx *types.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}
	return p.sendRaw(ctx, raw, tx)
}

func (p *Provider) SendUncheckedTransactionAsync(tx *types.Transaction, cb Callback[string]) error {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	if cb == nil {
		return ErrNilCallback
	}
	return p.submit("eth_sendRawTransaction", []any{hexutil.Encode(raw)}, func(r Result[json.RawMessage], ep Endpoint) {
		if r.Err != nil {
			cb(Result[string]{Err: r.Err})
			return
		}
		hash, err := decodeHexData(r.Value)
		if err != nil {
			cb(Result[string]{Err: fmt.Errorf("eth_sendRawTransaction: %w", err)})
			return
		}
		p.log.Info("tx_submitted", slog.String("hash", hash), slog.String("endpoint", ep.Name))
		p.recordSubmittedDetached(newSubmittedTx(hash, ep.Name, tx))
		cb(Result[string]{Value: hash})
	})
}

// SendTransaction broadcasts tx and then waits up to the mempool timeout for
// an endpoint to report it through eth_getTransactionByHash.
func (p *Provider) SendTransaction(ctx context.Context, tx *types.Transaction) (string, error) {
	hash, err := p.SendUncheckedTransaction(ctx, tx)
	if err != nil {
		return "", err
	}
	_, err = pollUntil(ctx, p.pollInterval, p.mempoolTimeout, func(ctx context.Context) (struct{}, bool, error) {
		found, err := p.GetTransactionByHash(ctx, hash)
		return struct{}{}, found != nil, err
	})
	if err != nil {
		return "", fmt.Errorf("transaction %s not seen in mempool: %w", hash, err)
	}
	return hash, nil
}

// WaitForTransaction polls for the receipt of hash until it exists or timeout
// elapses. Failed polls are retried; the last failure is wrapped into the
// ErrTxWaitTimeout error.
func (p *Provider) WaitForTransaction(ctx context.Context, hash string, timeout time.Duration) (*Receipt, error) {
	receipt, err := pollUntil(ctx, p.pollInterval, timeout, func(ctx context.Context) (*Receipt, bool, error) {
		r, err := p.GetTransactionReceipt(ctx, hash)
		return r, r != nil, err
	})
	if err != nil {
		if errors.Is(err, ErrTxWaitTimeout) {
			p.metrics.TxWaitTimeouts.Inc()
		}
		return nil, err
	}
	p.recordOutcome(ctx, hash, receipt)
	return receipt, nil
}

// TransactionSuccessful waits for the receipt and reports whether its status is 0x1.
func (p *Provider) TransactionSuccessful(ctx context.Context, hash string, timeout time.Duration) (bool, error) {
	r, err := p.WaitForTransaction(ctx, hash, timeout)
	if err != nil {
		return false, err
	}
	return r.Succeeded(), nil
}

// GasUsed waits for the receipt and returns its gasUsed.
func (p *Provider) GasUsed(ctx context.Context, hash string, timeout time.Duration) (uint64, error) {
	r, err := p.WaitForTransaction(ctx, hash, timeout)
	if err != nil {
		return 0, err
	}
	n, err := r.GasUsedValue()
	if err != nil {
		return 0, protocolError("invalid gasUsed %q: %v", r.GasUsed, err)
	}
	return n, nil
}

type blockTxHashes struct {
	Transactions []struct {
		Hash string `json:"hash"`
	} `json:"transactions"`
}

// GetContractDeployedInLatestBlock returns the address of the first contract
// created in the latest block.
func (p *Provider) GetContractDeployedInLatestBlock(ctx context.Context) (string, error) {
	raw, err := p.Call(ctx, "eth_getBlockByNumber", LatestBlock, true)
	if err != nil {
		return "", err
	}
	if isNull(raw) {
		return "", protocolError("latest block is null")
	}
	var block blockTxHashes
	if err := json.Unmarshal(raw, &block); err != nil {
		return "", protocolError("invalid block: %v", err)
	}
	for _, tx := range block.Transactions {
		r, err := p.GetTransactionReceipt(ctx, tx.Hash)
		if err != nil {
			return "", err
		}
		if r != nil && r.ContractAddress != nil && *r.ContractAddress != "" {
			return *r.ContractAddress, nil
		}
	}
	return "", ErrNoContractDeployed
}

// pollUntil calls probe every interval until it reports done or timeout
// elapses. A probe error is remembered and polling continues, except for
// ErrNoEndpoints and cancellation of ctx.
func pollUntil[T any](ctx context.Context, interval, timeout time.Duration, probe func(context.Context) (T, bool, error)) (T, error) {
	var zero T
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, ErrTxWaitTimeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		v, done, err := probe(ctx)
		switch {
		case err == nil && done:
			return v, nil
		case errors.Is(err, ErrNoEndpoints):
			return zero, err
		case err != nil && (lastErr == nil || ctx.Err() == nil):
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if !errors.Is(context.Cause(ctx), ErrTxWaitTimeout) {
				return zero, context.Cause(ctx)
			}
			if lastErr != nil {
				return zero, fmt.Errorf("%w after %s: %w", ErrTxWaitTimeout, timeout, lastErr)
			}
			return zero, fmt.Errorf("%w after %s", ErrTxWaitTimeout, timeout)
		case <-ticker.C:
		}
	}
}

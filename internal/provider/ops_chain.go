package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
)

func decodeChainID(raw json.RawMessage) (uint32, error) {
	n, err := decodeUint64(raw)
	if err != nil {
		return 0, err
	}
	if n > math.MaxUint32 {
		return 0, protocolError("chain id %d exceeds uint32", n)
	}
	return uint32(n), nil
}

// GetNetworkChainId returns the chain id reported by eth_chainId.
func (p *Provider) GetNetworkChainId(ctx context.Context) (uint32, error) {
	return request(ctx, p, "eth_chainId", nil, decodeChainID)
}

func (p *Provider) GetNetworkChainIdAsync(cb Callback[uint32]) error {
	return requestAsync(p, "eth_chainId", nil, decodeChainID, cb)
}

// GetLatestHeight returns the current block number.
func (p *Provider) GetLatestHeight(ctx context.Context) (uint64, error) {
	return request(ctx, p, "eth_blockNumber", nil, decodeUint64)
}

func (p *Provider) GetLatestHeightAsync(cb Callback[uint64]) error {
	return requestAsync(p, "eth_blockNumber", nil, decodeUint64, cb)
}

// GetAllHeights asks every endpoint for its height separately, without
// failover, so that lagging or dead endpoints can be spotted. The result is
// indexed like Clients, regardless of the client order.
func (p *Provider) GetAllHeights(ctx context.Context) ([]HeightInfo, error) {
	p.mu.Lock()
	if len(p.clients) == 0 {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: eth_blockNumber", ErrNoEndpoints)
	}
	endpoints := slices.Clone(p.clients)
	ids := make([]uint64, len(endpoints))
	for i := range ids {
		ids[i] = p.allocIDLocked()
	}
	timeout := p.timeout
	p.mu.Unlock()

	out := make([]HeightInfo, len(endpoints))
	var wg sync.WaitGroup
	for i, ep := range endpoints {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info := HeightInfo{Index: i, Name: ep.Name}
			raw, _, err := p.sweep(ctx, []Endpoint{ep}, timeout, ids[i], "eth_blockNumber", nil)
			if err == nil {
				info.Height, err = decodeUint64(raw)
			}
			if err != nil {
				p.log.Debug("endpoint_height_failed", slog.String("endpoint", ep.Name), slog.String("error", err.Error()))
			} else {
				info.Success = true
			}
			out[i] = info
		}()
	}
	wg.Wait()
	return out, nil
}

// EvmSnapshot takes a snapshot on a development node and returns its id.
// The id is opaque and must be handed back to EvmRevert unchanged.
func (p *Provider) EvmSnapshot(ctx context.Context) (string, error) {
	return request(ctx, p, "evm_snapshot", nil, decodeString)
}

func (p *Provider) EvmSnapshotAsync(cb Callback[string]) error {
	return requestAsync(p, "evm_snapshot", nil, decodeString, cb)
}

// EvmRevert restores a snapshot. The node reports false for an unknown id.
func (p *Provider) EvmRevert(ctx context.Context, snapshotID string) (bool, error) {
	return request(ctx, p, "evm_revert", []any{snapshotID}, decodeBool)
}

// EvmIncreaseTime advances the node clock by seconds and mines a block so the
// new time takes effect. It returns the total offset the node reports.
func (p *Provider) EvmIncreaseTime(ctx context.Context, seconds uint64) (uint64, error) {
	offset, err := request(ctx, p, "evm_increaseTime", []any{seconds}, decodeUint64)
	if err != nil {
		return 0, err
	}
	if _, err := p.Call(ctx, "evm_mine"); err != nil {
		return 0, err
	}
	return offset, nil
}

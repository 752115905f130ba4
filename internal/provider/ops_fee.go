package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"
)

// DefaultPriorityFee is used when the node does not support
// eth_maxPriorityFeePerGas: 3 gwei.
const DefaultPriorityFee uint64 = 3_000_000_000

type blockBaseFee struct {
	BaseFeePerGas *string `json:"baseFeePerGas"`
}

// GetFeeData estimates fees from eth_gasPrice, the latest block's base fee and
// eth_maxPriorityFeePerGas. MaxFeePerGas is 2*baseFee + priority, or
// gasPrice + priority on chains without a base fee.
func (p *Provider) GetFeeData(ctx context.Context) (FeeData, error) {
	gasPrice, err := request(ctx, p, "eth_gasPrice", nil, decodeUint64)
	if err != nil {
		return FeeData{}, err
	}

	raw, err := p.Call(ctx, "eth_getBlockByNumber", LatestBlock, false)
	if err != nil {
		return FeeData{}, err
	}
	if isNull(raw) {
		return FeeData{}, protocolError("latest block is null")
	}
	var block blockBaseFee
	if err := json.Unmarshal(raw, &block); err != nil {
		return FeeData{}, protocolError("invalid block: %v", err)
	}

	priority, err := request(ctx, p, "eth_maxPriorityFeePerGas", nil, decodeUint64)
	if err != nil {
		if ctx.Err() != nil {
			return FeeData{}, err
		}
		p.metrics.PriorityFeeFallbacks.Inc()
		p.log.Debug("priority_fee_fallback", slog.Uint64("fee", DefaultPriorityFee), slog.String("error", err.Error()))
		priority = DefaultPriorityFee
	}

	maxFee := new(uint256.Int)
	var overflow bool
	if block.BaseFeePerGas != nil {
		base, err := parseQuantity(*block.BaseFeePerGas)
		if err != nil {
			return FeeData{}, protocolError("invalid baseFeePerGas %q: %v", *block.BaseFeePerGas, err)
		}
		maxFee, overflow = maxFee.MulOverflow(uint256.NewInt(base), uint256.NewInt(2))
		if !overflow {
			maxFee, overflow = maxFee.AddOverflow(maxFee, uint256.NewInt(priority))
		}
	} else {
		maxFee, overflow = maxFee.AddOverflow(uint256.NewInt(gasPrice), uint256.NewInt(priority))
	}
	if overflow || !maxFee.IsUint64() {
		return FeeData{}, fmt.Errorf("max fee per gas overflows uint64")
	}

	return FeeData{
		GasPrice:             gasPrice,
		MaxFeePerGas:         maxFee.Uint64(),
		MaxPriorityFeePerGas: priority,
	}, nil
}

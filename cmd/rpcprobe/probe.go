package main

import (
	"context"
	"log/slog"
	"time"

	"web3-provider-go/internal/config"
	"web3-provider-go/internal/nonce"
	"web3-provider-go/internal/provider"
)

// probeOptions are the command line switches of rpcprobe.
type probeOptions struct {
	waitHash string
	watch    time.Duration
	account  string
}

func run(ctx context.Context, logger *slog.Logger, p *provider.Provider, cfg *config.Config, opts probeOptions) int {
	if err := report(ctx, logger, p); err != nil {
		return 1
	}

	if opts.account != "" {
		m, err := nonce.NewManager(ctx, p, opts.account, logger)
		if err != nil {
			logger.Error("account_nonce_failed", "account", opts.account, "error", err)
			return 1
		}
		logger.Info("account_nonce", "account", opts.account, "next", m.Peek())
	}

	if opts.waitHash != "" {
		ok, err := p.TransactionSuccessful(ctx, opts.waitHash, cfg.TxWaitTimeout)
		if err != nil {
			logger.Error("tx_wait_failed", "hash", opts.waitHash, "error", err)
			return 1
		}
		logger.Info("tx_included", "hash", opts.waitHash, "success", ok)
		if !ok {
			return 2
		}
	}

	if opts.watch <= 0 {
		return 0
	}
	ticker := time.NewTicker(opts.watch)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("probe_stopped")
			return 0
		case <-ticker.C:
			err := p.GetLatestHeightAsync(func(r provider.Result[uint64]) {
				if !r.OK() {
					logger.Warn("height_probe_failed", "error", r.Err)
					return
				}
				logger.Info("height", "block", r.Value)
			})
			if err != nil {
				logger.Error("height_probe_rejected", "error", err)
				return 1
			}
			logHeights(ctx, logger, p)
		}
	}
}

// report logs the chain id, height, fee estimate and per-endpoint heights.
func report(ctx context.Context, logger *slog.Logger, p *provider.Provider) error {
	chainID, err := p.GetNetworkChainId(ctx)
	if err != nil {
		logger.Error("chain_id_failed", "error", err)
		return err
	}
	height, err := p.GetLatestHeight(ctx)
	if err != nil {
		logger.Error("height_failed", "error", err)
		return err
	}
	logger.Info("📡 network", "chain_id", chainID, "height", height)

	fees, err := p.GetFeeData(ctx)
	if err != nil {
		logger.Warn("fee_data_failed", "error", err)
	} else {
		logger.Info("fees",
			"gas_price", fees.GasPrice,
			"max_fee_per_gas", fees.MaxFeePerGas,
			"max_priority_fee_per_gas", fees.MaxPriorityFeePerGas,
		)
	}

	logHeights(ctx, logger, p)
	return nil
}

func logHeights(ctx context.Context, logger *slog.Logger, p *provider.Provider) {
	heights, err := p.GetAllHeights(ctx)
	if err != nil {
		logger.Warn("endpoint_heights_failed", "error", err)
		return
	}
	for _, h := range heights {
		if !h.Success {
			logger.Warn("endpoint_height_unavailable", "index", h.Index, "endpoint", h.Name)
			continue
		}
		logger.Info("endpoint_height", "index", h.Index, "endpoint", h.Name, "height", h.Height)
	}
}

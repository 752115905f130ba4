package network

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// 预定义的网络 ID（常量）
const (
	MainnetChainID         = 1
	SepoliaChainID         = 11155111
	AnvilChainID           = 31337
	HoleskyChainID         = 17000
	ArbitrumOneChainID     = 42161
	ArbitrumSepoliaChainID = 421614
)

// Name 返回 Chain ID 对应的网络名称
func Name(chainID int64) string {
	switch chainID {
	case MainnetChainID:
		return "Ethereum Mainnet"
	case SepoliaChainID:
		return "Sepolia Testnet"
	case AnvilChainID:
		return "Anvil Local"
	case HoleskyChainID:
		return "Holesky Testnet"
	case ArbitrumOneChainID:
		return "Arbitrum One"
	case ArbitrumSepoliaChainID:
		return "Arbitrum Sepolia"
	default:
		return fmt.Sprintf("Unknown Network (Chain ID: %d)", chainID)
	}
}

// ChainIDSource is anything that can report the chain id of its network.
type ChainIDSource interface {
	GetNetworkChainId(ctx context.Context) (uint32, error)
}

// VerifyNetwork 校验 RPC 节点的 Chain ID
// 如果与预期不符或获取失败，返回 error
func VerifyNetwork(ctx context.Context, src ChainIDSource, expectedChainID int64) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	id, err := src.GetNetworkChainId(ctx)
	if err != nil {
		slog.Error("chain_id_unavailable", "error", err)
		return fmt.Errorf("failed to get chain ID: %w", err)
	}
	actualChainID := int64(id)

	expectedName := Name(expectedChainID)
	actualName := Name(actualChainID)

	if actualChainID != expectedChainID {
		slog.Error("🛑 network_mismatch",
			"expected", fmt.Sprintf("%s (ID: %d)", expectedName, expectedChainID),
			"actual", fmt.Sprintf("%s (ID: %d)", actualName, actualChainID),
		)
		return fmt.Errorf("network mismatch: expected %d, got %d", expectedChainID, actualChainID)
	}

	slog.Info("✅ network_verified",
		"network", expectedName,
		"chain_id", expectedChainID,
	)
	return nil
}

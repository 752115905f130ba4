// Package nonce hands out sequential account nonces for senders that
// broadcast faster than transactions are mined.
package nonce

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// resyncEvery is how often Next cross-checks the node's pending nonce.
const resyncEvery = 50

// Source reports an account's transaction count. *provider.Provider satisfies it.
type Source interface {
	GetTransactionCount(ctx context.Context, address, blockTag string) (uint64, error)
}

// Manager 负责管理账户的 Nonce，确保高频发送下的顺序性与一致性
type Manager struct {
	src     Source
	address string
	mu      sync.Mutex
	pending uint64
	issued  uint64
	logger  *slog.Logger
}

func NewManager(ctx context.Context, src Source, address string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	n, err := src.GetTransactionCount(ctx, address, "pending")
	if err != nil {
		return nil, fmt.Errorf("failed to get initial nonce: %w", err)
	}
	return &Manager{src: src, address: address, pending: n, logger: logger}, nil
}

// Next returns the nonce for the next transaction. Every resyncEvery calls it
// adopts the node's pending count when the node is ahead.
func (m *Manager) Next(ctx context.Context) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.issued > 0 && m.issued%resyncEvery == 0 {
		chain, err := m.src.GetTransactionCount(ctx, m.address, "pending")
		if err == nil && chain > m.pending {
			m.logger.Warn("nonce_drift_detected",
				slog.Uint64("local", m.pending),
				slog.Uint64("chain", chain),
			)
			m.pending = chain
		}
	}

	n := m.pending
	m.pending++
	m.issued++
	return n
}

// Peek returns the nonce Next would hand out, without issuing it.
func (m *Manager) Peek() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// Rollback 在发送彻底失败时回滚 Nonce
func (m *Manager) Rollback(failed uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if failed < m.pending {
		m.pending = failed
		m.logger.Info("nonce_rollback", slog.Uint64("target", failed))
	}
}

// Resync replaces the local counter with the node's pending count.
func (m *Manager) Resync(ctx context.Context) error {
	n, err := m.src.GetTransactionCount(ctx, m.address, "pending")
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.pending = n
	m.mu.Unlock()
	m.logger.Info("nonce_resynced", slog.Uint64("nonce", n))
	return nil
}

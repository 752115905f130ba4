// Package journal keeps a Postgres audit trail of transactions broadcast
// through a provider and the receipts later observed for them.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"web3-provider-go/internal/models"
	"web3-provider-go/internal/provider"
)

// ErrNotFound is returned by Get for an unknown hash.
var ErrNotFound = errors.New("transaction not in journal")

var _ provider.TxRecorder = (*Journal)(nil)

type Journal struct {
	db *sqlx.DB
}

// Open connects with the pgx driver.
func Open(ctx context.Context, databaseURL string) (*Journal, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db), nil
}

func New(db *sqlx.DB) *Journal {
	return &Journal{db: db}
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// InitSchema 确保 tx_journal 表结构已就绪
func (j *Journal) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tx_journal (
		tx_hash VARCHAR(66) PRIMARY KEY,
		endpoint TEXT NOT NULL DEFAULT '',
		nonce BIGINT NOT NULL DEFAULT 0,
		to_address VARCHAR(42) NOT NULL DEFAULT '',
		value NUMERIC NOT NULL DEFAULT 0,
		submitted_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		status VARCHAR(8),
		block_number BIGINT,
		gas_used BIGINT,
		confirmed_at TIMESTAMP WITH TIME ZONE
	)`
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	if _, err := j.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_tx_journal_pending ON tx_journal(submitted_at) WHERE status IS NULL"); err != nil {
		slog.Warn("failed_to_create_index", "err", err)
	}
	return nil
}

// RecordSubmitted 插入新广播的交易；重复广播保持首条记录
func (j *Journal) RecordSubmitted(ctx context.Context, tx provider.SubmittedTx) error {
	row := models.JournalTx{
		Hash:        tx.Hash,
		Endpoint:    tx.Endpoint,
		Nonce:       int64(tx.Nonce),
		To:          tx.To,
		Value:       models.Uint256FromInt(tx.Value),
		SubmittedAt: tx.SubmittedAt,
	}
	query := `
		INSERT INTO tx_journal (tx_hash, endpoint, nonce, to_address, value, submitted_at)
		VALUES (:tx_hash, :endpoint, :nonce, :to_address, :value, :submitted_at)
		ON CONFLICT (tx_hash) DO NOTHING
	`
	if _, err := j.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("record submitted %s: %w", tx.Hash, err)
	}
	return nil
}

// RecordOutcome stores the receipt status of hash, creating the row when the
// transaction was not broadcast through this journal.
func (j *Journal) RecordOutcome(ctx context.Context, hash string, r *provider.Receipt) error {
	if r == nil {
		return nil
	}
	var blockNumber, gasUsed sql.NullInt64
	if n, err := r.BlockNumberValue(); err == nil {
		blockNumber = sql.NullInt64{Int64: int64(n), Valid: true}
	}
	if n, err := r.GasUsedValue(); err == nil {
		gasUsed = sql.NullInt64{Int64: int64(n), Valid: true}
	}
	query := `
		INSERT INTO tx_journal (tx_hash, status, block_number, gas_used, confirmed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tx_hash) DO UPDATE SET
			status = EXCLUDED.status,
			block_number = EXCLUDED.block_number,
			gas_used = EXCLUDED.gas_used,
			confirmed_at = EXCLUDED.confirmed_at
	`
	if _, err := j.db.ExecContext(ctx, query, hash, r.Status, blockNumber, gasUsed); err != nil {
		return fmt.Errorf("record outcome %s: %w", hash, err)
	}
	return nil
}

const selectColumns = `tx_hash, endpoint, nonce, to_address, value, submitted_at, status, block_number, gas_used, confirmed_at`

// Get returns the journal row of hash.
func (j *Journal) Get(ctx context.Context, hash string) (*models.JournalTx, error) {
	var tx models.JournalTx
	err := j.db.GetContext(ctx, &tx, "SELECT "+selectColumns+" FROM tx_journal WHERE tx_hash = $1", hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Pending returns up to limit transactions without a recorded receipt, oldest first.
func (j *Journal) Pending(ctx context.Context, limit int) ([]models.JournalTx, error) {
	var txs []models.JournalTx
	err := j.db.SelectContext(ctx, &txs,
		"SELECT "+selectColumns+" FROM tx_journal WHERE status IS NULL ORDER BY submitted_at LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	return txs, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Get retrieves the position for a mint.
func (s *PositionStore) Get(ctx context.Context, mint string) (*domain.Position, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT mint, balance_raw, decimals, status, pending_raw, updated_at
		FROM positions WHERE mint = $1
	`, mint)

	p, err := scanPosition(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// Upsert writes a position, optionally conditional on the stored status.
func (s *PositionStore) Upsert(ctx context.Context, p *domain.Position, expectStatus domain.PositionStatus) error {
	if p == nil || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	if expectStatus == "" {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO positions (mint, balance_raw, decimals, status, pending_raw, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (mint) DO UPDATE SET
				balance_raw = EXCLUDED.balance_raw,
				decimals    = EXCLUDED.decimals,
				status      = EXCLUDED.status,
				pending_raw = EXCLUDED.pending_raw,
				updated_at  = EXCLUDED.updated_at
		`, p.Mint, numericFromBig(p.BalanceRaw), p.Decimals, p.Status, numericFromBig(p.PendingRaw), p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert position: %w", err)
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE positions SET
			balance_raw = $2,
			decimals    = $3,
			status      = $4,
			pending_raw = $5,
			updated_at  = $6
		WHERE mint = $1 AND status = $7
	`, p.Mint, numericFromBig(p.BalanceRaw), p.Decimals, p.Status, numericFromBig(p.PendingRaw), p.UpdatedAt, expectStatus)
	if err != nil {
		return fmt.Errorf("conditional update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrStatusConflict
	}
	return nil
}

// Delete removes the position for a mint.
func (s *PositionStore) Delete(ctx context.Context, mint string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE mint = $1`, mint); err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

// Count returns the number of open positions.
func (s *PositionStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM positions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count positions: %w", err)
	}
	return n, nil
}

// List returns all positions ordered by mint.
func (s *PositionStore) List(ctx context.Context) ([]*domain.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT mint, balance_raw, decimals, status, pending_raw, updated_at
		FROM positions ORDER BY mint
	`)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// ListStaleSent returns SENT positions last updated before cutoff.
func (s *PositionStore) ListStaleSent(ctx context.Context, cutoff time.Time) ([]*domain.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT mint, balance_raw, decimals, status, pending_raw, updated_at
		FROM positions
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
	`, domain.PositionSent, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale sent positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	var (
		p       domain.Position
		balance pgtype.Numeric
		pending pgtype.Numeric
	)
	if err := row.Scan(&p.Mint, &balance, &p.Decimals, &p.Status, &pending, &p.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if p.BalanceRaw, err = bigFromNumeric(balance); err != nil {
		return nil, fmt.Errorf("decode balance_raw: %w", err)
	}
	if p.PendingRaw, err = bigFromNumeric(pending); err != nil {
		return nil, fmt.Errorf("decode pending_raw: %w", err)
	}
	return &p, nil
}

func scanPositions(rows pgx.Rows) ([]*domain.Position, error) {
	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return positions, nil
}

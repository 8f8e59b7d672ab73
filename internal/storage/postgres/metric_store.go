package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// MetricStore implements storage.MetricStore using PostgreSQL.
type MetricStore struct {
	pool *Pool
}

// NewMetricStore creates a new MetricStore.
func NewMetricStore(pool *Pool) *MetricStore {
	return &MetricStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MetricStore = (*MetricStore)(nil)

// Insert appends one pipeline metric row.
func (s *MetricStore) Insert(ctx context.Context, m *domain.PipelineMetric) error {
	if m == nil || m.Signature == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO trade_pipeline_metrics (
			signature, direction, mint, source, outcome, reject_reason,
			sell_buffered, sell_buffer_ms, sent_wait_ms, risk_ms, exec_ms,
			total_ms, price_drift_pct, unsafe_parse, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		m.Signature, m.Direction, m.Mint, m.Source, m.Outcome, m.RejectReason,
		m.SellBuffered, m.SellBufferMs, m.SentWaitMs, m.RiskMs, m.ExecMs,
		m.TotalMs, m.DriftPct, m.UnsafeParse, m.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pipeline metric: %w", err)
	}
	return nil
}

// List returns all metric rows, oldest first.
func (s *MetricStore) List(ctx context.Context) ([]*domain.PipelineMetric, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT signature, direction, mint, source, outcome, reject_reason,
		       sell_buffered, sell_buffer_ms, sent_wait_ms, risk_ms, exec_ms,
		       total_ms, price_drift_pct, unsafe_parse, created_at
		FROM trade_pipeline_metrics
		ORDER BY created_at ASC, signature ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list pipeline metrics: %w", err)
	}
	defer rows.Close()

	return scanMetrics(rows)
}

// PruneBefore deletes metric rows created before cutoff.
func (s *MetricStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM trade_pipeline_metrics WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune pipeline metrics: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanMetrics(rows pgx.Rows) ([]*domain.PipelineMetric, error) {
	var metrics []*domain.PipelineMetric
	for rows.Next() {
		var m domain.PipelineMetric
		err := rows.Scan(
			&m.Signature, &m.Direction, &m.Mint, &m.Source, &m.Outcome, &m.RejectReason,
			&m.SellBuffered, &m.SellBufferMs, &m.SentWaitMs, &m.RiskMs, &m.ExecMs,
			&m.TotalMs, &m.DriftPct, &m.UnsafeParse, &m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan metric row: %w", err)
		}
		metrics = append(metrics, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric rows: %w", err)
	}
	return metrics, nil
}

package clickhouse

import (
	"context"
	"fmt"

	"solana-copy-trader/internal/domain"
)

// AnalyticsSink mirrors append-only analytics rows (pipeline metrics and PnL
// snapshots) into ClickHouse for reporting. It is a secondary sink: the
// Postgres tables remain the source of truth and the bot works with a nil
// sink. Retention is handled by table TTLs, so there is no prune path.
type AnalyticsSink struct {
	conn *Conn
}

// NewAnalyticsSink creates a new AnalyticsSink.
func NewAnalyticsSink(conn *Conn) *AnalyticsSink {
	return &AnalyticsSink{conn: conn}
}

// InsertMetric appends one pipeline metric row.
func (s *AnalyticsSink) InsertMetric(ctx context.Context, m *domain.PipelineMetric) error {
	err := s.conn.Exec(ctx, `
		INSERT INTO trade_pipeline_metrics (
			signature, direction, mint, source, outcome, reject_reason,
			sell_buffered, sell_buffer_ms, sent_wait_ms, risk_ms, exec_ms,
			total_ms, price_drift_pct, unsafe_parse, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.Signature, string(m.Direction), m.Mint, string(m.Source), string(m.Outcome), m.RejectReason,
		boolToUInt8(m.SellBuffered), m.SellBufferMs, m.SentWaitMs, m.RiskMs, m.ExecMs,
		m.TotalMs, m.DriftPct, boolToUInt8(m.UnsafeParse), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pipeline metric: %w", err)
	}
	return nil
}

// InsertSnapshot appends one PnL snapshot row.
func (s *AnalyticsSink) InsertSnapshot(ctx context.Context, snap *domain.PnLSnapshot) error {
	err := s.conn.Exec(ctx, `
		INSERT INTO pnl_snapshots (
			at, cash_lamports, starting_lamports, open_positions, spent_lamports, received_lamports
		) VALUES (?, ?, ?, ?, ?, ?)
	`, snap.At, snap.CashLamports, snap.StartingLamports, int32(snap.OpenPositions), snap.SpentLamports, snap.ReceivedLamports)
	if err != nil {
		return fmt.Errorf("insert pnl snapshot: %w", err)
	}
	return nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

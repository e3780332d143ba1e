package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"SigTrack/internal/domain/models"
	domrepo "SigTrack/internal/domain/repository"
	pkgch "SigTrack/pkg/clickhouse"
)

// AuditTableDDL returns the CREATE statement for the audit table. Failures are
// rows with failure = 1 rather than a second table.
func AuditTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id String,
    ts DateTime64(3, 'UTC'),
    symbol LowCardinality(String),
    side LowCardinality(String),
    state LowCardinality(String),
    status LowCardinality(String),
    errors String,
    failure UInt8,
    price_source Nullable(String),
    live_price Nullable(Float64),
    pnl_pct_live Nullable(Float64),
    price_exit Nullable(Float64),
    pnl_pct_final Nullable(Float64),
    record String
) ENGINE = MergeTree
ORDER BY (symbol, ts)`, table)
}

// ClickHouseAuditSink stores one row per audit record.
type ClickHouseAuditSink struct {
	client *pkgch.Client
	table  string
}

var _ domrepo.AuditSink = (*ClickHouseAuditSink)(nil)

func NewClickHouseAuditSink(client *pkgch.Client, table string) *ClickHouseAuditSink {
	return &ClickHouseAuditSink{client: client, table: table}
}

// Init creates the table if needed.
func (s *ClickHouseAuditSink) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, []string{AuditTableDDL(s.table)})
}

func (s *ClickHouseAuditSink) Write(ctx context.Context, rec models.AuditRecord, failure bool) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode audit: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, rec.TS)
	if err != nil {
		ts = time.Now().UTC()
	}
	codes := make([]string, len(rec.Validation.Errors))
	for i, c := range rec.Validation.Errors {
		codes[i] = string(c)
	}
	var flag uint8
	if failure {
		flag = 1
	}

	q := fmt.Sprintf("INSERT INTO %s (id, ts, symbol, side, state, status, errors, failure, price_source, live_price, pnl_pct_live, price_exit, pnl_pct_final, record) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	row := []any{
		rec.ID,
		ts,
		rec.Signal.Symbol,
		rec.Signal.Side,
		rec.Verdict.State,
		string(rec.Verdict.Status),
		strings.Join(codes, ","),
		flag,
		nullString(rec.Market.PriceSource),
		nullFloat(rec.Market.LivePrice),
		nullFloat(rec.Market.PnLPctLive),
		nullFloat(rec.Verdict.PriceExit),
		nullFloat(rec.Verdict.PnLPctFinal),
		string(raw),
	}
	if err := s.client.InsertBatch(ctx, q, [][]any{row}); err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (s *ClickHouseAuditSink) Close() error { return nil }

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

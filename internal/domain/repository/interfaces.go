package repository

import (
	"context"
	"time"

	"SigTrack/internal/domain/models"
)

// MarketData is the venue gate consumed by the evaluation core.
type MarketData interface {
	KnownSymbols(ctx context.Context) (map[string]struct{}, error)
	BatchPrices(ctx context.Context) (map[string]float64, error)
	Price(ctx context.Context, symbol string) (float64, error)
	Candles(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error)
}

// SignalStore keeps the active set and the append-only history archive.
type SignalStore interface {
	Add(ctx context.Context, signals []models.Signal) (added, duplicates int, err error)
	Active(ctx context.Context) ([]models.Signal, error)
	History(ctx context.Context) ([]models.HistoryEntry, error)
	// Promote appends entries to history and removes their keys from the
	// active set as a single transition.
	Promote(ctx context.Context, entries []models.HistoryEntry) error
}

// AuditSink receives audit records. failure marks the failures-only stream.
type AuditSink interface {
	Write(ctx context.Context, rec models.AuditRecord, failure bool) error
	Close() error
}

type Metrics interface {
	RecordTick(seconds float64, signals int)
	RecordStatus(status string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// Clock supplies the evaluation instant.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

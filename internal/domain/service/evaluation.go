package service

import (
	"context"
	"time"

	"SigTrack/internal/domain/models"
)

// EntryResult is the outcome of scanning a window for the entry fill.
// HitAt is the fill candle's close time, FillOpen its open time.
type EntryResult struct {
	Hit       bool
	HitAt     time.Time
	FillOpen  time.Time
	LastClose *float64
}

// LevelResult is the outcome of scanning for target/stop touches.
type LevelResult struct {
	HitTarget bool
	HitStop   bool
	ExecPrice *float64
	LastClose *float64
}

// Open reports that neither level was touched.
func (r LevelResult) Open() bool { return !r.HitTarget && !r.HitStop }

// EventDetector decides whether and when price levels were touched.
type EventDetector interface {
	EntryHit(ctx context.Context, symbol string, side models.Side, entry float64, start, end time.Time) (EntryResult, error)
	LevelHit(ctx context.Context, symbol string, side models.Side, entry, target, stop float64, scanStart, scanEnd time.Time) (LevelResult, error)
}

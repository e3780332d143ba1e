// Package detector decides whether and when entry, target and stop levels
// were touched by a sequence of 1m candles.
package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"SigTrack/internal/domain/models"
	"SigTrack/internal/domain/repository"
	"SigTrack/internal/domain/service"
)

// Detector fetches candles through the market data gate and scans them.
type Detector struct {
	gate repository.MarketData
}

var _ service.EventDetector = (*Detector)(nil)

func New(gate repository.MarketData) *Detector {
	return &Detector{gate: gate}
}

// EntryHit scans [start, end] for the first candle containing entry.
func (d *Detector) EntryHit(ctx context.Context, symbol string, _ models.Side, entry float64, start, end time.Time) (service.EntryResult, error) {
	if end.Before(start) {
		return service.EntryResult{}, nil
	}
	candles, err := d.gate.Candles(ctx, symbol, start, end)
	if err != nil {
		return service.EntryResult{}, fmt.Errorf("entry scan %s: %w", symbol, err)
	}
	return ScanEntry(candles, entry), nil
}

// LevelHit scans [scanStart, scanEnd] for the first target or stop touch.
func (d *Detector) LevelHit(ctx context.Context, symbol string, side models.Side, _ float64, target, stop float64, scanStart, scanEnd time.Time) (service.LevelResult, error) {
	if scanEnd.Before(scanStart) {
		return service.LevelResult{}, nil
	}
	candles, err := d.gate.Candles(ctx, symbol, scanStart, scanEnd)
	if err != nil {
		return service.LevelResult{}, fmt.Errorf("level scan %s: %w", symbol, err)
	}
	return ScanLevels(candles, side, target, stop), nil
}

// ScanEntry returns the first candle, in ascending order, whose range
// contains entry. The fill is approximated at that candle's close time.
func ScanEntry(candles []models.Candle, entry float64) service.EntryResult {
	var res service.EntryResult
	if len(candles) > 0 {
		res.LastClose = models.Float(candles[len(candles)-1].Close)
	}
	for _, c := range candles {
		if c.Contains(entry) {
			res.Hit = true
			res.HitAt = c.CloseTime
			res.FillOpen = c.OpenTime
			return res
		}
	}
	return res
}

// ScanLevels halts at the first candle touching stop or target. Stop wins
// when both are touched within one candle. ExecPrice is the exact level.
func ScanLevels(candles []models.Candle, side models.Side, target, stop float64) service.LevelResult {
	var res service.LevelResult
	if len(candles) > 0 {
		res.LastClose = models.Float(candles[len(candles)-1].Close)
	}
	for _, c := range candles {
		var stopHit, targetHit bool
		switch side {
		case models.Buy:
			stopHit = c.Low <= stop
			targetHit = c.High >= target
		case models.Sell:
			stopHit = c.High >= stop
			targetHit = c.Low <= target
		default:
			return res
		}
		if stopHit {
			res.HitStop = true
			res.ExecPrice = models.Float(stop)
			return res
		}
		if targetHit {
			res.HitTarget = true
			res.ExecPrice = models.Float(target)
			return res
		}
	}
	return res
}

// ProfitPct is the percentage move from entry to ref in the trade's favor.
// ok is false when entry is zero.
func ProfitPct(side models.Side, entry, ref float64) (float64, bool) {
	if entry == 0 {
		return 0, false
	}
	switch side {
	case models.Buy:
		return (ref - entry) / entry * 100, true
	case models.Sell:
		return (entry - ref) / entry * 100, true
	default:
		return 0, false
	}
}

// Round2 rounds v to two decimals, half away from zero.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

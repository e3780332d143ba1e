package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SigTrack/internal/domain/models"
	drepo "SigTrack/internal/domain/repository"
	"SigTrack/internal/domain/service"
	"SigTrack/internal/service/detector"
	"SigTrack/internal/service/lifecycle"
	"SigTrack/internal/service/validator"
	applogger "SigTrack/pkg/logger"
	"SigTrack/pkg/util"
)

// Price sources reported on audit records.
const (
	SourceBatch      = "batch"
	SourceFallback   = "fallback"
	SourceKlineProxy = "kline_proxy"
	SourceKlines     = "klines"
)

// EvaluatorConfig tunes the state machine.
type EvaluatorConfig struct {
	InvalidThreshold int
	// IncludeFillCandle scans target/stop from the fill candle's open instead
	// of its close, so a stop touched inside the fill candle finalizes as ERROU.
	IncludeFillCandle bool
}

// Outcome is one signal's result for one tick.
type Outcome struct {
	Key        string             `json:"key"`
	Signal     models.Signal      `json:"signal"`
	Evaluation models.Evaluation  `json:"evaluation"`
	Errors     []models.ErrorCode `json:"errors,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	// Cause is the typed error behind Errors.
	Cause error `json:"-"`
	// Err is set when market data for this signal could not be fetched; the
	// status is then the one from the previous tick.
	Err error `json:"-"`
}

// TickReport summarizes one evaluation pass.
type TickReport struct {
	Now       time.Time             `json:"now"`
	Evaluated int                   `json:"evaluated"`
	Promoted  int                   `json:"promoted"`
	Errored   int                   `json:"errored"`
	Degraded  bool                  `json:"degraded"`
	Counts    map[models.Status]int `json:"counts"`
	Outcomes  []Outcome             `json:"outcomes"`
	Duration  time.Duration         `json:"duration"`
}

// Evaluator runs ticks. Ticks are serialized; the invalid streak map and the
// last outcomes are owned by the evaluator.
type Evaluator struct {
	mu sync.Mutex

	store     drepo.SignalStore
	gate      drepo.MarketData
	detector  service.EventDetector
	validator *validator.Validator
	audit     *AuditRecorder
	metrics   drepo.Metrics
	clock     drepo.Clock
	log       *applogger.Logger
	cfg       EvaluatorConfig

	streaks    map[string]int
	last       map[string]Outcome
	lastReport *TickReport
}

func NewEvaluator(
	store drepo.SignalStore,
	gate drepo.MarketData,
	det service.EventDetector,
	v *validator.Validator,
	audit *AuditRecorder,
	metrics drepo.Metrics,
	clock drepo.Clock,
	log *applogger.Logger,
	cfg EvaluatorConfig,
) *Evaluator {
	if clock == nil {
		clock = drepo.SystemClock{}
	}
	if log == nil {
		log = applogger.NewNop()
	}
	if cfg.InvalidThreshold <= 0 {
		cfg.InvalidThreshold = lifecycle.DefaultInvalidThreshold
	}
	return &Evaluator{
		store:     store,
		gate:      gate,
		detector:  det,
		validator: v,
		audit:     audit,
		metrics:   metrics,
		clock:     clock,
		log:       log,
		cfg:       cfg,
		streaks:   make(map[string]int),
		last:      make(map[string]Outcome),
	}
}

// snapshot is the shared market view taken once at the start of a tick.
type snapshot struct {
	known    map[string]struct{}
	prices   map[string]float64
	batchMS  *int64
	degraded bool
}

// Tick evaluates every active signal once, in order, and promotes the ones
// that reached a terminal state. Per-signal failures are recorded on their
// outcome and never abort the pass.
func (e *Evaluator) Tick(ctx context.Context) (*TickReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	now := e.clock.Now().UTC()

	active, err := e.store.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active: %w", err)
	}

	var snap snapshot
	if len(active) > 0 {
		snap = e.snapshot(ctx)
	}
	report := &TickReport{
		Now:      now,
		Degraded: snap.degraded,
		Counts:   make(map[models.Status]int),
		Outcomes: make([]Outcome, 0, len(active)),
	}

	var finals []models.HistoryEntry
	seen := make(map[string]struct{}, len(active))
	for _, sig := range active {
		out, entry := e.evaluate(ctx, now, sig, snap)
		seen[out.Key] = struct{}{}
		report.Outcomes = append(report.Outcomes, out)
		report.Evaluated++
		if out.Err != nil {
			report.Errored++
			continue
		}
		report.Counts[out.Evaluation.Status]++
		e.record(out.Evaluation.Status)
		if entry != nil {
			finals = append(finals, *entry)
		}
	}

	var promoteErr error
	if len(finals) > 0 {
		if err := e.store.Promote(ctx, finals); err != nil {
			promoteErr = fmt.Errorf("promote %d signals: %w", len(finals), err)
			e.recordError("promote")
			e.log.Error("promote failed", applogger.Int("count", len(finals)), applogger.Error(err))
		} else {
			report.Promoted = len(finals)
			for _, f := range finals {
				delete(e.streaks, f.Signal.Key())
			}
		}
	}

	for k := range e.streaks {
		if _, ok := seen[k]; !ok {
			delete(e.streaks, k)
		}
	}
	last := make(map[string]Outcome, len(report.Outcomes))
	for _, o := range report.Outcomes {
		last[o.Key] = o
	}
	e.last = last

	report.Duration = time.Since(started)
	e.lastReport = report
	if e.metrics != nil {
		e.metrics.RecordTick(report.Duration.Seconds(), report.Evaluated)
	}
	e.log.Info("tick completed",
		applogger.Int("evaluated", report.Evaluated),
		applogger.Int("promoted", report.Promoted),
		applogger.Int("errored", report.Errored),
		applogger.Bool("degraded", report.Degraded),
		applogger.Duration("took", report.Duration))

	return report, promoteErr
}

// LastOutcomes returns the outcomes of the most recent tick keyed by signal key.
func (e *Evaluator) LastOutcomes() map[string]Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Outcome, len(e.last))
	for k, v := range e.last {
		out[k] = v
	}
	return out
}

// LastReport returns the most recent tick report, or nil before the first tick.
func (e *Evaluator) LastReport() *TickReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReport
}

func (e *Evaluator) snapshot(ctx context.Context) snapshot {
	var snap snapshot

	known, err := e.gate.KnownSymbols(ctx)
	if err != nil {
		snap.degraded = true
		e.recordError("symbols")
		e.log.Warn("known symbols unavailable, symbol validation skipped this tick", applogger.Error(err))
	} else {
		snap.known = known
	}

	t0 := time.Now()
	prices, err := e.gate.BatchPrices(ctx)
	if err != nil {
		snap.degraded = true
		e.recordError("batch_prices")
		e.log.Warn("batch prices unavailable, using per-symbol prices", applogger.Error(err))
	} else {
		snap.prices = prices
		ms := time.Since(t0).Milliseconds()
		snap.batchMS = &ms
		e.latency("batch_prices", time.Since(t0))
	}
	return snap
}

// evaluate classifies one signal. It returns a history entry when the signal
// must leave the active set this tick.
func (e *Evaluator) evaluate(ctx context.Context, now time.Time, sig models.Signal, snap snapshot) (Outcome, *models.HistoryEntry) {
	key := sig.Key()
	out := Outcome{Key: key, Signal: sig}
	rec := e.newRecord(now, sig, snap)

	res := e.validator.Validate(sig)
	symbolOK, checked := validator.ValidateSymbol(sig, snap.known)
	if checked {
		rec.Validation.SymbolExists = &symbolOK
	}
	rec.Validation.NumericOK = res.NumericOK
	rec.Validation.DateOK = res.DateOK
	rec.Validation.RuleOK = res.RuleOK

	symbol := sig.NormalizedSymbol()
	var cause error
	if len(res.Errors) > 0 {
		cause = &models.StructuralError{Codes: res.Errors}
	}
	if !symbolOK {
		cause = errors.Join(cause, &models.SymbolError{Symbol: symbol})
	}
	if cause != nil {
		return e.invalid(ctx, now, out, rec, cause)
	}
	delete(e.streaks, key)

	entry, target, stop, _ := sig.Prices()
	side := sig.NormalizedSide()
	start, end, _ := e.validator.Window(sig)

	obs := lifecycle.Observation{Valid: true, Phase: lifecycle.PhaseOf(now, start, end)}
	var entryRes service.EntryResult
	var levels service.LevelResult

	if lifecycle.NeedsEntryScan(obs.Phase) {
		scanEnd := util.MinTime(now, end)
		t0 := time.Now()
		var err error
		entryRes, err = e.detector.EntryHit(ctx, symbol, side, entry, start, scanEnd)
		if err == nil && lifecycle.NeedsLevelScan(obs.Phase, entryRes.Hit) {
			from := entryRes.HitAt
			if e.cfg.IncludeFillCandle {
				from = entryRes.FillOpen
			}
			levels, err = e.detector.LevelHit(ctx, symbol, side, entry, target, stop, from, scanEnd)
		}
		rec.LatencyMS["klines"] = time.Since(t0).Milliseconds()
		e.latency("klines", time.Since(t0))
		if err != nil {
			return e.failed(ctx, out, rec, err)
		}
		obs.EntryHit = entryRes.Hit
		obs.HitTarget = levels.HitTarget
		obs.HitStop = levels.HitStop
	}

	status := lifecycle.Decide(obs)
	ev := models.Evaluation{Status: status, HitTarget: levels.HitTarget, HitStop: levels.HitStop}
	if entryRes.Hit {
		at := entryRes.HitAt
		ev.EntryFilledAt = &at
	}
	rec.Verdict.Status = status

	switch status {
	case models.StatusScheduled:
		rec.Verdict.State = models.VerdictLive

	case models.StatusArmed, models.StatusLive:
		rec.Verdict.State = models.VerdictLive
		fallback := entryRes.LastClose
		if status == models.StatusLive {
			fallback = levels.LastClose
		}
		ref, source := e.referencePrice(ctx, symbol, snap, fallback)
		ev.RefPrice = ref
		ev.PriceSource = source
		if ref != nil {
			rec.Market.PriceSource = strPtr(source)
			rec.Market.LivePrice = ref
			if status == models.StatusLive {
				if pct, ok := detector.ProfitPct(side, entry, *ref); ok {
					ev.ProfitPct = models.Float(detector.Round2(pct))
					rec.Market.PnLPctLive = ev.ProfitPct
				}
			}
		} else if status == models.StatusLive {
			out.Cause = &models.PriceUnavailable{Symbol: symbol}
			out.Errors = models.Codes(out.Cause)
			rec.Validation.Errors = out.Errors
			e.recordError("price")
		}

	default:
		rec.Verdict.State = models.VerdictFinal
		rec.Verdict.Result = strPtr(string(status))
		switch status {
		case models.StatusTargetHit, models.StatusStopHit:
			ev.ExitPrice = levels.ExecPrice
		case models.StatusTimeout:
			ev.ExitPrice = levels.LastClose
		}
		if ev.ExitPrice != nil {
			if pct, ok := detector.ProfitPct(side, entry, *ev.ExitPrice); ok {
				ev.ProfitPct = models.Float(detector.Round2(pct))
			}
			rec.Market.PriceSource = strPtr(SourceKlines)
		}
		rec.Verdict.PriceExit = ev.ExitPrice
		rec.Verdict.PnLPctFinal = ev.ProfitPct
	}

	out.Evaluation = ev
	e.audit.Record(ctx, rec)

	if !status.Terminal() {
		return out, nil
	}
	h := historyEntry(sig, ev, models.FormatClosedAt(end), "")
	e.log.Info("signal finalized",
		applogger.String("key", key),
		applogger.String("status", string(status)))
	return out, &h
}

// invalid handles a signal failing structural or symbol validation. cause
// holds a StructuralError, a SymbolError, or both joined.
func (e *Evaluator) invalid(ctx context.Context, now time.Time, out Outcome, rec models.AuditRecord, cause error) (Outcome, *models.HistoryEntry) {
	errs := validator.Merge(nil, models.Codes(cause)...)
	e.streaks[out.Key]++
	status := lifecycle.Decide(lifecycle.Observation{
		Valid:         false,
		InvalidStreak: e.streaks[out.Key],
		Threshold:     e.cfg.InvalidThreshold,
	})
	out.Cause = cause
	out.Errors = errs
	out.Evaluation = models.Evaluation{Status: status}

	rec.Validation.Errors = errs
	rec.Verdict.Status = status
	rec.Verdict.State = models.VerdictLive

	var entry *models.HistoryEntry
	if status == models.StatusInvalidRemoved {
		out.Reason = lifecycle.PruneReason
		rec.Verdict.State = models.VerdictFinal
		rec.Verdict.Result = strPtr(string(status))
		h := historyEntry(out.Signal, out.Evaluation, models.FormatClosedAt(now), lifecycle.PruneReason)
		entry = &h
		e.log.Warn("signal pruned",
			applogger.String("key", out.Key),
			applogger.Int("streak", e.streaks[out.Key]),
			applogger.Error(cause))
	}
	e.audit.Record(ctx, rec)
	return out, entry
}

// failed handles a per-signal market data error: the state is left as it
// was and the failure is audited. Candles are only fetched once the window
// has opened, so without a previous outcome the status is ARMED.
func (e *Evaluator) failed(ctx context.Context, out Outcome, rec models.AuditRecord, err error) (Outcome, *models.HistoryEntry) {
	if models.CodeOf(err) == models.ErrUnknown {
		err = &models.NetworkError{Op: "candles", Err: err}
	}
	out.Err = err
	out.Cause = err
	out.Errors = models.Codes(err)
	if prev, ok := e.last[out.Key]; ok {
		out.Evaluation = prev.Evaluation
	} else {
		out.Evaluation = models.Evaluation{Status: models.StatusArmed}
	}

	rec.Validation.Errors = out.Errors
	rec.Verdict.State = models.VerdictLive
	rec.Verdict.Status = out.Evaluation.Status
	e.audit.Record(ctx, rec)

	e.recordError("candles")
	e.log.Error("signal evaluation failed",
		applogger.String("key", out.Key),
		applogger.Error(err))
	return out, nil
}

// referencePrice resolves the live price: batch, then single, then the last
// candle close.
func (e *Evaluator) referencePrice(ctx context.Context, symbol string, snap snapshot, lastClose *float64) (*float64, string) {
	if p, ok := snap.prices[symbol]; ok {
		return models.Float(p), SourceBatch
	}
	p, err := e.gate.Price(ctx, symbol)
	if err == nil {
		return models.Float(p), SourceFallback
	}
	e.log.Debug("single price unavailable", applogger.String("symbol", symbol), applogger.Error(err))
	if lastClose != nil {
		return lastClose, SourceKlineProxy
	}
	return nil, ""
}

func (e *Evaluator) newRecord(now time.Time, sig models.Signal, snap snapshot) models.AuditRecord {
	rec := e.audit.New(now, sig)
	if snap.batchMS != nil {
		rec.LatencyMS["batch_prices"] = *snap.batchMS
	}
	return rec
}

func (e *Evaluator) record(status models.Status) {
	if e.metrics != nil {
		e.metrics.RecordStatus(string(status))
	}
}

func (e *Evaluator) recordError(kind string) {
	if e.metrics != nil {
		e.metrics.RecordError(kind)
	}
}

func (e *Evaluator) latency(op string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordLatency(op, d.Seconds())
	}
}

func historyEntry(sig models.Signal, ev models.Evaluation, closedAt, reason string) models.HistoryEntry {
	return models.HistoryEntry{
		Signal:    sig,
		Status:    ev.Status,
		ExitPrice: ev.ExitPrice,
		ProfitPct: ev.ProfitPct,
		HitTarget: ev.HitTarget,
		HitStop:   ev.HitStop,
		ClosedAt:  closedAt,
		Reason:    reason,
	}
}

func strPtr(s string) *string { return &s }

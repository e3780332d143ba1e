package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SigTrack/internal/domain/models"
	"SigTrack/internal/repository"
	"SigTrack/internal/service/detector"
	"SigTrack/internal/service/validator"
)

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type fakeGate struct {
	mu         sync.Mutex
	known      map[string]struct{}
	knownErr   error
	prices     map[string]float64
	pricesErr  error
	single     map[string]float64
	candles    map[string][]models.Candle
	candleErr  map[string]error
	candleCall int
}

func newFakeGate() *fakeGate {
	return &fakeGate{
		known:     map[string]struct{}{"BTCUSDT": {}, "ETHUSDT": {}},
		prices:    map[string]float64{},
		single:    map[string]float64{},
		candles:   map[string][]models.Candle{},
		candleErr: map[string]error{},
	}
}

func (g *fakeGate) KnownSymbols(context.Context) (map[string]struct{}, error) {
	if g.knownErr != nil {
		return nil, g.knownErr
	}
	return g.known, nil
}

func (g *fakeGate) BatchPrices(context.Context) (map[string]float64, error) {
	if g.pricesErr != nil {
		return nil, g.pricesErr
	}
	return g.prices, nil
}

func (g *fakeGate) Price(_ context.Context, symbol string) (float64, error) {
	if p, ok := g.single[symbol]; ok {
		return p, nil
	}
	return 0, &models.NetworkError{Op: "price", Err: errors.New("unavailable")}
}

func (g *fakeGate) Candles(_ context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	g.mu.Lock()
	g.candleCall++
	g.mu.Unlock()
	if err := g.candleErr[symbol]; err != nil {
		return nil, err
	}
	var out []models.Candle
	for _, c := range g.candles[symbol] {
		if !c.OpenTime.Before(start) && !c.OpenTime.After(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

type memSink struct {
	all      []models.AuditRecord
	failures []models.AuditRecord
	err      error
}

func (s *memSink) Write(_ context.Context, rec models.AuditRecord, failure bool) error {
	if s.err != nil {
		return s.err
	}
	s.all = append(s.all, rec)
	if failure {
		s.failures = append(s.failures, rec)
	}
	return nil
}

func (s *memSink) Close() error { return nil }

type harness struct {
	ev    *Evaluator
	store *repository.JSONStore
	gate  *fakeGate
	sink  *memSink
	clock *fixedClock
}

func newHarness(t *testing.T, now time.Time, cfg EvaluatorConfig) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := repository.NewJSONStore(filepath.Join(dir, "active.json"), filepath.Join(dir, "history.json"))
	require.NoError(t, err)
	gate := newFakeGate()
	sink := &memSink{}
	clock := &fixedClock{now: now}
	rec := NewAuditRecorder(sink, DefaultAuditTags(), nil, nil)
	ev := NewEvaluator(store, gate, detector.New(gate), validator.New(time.UTC), rec, nil, clock, nil, cfg)
	return &harness{ev: ev, store: store, gate: gate, sink: sink, clock: clock}
}

func (h *harness) add(t *testing.T, sigs ...models.Signal) {
	t.Helper()
	_, _, err := h.store.Add(context.Background(), sigs)
	require.NoError(t, err)
}

func (h *harness) tick(t *testing.T) *TickReport {
	t.Helper()
	rep, err := h.ev.Tick(context.Background())
	require.NoError(t, err)
	return rep
}

func num(v float64) json.RawMessage { return json.RawMessage(strconv.FormatFloat(v, 'f', -1, 64)) }

func signal(symbol string, side models.Side, entry, target, stop float64) models.Signal {
	return models.Signal{
		Symbol:      symbol,
		Side:        string(side),
		Entry:       num(entry),
		Target:      num(target),
		StopLoss:    num(stop),
		WindowStart: "2025-03-01 10:00:00",
		WindowEnd:   "2025-03-01 12:00:00",
	}
}

func bar(minute int, low, high, close float64) models.Candle {
	open := base.Add(time.Duration(minute) * time.Minute)
	return models.Candle{OpenTime: open, Open: close, High: high, Low: low, Close: close, CloseTime: open.Add(time.Minute - time.Millisecond)}
}

func TestScenarioAStopHit(t *testing.T) {
	h := newHarness(t, base.Add(150*time.Minute), EvaluatorConfig{})
	h.add(t, signal("BTCUSDT", models.Buy, 60000, 61000, 59500))
	h.gate.candles["BTCUSDT"] = []models.Candle{
		bar(0, 59900, 60100, 60000),
		bar(1, 59400, 60050, 59600),
		bar(2, 59500, 61200, 61100),
	}

	rep := h.tick(t)
	require.Len(t, rep.Outcomes, 1)
	ev := rep.Outcomes[0].Evaluation
	assert.Equal(t, models.StatusStopHit, ev.Status)
	require.NotNil(t, ev.ExitPrice)
	assert.Equal(t, 59500.0, *ev.ExitPrice)
	require.NotNil(t, ev.ProfitPct)
	assert.Equal(t, -0.83, *ev.ProfitPct)
	assert.Equal(t, 1, rep.Promoted)

	hist, _ := h.store.History(context.Background())
	require.Len(t, hist, 1)
	assert.Equal(t, models.StatusStopHit, hist[0].Status)
	assert.True(t, hist[0].HitStop)
	assert.Equal(t, "2025-03-01 12:00:00 UTC", hist[0].ClosedAt)
	active, _ := h.store.Active(context.Background())
	assert.Empty(t, active)

	require.Len(t, h.sink.all, 1)
	rec := h.sink.all[0]
	assert.Equal(t, models.VerdictFinal, rec.Verdict.State)
	assert.Equal(t, "ERROU", *rec.Verdict.Result)
	assert.Equal(t, SourceKlines, *rec.Market.PriceSource)
	assert.Empty(t, h.sink.failures)
}

func TestScenarioBTimeoutWithoutEntry(t *testing.T) {
	h := newHarness(t, base.Add(3*time.Hour), EvaluatorConfig{})
	h.add(t, signal("BTCUSDT", models.Buy, 55000, 56000, 54000))
	h.gate.candles["BTCUSDT"] = []models.Candle{
		bar(0, 59900, 60100, 60000),
		bar(1, 59400, 60050, 59600),
	}

	rep := h.tick(t)
	ev := rep.Outcomes[0].Evaluation
	assert.Equal(t, models.StatusTimeoutNoEntry, ev.Status)
	assert.Nil(t, ev.ProfitPct)
	assert.Nil(t, ev.ExitPrice)

	hist, _ := h.store.History(context.Background())
	require.Len(t, hist, 1)
	assert.Nil(t, hist[0].ProfitPct)
}

func TestScenarioCTargetHit(t *testing.T) {
	h := newHarness(t, base.Add(3*time.Hour), EvaluatorConfig{})
	h.add(t, signal("BTCUSDT", models.Buy, 60000, 61000, 59500))
	h.gate.candles["BTCUSDT"] = []models.Candle{
		bar(0, 59950, 60100, 60050),
		bar(1, 59900, 60500, 60400),
		bar(2, 60300, 61100, 61000),
	}

	rep := h.tick(t)
	ev := rep.Outcomes[0].Evaluation
	assert.Equal(t, models.StatusTargetHit, ev.Status)
	assert.Equal(t, 61000.0, *ev.ExitPrice)
	assert.Greater(t, *ev.ProfitPct, 0.0)
	assert.True(t, ev.HitTarget)
}

func TestTimeoutAfterEntryUsesLastClose(t *testing.T) {
	h := newHarness(t, base.Add(3*time.Hour), EvaluatorConfig{})
	h.add(t, signal("ETHUSDT", models.Sell, 3000, 2900, 3100))
	h.gate.candles["ETHUSDT"] = []models.Candle{
		bar(0, 2990, 3010, 3000),
		bar(1, 2950, 3050, 2970),
	}

	rep := h.tick(t)
	ev := rep.Outcomes[0].Evaluation
	assert.Equal(t, models.StatusTimeout, ev.Status)
	assert.Equal(t, 2970.0, *ev.ExitPrice)
	assert.Equal(t, 1.0, *ev.ProfitPct)
}

func TestSideRuleViolationPrunedAfterTwoTicks(t *testing.T) {
	h := newHarness(t, base.Add(30*time.Minute), EvaluatorConfig{})
	h.add(t, signal("BTCUSDT", models.Buy, 60000, 59000, 59500))

	rep := h.tick(t)
	out := rep.Outcomes[0]
	assert.Equal(t, models.StatusConfigInvalid, out.Evaluation.Status)
	assert.Equal(t, []models.ErrorCode{models.ErrRuleBuy}, out.Errors)
	active, _ := h.store.Active(context.Background())
	assert.Len(t, active, 1)
	assert.Equal(t, 0, h.gate.candleCall)
	require.Len(t, h.sink.failures, 1)
	assert.False(t, h.sink.failures[0].Validation.RuleOK)

	rep = h.tick(t)
	out = rep.Outcomes[0]
	assert.Equal(t, models.StatusInvalidRemoved, out.Evaluation.Status)
	assert.NotEmpty(t, out.Reason)
	assert.Equal(t, 1, rep.Promoted)

	active, _ = h.store.Active(context.Background())
	assert.Empty(t, active)
	hist, _ := h.store.History(context.Background())
	require.Len(t, hist, 1)
	assert.Equal(t, models.StatusInvalidRemoved, hist[0].Status)
	assert.NotEmpty(t, hist[0].Reason)
	assert.Len(t, h.sink.failures, 2)
	assert.Equal(t, models.VerdictFinal, h.sink.failures[1].Verdict.State)

	rep = h.tick(t)
	assert.Empty(t, rep.Outcomes)
	hist, _ = h.store.History(context.Background())
	assert.Len(t, hist, 1)
}

func TestInvalidStreakResetsOnValidTick(t *testing.T) {
	h := newHarness(t, base.Add(30*time.Minute), EvaluatorConfig{})
	h.add(t, signal("SOLUSDT", models.Buy, 100, 110, 90))

	rep := h.tick(t)
	assert.Equal(t, models.StatusConfigInvalid, rep.Outcomes[0].Evaluation.Status)
	assert.Equal(t, []models.ErrorCode{models.ErrSymbol}, rep.Outcomes[0].Errors)

	h.gate.knownErr = errors.New("exchangeInfo down")
	rep = h.tick(t)
	assert.True(t, rep.Degraded)
	assert.Equal(t, models.StatusArmed, rep.Outcomes[0].Evaluation.Status)

	h.gate.knownErr = nil
	rep = h.tick(t)
	assert.Equal(t, models.StatusConfigInvalid, rep.Outcomes[0].Evaluation.Status)
	assert.Zero(t, rep.Promoted)
}

func TestCandleFailureIsIsolated(t *testing.T) {
	h := newHarness(t, base.Add(3*time.Hour), EvaluatorConfig{})
	h.add(t,
		signal("ETHUSDT", models.Buy, 3000, 3100, 2900),
		signal("BTCUSDT", models.Buy, 60000, 61000, 59500),
	)
	h.gate.candleErr["ETHUSDT"] = &models.NetworkError{Op: "klines", Err: errors.New("timeout")}
	h.gate.candles["BTCUSDT"] = []models.Candle{bar(0, 59900, 60100, 60000), bar(1, 60000, 61500, 61200)}

	rep := h.tick(t)
	require.Len(t, rep.Outcomes, 2)
	eth, btc := rep.Outcomes[0], rep.Outcomes[1]
	require.Error(t, eth.Err)
	assert.Equal(t, []models.ErrorCode{models.ErrNetwork}, eth.Errors)
	assert.Equal(t, models.StatusTargetHit, btc.Evaluation.Status)
	assert.Equal(t, 1, rep.Errored)
	assert.Equal(t, 1, rep.Promoted)

	active, _ := h.store.Active(context.Background())
	require.Len(t, active, 1)
	assert.Equal(t, "ETHUSDT", active[0].Symbol)
	require.Len(t, h.sink.failures, 1)
	assert.Equal(t, "ETHUSDT", h.sink.failures[0].Signal.Symbol)
}

func TestCandleFailureKeepsPreviousStatus(t *testing.T) {
	h := newHarness(t, base.Add(30*time.Minute), EvaluatorConfig{})
	h.add(t, signal("BTCUSDT", models.Buy, 60000, 61000, 59500))
	h.gate.prices["BTCUSDT"] = 60100
	h.gate.candles["BTCUSDT"] = []models.Candle{bar(0, 59900, 60100, 60000)}

	rep := h.tick(t)
	assert.Equal(t, models.StatusLive, rep.Outcomes[0].Evaluation.Status)

	h.gate.candleErr["BTCUSDT"] = errors.New("reset by peer")
	rep = h.tick(t)
	require.Error(t, rep.Outcomes[0].Err)
	assert.Equal(t, models.StatusLive, rep.Outcomes[0].Evaluation.Status)
	assert.Equal(t, models.StatusLive, h.ev.LastOutcomes()[rep.Outcomes[0].Key].Evaluation.Status)
}

func TestScheduledSkipsMarketData(t *testing.T) {
	h := newHarness(t, base.Add(-time.Hour), EvaluatorConfig{})
	h.add(t, signal("BTCUSDT", models.Buy, 60000, 61000, 59500))

	rep := h.tick(t)
	assert.Equal(t, models.StatusScheduled, rep.Outcomes[0].Evaluation.Status)
	assert.Equal(t, 0, h.gate.candleCall)
	require.Len(t, h.sink.all, 1)
	assert.Equal(t, models.VerdictLive, h.sink.all[0].Verdict.State)
}

func TestLivePriceResolutionChain(t *testing.T) {
	h := newHarness(t, base.Add(30*time.Minute), EvaluatorConfig{})
	h.add(t, signal("BTCUSDT", models.Buy, 60000, 61000, 59500))
	h.gate.candles["BTCUSDT"] = []models.Candle{bar(0, 59900, 60100, 60000), bar(1, 59800, 60400, 60300)}

	h.gate.prices["BTCUSDT"] = 60600
	rep := h.tick(t)
	ev := rep.Outcomes[0].Evaluation
	assert.Equal(t, models.StatusLive, ev.Status)
	assert.Equal(t, SourceBatch, ev.PriceSource)
	assert.Equal(t, 1.0, *ev.ProfitPct)

	h.gate.pricesErr = errors.New("batch down")
	h.gate.single["BTCUSDT"] = 59400
	rep = h.tick(t)
	ev = rep.Outcomes[0].Evaluation
	assert.Equal(t, SourceFallback, ev.PriceSource)
	assert.Equal(t, -1.0, *ev.ProfitPct)
	assert.Equal(t, models.StatusLive, ev.Status, "stop touch by live price is informational")

	delete(h.gate.single, "BTCUSDT")
	rep = h.tick(t)
	ev = rep.Outcomes[0].Evaluation
	assert.Equal(t, SourceKlineProxy, ev.PriceSource)
	assert.Equal(t, 60300.0, *ev.RefPrice)
	last := h.sink.all[len(h.sink.all)-1]
	assert.Equal(t, SourceKlineProxy, *last.Market.PriceSource)
	assert.Empty(t, last.Validation.Errors)
}

func TestLiveWithoutAnyPriceIsAuditedAsFailure(t *testing.T) {
	h := newHarness(t, base.Add(30*time.Minute), EvaluatorConfig{})
	h.add(t, signal("BTCUSDT", models.Buy, 60000, 61000, 59500))
	h.gate.pricesErr = errors.New("batch down")
	h.gate.candles["BTCUSDT"] = []models.Candle{bar(0, 59900, 60100, 60000)}

	rep := h.tick(t)
	out := rep.Outcomes[0]
	assert.Equal(t, models.StatusLive, out.Evaluation.Status)
	assert.Equal(t, []models.ErrorCode{models.ErrPriceMissing}, out.Errors)
	var missing *models.PriceUnavailable
	require.ErrorAs(t, out.Cause, &missing)
	assert.Equal(t, "BTCUSDT", missing.Symbol)
	require.Len(t, h.sink.failures, 1)
}

func TestValidationErrorsCarryTypedCause(t *testing.T) {
	h := newHarness(t, base.Add(30*time.Minute), EvaluatorConfig{})
	h.add(t, signal("SOLUSDT", models.Buy, 100, 90, 110))

	rep := h.tick(t)
	out := rep.Outcomes[0]
	assert.Equal(t, []models.ErrorCode{models.ErrRuleBuy, models.ErrSymbol}, out.Errors)
	assert.Equal(t, models.ErrRuleBuy, models.CodeOf(out.Cause))

	var structural *models.StructuralError
	require.ErrorAs(t, out.Cause, &structural)
	assert.Equal(t, []models.ErrorCode{models.ErrRuleBuy}, structural.Codes)
	var unknown *models.SymbolError
	require.ErrorAs(t, out.Cause, &unknown)
	assert.Equal(t, "SOLUSDT", unknown.Symbol)

	require.Len(t, h.sink.failures, 1)
	assert.Equal(t, out.Errors, h.sink.failures[0].Validation.Errors)
}

func TestPaddedSymbolIsNormalizedForVenueCalls(t *testing.T) {
	h := newHarness(t, base.Add(150*time.Minute), EvaluatorConfig{})
	h.add(t, signal(" btcusdt ", models.Buy, 60000, 61000, 59500))
	h.gate.candles["BTCUSDT"] = []models.Candle{
		bar(0, 59900, 60100, 60000),
		bar(1, 59400, 60050, 59600),
	}

	rep := h.tick(t)
	out := rep.Outcomes[0]
	require.NoError(t, out.Err)
	assert.Empty(t, out.Errors)
	assert.Equal(t, models.StatusStopHit, out.Evaluation.Status)
	assert.Equal(t, 1, rep.Promoted)
	active, _ := h.store.Active(context.Background())
	assert.Empty(t, active)
}

func TestFirstTickCandleFailureReportsArmed(t *testing.T) {
	h := newHarness(t, base.Add(30*time.Minute), EvaluatorConfig{})
	h.add(t, signal("BTCUSDT", models.Buy, 60000, 61000, 59500))
	h.gate.candleErr["BTCUSDT"] = errors.New("connection reset")

	rep := h.tick(t)
	out := rep.Outcomes[0]
	require.Error(t, out.Err)
	var netErr *models.NetworkError
	require.ErrorAs(t, out.Err, &netErr)
	assert.Equal(t, models.ErrNetwork, models.CodeOf(out.Err))
	assert.Equal(t, []models.ErrorCode{models.ErrNetwork}, out.Errors)
	assert.Equal(t, models.StatusArmed, out.Evaluation.Status)

	require.Len(t, h.sink.failures, 1)
	assert.Equal(t, models.StatusArmed, h.sink.failures[0].Verdict.Status)
	assert.Equal(t, models.VerdictLive, h.sink.failures[0].Verdict.State)
}

func TestIncludeFillCandleFinalizesSameCandleStop(t *testing.T) {
	candles := []models.Candle{
		bar(0, 59400, 60100, 59800),
		bar(1, 59700, 61100, 61000),
	}

	def := newHarness(t, base.Add(3*time.Hour), EvaluatorConfig{})
	def.add(t, signal("BTCUSDT", models.Buy, 60000, 61000, 59500))
	def.gate.candles["BTCUSDT"] = candles
	assert.Equal(t, models.StatusTargetHit, def.tick(t).Outcomes[0].Evaluation.Status)

	incl := newHarness(t, base.Add(3*time.Hour), EvaluatorConfig{IncludeFillCandle: true})
	incl.add(t, signal("BTCUSDT", models.Buy, 60000, 61000, 59500))
	incl.gate.candles["BTCUSDT"] = candles
	assert.Equal(t, models.StatusStopHit, incl.tick(t).Outcomes[0].Evaluation.Status)
}

func TestAuditSinkFailureDoesNotAlterResult(t *testing.T) {
	h := newHarness(t, base.Add(3*time.Hour), EvaluatorConfig{})
	h.sink.err = errors.New("disk full")
	h.add(t, signal("BTCUSDT", models.Buy, 60000, 61000, 59500))
	h.gate.candles["BTCUSDT"] = []models.Candle{bar(0, 59900, 60100, 60000), bar(1, 59400, 60000, 59600)}

	rep := h.tick(t)
	assert.Equal(t, models.StatusStopHit, rep.Outcomes[0].Evaluation.Status)
	assert.Equal(t, 1, rep.Promoted)
}

func TestOutcomesFollowInputOrder(t *testing.T) {
	h := newHarness(t, base.Add(-time.Hour), EvaluatorConfig{})
	h.add(t,
		signal("ETHUSDT", models.Buy, 3000, 3100, 2900),
		signal("BTCUSDT", models.Buy, 60000, 61000, 59500),
	)
	rep := h.tick(t)
	require.Len(t, rep.Outcomes, 2)
	assert.Equal(t, "ETHUSDT", rep.Outcomes[0].Signal.Symbol)
	assert.Equal(t, "BTCUSDT", rep.Outcomes[1].Signal.Symbol)
	assert.Equal(t, 2, rep.Counts[models.StatusScheduled])
	assert.Same(t, rep, h.ev.LastReport())
}

func TestEmptyTickSkipsMarketData(t *testing.T) {
	h := newHarness(t, base, EvaluatorConfig{})
	h.gate.knownErr = errors.New("must not be called")
	rep := h.tick(t)
	assert.Zero(t, rep.Evaluated)
	assert.False(t, rep.Degraded)
}

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ClosedAtLayout is the layout of HistoryEntry.ClosedAt.
const ClosedAtLayout = "2006-01-02 15:04:05 UTC"

const (
	keyStatusFinal = "status_final"
	keyExitPrice   = "preco_saida"
	keyProfitPct   = "lucro_pct"
	keyHitTarget   = "bateu_alvo"
	keyHitStop     = "bateu_stop"
	keyClosedAt    = "fechado_em"
	keyReason      = "motivo"
)

// HistoryEntry is an archived terminal signal. It serializes as the signal's
// own keys plus the outcome keys, in one flat object.
type HistoryEntry struct {
	Signal    Signal
	Status    Status
	ExitPrice *float64
	ProfitPct *float64
	HitTarget bool
	HitStop   bool
	ClosedAt  string
	Reason    string
}

// FormatClosedAt renders t in the history timestamp layout.
func FormatClosedAt(t time.Time) string {
	return t.UTC().Format(ClosedAtLayout)
}

func (h HistoryEntry) MarshalJSON() ([]byte, error) {
	m := h.Signal.toMap()
	m[keyStatusFinal] = stringRaw(string(h.Status))
	m[keyExitPrice] = floatRaw(h.ExitPrice)
	m[keyProfitPct] = floatRaw(h.ProfitPct)
	m[keyHitTarget] = boolRaw(h.HitTarget)
	m[keyHitStop] = boolRaw(h.HitStop)
	m[keyClosedAt] = stringRaw(h.ClosedAt)
	if h.Reason != "" {
		m[keyReason] = stringRaw(h.Reason)
	}
	return json.Marshal(m)
}

func (h *HistoryEntry) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("decode history entry: %w", err)
	}
	out := HistoryEntry{
		Status:   Status(rawString(m[keyStatusFinal])),
		ClosedAt: rawString(m[keyClosedAt]),
		Reason:   rawString(m[keyReason]),
	}
	if v, ok := ParsePrice(m[keyExitPrice]); ok {
		out.ExitPrice = &v
	}
	if v, ok := ParsePrice(m[keyProfitPct]); ok {
		out.ProfitPct = &v
	}
	out.HitTarget = rawBool(m[keyHitTarget])
	out.HitStop = rawBool(m[keyHitStop])
	for _, k := range []string{keyStatusFinal, keyExitPrice, keyProfitPct, keyHitTarget, keyHitStop, keyClosedAt, keyReason} {
		delete(m, k)
	}
	out.Signal = signalFromMap(m)
	*h = out
	return nil
}

func floatRaw(v *float64) json.RawMessage {
	if v == nil {
		return json.RawMessage("null")
	}
	return NumberRaw(*v)
}

func boolRaw(v bool) json.RawMessage {
	if v {
		return json.RawMessage("true")
	}
	return json.RawMessage("false")
}

func rawBool(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false
	}
	return b
}

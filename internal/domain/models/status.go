package models

import "time"

// Status is the lifecycle state of a signal.
type Status string

const (
	StatusScheduled      Status = "SCHEDULED"
	StatusArmed          Status = "ARMED"
	StatusLive           Status = "LIVE"
	StatusTargetHit      Status = "ACERTOU"
	StatusStopHit        Status = "ERROU"
	StatusTimeout        Status = "TIMEOUT"
	StatusTimeoutNoEntry Status = "TIMEOUT_SEM_ENTRADA"
	StatusConfigInvalid  Status = "CONFIG_INVALIDA"
	StatusInvalidRemoved Status = "INVALIDO_REMOVIDO"
)

// Terminal reports whether the status ends the signal's life in the active set.
func (s Status) Terminal() bool {
	switch s {
	case StatusTargetHit, StatusStopHit, StatusTimeout, StatusTimeoutNoEntry, StatusInvalidRemoved:
		return true
	default:
		return false
	}
}

// Candle is one OHLC bar. Candles are fetched on demand and never persisted.
type Candle struct {
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	CloseTime time.Time `json:"close_time"`
}

// Contains reports whether price lies within the candle's [low, high] range.
func (c Candle) Contains(price float64) bool {
	return c.Low <= price && price <= c.High
}

// Evaluation is the result of evaluating one signal in one tick.
type Evaluation struct {
	Status        Status     `json:"status"`
	EntryFilledAt *time.Time `json:"entry_filled_at,omitempty"`
	RefPrice      *float64   `json:"ref_price,omitempty"`
	PriceSource   string     `json:"price_source,omitempty"`
	ProfitPct     *float64   `json:"profit_pct,omitempty"`
	ExitPrice     *float64   `json:"exit_price,omitempty"`
	HitTarget     bool       `json:"hit_target"`
	HitStop       bool       `json:"hit_stop"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Side is the trade direction of a signal.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide normalizes s and reports whether it is a supported side.
func ParseSide(s string) (Side, bool) {
	side := Side(strings.ToUpper(strings.TrimSpace(s)))
	switch side {
	case Buy, Sell:
		return side, true
	default:
		return side, false
	}
}

// Ingestion keys. The window keys keep the names used by upstream producers.
const (
	KeySymbol      = "symbol"
	KeySide        = "side"
	KeyEntry       = "entry"
	KeyTarget      = "target"
	KeyStopLoss    = "stop_loss"
	KeyWindowStart = "entrada_datahora"
	KeyWindowEnd   = "saida_datahora"
)

// RequiredKeys lists the keys every ingested signal object must carry.
var RequiredKeys = []string{KeySymbol, KeySide, KeyEntry, KeyTarget, KeyStopLoss, KeyWindowStart, KeyWindowEnd}

// Signal is a trade idea evaluated against market history.
// Prices are kept as raw JSON so that numeric validity is decided by the
// validator rather than by the decoder. Unknown keys survive a round trip
// through Extra.
type Signal struct {
	Symbol      string
	Side        string
	Entry       json.RawMessage
	Target      json.RawMessage
	StopLoss    json.RawMessage
	WindowStart string
	WindowEnd   string

	Extra map[string]json.RawMessage
}

// Key returns the identity key (symbol, window start literal, window end literal).
func (s Signal) Key() string {
	return s.NormalizedSymbol() + "|" + s.WindowStart + "|" + s.WindowEnd
}

// NormalizedSymbol returns the trimmed, upper-cased ticker used for venue
// lookups and identity.
func (s Signal) NormalizedSymbol() string {
	return strings.ToUpper(strings.TrimSpace(s.Symbol))
}

// NormalizedSide returns the upper-cased side.
func (s Signal) NormalizedSide() Side {
	side, _ := ParseSide(s.Side)
	return side
}

// Prices parses entry, target and stop. ok is false if any of them is not a finite number.
func (s Signal) Prices() (entry, target, stop float64, ok bool) {
	var okE, okT, okS bool
	entry, okE = ParsePrice(s.Entry)
	target, okT = ParsePrice(s.Target)
	stop, okS = ParsePrice(s.StopLoss)
	return entry, target, stop, okE && okT && okS
}

// ParsePrice accepts a JSON number or a numeric JSON string.
func ParsePrice(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		text = strings.TrimSpace(s)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// NumberRaw encodes v as a raw JSON number.
func NumberRaw(v float64) json.RawMessage {
	return json.RawMessage(strconv.FormatFloat(v, 'f', -1, 64))
}

func (s *Signal) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("decode signal: %w", err)
	}
	*s = signalFromMap(m)
	return nil
}

func (s Signal) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.toMap())
}

func signalFromMap(m map[string]json.RawMessage) Signal {
	s := Signal{
		Symbol:      rawString(m[KeySymbol]),
		Side:        rawString(m[KeySide]),
		Entry:       m[KeyEntry],
		Target:      m[KeyTarget],
		StopLoss:    m[KeyStopLoss],
		WindowStart: rawString(m[KeyWindowStart]),
		WindowEnd:   rawString(m[KeyWindowEnd]),
	}
	for _, k := range RequiredKeys {
		delete(m, k)
	}
	if len(m) > 0 {
		s.Extra = m
	}
	return s
}

func (s Signal) toMap() map[string]json.RawMessage {
	m := make(map[string]json.RawMessage, len(s.Extra)+len(RequiredKeys))
	for k, v := range s.Extra {
		m[k] = v
	}
	m[KeySymbol] = stringRaw(s.Symbol)
	m[KeySide] = stringRaw(s.Side)
	m[KeyEntry] = orNull(s.Entry)
	m[KeyTarget] = orNull(s.Target)
	m[KeyStopLoss] = orNull(s.StopLoss)
	m[KeyWindowStart] = stringRaw(s.WindowStart)
	m[KeyWindowEnd] = stringRaw(s.WindowEnd)
	return m
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func stringRaw(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

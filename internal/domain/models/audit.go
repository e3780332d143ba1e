package models

// Verdict states.
const (
	VerdictLive  = "LIVE"
	VerdictFinal = "FINAL"
)

// AuditRecord is one immutable evaluation record of one signal in one tick.
type AuditRecord struct {
	ID           string           `json:"id"`
	TS           string           `json:"ts"`
	AppVersion   string           `json:"app_version"`
	ModelVersion string           `json:"model_version"`
	PromptID     string           `json:"prompt_id"`
	Source       AuditSource      `json:"source"`
	Signal       AuditSignal      `json:"signal"`
	Validation   AuditValidation  `json:"validation"`
	Market       AuditMarket      `json:"market"`
	Verdict      AuditVerdict     `json:"verdict"`
	LatencyMS    map[string]int64 `json:"latency_ms"`
}

type AuditSource struct {
	Type     string `json:"type"`
	OriginID string `json:"origin_id"`
}

// AuditSignal is the signal snapshot as ingested.
type AuditSignal struct {
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Entry       any    `json:"entry"`
	Target      any    `json:"target"`
	StopLoss    any    `json:"stop_loss"`
	WindowStart string `json:"entrada_datahora"`
	WindowEnd   string `json:"saida_datahora"`
}

type AuditValidation struct {
	SymbolExists *bool       `json:"symbol_exists"`
	NumericOK    bool        `json:"numeric_ok"`
	DateOK       bool        `json:"date_ok"`
	RuleOK       bool        `json:"rule_ok"`
	Errors       []ErrorCode `json:"errors"`
}

type AuditMarket struct {
	PriceSource *string  `json:"price_source"`
	LivePrice   *float64 `json:"live_price"`
	PnLPctLive  *float64 `json:"pnl_pct_live"`
}

type AuditVerdict struct {
	State       string   `json:"state"`
	Status      Status   `json:"status"`
	Result      *string  `json:"result"`
	PriceExit   *float64 `json:"price_exit"`
	PnLPctFinal *float64 `json:"pnl_pct_final"`
}

// Failed reports whether the record belongs on the failures-only stream.
func (r AuditRecord) Failed() bool {
	return len(r.Validation.Errors) > 0
}

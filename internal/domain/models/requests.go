package models

// ActiveRequest filters GET /api/signals.
type ActiveRequest struct {
	Status string `query:"status" validate:"omitempty,oneof=SCHEDULED ARMED LIVE CONFIG_INVALIDA"`
	Symbol string `query:"symbol"`
}

// HistoryRequest filters and pages GET /api/history.
type HistoryRequest struct {
	Status string `query:"status" validate:"omitempty,oneof=ACERTOU ERROU TIMEOUT TIMEOUT_SEM_ENTRADA INVALIDO_REMOVIDO"`
	Symbol string `query:"symbol"`
	Limit  int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
	Offset int    `query:"offset" validate:"gte=0"`
}

// HistoryStats aggregates archived outcomes.
type HistoryStats struct {
	Total     int            `json:"total"`
	ByStatus  map[Status]int `json:"by_status"`
	WinRate   *float64       `json:"win_rate"`
	AvgProfit *float64       `json:"avg_profit_pct"`
}

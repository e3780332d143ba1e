package api

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/labstack/echo/v4"

	"SigTrack/internal/domain/models"
	drepo "SigTrack/internal/domain/repository"
	"SigTrack/internal/service/detector"
	"SigTrack/internal/usecase"
	xhttp "SigTrack/pkg/http"
	xlogger "SigTrack/pkg/logger"
)

// Ticker runs one evaluation pass and exposes the latest results.
type Ticker interface {
	Tick(ctx context.Context) (*usecase.TickReport, error)
	LastOutcomes() map[string]usecase.Outcome
	LastReport() *usecase.TickReport
}

// Importer adds a JSON array of signals to the active set.
type Importer interface {
	Import(ctx context.Context, r io.Reader) (usecase.ImportResult, error)
}

// SignalsHandler serves the read API, ingestion and manual ticks.
type SignalsHandler struct {
	logger *xlogger.Logger
	store  drepo.SignalStore
	ticker Ticker
	ingest Importer
}

func NewSignalsHandler(logger *xlogger.Logger, store drepo.SignalStore, ticker Ticker, ingest Importer) *SignalsHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &SignalsHandler{logger: logger, store: store, ticker: ticker, ingest: ingest}
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/signals", h.Active)
	g.POST("/signals", h.Import)
	g.GET("/history", h.History)
	g.GET("/history/stats", h.Stats)
	g.POST("/tick", h.Tick)
	g.GET("/tick", h.LastTick)
}

// ActiveView is an active signal with its most recent outcome, if any.
type ActiveView struct {
	Key     string           `json:"key"`
	Signal  models.Signal    `json:"signal"`
	Outcome *usecase.Outcome `json:"last_outcome"`
}

func (h *SignalsHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *SignalsHandler) Active(c echo.Context) error {
	req := &models.ActiveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	active, err := h.store.Active(c.Request().Context())
	if err != nil {
		h.logger.Error("load active signals", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("active signals unavailable").WithError(err))
	}

	last := h.ticker.LastOutcomes()
	rows := make([]ActiveView, 0, len(active))
	for _, sig := range active {
		if req.Symbol != "" && !strings.EqualFold(req.Symbol, sig.Symbol) {
			continue
		}
		v := ActiveView{Key: sig.Key(), Signal: sig}
		if o, ok := last[v.Key]; ok {
			v.Outcome = &o
		}
		if req.Status != "" && (v.Outcome == nil || string(v.Outcome.Evaluation.Status) != req.Status) {
			continue
		}
		rows = append(rows, v)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SignalsHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	hist, err := h.store.History(c.Request().Context())
	if err != nil {
		h.logger.Error("load history", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("history unavailable").WithError(err))
	}

	filtered := make([]models.HistoryEntry, 0, len(hist))
	for _, e := range hist {
		if req.Status != "" && string(e.Status) != req.Status {
			continue
		}
		if req.Symbol != "" && !strings.EqualFold(req.Symbol, e.Signal.Symbol) {
			continue
		}
		filtered = append(filtered, e)
	}
	total := len(filtered)
	from := min(req.Offset, total)
	to := min(from+req.Limit, total)
	return xhttp.ListResponse(c, filtered[from:to], int64(total))
}

func (h *SignalsHandler) Stats(c echo.Context) error {
	hist, err := h.store.History(c.Request().Context())
	if err != nil {
		h.logger.Error("load history", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("history unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, Summarize(hist))
}

// Summarize counts archived outcomes. Win rate is over ACERTOU and ERROU only;
// the average covers entries with a profit.
func Summarize(hist []models.HistoryEntry) models.HistoryStats {
	st := models.HistoryStats{Total: len(hist), ByStatus: make(map[models.Status]int)}
	var sum float64
	var n int
	for _, e := range hist {
		st.ByStatus[e.Status]++
		if e.ProfitPct != nil {
			sum += *e.ProfitPct
			n++
		}
	}
	wins, losses := st.ByStatus[models.StatusTargetHit], st.ByStatus[models.StatusStopHit]
	if wins+losses > 0 {
		st.WinRate = models.Float(detector.Round2(float64(wins) / float64(wins+losses) * 100))
	}
	if n > 0 {
		st.AvgProfit = models.Float(detector.Round2(sum / float64(n)))
	}
	return st
}

func (h *SignalsHandler) Import(c echo.Context) error {
	res, err := h.ingest.Import(c.Request().Context(), c.Request().Body)
	if err != nil {
		if errors.Is(err, usecase.ErrBadPayload) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
		}
		h.logger.Error("import signals", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("signals could not be stored").WithError(err))
	}
	return xhttp.CreatedResponse(c, res)
}

func (h *SignalsHandler) Tick(c echo.Context) error {
	rep, err := h.ticker.Tick(c.Request().Context())
	if err != nil {
		h.logger.Error("manual tick", xlogger.Error(err))
		if rep == nil {
			return xhttp.AppErrorResponse(c, xhttp.UnavailableError("tick failed").WithError(err))
		}
		return xhttp.AppErrorResponse(c, xhttp.InternalError("tick completed but promotion failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, rep)
}

func (h *SignalsHandler) LastTick(c echo.Context) error {
	rep := h.ticker.LastReport()
	if rep == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no tick has run yet"))
	}
	return xhttp.SuccessResponse(c, rep)
}

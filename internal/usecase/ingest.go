package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"

	"SigTrack/internal/domain/models"
	drepo "SigTrack/internal/domain/repository"
	applogger "SigTrack/pkg/logger"
)

// ErrBadPayload reports a request body that is not a JSON array of objects.
var ErrBadPayload = errors.New("expected a JSON array of signal objects")

// ImportResult counts what happened to an ingested batch.
type ImportResult struct {
	Received   int `json:"received"`
	Added      int `json:"added"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// signalShape requires every ingestion key to be present. Values may still be
// null; the evaluator's validator decides their validity.
type signalShape struct {
	Symbol      json.RawMessage `validate:"required"`
	Side        json.RawMessage `validate:"required"`
	Entry       json.RawMessage `validate:"required"`
	Target      json.RawMessage `validate:"required"`
	StopLoss    json.RawMessage `validate:"required"`
	WindowStart json.RawMessage `validate:"required"`
	WindowEnd   json.RawMessage `validate:"required"`
}

// Ingestor adds incoming signals to the active set.
type Ingestor struct {
	store    drepo.SignalStore
	validate *validator.Validate
	log      *applogger.Logger
}

func NewIngestor(store drepo.SignalStore, log *applogger.Logger) *Ingestor {
	if log == nil {
		log = applogger.NewNop()
	}
	return &Ingestor{store: store, validate: validator.New(), log: log}
}

// Import decodes a JSON array of signal objects. Objects missing a required
// key are skipped and counted; symbols are upper-cased; keys already active
// are counted as duplicates.
func (i *Ingestor) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	var items []map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	res := ImportResult{Received: len(items)}

	signals := make([]models.Signal, 0, len(items))
	for idx, m := range items {
		if err := i.validate.Struct(shapeOf(m)); err != nil {
			res.Skipped++
			i.log.Debug("signal skipped", applogger.Int("index", idx), applogger.Error(err))
			continue
		}
		b, err := json.Marshal(m)
		if err != nil {
			res.Skipped++
			continue
		}
		var sig models.Signal
		if err := json.Unmarshal(b, &sig); err != nil {
			res.Skipped++
			continue
		}
		sig.Symbol = sig.NormalizedSymbol()
		signals = append(signals, sig)
	}

	added, dups, err := i.store.Add(ctx, signals)
	if err != nil {
		return res, fmt.Errorf("add signals: %w", err)
	}
	res.Added, res.Duplicates = added, dups
	i.log.Info("signals imported",
		applogger.Int("received", res.Received),
		applogger.Int("added", res.Added),
		applogger.Int("duplicates", res.Duplicates),
		applogger.Int("skipped", res.Skipped))
	return res, nil
}

func shapeOf(m map[string]json.RawMessage) signalShape {
	return signalShape{
		Symbol:      m[models.KeySymbol],
		Side:        m[models.KeySide],
		Entry:       m[models.KeyEntry],
		Target:      m[models.KeyTarget],
		StopLoss:    m[models.KeyStopLoss],
		WindowStart: m[models.KeyWindowStart],
		WindowEnd:   m[models.KeyWindowEnd],
	}
}

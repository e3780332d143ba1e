package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"SigTrack/internal/domain/models"
	drepo "SigTrack/internal/domain/repository"
	applogger "SigTrack/pkg/logger"
)

// AuditTimeLayout is the layout of AuditRecord.TS.
const AuditTimeLayout = "2006-01-02T15:04:05Z"

// AuditTags are the version tags stamped on every record.
type AuditTags struct {
	AppVersion   string
	ModelVersion string
	PromptID     string
	SourceType   string
	OriginID     string
}

// DefaultAuditTags returns the tags used when none are configured.
func DefaultAuditTags() AuditTags {
	return AuditTags{
		AppVersion:   "live-1.3",
		ModelVersion: "n/a",
		PromptID:     "extract_v1",
		SourceType:   "json",
		OriginID:     "watchlist",
	}
}

// AuditRecorder stamps and writes audit records. Write failures are logged and
// counted, never returned.
type AuditRecorder struct {
	sink    drepo.AuditSink
	tags    AuditTags
	metrics drepo.Metrics
	log     *applogger.Logger
	newID   func() string
}

func NewAuditRecorder(sink drepo.AuditSink, tags AuditTags, metrics drepo.Metrics, log *applogger.Logger) *AuditRecorder {
	if log == nil {
		log = applogger.NewNop()
	}
	return &AuditRecorder{
		sink:    sink,
		tags:    tags,
		metrics: metrics,
		log:     log,
		newID:   uuid.NewString,
	}
}

// New returns a record for sig with identity, time and version fields filled.
func (r *AuditRecorder) New(now time.Time, sig models.Signal) models.AuditRecord {
	return models.AuditRecord{
		ID:           r.newID(),
		TS:           now.UTC().Format(AuditTimeLayout),
		AppVersion:   r.tags.AppVersion,
		ModelVersion: r.tags.ModelVersion,
		PromptID:     r.tags.PromptID,
		Source:       models.AuditSource{Type: r.tags.SourceType, OriginID: r.tags.OriginID},
		Signal: models.AuditSignal{
			Symbol:      sig.Symbol,
			Side:        sig.Side,
			Entry:       rawValue(sig.Entry),
			Target:      rawValue(sig.Target),
			StopLoss:    rawValue(sig.StopLoss),
			WindowStart: sig.WindowStart,
			WindowEnd:   sig.WindowEnd,
		},
		Validation: models.AuditValidation{NumericOK: true, DateOK: true, RuleOK: true, Errors: []models.ErrorCode{}},
		LatencyMS:  map[string]int64{},
	}
}

// Record writes rec to the all-records stream, and to the failures stream when
// it carries errors.
func (r *AuditRecorder) Record(ctx context.Context, rec models.AuditRecord) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Write(ctx, rec, rec.Failed()); err != nil {
		if r.metrics != nil {
			r.metrics.RecordError("audit")
		}
		r.log.Error("audit write failed",
			applogger.String("symbol", rec.Signal.Symbol),
			applogger.String("id", rec.ID),
			applogger.Error(err))
	}
}

func rawValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

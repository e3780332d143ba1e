package repository

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SigTrack/internal/domain/models"
	pkgch "SigTrack/pkg/clickhouse"
	pkgkafka "SigTrack/pkg/kafka"
)

func record(symbol string, errs ...models.ErrorCode) models.AuditRecord {
	return models.AuditRecord{
		ID:         "id-" + symbol,
		TS:         "2025-03-01T12:00:00Z",
		AppVersion: "live-1.3",
		Signal:     models.AuditSignal{Symbol: symbol, Side: "BUY"},
		Validation: models.AuditValidation{Errors: errs},
		Verdict:    models.AuditVerdict{State: models.VerdictLive, Status: models.StatusConfigInvalid},
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n
}

func TestJSONLAuditSinkSplitsFailures(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONLAuditSink(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, record("BTCUSDT"), false))
	require.NoError(t, s.Write(ctx, record("XXX", models.ErrSymbol), true))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, 2, countLines(t, filepath.Join(dir, AuditAllFile)))
	assert.Equal(t, 1, countLines(t, filepath.Join(dir, AuditFailuresFile)))

	assert.Error(t, s.Write(ctx, record("BTCUSDT"), false))
}

type memWriter struct {
	msgs []kafka.Message
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func TestKafkaAuditSinkTopics(t *testing.T) {
	w := &memWriter{}
	s := NewKafkaAuditSink(pkgkafka.NewProducerFromWriter(w, "gzip"), "sigtrack.audits")
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, record("BTCUSDT"), false))
	require.NoError(t, s.Write(ctx, record("ETHUSDT", models.ErrNumeric), true))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "sigtrack.audits.all", w.msgs[0].Topic)
	assert.Equal(t, "sigtrack.audits.all", w.msgs[1].Topic)
	assert.Equal(t, "sigtrack.audits.failures", w.msgs[2].Topic)
	assert.Equal(t, []byte("ETHUSDT"), w.msgs[2].Key)
}

func TestClickHouseAuditSinkInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewClickHouseAuditSink(pkgch.NewFromDB(db), "audit_records")
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO audit_records").ExpectExec().
		WithArgs("id-XXX", sqlmock.AnyArg(), "XXX", "BUY", "LIVE", "CONFIG_INVALIDA", "E_SYMBOL,E_NUM", uint8(1),
			nil, nil, nil, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Write(context.Background(), record("XXX", models.ErrSymbol, models.ErrNumeric), true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type failingSink struct{ closed bool }

func (f *failingSink) Write(context.Context, models.AuditRecord, bool) error {
	return errors.New("disk full")
}

func (f *failingSink) Close() error {
	f.closed = true
	return nil
}

func TestMultiSinkContinuesPastFailure(t *testing.T) {
	dir := t.TempDir()
	jsonl, err := NewJSONLAuditSink(dir)
	require.NoError(t, err)
	bad := &failingSink{}

	m := NewMultiSink(bad, jsonl)
	err = m.Write(context.Background(), record("BTCUSDT"), false)
	assert.Error(t, err)
	require.NoError(t, m.Close())
	assert.True(t, bad.closed)
	assert.Equal(t, 1, countLines(t, filepath.Join(dir, AuditAllFile)))
}

package repository

import (
	"context"
	"errors"

	"SigTrack/internal/domain/models"
	domrepo "SigTrack/internal/domain/repository"
)

// MultiSink fans every record out to all sinks. A failing sink does not stop
// the others; errors are joined.
type MultiSink struct {
	sinks []domrepo.AuditSink
}

var _ domrepo.AuditSink = (*MultiSink)(nil)

func NewMultiSink(sinks ...domrepo.AuditSink) *MultiSink {
	out := make([]domrepo.AuditSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

func (m *MultiSink) Write(ctx context.Context, rec models.AuditRecord, failure bool) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, rec, failure); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

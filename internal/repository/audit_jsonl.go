package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"SigTrack/internal/domain/models"
	domrepo "SigTrack/internal/domain/repository"
)

const (
	AuditAllFile      = "audits.jsonl"
	AuditFailuresFile = "failures.jsonl"
)

// JSONLAuditSink appends audit records as JSON lines to two files in dir.
type JSONLAuditSink struct {
	mu       sync.Mutex
	all      *os.File
	failures *os.File
	allEnc   *json.Encoder
	failEnc  *json.Encoder
}

var _ domrepo.AuditSink = (*JSONLAuditSink)(nil)

func NewJSONLAuditSink(dir string) (*JSONLAuditSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit dir: %w", err)
	}
	all, err := openAppend(filepath.Join(dir, AuditAllFile))
	if err != nil {
		return nil, err
	}
	failures, err := openAppend(filepath.Join(dir, AuditFailuresFile))
	if err != nil {
		_ = all.Close()
		return nil, err
	}
	return &JSONLAuditSink{
		all:      all,
		failures: failures,
		allEnc:   json.NewEncoder(all),
		failEnc:  json.NewEncoder(failures),
	}, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// Write appends rec to the all-records file and, when failure is set, to the
// failures file.
func (s *JSONLAuditSink) Write(_ context.Context, rec models.AuditRecord, failure bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.all == nil {
		return fmt.Errorf("audit sink closed")
	}
	if err := s.allEnc.Encode(rec); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	if failure {
		if err := s.failEnc.Encode(rec); err != nil {
			return fmt.Errorf("append failure: %w", err)
		}
	}
	return nil
}

func (s *JSONLAuditSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.all == nil {
		return nil
	}
	err1 := s.all.Close()
	err2 := s.failures.Close()
	s.all, s.failures = nil, nil
	if err1 != nil {
		return err1
	}
	return err2
}

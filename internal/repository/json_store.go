package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"SigTrack/internal/domain/models"
	domrepo "SigTrack/internal/domain/repository"
)

// JSONStore keeps the active set and the history archive as two JSON array
// documents. Every mutation is flushed with write-to-temp plus rename.
type JSONStore struct {
	mu          sync.Mutex
	activePath  string
	historyPath string

	active   []models.Signal
	keys     map[string]struct{}
	history  []models.HistoryEntry
	archived map[string]struct{}
}

var _ domrepo.SignalStore = (*JSONStore)(nil)

// NewJSONStore loads both documents. Missing files start empty. An active key
// that is already archived is dropped, which completes a promotion that was
// interrupted between the two writes.
func NewJSONStore(activePath, historyPath string) (*JSONStore, error) {
	s := &JSONStore{
		activePath:  activePath,
		historyPath: historyPath,
		keys:        make(map[string]struct{}),
		archived:    make(map[string]struct{}),
	}

	var active []models.Signal
	if err := readJSON(activePath, &active); err != nil {
		return nil, fmt.Errorf("load active: %w", err)
	}
	if err := readJSON(historyPath, &s.history); err != nil {
		return nil, fmt.Errorf("load history (try repair-history): %w", err)
	}

	for _, h := range s.history {
		s.archived[h.Signal.Key()] = struct{}{}
	}
	dropped := 0
	for _, sig := range active {
		k := sig.Key()
		if _, ok := s.archived[k]; ok {
			dropped++
			continue
		}
		if _, ok := s.keys[k]; ok {
			dropped++
			continue
		}
		s.keys[k] = struct{}{}
		s.active = append(s.active, sig)
	}
	if dropped > 0 {
		if err := WriteJSONArray(activePath, s.active); err != nil {
			return nil, fmt.Errorf("reconcile active: %w", err)
		}
	}
	return s, nil
}

// Add appends signals whose key is neither active nor archived. Both kinds
// of repeat are counted as duplicates, not reported as errors.
func (s *JSONStore) Add(_ context.Context, signals []models.Signal) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.active
	added, dups := 0, 0
	fresh := make(map[string]struct{})
	for _, sig := range signals {
		k := sig.Key()
		_, inActive := s.keys[k]
		_, inHistory := s.archived[k]
		_, inBatch := fresh[k]
		if inActive || inHistory || inBatch {
			dups++
			continue
		}
		fresh[k] = struct{}{}
		next = append(next, sig)
		added++
	}
	if added == 0 {
		return 0, dups, nil
	}
	if err := WriteJSONArray(s.activePath, next); err != nil {
		return 0, 0, fmt.Errorf("save active: %w", err)
	}
	s.active = next
	for k := range fresh {
		s.keys[k] = struct{}{}
	}
	return added, dups, nil
}

func (s *JSONStore) Active(context.Context) ([]models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Signal, len(s.active))
	copy(out, s.active)
	return out, nil
}

func (s *JSONStore) History(context.Context) ([]models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out, nil
}

// Promote archives entries and removes their keys from the active set.
// Entries whose key is not active are ignored, so a key is archived once per
// terminal transition. History is written before the active set.
func (s *JSONStore) Promote(_ context.Context, entries []models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remove := make(map[string]struct{}, len(entries))
	history := s.history
	for _, e := range entries {
		k := e.Signal.Key()
		if _, ok := s.keys[k]; !ok {
			continue
		}
		if _, ok := remove[k]; ok {
			continue
		}
		remove[k] = struct{}{}
		history = append(history, e)
	}
	if len(remove) == 0 {
		return nil
	}

	active := make([]models.Signal, 0, len(s.active))
	for _, sig := range s.active {
		if _, ok := remove[sig.Key()]; !ok {
			active = append(active, sig)
		}
	}

	if err := WriteJSONArray(s.historyPath, history); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	s.history = history
	for k := range remove {
		delete(s.keys, k)
		s.archived[k] = struct{}{}
	}
	s.active = active
	if err := WriteJSONArray(s.activePath, active); err != nil {
		return fmt.Errorf("save active: %w", err)
	}
	return nil
}

func readJSON(path string, dest any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dest)
}

// WriteJSONArray replaces path atomically. Nil slices are written as [].
func WriteJSONArray[T any](path string, items []T) error {
	if items == nil {
		items = []T{}
	}
	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Package store archives terminal run states and their assembled reports.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/mirrorlake/augur/research"
	"github.com/mirrorlake/augur/types"
)

// Record is one archived run: the terminal state snapshot plus the rendered
// report.
type Record struct {
	RunID      string             `json:"run_id" bson:"run_id"`
	Snapshot   *research.Snapshot `json:"snapshot" bson:"snapshot"`
	Report     string             `json:"report" bson:"report"`
	ArchivedAt time.Time          `json:"archived_at" bson:"archived_at"`
}

// Archive stores run records. Saving the same run twice replaces the record,
// so retried archival after a partial failure is safe.
type Archive interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, runID string) (*Record, error)
}

// MemoryArchive keeps records in process memory. Used when no Mongo endpoint
// is configured, and in tests.
type MemoryArchive struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{records: make(map[string]*Record)}
}

// Save stores or replaces the record.
func (a *MemoryArchive) Save(_ context.Context, rec *Record) error {
	if rec == nil || rec.RunID == "" {
		return types.NewError(types.ErrInvalidRequest, "archive: record needs a run id")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *rec
	a.records[rec.RunID] = &cp
	return nil
}

// Get returns the record for a run, or RUN_NOT_FOUND.
func (a *MemoryArchive) Get(_ context.Context, runID string) (*Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.records[runID]
	if !ok {
		return nil, types.NewError(types.ErrRunNotFound, "archive: no record for run "+runID)
	}
	cp := *rec
	return &cp, nil
}

package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mirrorlake/augur/report"
	"github.com/mirrorlake/augur/research"
	"github.com/mirrorlake/augur/store"
	"github.com/mirrorlake/augur/types"
)

// RunResult is the terminal outcome of one run: the final state snapshot and
// the assembled report.
type RunResult struct {
	Snapshot *research.Snapshot `json:"snapshot"`
	Report   report.Document    `json:"report"`
}

// runHandle tracks one run from submission to terminal state.
type runHandle struct {
	state  *research.State
	done   chan struct{}
	result *RunResult
}

// Manager is the front of the engine: it accepts run submissions, drives
// each run on its own goroutine, hands terminal states to the assembler,
// and archives the outcome.
type Manager struct {
	runner    *Runner
	assembler report.Assembler
	archive   store.Archive
	logger    *zap.Logger

	mu   sync.RWMutex
	runs map[string]*runHandle

	// baseCtx detaches run execution from the submitting request.
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewManager creates a run manager. archive may be nil; assembler must not.
func NewManager(runner *Runner, assembler report.Assembler, archive store.Archive, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		runner:    runner,
		assembler: assembler,
		archive:   archive,
		logger:    logger.With(zap.String("component", "run_manager")),
		runs:      make(map[string]*runHandle),
		baseCtx:   context.Background(),
	}
}

// StartRun validates the subject, allocates a run ID and starts the pipeline
// asynchronously. It returns as soon as the run is registered.
func (m *Manager) StartRun(_ context.Context, subject research.Subject) (string, error) {
	if err := subject.Validate(); err != nil {
		return "", types.NewError(types.ErrInvalidRequest, err.Error())
	}

	runID := uuid.NewString()
	handle := &runHandle{
		state: research.NewState(runID, subject),
		done:  make(chan struct{}),
	}

	m.mu.Lock()
	m.runs[runID] = handle
	m.mu.Unlock()

	m.wg.Add(1)
	go m.execute(handle)

	m.logger.Info("run submitted",
		zap.String("run_id", runID),
		zap.String("company", subject.Company),
	)
	return runID, nil
}

func (m *Manager) execute(handle *runHandle) {
	defer m.wg.Done()
	defer close(handle.done)

	if err := m.runner.Run(m.baseCtx, handle.state); err != nil {
		m.logger.Error("run could not start", zap.String("run_id", handle.state.RunID()), zap.Error(err))
		return
	}

	snap := handle.state.Snapshot()
	doc := m.assembler.Assemble(snap)
	handle.result = &RunResult{Snapshot: snap, Report: doc}

	if m.archive != nil {
		ctx, cancel := context.WithTimeout(m.baseCtx, 15*time.Second)
		defer cancel()
		err := m.archive.Save(ctx, &store.Record{
			RunID:      snap.RunID,
			Snapshot:   snap,
			Report:     doc.Markdown,
			ArchivedAt: time.Now().UTC(),
		})
		if err != nil {
			// Archival is best-effort; the in-memory result stays available.
			m.logger.Warn("run archive failed", zap.String("run_id", snap.RunID), zap.Error(err))
		}
	}
}

// Status returns the current run status.
func (m *Manager) Status(runID string) (research.RunStatus, error) {
	m.mu.RLock()
	handle, ok := m.runs[runID]
	m.mu.RUnlock()
	if !ok {
		return "", types.NewError(types.ErrRunNotFound, "no run "+runID)
	}
	select {
	case <-handle.done:
		return handle.state.Status(), nil
	default:
		// The runner goroutine owns the state until done; report coarsely.
		return research.RunRunning, nil
	}
}

// GetFinalState returns the terminal snapshot and report for a run.
// A run still in flight yields RUN_NOT_TERMINAL; an unknown run falls back
// to the archive before reporting RUN_NOT_FOUND.
func (m *Manager) GetFinalState(ctx context.Context, runID string) (*RunResult, error) {
	m.mu.RLock()
	handle, ok := m.runs[runID]
	m.mu.RUnlock()

	if !ok {
		if m.archive != nil {
			rec, err := m.archive.Get(ctx, runID)
			if err == nil {
				return &RunResult{
					Snapshot: rec.Snapshot,
					Report:   report.Document{RunID: rec.RunID, Markdown: rec.Report, GeneratedAt: rec.ArchivedAt},
				}, nil
			}
		}
		return nil, types.NewError(types.ErrRunNotFound, "no run "+runID)
	}

	select {
	case <-handle.done:
	default:
		return nil, types.NewError(types.ErrRunNotTerminal, "run "+runID+" has not reached a terminal status")
	}

	if handle.result == nil {
		return nil, types.NewError(types.ErrInternalError, "run "+runID+" finished without a result")
	}
	return handle.result, nil
}

// Wait blocks until a run reaches a terminal state or the context ends.
func (m *Manager) Wait(ctx context.Context, runID string) error {
	m.mu.RLock()
	handle, ok := m.runs[runID]
	m.mu.RUnlock()
	if !ok {
		return types.NewError(types.ErrRunNotFound, "no run "+runID)
	}
	select {
	case <-handle.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown waits for all in-flight runs to finish.
func (m *Manager) Shutdown() {
	m.wg.Wait()
}

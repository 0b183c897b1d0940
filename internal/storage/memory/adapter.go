// Package memory provides an in-memory storage adapter. Runs do not
// survive a restart; it backs tests and throwaway deployments.
package memory

import (
	"sort"
	"sync"
	"time"

	"conveyor/internal/common/errors"
	"conveyor/internal/storage"
)

type Adapter struct {
	mu      sync.RWMutex
	runs    map[string]*storage.RunRecord
	results map[string][]*storage.StageResultRecord
	gates   map[string]*storage.PendingGateRecord
}

func NewAdapter() *Adapter {
	return &Adapter{
		runs:    make(map[string]*storage.RunRecord),
		results: make(map[string][]*storage.StageResultRecord),
		gates:   make(map[string]*storage.PendingGateRecord),
	}
}

func (a *Adapter) Connect(config storage.StorageConfig) error { return nil }
func (a *Adapter) Close() error                               { return nil }
func (a *Adapter) Health() error                              { return nil }

func (a *Adapter) CreateRun(run *storage.RunRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.runs[run.ID]; exists {
		return errors.ConflictError("run " + run.ID)
	}

	now := time.Now()
	stored := *run
	stored.CreatedAt = now
	stored.UpdatedAt = now
	a.runs[run.ID] = &stored
	return nil
}

func (a *Adapter) UpdateRun(run *storage.RunRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, ok := a.runs[run.ID]
	if !ok {
		return errors.NotFoundError("run " + run.ID)
	}

	stored := *run
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now()
	a.runs[run.ID] = &stored
	return nil
}

func (a *Adapter) GetRun(runID string) (*storage.RunRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	run, ok := a.runs[runID]
	if !ok {
		return nil, errors.NotFoundError("run " + runID)
	}
	copied := *run
	return &copied, nil
}

func (a *Adapter) ListRuns(limit, offset int) ([]*storage.RunRecord, int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	all := a.sortedRuns()
	total := len(all)
	return page(all, limit, offset), total, nil
}

func (a *Adapter) ListRunsByStatus(status string, limit, offset int) ([]*storage.RunRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var matched []*storage.RunRecord
	for _, run := range a.sortedRuns() {
		if run.Status == status {
			matched = append(matched, run)
		}
	}
	return page(matched, limit, offset), nil
}

func (a *Adapter) sortedRuns() []*storage.RunRecord {
	all := make([]*storage.RunRecord, 0, len(a.runs))
	for _, run := range a.runs {
		copied := *run
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all
}

func page(runs []*storage.RunRecord, limit, offset int) []*storage.RunRecord {
	if offset >= len(runs) {
		return nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs
}

func (a *Adapter) SaveStageResult(runID string, result *storage.StageResultRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	stored := *result
	stored.RunID = runID

	// A re-executed stage overwrites its previous result.
	for i, existing := range a.results[runID] {
		if existing.Path == stored.Path {
			a.results[runID][i] = &stored
			return nil
		}
	}
	a.results[runID] = append(a.results[runID], &stored)
	return nil
}

func (a *Adapter) GetStageResults(runID string) ([]*storage.StageResultRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	results := make([]*storage.StageResultRecord, 0, len(a.results[runID]))
	for _, r := range a.results[runID] {
		copied := *r
		results = append(results, &copied)
	}
	return results, nil
}

func (a *Adapter) SavePendingGate(gate *storage.PendingGateRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	stored := *gate
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	a.gates[gate.RunID] = &stored
	return nil
}

func (a *Adapter) GetPendingGate(runID string) (*storage.PendingGateRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	gate, ok := a.gates[runID]
	if !ok {
		return nil, errors.NotFoundError("pending gate for run " + runID)
	}
	copied := *gate
	return &copied, nil
}

func (a *Adapter) ClearPendingGate(runID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.gates, runID)
	return nil
}

// Factory creates memory adapters.
type Factory struct{}

func (Factory) GetType() string { return "memory" }

func (Factory) Create(config storage.StorageConfig) (storage.Storage, error) {
	return NewAdapter(), nil
}

func init() {
	storage.Register(Factory{})
}

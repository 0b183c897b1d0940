// Package storage persists pipeline runs, stage results and pending
// approval gates so runs survive orchestrator restarts. Adapters register
// themselves with the default registry; the factory picks one from
// configuration.
package storage

// Storage is the persistence contract for pipeline runs.
type Storage interface {
	// Connection management
	Connect(config StorageConfig) error
	Close() error
	Health() error

	// Runs
	CreateRun(run *RunRecord) error
	UpdateRun(run *RunRecord) error
	GetRun(runID string) (*RunRecord, error)
	ListRuns(limit, offset int) ([]*RunRecord, int, error)
	ListRunsByStatus(status string, limit, offset int) ([]*RunRecord, error)

	// Stage results
	SaveStageResult(runID string, result *StageResultRecord) error
	GetStageResults(runID string) ([]*StageResultRecord, error)

	// Pending approval gates
	SavePendingGate(gate *PendingGateRecord) error
	GetPendingGate(runID string) (*PendingGateRecord, error)
	ClearPendingGate(runID string) error
}

// StorageConfig is implemented by adapter-specific configuration types.
type StorageConfig interface {
	GetType() string
	Validate() error
}

// StorageFactory creates a storage adapter from its configuration.
type StorageFactory interface {
	Create(config StorageConfig) (Storage, error)
	GetType() string
}

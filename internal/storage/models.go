package storage

import (
	"encoding/json"
	"time"
)

// RunRecord is the persisted form of a pipeline run.
type RunRecord struct {
	ID           string            `json:"id"`
	Pipeline     string            `json:"pipeline"`
	Status       string            `json:"status"`
	TimedOut     bool              `json:"timedOut"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	Environment  map[string]string `json:"environment,omitempty"`
	RootSnapshot json.RawMessage   `json:"rootSnapshot,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	FinishedAt   *time.Time        `json:"finishedAt,omitempty"`
}

// StageResultRecord is the persisted outcome of one stage in a run.
// Path identifies the stage by its slash-separated position in the tree.
type StageResultRecord struct {
	RunID      string    `json:"runId"`
	Path       string    `json:"path"`
	Status     string    `json:"status"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// PendingGateRecord marks a run paused at an approval gate. It carries
// enough context to resume the run after a restart.
type PendingGateRecord struct {
	RunID     string    `json:"runId"`
	StagePath string    `json:"stagePath"`
	StageName string    `json:"stageName"`
	Message   string    `json:"message"`
	Approvers []string  `json:"approvers,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

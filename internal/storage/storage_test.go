package storage_test

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conveyor/internal/common/errors"
	"conveyor/internal/storage"
	"conveyor/internal/storage/memory"
	"conveyor/internal/storage/sqlite"
)

func adapters(t *testing.T) map[string]storage.Storage {
	t.Helper()

	sqliteAdapter, err := sqlite.NewAdapter(&sqlite.Config{
		DatabasePath: filepath.Join(t.TempDir(), "conveyor.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { sqliteAdapter.Close() })

	return map[string]storage.Storage{
		"memory": memory.NewAdapter(),
		"sqlite": sqliteAdapter,
	}
}

func TestStorage_RunLifecycle(t *testing.T) {
	for name, store := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			run := &storage.RunRecord{
				ID:           "run-1",
				Pipeline:     "node-vm",
				Status:       "RUNNING",
				Parameters:   map[string]string{"VERSION": "1.0.0"},
				Environment:  map[string]string{"ENVIRONMENT": "qa"},
				RootSnapshot: json.RawMessage(`{"name":"Main","kind":"sequential"}`),
			}
			require.NoError(t, store.CreateRun(run))

			// Duplicate IDs are rejected.
			assert.Error(t, store.CreateRun(run))

			got, err := store.GetRun("run-1")
			require.NoError(t, err)
			assert.Equal(t, "node-vm", got.Pipeline)
			assert.Equal(t, "RUNNING", got.Status)
			assert.Equal(t, "1.0.0", got.Parameters["VERSION"])
			assert.JSONEq(t, `{"name":"Main","kind":"sequential"}`, string(got.RootSnapshot))

			finished := time.Now().UTC().Truncate(time.Second)
			got.Status = "SUCCESS"
			got.FinishedAt = &finished
			require.NoError(t, store.UpdateRun(got))

			updated, err := store.GetRun("run-1")
			require.NoError(t, err)
			assert.Equal(t, "SUCCESS", updated.Status)
			require.NotNil(t, updated.FinishedAt)
		})
	}
}

func TestStorage_GetRunNotFound(t *testing.T) {
	for name, store := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetRun("missing")
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))

			err = store.UpdateRun(&storage.RunRecord{ID: "missing", Status: "FAILURE"})
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
		})
	}
}

func TestStorage_ListRuns(t *testing.T) {
	for name, store := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"run-a", "run-b", "run-c"} {
				require.NoError(t, store.CreateRun(&storage.RunRecord{
					ID: id, Pipeline: "p", Status: "SUCCESS",
				}))
			}
			require.NoError(t, store.CreateRun(&storage.RunRecord{
				ID: "run-paused", Pipeline: "p", Status: "PAUSED_FOR_INPUT",
			}))

			runs, total, err := store.ListRuns(10, 0)
			require.NoError(t, err)
			assert.Equal(t, 4, total)
			assert.Len(t, runs, 4)

			paged, total, err := store.ListRuns(2, 0)
			require.NoError(t, err)
			assert.Equal(t, 4, total)
			assert.Len(t, paged, 2)

			paused, err := store.ListRunsByStatus("PAUSED_FOR_INPUT", 10, 0)
			require.NoError(t, err)
			require.Len(t, paused, 1)
			assert.Equal(t, "run-paused", paused[0].ID)
		})
	}
}

func TestStorage_StageResults(t *testing.T) {
	for name, store := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.CreateRun(&storage.RunRecord{ID: "run-1", Pipeline: "p", Status: "RUNNING"}))

			started := time.Now().UTC().Truncate(time.Second)
			require.NoError(t, store.SaveStageResult("run-1", &storage.StageResultRecord{
				Path:      "Main/Build",
				Status:    "FAILED",
				Output:    "compile error",
				Error:     "step Build exited with code 2",
				StartedAt: started, FinishedAt: started.Add(time.Second),
			}))

			// Re-executing a stage overwrites its result.
			require.NoError(t, store.SaveStageResult("run-1", &storage.StageResultRecord{
				Path:      "Main/Build",
				Status:    "PASSED",
				StartedAt: started.Add(time.Minute), FinishedAt: started.Add(2 * time.Minute),
			}))
			require.NoError(t, store.SaveStageResult("run-1", &storage.StageResultRecord{
				Path:      "Main/Deploy",
				Status:    "PASSED",
				StartedAt: started.Add(3 * time.Minute), FinishedAt: started.Add(4 * time.Minute),
			}))

			results, err := store.GetStageResults("run-1")
			require.NoError(t, err)
			require.Len(t, results, 2)

			byPath := map[string]string{}
			for _, r := range results {
				byPath[r.Path] = r.Status
			}
			assert.Equal(t, "PASSED", byPath["Main/Build"])
			assert.Equal(t, "PASSED", byPath["Main/Deploy"])
		})
	}
}

func TestStorage_PendingGates(t *testing.T) {
	for name, store := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.CreateRun(&storage.RunRecord{ID: "run-1", Pipeline: "p", Status: "PAUSED_FOR_INPUT"}))

			require.NoError(t, store.SavePendingGate(&storage.PendingGateRecord{
				RunID:     "run-1",
				StagePath: "Main/Approve",
				StageName: "Approve",
				Message:   "deploy to prod?",
				Approvers: []string{"alice", "bob"},
			}))

			gate, err := store.GetPendingGate("run-1")
			require.NoError(t, err)
			assert.Equal(t, "Main/Approve", gate.StagePath)
			assert.Equal(t, []string{"alice", "bob"}, gate.Approvers)

			require.NoError(t, store.ClearPendingGate("run-1"))
			_, err = store.GetPendingGate("run-1")
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
		})
	}
}

func TestRegistry_AdapterTypes(t *testing.T) {
	types := storage.GetAvailableTypes()
	assert.Contains(t, types, "memory")
	assert.Contains(t, types, "sqlite")
}

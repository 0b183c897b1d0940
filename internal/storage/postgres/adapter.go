// Package postgres provides the PostgreSQL storage adapter, used when
// multiple orchestrator instances share one run database.
package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"conveyor/internal/common/errors"
	"conveyor/internal/storage"
)

type Adapter struct {
	db     *sql.DB
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL config: %w", err)
	}

	db, err := sql.Open("pgx", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adapter := &Adapter{
		db:     db,
		config: config,
	}

	if err := adapter.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) Connect(config storage.StorageConfig) error {
	pgConfig, ok := config.(*Config)
	if !ok {
		return fmt.Errorf("invalid config type for PostgreSQL storage")
	}

	newAdapter, err := NewAdapter(pgConfig)
	if err != nil {
		return err
	}

	if a.db != nil {
		a.db.Close()
	}

	a.db = newAdapter.db
	a.config = newAdapter.config

	return nil
}

func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *Adapter) Health() error {
	return a.db.Ping()
}

func (a *Adapter) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			pipeline TEXT NOT NULL,
			status TEXT NOT NULL,
			timed_out BOOLEAN DEFAULT FALSE,
			parameters JSONB DEFAULT '{}',
			environment JSONB DEFAULT '{}',
			root_snapshot JSONB,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS stage_results (
			run_id TEXT NOT NULL REFERENCES runs (id),
			path TEXT NOT NULL,
			status TEXT NOT NULL,
			output TEXT DEFAULT '',
			error TEXT DEFAULT '',
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			PRIMARY KEY (run_id, path)
		)`,
		`CREATE TABLE IF NOT EXISTS pending_gates (
			run_id TEXT PRIMARY KEY REFERENCES runs (id),
			stage_path TEXT NOT NULL,
			stage_name TEXT NOT NULL,
			message TEXT DEFAULT '',
			approvers JSONB DEFAULT '[]',
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs (status)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at)`,
	}

	for _, query := range queries {
		if _, err := a.db.Exec(query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (a *Adapter) CreateRun(run *storage.RunRecord) error {
	params, env, err := marshalRunMaps(run)
	if err != nil {
		return err
	}

	_, err = a.db.Exec(`
		INSERT INTO runs (id, pipeline, status, timed_out, parameters, environment, root_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Pipeline, run.Status, run.TimedOut, params, env, nullableJSON(run.RootSnapshot))
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (a *Adapter) UpdateRun(run *storage.RunRecord) error {
	params, env, err := marshalRunMaps(run)
	if err != nil {
		return err
	}

	result, err := a.db.Exec(`
		UPDATE runs SET status = $1, timed_out = $2, parameters = $3, environment = $4,
			root_snapshot = $5, finished_at = $6, updated_at = NOW()
		WHERE id = $7`,
		run.Status, run.TimedOut, params, env, nullableJSON(run.RootSnapshot), run.FinishedAt, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return errors.NotFoundError("run " + run.ID)
	}
	return nil
}

func (a *Adapter) GetRun(runID string) (*storage.RunRecord, error) {
	row := a.db.QueryRow(`
		SELECT id, pipeline, status, timed_out, parameters, environment, root_snapshot,
			created_at, updated_at, finished_at
		FROM runs WHERE id = $1`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("run " + runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (a *Adapter) ListRuns(limit, offset int) ([]*storage.RunRecord, int, error) {
	var total int
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	rows, err := a.db.Query(`
		SELECT id, pipeline, status, timed_out, parameters, environment, root_snapshot,
			created_at, updated_at, finished_at
		FROM runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs, err := collectRuns(rows)
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

func (a *Adapter) ListRunsByStatus(status string, limit, offset int) ([]*storage.RunRecord, error) {
	rows, err := a.db.Query(`
		SELECT id, pipeline, status, timed_out, parameters, environment, root_snapshot,
			created_at, updated_at, finished_at
		FROM runs WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs by status: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

func (a *Adapter) SaveStageResult(runID string, result *storage.StageResultRecord) error {
	_, err := a.db.Exec(`
		INSERT INTO stage_results (run_id, path, status, output, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, path) DO UPDATE SET
			status = EXCLUDED.status,
			output = EXCLUDED.output,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at`,
		runID, result.Path, result.Status, result.Output, result.Error,
		result.StartedAt, result.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to save stage result: %w", err)
	}
	return nil
}

func (a *Adapter) GetStageResults(runID string) ([]*storage.StageResultRecord, error) {
	rows, err := a.db.Query(`
		SELECT run_id, path, status, output, error, started_at, finished_at
		FROM stage_results WHERE run_id = $1 ORDER BY started_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stage results: %w", err)
	}
	defer rows.Close()

	var results []*storage.StageResultRecord
	for rows.Next() {
		r := &storage.StageResultRecord{}
		if err := rows.Scan(&r.RunID, &r.Path, &r.Status, &r.Output, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stage result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (a *Adapter) SavePendingGate(gate *storage.PendingGateRecord) error {
	approvers, err := json.Marshal(gate.Approvers)
	if err != nil {
		return fmt.Errorf("failed to marshal approvers: %w", err)
	}

	_, err = a.db.Exec(`
		INSERT INTO pending_gates (run_id, stage_path, stage_name, message, approvers)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			stage_path = EXCLUDED.stage_path,
			stage_name = EXCLUDED.stage_name,
			message = EXCLUDED.message,
			approvers = EXCLUDED.approvers`,
		gate.RunID, gate.StagePath, gate.StageName, gate.Message, string(approvers))
	if err != nil {
		return fmt.Errorf("failed to save pending gate: %w", err)
	}
	return nil
}

func (a *Adapter) GetPendingGate(runID string) (*storage.PendingGateRecord, error) {
	gate := &storage.PendingGateRecord{}
	var approvers string

	err := a.db.QueryRow(`
		SELECT run_id, stage_path, stage_name, message, approvers, created_at
		FROM pending_gates WHERE run_id = $1`, runID).
		Scan(&gate.RunID, &gate.StagePath, &gate.StageName, &gate.Message, &approvers, &gate.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("pending gate for run " + runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending gate: %w", err)
	}

	if err := json.Unmarshal([]byte(approvers), &gate.Approvers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal approvers: %w", err)
	}
	return gate, nil
}

func (a *Adapter) ClearPendingGate(runID string) error {
	if _, err := a.db.Exec(`DELETE FROM pending_gates WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("failed to clear pending gate: %w", err)
	}
	return nil
}

func marshalRunMaps(run *storage.RunRecord) (string, string, error) {
	params, err := json.Marshal(orEmpty(run.Parameters))
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal parameters: %w", err)
	}
	env, err := json.Marshal(orEmpty(run.Environment))
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal environment: %w", err)
	}
	return string(params), string(env), nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*storage.RunRecord, error) {
	run := &storage.RunRecord{}
	var params, env string
	var snapshot sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&run.ID, &run.Pipeline, &run.Status, &run.TimedOut,
		&params, &env, &snapshot, &run.CreatedAt, &run.UpdatedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(params), &run.Parameters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameters: %w", err)
	}
	if err := json.Unmarshal([]byte(env), &run.Environment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment: %w", err)
	}
	if snapshot.Valid && snapshot.String != "" {
		run.RootSnapshot = json.RawMessage(snapshot.String)
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return run, nil
}

func collectRuns(rows *sql.Rows) ([]*storage.RunRecord, error) {
	var runs []*storage.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Factory creates PostgreSQL adapters from generic configuration.
type Factory struct{}

func (Factory) GetType() string { return "postgres" }

func (Factory) Create(config storage.StorageConfig) (storage.Storage, error) {
	switch c := config.(type) {
	case *Config:
		return NewAdapter(c)
	case storage.GenericConfig:
		return NewAdapter(&Config{
			Host:     c.String("host", "localhost"),
			Port:     c.Int("port", 5432),
			Database: c.String("database", ""),
			Username: c.String("username", ""),
			Password: c.String("password", ""),
			SSLMode:  c.String("sslmode", "disable"),
		})
	default:
		return nil, fmt.Errorf("invalid config type for PostgreSQL storage")
	}
}

func init() {
	storage.Register(Factory{})
}

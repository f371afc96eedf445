package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"grain_sim/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	start_year INTEGER NOT NULL,
	horizon_year INTEGER NOT NULL,
	seed INTEGER NOT NULL DEFAULT 0,
	row_count INTEGER NOT NULL DEFAULT 0,
	config TEXT NOT NULL,
	last_error TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL,
	finished_at INTEGER NULL
);

CREATE TABLE IF NOT EXISTS observations (
	run_id TEXT NOT NULL,
	timepoint INTEGER NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	precipitation REAL NOT NULL,
	temperature REAL NOT NULL,
	crop_height REAL NOT NULL,
	grazer_count INTEGER NOT NULL,
	pest_count INTEGER NOT NULL,
	PRIMARY KEY(run_id, timepoint),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS run_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	reason TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, created_at);
`

type Store struct {
	db *sql.DB
}

// Open connects to the database at dbPath. Foreign keys and the busy
// timeout go in the DSN so every pooled connection gets them.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) CreateRun(ctx context.Context, run domain.Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}
	cfg := string(run.Config)
	if cfg == "" {
		cfg = "{}"
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs(id, status, start_year, horizon_year, seed, row_count, config, last_error, started_at, finished_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), run.StartYear, run.HorizonYear, run.Seed, run.Rows, cfg,
		run.LastError, run.StartedAt.Unix(), nullableUnix(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun closes a run with its final status. The row count is taken from
// the observations table.
func (s *Store) FinishRun(ctx context.Context, runID string, status domain.RunStatus, lastError string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET
			status = ?,
			last_error = ?,
			row_count = (SELECT COUNT(*) FROM observations WHERE run_id = runs.id),
			finished_at = ?
		WHERE id = ?`,
		string(status), lastError, time.Now().UTC().Unix(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

const runColumns = `id, status, start_year, horizon_year, seed, row_count, config, last_error, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (domain.Run, error) {
	var r domain.Run
	var status string
	var cfg string
	var started int64
	var finished sql.NullInt64
	if err := row.Scan(
		&r.ID, &status, &r.StartYear, &r.HorizonYear, &r.Seed, &r.Rows, &cfg, &r.LastError, &started, &finished,
	); err != nil {
		return domain.Run{}, err
	}
	r.Status = domain.RunStatus(status)
	r.Config = []byte(cfg)
	r.StartedAt = unixToTime(started)
	r.FinishedAt = int64ToTimePtr(finished)
	return r, nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		return domain.Run{}, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}

func (s *Store) AppendObservation(ctx context.Context, runID string, obs domain.Observation) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO observations(
			run_id, timepoint, year, month, precipitation, temperature, crop_height, grazer_count, pest_count
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, obs.Timepoint, obs.Year, obs.Month, obs.Precipitation, obs.Temperature,
		obs.CropHeight, obs.GrazerCount, obs.PestCount,
	)
	if err != nil {
		return fmt.Errorf("append observation: %w", err)
	}
	return nil
}

// ListObservations returns up to limit rows of a run in timepoint order.
func (s *Store) ListObservations(ctx context.Context, runID string, limit int) ([]domain.Observation, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT timepoint, year, month, precipitation, temperature, crop_height, grazer_count, pest_count
		FROM observations
		WHERE run_id = ?
		ORDER BY timepoint ASC
		LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Observation, 0)
	for rows.Next() {
		var o domain.Observation
		if err := rows.Scan(
			&o.Timepoint, &o.Year, &o.Month, &o.Precipitation, &o.Temperature,
			&o.CropHeight, &o.GrazerCount, &o.PestCount,
		); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return result, nil
}

func (s *Store) CountObservations(ctx context.Context, runID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations WHERE run_id = ?`, runID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count observations: %w", err)
	}
	return count, nil
}

func (s *Store) LogRunEvent(ctx context.Context, entry domain.RunEvent) error {
	payload := string(entry.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO run_events(run_id, actor, action, reason, payload, created_at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.Actor, entry.Action, entry.Reason, payload, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

func (s *Store) ListRunEvents(ctx context.Context, runID string, limit int) ([]domain.RunEvent, error) {
	if limit <= 0 {
		limit = 300
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, run_id, actor, action, reason, payload, created_at
		FROM run_events
		WHERE run_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list run events: %w", err)
	}
	defer rows.Close()

	result := make([]domain.RunEvent, 0, limit)
	for rows.Next() {
		var item domain.RunEvent
		var payload string
		var createdAt int64
		if err := rows.Scan(&item.ID, &item.RunID, &item.Actor, &item.Action, &item.Reason, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		item.Payload = []byte(payload)
		item.CreatedAt = unixToTime(createdAt)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run events: %w", err)
	}
	return result, nil
}

// RunRecorder appends observations to a single run.
type RunRecorder struct {
	store *Store
	runID string
}

func (s *Store) Recorder(runID string) *RunRecorder {
	return &RunRecorder{store: s, runID: runID}
}

func (r *RunRecorder) Record(ctx context.Context, obs domain.Observation) error {
	return r.store.AppendObservation(ctx, r.runID, obs)
}

func int64ToTimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid || v.Int64 <= 0 {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func unixToTime(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Unix()
}

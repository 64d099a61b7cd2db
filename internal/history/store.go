package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"ripcast/internal/config"
	"ripcast/internal/jobs"
)

// Record is one archived terminal job.
type Record struct {
	JobID      string    `json:"job_id"`
	SourceURL  string    `json:"source_url"`
	Format     string    `json:"format"`
	CustomName string    `json:"custom_name,omitempty"`
	Status     string    `json:"status"`
	Artifact   string    `json:"artifact,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store archives terminal jobs in SQLite. It is an observability surface
// only: live jobs are owned by the registry and are never resurrected from
// this database.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *Store) applySchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS finished_jobs (
    job_id TEXT PRIMARY KEY,
    source_url TEXT NOT NULL,
    format TEXT NOT NULL,
    custom_name TEXT,
    status TEXT NOT NULL,
    artifact TEXT,
    error_message TEXT,
    created_at TEXT NOT NULL,
    finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_finished_jobs_finished_at ON finished_jobs (finished_at);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// RecordFinished archives a terminal job snapshot. Re-recording the same job
// id overwrites the previous row.
func (s *Store) RecordFinished(ctx context.Context, snap jobs.Snapshot) error {
	if !snap.Status.Terminal() {
		return fmt.Errorf("job %s is not terminal", snap.ID)
	}
	finished := time.Now().UTC()
	if snap.FinishedAt != nil {
		finished = snap.FinishedAt.UTC()
	}
	artifact := ""
	if snap.Result != nil {
		artifact = snap.Result.Filename
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO finished_jobs (
            job_id, source_url, format, custom_name, status, artifact,
            error_message, created_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID,
		snap.SourceURL,
		snap.Format,
		nullableString(snap.CustomName),
		string(snap.Status),
		nullableString(artifact),
		nullableString(snap.Error),
		snap.CreatedAt.UTC().Format(time.RFC3339Nano),
		finished.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record finished job: %w", err)
	}
	return nil
}

// List returns archived jobs, most recently finished first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT job_id, source_url, format, custom_name, status, artifact,
                error_message, created_at, finished_at
         FROM finished_jobs ORDER BY finished_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Stats returns archived job counts grouped by terminal status.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM finished_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// PruneOlderThan removes archived rows finished before cutoff.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM finished_jobs WHERE finished_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		jobID       string
		sourceURL   string
		format      string
		customName  sql.NullString
		status      string
		artifact    sql.NullString
		errMessage  sql.NullString
		createdRaw  string
		finishedRaw string
	)
	if err := scanner.Scan(&jobID, &sourceURL, &format, &customName, &status, &artifact, &errMessage, &createdRaw, &finishedRaw); err != nil {
		return Record{}, err
	}
	record := Record{
		JobID:      jobID,
		SourceURL:  sourceURL,
		Format:     format,
		CustomName: customName.String,
		Status:     status,
		Artifact:   artifact.String,
		Error:      errMessage.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		record.CreatedAt = created
	}
	if finished, err := parseTimeString(finishedRaw); err == nil {
		record.FinishedAt = finished
	}
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

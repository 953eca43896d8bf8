package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"rc_harvester/models"
)

// SQLiteStore is the run journal: stage runs, their log lines and the
// discovery page marker.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stage_runs (
		id TEXT PRIMARY KEY,
		stage TEXT NOT NULL,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		pages INTEGER DEFAULT 0,
		records INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0,
		message TEXT
	);

	CREATE TABLE IF NOT EXISTS stage_logs (
		id INTEGER PRIMARY KEY,
		run_id TEXT,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		stage TEXT
	);

	CREATE TABLE IF NOT EXISTS discovery_cursor (
		search_key TEXT PRIMARY KEY,
		last_page INTEGER NOT NULL DEFAULT 0,
		total_results INTEGER DEFAULT 0,
		updated_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_logs_run ON stage_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_stage ON stage_runs(stage, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(run *models.StageRun) error {
	_, err := s.db.Exec(`
		INSERT INTO stage_runs (id, stage, started_at, status)
		VALUES (?, ?, ?, ?)`,
		run.ID, run.Stage, run.StartedAt, run.Status)
	return err
}

func (s *SQLiteStore) UpdateRun(run *models.StageRun) error {
	_, err := s.db.Exec(`
		UPDATE stage_runs SET finished_at = ?, status = ?, pages = ?, records = ?,
			skipped = ?, errors_count = ?, message = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.Pages, run.Records, run.Skipped, run.Errors, run.Message, run.ID)
	return err
}

// GetLastRun returns the most recent run of a stage, or nil.
func (s *SQLiteStore) GetLastRun(stage models.Stage) (*models.StageRun, error) {
	row := s.db.QueryRow(`
		SELECT id, stage, started_at, finished_at, status, pages, records, skipped, errors_count,
			COALESCE(message, '')
		FROM stage_runs WHERE stage = ? ORDER BY started_at DESC LIMIT 1`, stage)

	var r models.StageRun
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.Stage, &r.StartedAt, &finished, &r.Status, &r.Pages, &r.Records,
		&r.Skipped, &r.Errors, &r.Message)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

func (s *SQLiteStore) Log(runID uuid.UUID, stage models.Stage, level models.LogLevel, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO stage_logs (run_id, timestamp, level, message, stage)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, stage)
	return err
}

// GetCursor returns the page marker for a search, or nil if none is stored.
func (s *SQLiteStore) GetCursor(searchKey string) (*models.DiscoveryCursor, error) {
	var c models.DiscoveryCursor
	var updated sql.NullTime
	err := s.db.QueryRow(`
		SELECT search_key, last_page, COALESCE(total_results, 0), updated_at
		FROM discovery_cursor WHERE search_key = ?`, searchKey).
		Scan(&c.SearchKey, &c.LastPage, &c.TotalResults, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if updated.Valid {
		c.UpdatedAt = updated.Time
	}
	return &c, nil
}

func (s *SQLiteStore) SetCursor(c *models.DiscoveryCursor) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO discovery_cursor (search_key, last_page, total_results, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(search_key) DO UPDATE SET
			last_page = excluded.last_page,
			total_results = excluded.total_results,
			updated_at = excluded.updated_at`,
		c.SearchKey, c.LastPage, c.TotalResults, c.UpdatedAt)
	return err
}

// ResetCursor moves the marker back to before page 1. The row-count
// fallback only applies when no marker exists, so a reset keeps one.
func (s *SQLiteStore) ResetCursor(searchKey string) error {
	return s.SetCursor(&models.DiscoveryCursor{SearchKey: searchKey, LastPage: 0})
}

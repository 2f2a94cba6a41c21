// Package history persists finished runs and saved job profiles in a local
// SQLite database.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/johndauphine/chfile/internal/executor"
	"github.com/johndauphine/chfile/internal/model"
	"github.com/johndauphine/chfile/internal/session"
	_ "modernc.org/sqlite"
)

// DBFile is the database file name inside the state directory.
const DBFile = "chfile.db"

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Backend records runs and stores profiles.
type Backend interface {
	RecordRun(run Run) error
	GetAllRuns(limit int) ([]Run, error)
	GetRunByID(id string) (*Run, error)

	SaveProfile(name, description string, config []byte) error
	GetProfile(name string) ([]byte, error)
	ListProfiles() ([]ProfileInfo, error)
	DeleteProfile(name string) error

	Close() error
}

var _ Backend = (*State)(nil)

// ErrNotFound is returned for unknown run IDs and profile names.
var ErrNotFound = errors.New("not found")

// Run is one finished execution.
type Run struct {
	ID          string
	Direction   model.Direction
	Source      string // table or file the data came from
	Target      string // table, file or object the data went to
	Status      string
	Records     int64
	Message     string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// FromReport converts a session report into a history row.
func FromReport(id string, rep session.RunReport) Run {
	run := Run{
		ID:          id,
		Direction:   rep.Direction,
		Status:      StatusFailed,
		Message:     rep.Message,
		StartedAt:   rep.Started,
		CompletedAt: rep.Started.Add(rep.Duration),
	}
	snap := rep.Snapshot
	fileName := ""
	switch {
	case snap.Blob != nil:
		fileName = snap.Blob.Name
	case snap.File != nil:
		fileName = snap.File.FileName
	}
	switch rep.Direction {
	case model.DirectionExport:
		run.Source, run.Target = snap.Table, fileName
	case model.DirectionImport:
		run.Source, run.Target = fileName, snap.TargetTable
	}

	if rep.Outcome != nil && rep.Err == nil {
		run.Status = StatusSuccess
		run.Records = rep.Outcome.Records()
		switch o := rep.Outcome.(type) {
		case *executor.ExportOutcome:
			run.Target = o.SavedTo
		case *executor.ImportOutcome:
			if o.Table != "" {
				run.Target = o.Table
			}
		}
	}
	return run
}

// State is the SQLite-backed Backend.
type State struct {
	db *sql.DB
}

// New opens or creates the database in dir.
func New(dir string) (*State, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, DBFile)+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &State{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}
	return s, nil
}

func (s *State) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			direction TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			target TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			records INTEGER NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			completed_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			name TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			config BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *State) Close() error { return s.db.Close() }

// RecordRun stores a finished run. A missing ID is generated.
func (s *State) RecordRun(run Run) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.CompletedAt.IsZero() {
		run.CompletedAt = run.StartedAt
	}
	_, err := s.db.Exec(`INSERT INTO runs
		(id, direction, source, target, status, records, message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Direction), run.Source, run.Target, run.Status, run.Records,
		run.Message, run.StartedAt.UnixMilli(), run.CompletedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, direction, source, target, status, records, message, started_at, completed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                  Run
		dir                string
		started, completed int64
	)
	if err := sc.Scan(&r.ID, &dir, &r.Source, &r.Target, &r.Status, &r.Records, &r.Message, &started, &completed); err != nil {
		return Run{}, err
	}
	r.Direction = model.Direction(dir)
	r.StartedAt = time.UnixMilli(started)
	r.CompletedAt = time.UnixMilli(completed)
	return r, nil
}

// GetAllRuns returns runs newest first. limit <= 0 returns all.
func (s *State) GetAllRuns(limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRunByID returns one run, or ErrNotFound.
func (s *State) GetRunByID(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	return &r, nil
}

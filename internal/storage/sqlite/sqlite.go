package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/michaelbrown/crucible/internal/storage"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements storage.Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and runs
// migrations. Use ":memory:" for an in-memory database (useful for testing).
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

const runColumns = `id, source, status, text, error_kind, error_args, duration_us, image_size, created_at`

func (s *SQLiteStore) CreateRun(ctx context.Context, run *storage.Run) error {
	run.CreatedAt = time.Now().UTC()

	args, err := json.Marshal(run.ErrorArgs)
	if err != nil {
		return fmt.Errorf("marshaling error args: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Status, run.Text, run.ErrorKind, string(args),
		run.Duration.Microseconds(), run.ImageSize,
		run.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*storage.Run, error) {
	// Exact match first, then prefix match
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	if run, err := scanRun(row); err == nil {
		return run, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs WHERE id LIKE ? || '%'`, id)
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	defer rows.Close()

	var matches []*storage.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, run)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("run not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous run prefix %q matches %d runs", id, len(matches))
	}
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts storage.RunListOptions) ([]storage.Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any

	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}

	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []storage.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Scanner interface to work with both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*storage.Run, error) {
	var run storage.Run
	var errArgs, createdAt string
	var durationUS int64
	err := sc.Scan(&run.ID, &run.Source, &run.Status, &run.Text,
		&run.ErrorKind, &errArgs, &durationUS, &run.ImageSize, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(errArgs), &run.ErrorArgs); err != nil {
		return nil, fmt.Errorf("unmarshaling error args: %w", err)
	}
	run.Duration = time.Duration(durationUS) * time.Microsecond
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &run, nil
}

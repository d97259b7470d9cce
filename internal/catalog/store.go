package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	OperationSave = "save"
	OperationLoad = "load"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Event is one recorded save or load.
type Event struct {
	ID        int64
	EventID   string
	Path      string
	Operation string
	Bytes     int64
	SideFiles int
	Tracks    int
	Keyframes int
	MaxTime   float64
	FrameRate int
	Problems  int
	CreatedAt time.Time
}

// Store manages archive history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the catalog database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure catalog directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
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

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset history)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Record appends an event, assigning its EventID and CreatedAt when unset.
func (s *Store) Record(ctx context.Context, e Event) (Event, error) {
	switch e.Operation {
	case OperationSave, OperationLoad:
	default:
		return Event{}, fmt.Errorf("record event: unknown operation %q", e.Operation)
	}
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `INSERT INTO archive_events
			(event_id, path, operation, bytes, side_files, track_count, keyframe_count, max_time, frame_rate, problems, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.EventID, e.Path, e.Operation, e.Bytes, e.SideFiles, e.Tracks, e.Keyframes,
			e.MaxTime, e.FrameRate, e.Problems, e.CreatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
		e.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return Event{}, fmt.Errorf("record event: %w", err)
	}
	return e, nil
}

const eventColumns = `id, event_id, path, operation, bytes, side_files, track_count, keyframe_count, max_time, frame_rate, problems, created_at`

// List returns events newest first. An empty path lists every archive; a
// non-positive limit returns everything.
func (s *Store) List(ctx context.Context, path string, limit int) ([]Event, error) {
	query := "SELECT " + eventColumns + " FROM archive_events"
	var args []any
	if path != "" {
		query += " WHERE path = ?"
		args = append(args, path)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Latest returns the newest save recorded for path.
func (s *Store) Latest(ctx context.Context, path string) (Event, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM archive_events WHERE path = ? AND operation = ? ORDER BY id DESC LIMIT 1",
		path, OperationSave)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, err
	}
	return e, true, nil
}

// Prune keeps the newest keep events for path and deletes the rest.
func (s *Store) Prune(ctx context.Context, path string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM archive_events WHERE path = ? AND id NOT IN
			(SELECT id FROM archive_events WHERE path = ? ORDER BY id DESC LIMIT ?)`, path, path, keep)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return removed, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (Event, error) {
	var (
		e       Event
		created string
	)
	if err := row.Scan(&e.ID, &e.EventID, &e.Path, &e.Operation, &e.Bytes, &e.SideFiles, &e.Tracks,
		&e.Keyframes, &e.MaxTime, &e.FrameRate, &e.Problems, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, err
		}
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Event{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	e.CreatedAt = ts
	return e, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

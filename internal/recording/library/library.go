// Package library stores finished recordings on disk and catalogs them in
// SQLite.
package library

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned for an unknown recording id.
	ErrNotFound = errors.New("library: recording not found")

	// ErrLocked is returned when a recording is still being written.
	ErrLocked = errors.New("library: recording in progress")
)

const (
	dbName     = "recordings.db"
	lockName   = ".lock"
	framePfx   = "frame_"
	frameExt   = ".png"
	timeLayout = time.RFC3339Nano
)

// Recording is one cataloged session.
type Recording struct {
	ID        string
	Dir       string
	CreatedAt time.Time
	Duration  time.Duration
	Frames    int
	Dropped   int
	Width     int
	Height    int
	// Finished is false while the session is still writing frames.
	Finished bool
}

// Options configures a Library.
type Options struct {
	// PendingFrames bounds the encoder queue of each session. Frames
	// arriving while the queue is full are dropped.
	PendingFrames int
	Logger        *zap.Logger
}

// Library owns a directory of recordings.
type Library struct {
	db      *sql.DB
	dir     string
	pending int
	log     *zap.Logger
}

// Open creates dir if needed and opens its catalog.
func Open(dir string, opts Options) (*Library, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PendingFrames <= 0 {
		opts.PendingFrames = 64
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, dbName))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	lib := &Library{db: db, dir: dir, pending: opts.PendingFrames, log: opts.Logger}
	if err := lib.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := lib.recoverStale(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return lib, nil
}

// Close closes the catalog.
func (l *Library) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Dir returns the library directory.
func (l *Library) Dir() string {
	return l.dir
}

//go:embed migrations/*.sql
var migrationFS embed.FS

type migration struct {
	version string
	sql     string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, migration{version: strings.TrimSuffix(name, ".sql"), sql: string(data)})
	}
	return migrations, nil
}

func (l *Library) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

const recordingColumns = `id, dir, created_at, duration_ms, frames, dropped, width, height, finished`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(s scanner) (*Recording, error) {
	var (
		r          Recording
		created    string
		durationMS int64
		finished   int
	)
	if err := s.Scan(&r.ID, &r.Dir, &created, &durationMS, &r.Frames, &r.Dropped, &r.Width, &r.Height, &finished); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	r.CreatedAt = t
	r.Duration = time.Duration(durationMS) * time.Millisecond
	r.Finished = finished != 0
	return &r, nil
}

func (l *Library) insert(ctx context.Context, r *Recording) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO recordings (`+recordingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.Dir,
		r.CreatedAt.UTC().Format(timeLayout),
		r.Duration.Milliseconds(),
		r.Frames,
		r.Dropped,
		r.Width,
		r.Height,
		boolToInt(r.Finished),
	)
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

func (l *Library) finish(ctx context.Context, r *Recording) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE recordings
         SET duration_ms = ?, frames = ?, dropped = ?, width = ?, height = ?, finished = 1
         WHERE id = ?`,
		r.Duration.Milliseconds(),
		r.Frames,
		r.Dropped,
		r.Width,
		r.Height,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("finish recording: %w", err)
	}
	return nil
}

// recoverStale closes out sessions left unfinished by a crash. A session
// whose lock can be taken has no writer left.
func (l *Library) recoverStale(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE finished = 0`)
	if err != nil {
		return fmt.Errorf("query unfinished: %w", err)
	}
	var stale []*Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			rows.Close()
			return err
		}
		stale = append(stale, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range stale {
		unlock, err := tryLock(r.Dir)
		if err != nil {
			continue
		}
		frames, _ := frameFiles(r.Dir)
		r.Frames = len(frames)
		err = l.finish(ctx, r)
		unlock()
		if err != nil {
			return err
		}
		l.log.Warn("recovered interrupted recording", zap.String("id", r.ID), zap.Int("frames", r.Frames))
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// List returns all recordings, newest first.
func (l *Library) List(ctx context.Context) ([]*Recording, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT `+recordingColumns+` FROM recordings ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var out []*Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns one recording. An unknown id wraps ErrNotFound.
func (l *Library) Get(ctx context.Context, id string) (*Recording, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	r, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return r, nil
}

// Delete removes a recording and its frames.
func (l *Library) Delete(ctx context.Context, id string) error {
	r, err := l.Get(ctx, id)
	if err != nil {
		return err
	}

	unlock, err := tryLock(r.Dir)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := l.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	if err := os.RemoveAll(r.Dir); err != nil {
		return fmt.Errorf("remove recording dir: %w", err)
	}
	l.log.Info("recording deleted", zap.String("id", id))
	return nil
}

// tryLock takes the session lock of dir without waiting. A missing dir has
// nothing to lock.
func tryLock(dir string) (func(), error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return func() {}, nil
	}
	lock := flock.New(filepath.Join(dir, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock recording: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() { _ = lock.Unlock() }, nil
}

// frameFiles returns the frame images in dir in capture order.
func frameFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, framePfx) && strings.HasSuffix(name, frameExt) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

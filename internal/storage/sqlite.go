package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/ylqcxwl/youtube-notifier/internal/model"
	"github.com/ylqcxwl/youtube-notifier/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Backend on top of a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// An in-memory database lives only as long as its single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// OpenSQLite opens the database file at path like NewSQLite. When the
// existing file cannot be opened or migrated it is renamed to
// path.corrupt-<timestamp> and a fresh database is created in its place.
// The second result is the new name of the unreadable file, or "" when
// the database opened normally.
func OpenSQLite(path string) (*SQLite, string, error) {
	s, openErr := NewSQLite(path)
	if openErr == nil {
		return s, "", nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, "", openErr
	}

	aside := path + ".corrupt-" + time.Now().UTC().Format("20060102T150405Z")
	if err := os.Rename(path, aside); err != nil {
		return nil, "", fmt.Errorf("%w (move aside: %v)", openErr, err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Rename(path+suffix, aside+suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, aside, fmt.Errorf("move aside %s: %w", path+suffix, err)
		}
	}

	s, err := NewSQLite(path)
	if err != nil {
		return nil, aside, err
	}
	return s, aside, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Load returns every stored cursor record.
func (s *SQLite) Load(ctx context.Context) (model.State, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, channel_name, last_video_id, last_video_published, last_shorts_id, last_shorts_published
		 FROM cursors ORDER BY source_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query cursors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	state := model.State{}
	for rows.Next() {
		var (
			id                string
			rec               model.Record
			videoAt, shortsAt sql.NullString
		)
		if err := rows.Scan(&id, &rec.ChannelName, &rec.LastVideoID, &videoAt, &rec.LastShortsID, &shortsAt); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		rec.LastVideoAt = parseTime(videoAt)
		rec.LastShortsAt = parseTime(shortsAt)
		state[id] = &rec
	}
	return state, rows.Err()
}

// Save upserts every record of state in a single transaction.
func (s *SQLite) Save(ctx context.Context, state model.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cursors (source_id, channel_name, last_video_id, last_video_published, last_shorts_id, last_shorts_published, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_id) DO UPDATE SET
		   channel_name = excluded.channel_name,
		   last_video_id = excluded.last_video_id,
		   last_video_published = excluded.last_video_published,
		   last_shorts_id = excluded.last_shorts_id,
		   last_shorts_published = excluded.last_shorts_published,
		   updated_at = excluded.updated_at`,
	)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC().Format(timeLayout)
	for id, rec := range state {
		if rec == nil {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			id, rec.ChannelName, rec.LastVideoID, formatTime(rec.LastVideoAt),
			rec.LastShortsID, formatTime(rec.LastShortsAt), now,
		); err != nil {
			return fmt.Errorf("upsert cursor %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(timeLayout)
	return &v
}

func parseTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}

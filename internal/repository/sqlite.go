package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hunabku/shorturl/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS short_links (
    code TEXT PRIMARY KEY,
    target_url TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS allocation_counter (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    last_bucket INTEGER NOT NULL,
    sequence INTEGER NOT NULL
);
`

// The upsert creates the singleton on first use and otherwise advances it
// in a single statement, so SQLite's write lock makes it indivisible.
const sqliteAdvance = `
INSERT INTO allocation_counter (id, last_bucket, sequence) VALUES (1, ?, 0)
ON CONFLICT(id) DO UPDATE SET
    sequence = CASE
        WHEN excluded.last_bucket > allocation_counter.last_bucket THEN 0
        ELSE allocation_counter.sequence + 1
    END,
    last_bucket = MAX(allocation_counter.last_bucket, excluded.last_bucket)
RETURNING last_bucket, sequence
`

const (
	sqliteBusyRetries  = 5
	sqliteMaxOpenConns = 8
)

// SQLiteStore is the default backend. Several processes may share one
// database file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	inMemory := dbPath == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		dsn = dbPath + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// Every connection to ":memory:" is a separate database.
	if inMemory {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(sqliteMaxOpenConns)
	}

	// Create tables if not exist
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, link *model.ShortLink) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO short_links (code, target_url, created_at) VALUES (?, ?, ?)",
		link.Code, link.TargetURL, link.CreatedAt,
	)
	if err != nil {
		if isSQLiteConstraint(err) {
			return ErrDuplicateKey
		}
		return unavailable("insert", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, code string) (*model.ShortLink, error) {
	link := &model.ShortLink{}
	err := s.db.QueryRowContext(ctx,
		"SELECT code, target_url, created_at FROM short_links WHERE code = ?",
		code,
	).Scan(&link.Code, &link.TargetURL, &link.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return link, nil
}

func (s *SQLiteStore) Advance(ctx context.Context, now int64) (model.Tick, error) {
	var tick model.Tick
	var err error

	for attempt := 0; attempt < sqliteBusyRetries; attempt++ {
		err = s.db.QueryRowContext(ctx, sqliteAdvance, now).Scan(&tick.Bucket, &tick.Sequence)
		if err == nil {
			return tick, nil
		}
		if !isSQLiteBusy(err) {
			break
		}

		select {
		case <-ctx.Done():
			return model.Tick{}, unavailable("advance", ctx.Err())
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}

	return model.Tick{}, unavailable("advance", err)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isSQLiteConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func isSQLiteBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

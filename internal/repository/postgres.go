package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/hunabku/shorturl/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS short_links (
    code       VARCHAR(32) PRIMARY KEY,
    target_url TEXT NOT NULL,
    created_at BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS allocation_counter (
    id          SMALLINT PRIMARY KEY CHECK (id = 1),
    last_bucket BIGINT NOT NULL,
    sequence    BIGINT NOT NULL
);
`

// ON CONFLICT takes a row lock on the singleton, serializing concurrent
// advances across every connection and process.
const postgresAdvance = `
INSERT INTO allocation_counter (id, last_bucket, sequence) VALUES (1, $1, 0)
ON CONFLICT (id) DO UPDATE SET
    sequence = CASE
        WHEN EXCLUDED.last_bucket > allocation_counter.last_bucket THEN 0
        ELSE allocation_counter.sequence + 1
    END,
    last_bucket = GREATEST(allocation_counter.last_bucket, EXCLUDED.last_bucket)
RETURNING last_bucket, sequence
`

const postgresMaxOpenConns = 20

const pqUniqueViolation = pq.ErrorCode("23505")

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects with lib/pq and creates the schema
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(postgresMaxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable("connect", err)
	}

	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) InsertIfAbsent(ctx context.Context, link *model.ShortLink) error {
	_, err := p.db.ExecContext(ctx,
		"INSERT INTO short_links (code, target_url, created_at) VALUES ($1, $2, $3)",
		link.Code, link.TargetURL, link.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateKey
		}
		return unavailable("insert", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, code string) (*model.ShortLink, error) {
	link := &model.ShortLink{}
	err := p.db.QueryRowContext(ctx,
		"SELECT code, target_url, created_at FROM short_links WHERE code = $1",
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

func (p *PostgresStore) Advance(ctx context.Context, now int64) (model.Tick, error) {
	var tick model.Tick
	if err := p.db.QueryRowContext(ctx, postgresAdvance, now).Scan(&tick.Bucket, &tick.Sequence); err != nil {
		return model.Tick{}, unavailable("advance", err)
	}
	return tick, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

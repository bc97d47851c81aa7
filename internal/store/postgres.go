package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// schemaSQL is compiled into the binary at build time so schema init works
// inside the runtime image, which does not ship .sql files.
//
//go:embed schema.sql
var schemaSQL string

// Postgres implements Store on a pgx connection pool. All sets share the
// records table; AddAndGet is one INSERT .. ON CONFLICT .. RETURNING
// statement, so concurrent increments on a key serialize on the row lock.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL record store")
	return &Postgres{pool: pool}, nil
}

// InitSchema executes the embedded schema.sql DDL statements.
func (p *Postgres) InitSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	log.Info().Msg("record store schema initialized")
	return nil
}

func (p *Postgres) Put(ctx context.Context, set, key string, rec []byte) error {
	sql := `
		INSERT INTO records (set_name, key, doc)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (set_name, key) DO UPDATE
		SET doc = EXCLUDED.doc, updated_at = NOW();
	`
	if _, err := p.pool.Exec(ctx, sql, set, key, rec); err != nil {
		return &StoreError{Op: "put", Set: set, Key: key, Err: err}
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, set, key string) ([]byte, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx,
		`SELECT doc FROM records WHERE set_name = $1 AND key = $2`,
		set, key).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Set: set, Key: key, Err: err}
	}
	return doc, nil
}

func (p *Postgres) Delete(ctx context.Context, set, key string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM records WHERE set_name = $1 AND key = $2`, set, key)
	if err != nil {
		return &StoreError{Op: "delete", Set: set, Key: key, Err: err}
	}
	return nil
}

func (p *Postgres) ScanAll(ctx context.Context, set string, visit func(key string, rec []byte) error) error {
	rows, err := p.pool.Query(ctx,
		`SELECT key, doc FROM records WHERE set_name = $1`, set)
	if err != nil {
		return &StoreError{Op: "scan", Set: set, Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var doc []byte
		if err := rows.Scan(&key, &doc); err != nil {
			return &StoreError{Op: "scan", Set: set, Err: err}
		}
		if err := visit(key, doc); err != nil {
			return err
		}
	}
	if rows.Err() != nil {
		return &StoreError{Op: "scan", Set: set, Err: rows.Err()}
	}
	return nil
}

// AddAndGet atomically increments an integer field inside the record's JSONB
// document and returns the post-increment value.
func (p *Postgres) AddAndGet(ctx context.Context, set, key, field string, delta int64) (int64, error) {
	sql := `
		INSERT INTO records (set_name, key, doc)
		VALUES ($1, $2, jsonb_build_object($3::text, $4::bigint))
		ON CONFLICT (set_name, key) DO UPDATE
		SET doc = jsonb_set(
				records.doc,
				ARRAY[$3::text],
				to_jsonb(COALESCE((records.doc ->> $3::text)::bigint, 0) + $4::bigint),
				true),
			updated_at = NOW()
		RETURNING (doc ->> $3::text)::bigint;
	`
	var value int64
	if err := p.pool.QueryRow(ctx, sql, set, key, field, delta).Scan(&value); err != nil {
		return 0, &StoreError{Op: "add", Set: set, Key: key, Err: err}
	}
	return value, nil
}

// Close gracefully closes the connection pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

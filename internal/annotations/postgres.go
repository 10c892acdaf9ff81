package annotations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores the annotation document as one JSONB row.
type PostgresRepository struct {
	pool     *pgxpool.Pool
	document string
}

func NewPostgresRepository(ctx context.Context, databaseURL, document string) (*PostgresRepository, error) {
	if strings.TrimSpace(document) == "" {
		document = "default"
	}
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresRepository{pool: pool, document: document}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS annotation_documents (
			name TEXT PRIMARY KEY,
			body JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init annotation schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (r *PostgresRepository) Load(ctx context.Context) (Store, error) {
	var body []byte
	err := r.pool.QueryRow(ctx,
		`SELECT body FROM annotation_documents WHERE name=$1`,
		r.document,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return Store{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load annotations: %w", err)
	}
	store, err := decodeDocument(body)
	if err != nil {
		return nil, &CorruptStoreError{Source: "postgres:" + r.document, Err: err}
	}
	return store, nil
}

func (r *PostgresRepository) Save(ctx context.Context, store Store) error {
	data, err := encodeDocument(store)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO annotation_documents (name, body, updated_at)
		 VALUES ($1, $2::jsonb, now())
		 ON CONFLICT (name) DO UPDATE SET body=EXCLUDED.body, updated_at=EXCLUDED.updated_at`,
		r.document,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("save annotations: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Mode() string { return "postgres" }

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

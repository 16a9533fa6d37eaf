package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/multibot/internal/models"
)

// PGVectorConfig represents the Postgres connection settings.
type PGVectorConfig struct {
	ConnString string
	// Lists is the ivfflat list count used when an index is created.
	Lists int
}

// PGVector keeps one table per index. The table comment records the settings the
// index was created with.
type PGVector struct {
	config PGVectorConfig
	pool   *pgxpool.Pool
}

// NewPGVector connects to Postgres and enables the vector extension.
func NewPGVector(ctx context.Context, config PGVectorConfig) (*PGVector, error) {
	if config.Lists == 0 {
		config.Lists = 100
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	// Enable pgvector extension
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create vector extension: %w", err)
	}

	return &PGVector{config: config, pool: pool}, nil
}

const describeSQL = `
	SELECT a.atttypmod,
	       coalesce(obj_description(a.attrelid, 'pg_class'), ''),
	       coalesce((SELECT bool_and(i.indisvalid AND i.indisready)
	                 FROM pg_index i WHERE i.indrelid = a.attrelid), true)
	FROM pg_attribute a
	WHERE a.attrelid = to_regclass($1)
	  AND a.attname = 'embedding'
	  AND NOT a.attisdropped`

func (p *PGVector) Describe(ctx context.Context, name string) (IndexInfo, error) {
	var (
		dim     int
		comment string
		ready   bool
	)
	err := p.pool.QueryRow(ctx, describeSQL, tableName(name)).Scan(&dim, &comment, &ready)
	if errors.Is(err, pgx.ErrNoRows) {
		return IndexInfo{}, nil
	}
	if err != nil {
		return IndexInfo{}, fmt.Errorf("failed to describe table: %w", err)
	}

	info := IndexInfo{Exists: true, Ready: ready, Metric: parseComment(comment)["metric"]}
	if dim > 0 {
		info.Dimension = dim
	}
	return info, nil
}

func (p *PGVector) CreateIndex(ctx context.Context, name string, spec IndexSpec) error {
	if spec.Metric != MetricCosine {
		return fmt.Errorf("metric %q is not supported by pgvector backend", spec.Metric)
	}

	table := tableName(name)
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL
		)`, table, spec.Dimension)
	if _, err := tx.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = %d)`,
		pgx.Identifier{name + "_embedding_idx"}.Sanitize(), table, p.config.Lists)
	if _, err := tx.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	comment := fmt.Sprintf("metric=%s cloud=%s region=%s", spec.Metric, spec.Cloud, spec.Region)
	if _, err := tx.Exec(ctx, fmt.Sprintf("COMMENT ON TABLE %s IS '%s'",
		table, strings.ReplaceAll(comment, "'", "''"))); err != nil {
		return fmt.Errorf("failed to comment table: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *PGVector) Upsert(ctx context.Context, name string, doc models.Document, vector []float32) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, title, text, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			text = EXCLUDED.text,
			embedding = EXCLUDED.embedding`,
		tableName(name))

	_, err := p.pool.Exec(ctx, stmt,
		doc.ID,
		sanitizeUTF8(doc.Title),
		sanitizeUTF8(doc.Text),
		pgvector.NewVector(vector),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (p *PGVector) Query(ctx context.Context, name string, vector []float32, topK int) ([]models.Match, error) {
	query := fmt.Sprintf(`
		SELECT id, title, text, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		tableName(name))

	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	matches := make([]models.Match, 0, topK)
	for rows.Next() {
		var m models.Match
		if err := rows.Scan(&m.Document.ID, &m.Document.Title, &m.Document.Text, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return matches, nil
}

func (p *PGVector) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func tableName(index string) string {
	return pgx.Identifier{index}.Sanitize()
}

// parseComment reads the key=value pairs written by CreateIndex.
func parseComment(comment string) map[string]string {
	out := make(map[string]string)
	for _, field := range strings.Fields(comment) {
		k, v, ok := strings.Cut(field, "=")
		if ok {
			out[k] = v
		}
	}
	return out
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}

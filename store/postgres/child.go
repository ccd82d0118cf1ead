package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/strata"
)

// ChildIndex implements strata.ChildIndex with a pgvector column and an
// HNSW cosine index. Several collections share one table.
type ChildIndex struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

var _ strata.ChildIndex = (*ChildIndex)(nil)

// NewChildIndex creates a ChildIndex using an existing pgxpool.Pool.
func NewChildIndex(pool *pgxpool.Pool, opts ...Option) *ChildIndex {
	return &ChildIndex{pool: pool, cfg: buildConfig(opts)}
}

// Collection returns the collection name.
func (c *ChildIndex) Collection() string { return c.cfg.collection }

// vectorType returns "vector" or "vector(N)" depending on config.
func (c *ChildIndex) vectorType() string {
	if c.cfg.embeddingDimension > 0 {
		return fmt.Sprintf("vector(%d)", c.cfg.embeddingDimension)
	}
	return "vector"
}

// hnswWithClause returns the WITH (...) clause for HNSW index creation,
// or an empty string if no tuning params are set.
func (c *ChildIndex) hnswWithClause() string {
	var parts []string
	if c.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", c.cfg.hnswM))
	}
	if c.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", c.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// Init creates the pgvector extension, the children table and its indexes.
// Safe to call multiple times (all statements are idempotent).
func (c *ChildIndex) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS strata_children (
			collection TEXT NOT NULL,
			child_id TEXT NOT NULL,
			parent_id TEXT NOT NULL,
			child_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding %s,
			PRIMARY KEY (collection, child_id)
		)`, c.vectorType()),
		`CREATE INDEX IF NOT EXISTS strata_children_parent_idx ON strata_children(collection, parent_id)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS strata_children_embedding_idx ON strata_children USING hnsw (embedding vector_cosine_ops)%s`, c.hnswWithClause()),
	}
	for _, stmt := range stmts {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init children: %w", err)
		}
	}
	return nil
}

// AddBatch upserts records in a single transaction.
func (c *ChildIndex) AddBatch(ctx context.Context, records []strata.ChildRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, r := range records {
		meta, err := marshalMetadata(r.Metadata)
		if err != nil {
			return fmt.Errorf("postgres: child %s: %w", r.ID, err)
		}
		var emb *string
		if len(r.Embedding) > 0 {
			v := serializeEmbedding(r.Embedding)
			emb = &v
		}
		batch.Queue(
			`INSERT INTO strata_children (collection, child_id, parent_id, child_index, text, content_type, metadata, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::vector)
			 ON CONFLICT (collection, child_id) DO UPDATE SET
			   parent_id = EXCLUDED.parent_id,
			   child_index = EXCLUDED.child_index,
			   text = EXCLUDED.text,
			   content_type = EXCLUDED.content_type,
			   metadata = EXCLUDED.metadata,
			   embedding = EXCLUDED.embedding`,
			c.cfg.collection, r.ID, r.ParentID, r.ChildIndex, r.Text, string(r.ContentType), meta, emb)
	}
	br := tx.SendBatch(ctx, batch)
	for _, r := range records {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("postgres: insert child %s: %w", r.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: insert children: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// SimilaritySearch performs vector similarity search using pgvector's
// cosine distance operator with the HNSW index.
func (c *ChildIndex) SimilaritySearch(ctx context.Context, embedding []float32, k int) ([]strata.ScoredChild, error) {
	if k <= 0 {
		return []strata.ScoredChild{}, nil
	}
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if c.cfg.hnswEFSearch > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", c.cfg.hnswEFSearch)); err != nil {
			return nil, fmt.Errorf("postgres: set ef_search: %w", err)
		}
	}

	embStr := serializeEmbedding(embedding)
	rows, err := tx.Query(ctx,
		`SELECT `+childColumns+`, 1 - (embedding <=> $1::vector) AS score
		 FROM strata_children
		 WHERE collection = $2 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $1::vector, child_id
		 LIMIT $3`,
		embStr, c.cfg.collection, k)
	if err != nil {
		return nil, fmt.Errorf("postgres: search children: %w", err)
	}
	defer rows.Close()

	results := []strata.ScoredChild{}
	for rows.Next() {
		var sc strata.ScoredChild
		var meta []byte
		var ct string
		if err := rows.Scan(&sc.Child.ID, &sc.Child.ParentID, &sc.Child.ChildIndex, &sc.Child.Text, &ct, &meta, &sc.Score); err != nil {
			return nil, fmt.Errorf("postgres: scan child: %w", err)
		}
		if err := fillChild(&sc.Child, ct, meta); err != nil {
			return nil, err
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate children: %w", err)
	}
	return results, nil
}

// Delete removes children by id. Missing ids are ignored.
func (c *ChildIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := c.pool.Exec(ctx,
		`DELETE FROM strata_children WHERE collection = $1 AND child_id = ANY($2)`,
		c.cfg.collection, ids); err != nil {
		return fmt.Errorf("postgres: delete children: %w", err)
	}
	return nil
}

// DeleteByParent removes every child of a parent.
func (c *ChildIndex) DeleteByParent(ctx context.Context, parentID string) error {
	if _, err := c.pool.Exec(ctx,
		`DELETE FROM strata_children WHERE collection = $1 AND parent_id = $2`,
		c.cfg.collection, parentID); err != nil {
		return fmt.Errorf("postgres: delete children of %s: %w", parentID, err)
	}
	return nil
}

// GetChild returns a child or an error wrapping strata.ErrNotFound. The
// embedding is not loaded.
func (c *ChildIndex) GetChild(ctx context.Context, id string) (strata.ChildRecord, error) {
	row := c.pool.QueryRow(ctx,
		`SELECT `+childColumns+` FROM strata_children WHERE collection = $1 AND child_id = $2`,
		c.cfg.collection, id)
	r, err := scanChild(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return strata.ChildRecord{}, fmt.Errorf("postgres: child %s: %w", id, strata.ErrNotFound)
	}
	if err != nil {
		return strata.ChildRecord{}, fmt.Errorf("postgres: get child %s: %w", id, err)
	}
	return r, nil
}

// ListByParent returns a parent's children ordered by child_index.
func (c *ChildIndex) ListByParent(ctx context.Context, parentID string) ([]strata.ChildRecord, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT `+childColumns+` FROM strata_children
		 WHERE collection = $1 AND parent_id = $2 ORDER BY child_index`,
		c.cfg.collection, parentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list children of %s: %w", parentID, err)
	}
	defer rows.Close()

	var out []strata.ChildRecord
	for rows.Next() {
		r, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan child: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (c *ChildIndex) Close() error { return nil }

const childColumns = `child_id, parent_id, child_index, text, content_type, metadata`

func scanChild(row pgx.Row) (strata.ChildRecord, error) {
	var r strata.ChildRecord
	var meta []byte
	var ct string
	if err := row.Scan(&r.ID, &r.ParentID, &r.ChildIndex, &r.Text, &ct, &meta); err != nil {
		return strata.ChildRecord{}, err
	}
	if err := fillChild(&r, ct, meta); err != nil {
		return strata.ChildRecord{}, err
	}
	return r, nil
}

func fillChild(r *strata.ChildRecord, ct string, meta []byte) error {
	r.ContentType = strata.ContentType(ct)
	md, err := unmarshalMetadata(meta)
	if err != nil {
		return fmt.Errorf("postgres: child %s metadata: %w", r.ID, err)
	}
	r.Metadata = md
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nevindra/strata"
)

// DefaultCollection names the child collection when none is given.
const DefaultCollection = "knowledge_base"

// ChildOption configures a ChildIndex.
type ChildOption func(*ChildIndex)

// WithChildLogger sets a structured logger for the child index.
func WithChildLogger(l *slog.Logger) ChildOption {
	return func(c *ChildIndex) { c.logger = l }
}

// ChildIndex implements strata.ChildIndex on a SQLite table shared by any
// number of collections. Embeddings are stored as little-endian float32
// blobs and searched by brute-force cosine similarity.
type ChildIndex struct {
	db         *sql.DB
	collection string
	mu         sync.Mutex
	logger     *slog.Logger
}

var _ strata.ChildIndex = (*ChildIndex)(nil)

// NewChildIndex creates a ChildIndex over db. Usually db is Store.DB() so
// parents and children live in one file. An empty collection means
// DefaultCollection.
func NewChildIndex(db *sql.DB, collection string, opts ...ChildOption) *ChildIndex {
	if collection == "" {
		collection = DefaultCollection
	}
	c := &ChildIndex{db: db, collection: collection, logger: nopLogger}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Collection returns the collection name.
func (c *ChildIndex) Collection() string { return c.collection }

// Init creates the children table and its indexes.
func (c *ChildIndex) Init(ctx context.Context) error {
	start := time.Now()
	_, err := c.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS children (
		collection TEXT NOT NULL,
		child_id TEXT NOT NULL,
		parent_id TEXT NOT NULL,
		child_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		embedding BLOB,
		PRIMARY KEY (collection, child_id)
	)`)
	if err != nil {
		c.logger.Error("sqlite: child init failed", "error", err)
		return fmt.Errorf("sqlite: create children table: %w", err)
	}
	_, _ = c.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_children_parent ON children(collection, parent_id)`)
	c.logger.Info("sqlite: child init completed", "collection", c.collection, "duration", time.Since(start))
	return nil
}

// AddBatch upserts records in one transaction.
func (c *ChildIndex) AddBatch(ctx context.Context, records []strata.ChildRecord) error {
	if len(records) == 0 {
		return nil
	}
	start := time.Now()
	c.logger.Debug("sqlite: add children", "collection", c.collection, "count", len(records), "first_id", records[0].ID)

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO children
		 (collection, child_id, parent_id, child_index, text, content_type, metadata, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert child: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		meta, err := marshalMetadata(r.Metadata)
		if err != nil {
			return fmt.Errorf("sqlite: child %s: %w", r.ID, err)
		}
		var emb []byte
		if len(r.Embedding) > 0 {
			emb = encodeEmbedding(r.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, c.collection, r.ID, r.ParentID, r.ChildIndex, r.Text, string(r.ContentType), meta, emb); err != nil {
			c.logger.Error("sqlite: insert child failed", "child_id", r.ID, "error", err)
			return fmt.Errorf("sqlite: insert child %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		c.logger.Error("sqlite: add children commit failed", "first_id", records[0].ID, "error", err)
		return fmt.Errorf("sqlite: commit tx: %w", err)
	}
	c.logger.Debug("sqlite: add children ok", "count", len(records), "duration", time.Since(start))
	return nil
}

// SimilaritySearch scores every embedded child of the collection against
// embedding and returns the k best.
func (c *ChildIndex) SimilaritySearch(ctx context.Context, embedding []float32, k int) ([]strata.ScoredChild, error) {
	start := time.Now()
	c.logger.Debug("sqlite: search children", "collection", c.collection, "k", k, "embedding_dim", len(embedding))
	if k <= 0 {
		return []strata.ScoredChild{}, nil
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT `+childColumns+`, embedding FROM children
		 WHERE collection = ? AND embedding IS NOT NULL`, c.collection)
	if err != nil {
		c.logger.Error("sqlite: search children failed", "error", err)
		return nil, fmt.Errorf("sqlite: search children: %w", err)
	}
	defer rows.Close()

	results := []strata.ScoredChild{}
	scanned, skipped := 0, 0
	for rows.Next() {
		var blob []byte
		r, err := scanChild(rows, &blob)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan child: %w", err)
		}
		scanned++
		stored, ok := decodeEmbedding(blob)
		if !ok || len(stored) != len(embedding) {
			skipped++
			continue
		}
		results = append(results, strata.ScoredChild{Child: r, Score: cosineSimilarity(embedding, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate children: %w", err)
	}
	if skipped > 0 {
		c.logger.Warn("sqlite: skipped children with mismatched embeddings", "collection", c.collection, "skipped", skipped)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Child.ID < results[j].Child.ID
	})
	if len(results) > k {
		results = results[:k]
	}
	c.logger.Debug("sqlite: search children ok", "scanned", scanned, "returned", len(results), "duration", time.Since(start))
	return results, nil
}

// Delete removes children by id. Missing ids are ignored.
func (c *ChildIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	start := time.Now()
	c.logger.Debug("sqlite: delete children", "count", len(ids))

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, c.collection)
	for _, id := range ids {
		args = append(args, id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM children WHERE collection = ? AND child_id IN (`+placeholders+`)`, args...); err != nil {
		c.logger.Error("sqlite: delete children failed", "error", err)
		return fmt.Errorf("sqlite: delete children: %w", err)
	}
	c.logger.Debug("sqlite: delete children ok", "duration", time.Since(start))
	return nil
}

// DeleteByParent removes every child of a parent.
func (c *ChildIndex) DeleteByParent(ctx context.Context, parentID string) error {
	start := time.Now()
	c.logger.Debug("sqlite: delete children by parent", "parent_id", parentID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM children WHERE collection = ? AND parent_id = ?`, c.collection, parentID); err != nil {
		c.logger.Error("sqlite: delete children by parent failed", "parent_id", parentID, "error", err)
		return fmt.Errorf("sqlite: delete children of %s: %w", parentID, err)
	}
	c.logger.Debug("sqlite: delete children by parent ok", "parent_id", parentID, "duration", time.Since(start))
	return nil
}

// GetChild returns a child or an error wrapping strata.ErrNotFound.
func (c *ChildIndex) GetChild(ctx context.Context, id string) (strata.ChildRecord, error) {
	var blob []byte
	row := c.db.QueryRowContext(ctx,
		`SELECT `+childColumns+`, embedding FROM children WHERE collection = ? AND child_id = ?`, c.collection, id)
	r, err := scanChild(row, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return strata.ChildRecord{}, fmt.Errorf("sqlite: child %s: %w", id, strata.ErrNotFound)
	}
	if err != nil {
		return strata.ChildRecord{}, fmt.Errorf("sqlite: get child %s: %w", id, err)
	}
	if v, ok := decodeEmbedding(blob); ok {
		r.Embedding = v
	}
	return r, nil
}

// ListByParent returns a parent's children ordered by child_index, without
// embeddings.
func (c *ChildIndex) ListByParent(ctx context.Context, parentID string) ([]strata.ChildRecord, error) {
	start := time.Now()
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+childColumns+`, NULL FROM children
		 WHERE collection = ? AND parent_id = ? ORDER BY child_index`, c.collection, parentID)
	if err != nil {
		c.logger.Error("sqlite: list children failed", "parent_id", parentID, "error", err)
		return nil, fmt.Errorf("sqlite: list children of %s: %w", parentID, err)
	}
	defer rows.Close()

	var out []strata.ChildRecord
	for rows.Next() {
		var blob []byte
		r, err := scanChild(rows, &blob)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan child: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate children: %w", err)
	}
	c.logger.Debug("sqlite: list children ok", "parent_id", parentID, "count", len(out), "duration", time.Since(start))
	return out, nil
}

// Close is a no-op: the database handle belongs to whoever opened it.
func (c *ChildIndex) Close() error { return nil }

const childColumns = `child_id, parent_id, child_index, text, content_type, metadata`

func scanChild(r rowScanner, blob *[]byte) (strata.ChildRecord, error) {
	var c strata.ChildRecord
	var ct, meta string
	if err := r.Scan(&c.ID, &c.ParentID, &c.ChildIndex, &c.Text, &ct, &meta, blob); err != nil {
		return strata.ChildRecord{}, err
	}
	c.ContentType = strata.ContentType(ct)
	md, err := unmarshalMetadata(meta)
	if err != nil {
		return strata.ChildRecord{}, fmt.Errorf("child %s metadata: %w", c.ID, err)
	}
	c.Metadata = md
	return c, nil
}

// --- Vector math ---

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}

// encodeEmbedding packs v as little-endian float32s.
func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding reverses encodeEmbedding. It reports false for empty or
// truncated blobs.
func decodeEmbedding(b []byte) ([]float32, bool) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, true
}

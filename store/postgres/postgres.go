// Package postgres implements strata.ParentStore and strata.ChildIndex using
// PostgreSQL with pgvector for native vector similarity search.
//
// Both Store and ChildIndex accept an externally-owned *pgxpool.Pool
// via constructor injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/strata"
)

// DefaultCollection names the child collection when none is given.
const DefaultCollection = "knowledge_base"

// pgConfig holds store configuration set via Option functions.
type pgConfig struct {
	embeddingDimension int // 0 = untyped vector
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
	hnswEFSearch       int // 0 = pgvector default (40)
	collection         string
}

// Option configures a PostgreSQL Store or ChildIndex.
type Option func(*pgConfig)

// WithEmbeddingDimension sets the vector column dimension (e.g. 1536, 768).
// When set, CREATE TABLE uses vector(N) instead of untyped vector, enabling
// better index optimization and catching dimension mismatches at insert time.
// Only affects new table creation (no ALTER on existing tables).
func WithEmbeddingDimension(dim int) Option {
	return func(c *pgConfig) { c.embeddingDimension = dim }
}

// WithHNSWM sets the HNSW m parameter (max connections per node).
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithHNSWM(m int) Option {
	return func(c *pgConfig) { c.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter.
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithEFConstruction(ef int) Option {
	return func(c *pgConfig) { c.hnswEFConstruction = ef }
}

// WithEFSearch sets the HNSW ef_search parameter (query-time candidate list
// size). Applied per search inside the query transaction.
func WithEFSearch(ef int) Option {
	return func(c *pgConfig) { c.hnswEFSearch = ef }
}

// WithCollection namespaces a ChildIndex (default "knowledge_base").
func WithCollection(name string) Option {
	return func(c *pgConfig) { c.collection = name }
}

func buildConfig(opts []Option) pgConfig {
	cfg := pgConfig{collection: DefaultCollection}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.collection == "" {
		cfg.collection = DefaultCollection
	}
	return cfg
}

// Store implements strata.ParentStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ strata.ParentStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the parents table and indexes. Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS strata_parents (
			parent_id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			source_id TEXT NOT NULL DEFAULT '',
			content_type TEXT NOT NULL DEFAULT '',
			ordinal INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS strata_parents_source_idx ON strata_parents(source_id)`,
		`CREATE INDEX IF NOT EXISTS strata_parents_created_idx ON strata_parents(created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// UpsertParent inserts or overwrites a parent, keeping the original created_at.
func (s *Store) UpsertParent(ctx context.Context, p strata.ParentRecord) error {
	meta, err := marshalMetadata(p.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: upsert parent %s: %w", p.ID, err)
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO strata_parents (parent_id, text, metadata, source_id, content_type, ordinal, created_at)
		 VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7)
		 ON CONFLICT (parent_id) DO UPDATE SET
		   text = EXCLUDED.text,
		   metadata = EXCLUDED.metadata,
		   source_id = EXCLUDED.source_id,
		   content_type = EXCLUDED.content_type,
		   ordinal = EXCLUDED.ordinal`,
		p.ID, p.Text, meta, p.SourceID, string(p.ContentType), p.Ordinal, created.UTC())
	if err != nil {
		return fmt.Errorf("postgres: upsert parent %s: %w", p.ID, err)
	}
	return nil
}

const parentColumns = `parent_id, text, metadata, source_id, content_type, ordinal, created_at`

// GetParent returns a parent or an error wrapping strata.ErrNotFound.
func (s *Store) GetParent(ctx context.Context, id string) (strata.ParentRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+parentColumns+` FROM strata_parents WHERE parent_id = $1`, id)
	p, err := scanParent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return strata.ParentRecord{}, fmt.Errorf("postgres: parent %s: %w", id, strata.ErrNotFound)
	}
	if err != nil {
		return strata.ParentRecord{}, fmt.Errorf("postgres: get parent %s: %w", id, err)
	}
	return p, nil
}

// DeleteParent removes a parent. Missing ids are not an error.
func (s *Store) DeleteParent(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM strata_parents WHERE parent_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete parent %s: %w", id, err)
	}
	return nil
}

// DeleteParentsBySource removes every parent of a source and returns their
// ids in ordinal order.
func (s *Store) DeleteParentsBySource(ctx context.Context, sourceID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`WITH gone AS (
			DELETE FROM strata_parents WHERE source_id = $1 RETURNING parent_id, ordinal
		 )
		 SELECT parent_id FROM gone ORDER BY ordinal, parent_id`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("postgres: delete parents of %s: %w", sourceID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: delete parents of %s: %w", sourceID, err)
	}
	return ids, nil
}

// ListParents returns one page of parents, newest first, with the total
// match count. A non-positive limit returns every match.
func (s *Store) ListParents(ctx context.Context, f strata.ParentFilter, limit, offset int) ([]strata.ParentRecord, int, error) {
	where, args := buildParentFilter(f)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(1) FROM strata_parents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: count parents: %w", err)
	}

	if offset < 0 {
		offset = 0
	}
	q := `SELECT ` + parentColumns + ` FROM strata_parents` + where +
		` ORDER BY created_at DESC, source_id, ordinal OFFSET $` + strconv.Itoa(len(args)+1)
	args = append(args, offset)
	if limit > 0 {
		q += ` LIMIT $` + strconv.Itoa(len(args)+1)
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: list parents: %w", err)
	}
	defer rows.Close()

	var out []strata.ParentRecord
	for rows.Next() {
		p, err := scanParent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres: scan parent: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres: iterate parents: %w", err)
	}
	return out, total, nil
}

// AggregateBySource summarizes parents per source, largest first.
func (s *Store) AggregateBySource(ctx context.Context) ([]strata.SourceSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source_id, content_type, COUNT(1), MAX(created_at)
		 FROM strata_parents GROUP BY source_id, content_type`)
	if err != nil {
		return nil, fmt.Errorf("postgres: aggregate by source: %w", err)
	}
	defer rows.Close()

	acc := strata.NewSourceAccumulator()
	for rows.Next() {
		var source, ct string
		var n int
		var latest time.Time
		if err := rows.Scan(&source, &ct, &n, &latest); err != nil {
			return nil, fmt.Errorf("postgres: scan aggregate: %w", err)
		}
		acc.Add(source, strata.ContentType(ct), n, latest.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate aggregate: %w", err)
	}
	return acc.Summaries(), nil
}

// ListSources pages through source summaries.
func (s *Store) ListSources(ctx context.Context, q strata.SourceQuery) ([]strata.SourceSummary, int, error) {
	if err := q.Validate(); err != nil {
		return nil, 0, err
	}
	all, err := s.AggregateBySource(ctx)
	if err != nil {
		return nil, 0, err
	}
	page, total := strata.PageSources(all, q)
	return page, total, nil
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (s *Store) Close() error {
	return nil
}

// --- Helpers ---

func buildParentFilter(f strata.ParentFilter) (string, []any) {
	var clauses []string
	var args []any
	if src := strings.TrimSpace(f.SourceID); src != "" {
		args = append(args, src)
		clauses = append(clauses, "source_id = $"+strconv.Itoa(len(args)))
	}
	if q := strings.TrimSpace(f.TextContains); q != "" {
		args = append(args, "%"+likeEscaper.Replace(q)+"%")
		n := strconv.Itoa(len(args))
		clauses = append(clauses, fmt.Sprintf(foldASCII, "text")+" LIKE "+fmt.Sprintf(foldASCII, "$"+n))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// foldASCII lowercases ASCII letters only, matching SQLite's LIKE. ILIKE
// would also fold non-ASCII letters.
const foldASCII = "translate(%s, 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz')"

// likeEscaper uses PostgreSQL's default LIKE escape character.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func scanParent(row pgx.Row) (strata.ParentRecord, error) {
	var p strata.ParentRecord
	var meta []byte
	var ct string
	if err := row.Scan(&p.ID, &p.Text, &meta, &p.SourceID, &ct, &p.Ordinal, &p.CreatedAt); err != nil {
		return strata.ParentRecord{}, err
	}
	p.ContentType = strata.ContentType(ct)
	p.CreatedAt = p.CreatedAt.UTC()
	md, err := unmarshalMetadata(meta)
	if err != nil {
		return strata.ParentRecord{}, fmt.Errorf("parent %s metadata: %w", p.ID, err)
	}
	p.Metadata = md
	return p, nil
}

func marshalMetadata(m strata.Metadata) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(b []byte) (strata.Metadata, error) {
	md := strata.Metadata{}
	if len(b) == 0 {
		return md, nil
	}
	if err := json.Unmarshal(b, &md); err != nil {
		return nil, err
	}
	return md, nil
}

// serializeEmbedding converts []float32 to a string like "[0.1,0.2,0.3]"
// suitable for pgvector's text input format.
func serializeEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

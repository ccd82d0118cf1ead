// Package sqlite implements strata.ParentStore and strata.ChildIndex using
// pure-Go SQLite with in-process brute-force vector search. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nevindra/strata"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// timeLayout keeps created_at lexically sortable.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing, row counts, and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces the time source used for created_at.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// Store implements strata.ParentStore backed by a local SQLite file.
// Writes are serialized through a mutex; WAL mode lets readers run alongside.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time
}

var _ strata.ParentStore = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(slog.DiscardHandler)

// New creates a Store using a local SQLite file at dbPath.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(4)
	s := &Store{db: db, logger: nopLogger, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the parents table and its indexes.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS parents (
		parent_id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		source_id TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT '',
		ordinal INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`)
	if err != nil {
		s.logger.Error("sqlite: init failed", "error", err)
		return fmt.Errorf("sqlite: create parents table: %w", err)
	}

	// Indexes (best-effort, ignore errors on older SQLite)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_parents_source ON parents(source_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_parents_created ON parents(created_at)`)

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// UpsertParent inserts or overwrites a parent. An overwrite keeps the
// original created_at.
func (s *Store) UpsertParent(ctx context.Context, p strata.ParentRecord) error {
	start := time.Now()
	s.logger.Debug("sqlite: upsert parent", "id", p.ID, "source_id", p.SourceID, "ordinal", p.Ordinal)

	meta, err := marshalMetadata(p.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: upsert parent %s: %w", p.ID, err)
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO parents (parent_id, text, metadata, source_id, content_type, ordinal, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(parent_id) DO UPDATE SET
			text = excluded.text,
			metadata = excluded.metadata,
			source_id = excluded.source_id,
			content_type = excluded.content_type,
			ordinal = excluded.ordinal`,
		p.ID, p.Text, meta, p.SourceID, string(p.ContentType), p.Ordinal, formatTime(created),
	)
	if err != nil {
		s.logger.Error("sqlite: upsert parent failed", "id", p.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("sqlite: upsert parent %s: %w", p.ID, err)
	}
	s.logger.Debug("sqlite: upsert parent ok", "id", p.ID, "duration", time.Since(start))
	return nil
}

const parentColumns = `parent_id, text, metadata, source_id, content_type, ordinal, created_at`

// GetParent returns a parent or an error wrapping strata.ErrNotFound.
func (s *Store) GetParent(ctx context.Context, id string) (strata.ParentRecord, error) {
	start := time.Now()
	s.logger.Debug("sqlite: get parent", "id", id)

	row := s.db.QueryRowContext(ctx, `SELECT `+parentColumns+` FROM parents WHERE parent_id = ?`, id)
	p, err := scanParent(row)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("sqlite: get parent not found", "id", id, "duration", time.Since(start))
		return strata.ParentRecord{}, fmt.Errorf("sqlite: parent %s: %w", id, strata.ErrNotFound)
	}
	if err != nil {
		s.logger.Error("sqlite: get parent failed", "id", id, "error", err, "duration", time.Since(start))
		return strata.ParentRecord{}, fmt.Errorf("sqlite: get parent %s: %w", id, err)
	}
	s.logger.Debug("sqlite: get parent ok", "id", id, "duration", time.Since(start))
	return p, nil
}

// DeleteParent removes a parent. Missing ids are not an error.
func (s *Store) DeleteParent(ctx context.Context, id string) error {
	start := time.Now()
	s.logger.Debug("sqlite: delete parent", "id", id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM parents WHERE parent_id = ?`, id); err != nil {
		s.logger.Error("sqlite: delete parent failed", "id", id, "error", err, "duration", time.Since(start))
		return fmt.Errorf("sqlite: delete parent %s: %w", id, err)
	}
	s.logger.Debug("sqlite: delete parent ok", "id", id, "duration", time.Since(start))
	return nil
}

// DeleteParentsBySource removes every parent of a source in one transaction
// and returns the removed ids in ordinal order.
func (s *Store) DeleteParentsBySource(ctx context.Context, sourceID string) ([]string, error) {
	start := time.Now()
	s.logger.Debug("sqlite: delete parents by source", "source_id", sourceID)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx,
		`SELECT parent_id FROM parents WHERE source_id = ? ORDER BY ordinal, parent_id`, sourceID)
	if err != nil {
		s.logger.Error("sqlite: delete parents by source failed", "source_id", sourceID, "error", err)
		return nil, fmt.Errorf("sqlite: list parents of %s: %w", sourceID, err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scan parent id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate parent ids: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM parents WHERE source_id = ?`, sourceID); err != nil {
		s.logger.Error("sqlite: delete parents by source failed", "source_id", sourceID, "error", err)
		return nil, fmt.Errorf("sqlite: delete parents of %s: %w", sourceID, err)
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: delete parents by source commit failed", "source_id", sourceID, "error", err)
		return nil, fmt.Errorf("sqlite: commit tx: %w", err)
	}
	s.logger.Debug("sqlite: delete parents by source ok", "source_id", sourceID, "deleted", len(ids), "duration", time.Since(start))
	return ids, nil
}

// ListParents returns one page of parents, newest first, with the total
// number of matches. A non-positive limit returns every match.
func (s *Store) ListParents(ctx context.Context, f strata.ParentFilter, limit, offset int) ([]strata.ParentRecord, int, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list parents", "source_id", f.SourceID, "contains", f.TextContains, "limit", limit, "offset", offset)

	where, args := buildParentFilter(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM parents`+where, args...).Scan(&total); err != nil {
		s.logger.Error("sqlite: count parents failed", "error", err)
		return nil, 0, fmt.Errorf("sqlite: count parents: %w", err)
	}

	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+parentColumns+` FROM parents`+where+
			` ORDER BY created_at DESC, source_id, ordinal LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		s.logger.Error("sqlite: list parents failed", "error", err)
		return nil, 0, fmt.Errorf("sqlite: list parents: %w", err)
	}
	defer rows.Close()

	var out []strata.ParentRecord
	for rows.Next() {
		p, err := scanParent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scan parent: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterate parents: %w", err)
	}
	s.logger.Debug("sqlite: list parents ok", "returned", len(out), "total", total, "duration", time.Since(start))
	return out, total, nil
}

// AggregateBySource summarizes parents per source, largest first.
func (s *Store) AggregateBySource(ctx context.Context) ([]strata.SourceSummary, error) {
	start := time.Now()
	s.logger.Debug("sqlite: aggregate by source")

	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, content_type, COUNT(1), MAX(created_at)
		 FROM parents GROUP BY source_id, content_type`)
	if err != nil {
		s.logger.Error("sqlite: aggregate by source failed", "error", err)
		return nil, fmt.Errorf("sqlite: aggregate by source: %w", err)
	}
	defer rows.Close()

	acc := strata.NewSourceAccumulator()
	for rows.Next() {
		var source, ct, latest string
		var n int
		if err := rows.Scan(&source, &ct, &n, &latest); err != nil {
			return nil, fmt.Errorf("sqlite: scan aggregate: %w", err)
		}
		acc.Add(source, strata.ContentType(ct), n, parseTime(latest))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate aggregate: %w", err)
	}
	out := acc.Summaries()
	s.logger.Debug("sqlite: aggregate by source ok", "sources", len(out), "duration", time.Since(start))
	return out, nil
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

// DB returns the underlying database handle so a ChildIndex can share the file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing store")
	return s.db.Close()
}

// buildParentFilter translates a ParentFilter into a WHERE clause.
func buildParentFilter(f strata.ParentFilter) (string, []any) {
	var clauses []string
	var args []any
	if src := strings.TrimSpace(f.SourceID); src != "" {
		clauses = append(clauses, "source_id = ?")
		args = append(args, src)
	}
	if q := strings.TrimSpace(f.TextContains); q != "" {
		clauses = append(clauses, `text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(q)+"%")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string { return likeEscaper.Replace(s) }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParent(r rowScanner) (strata.ParentRecord, error) {
	var p strata.ParentRecord
	var meta, ct, created string
	if err := r.Scan(&p.ID, &p.Text, &meta, &p.SourceID, &ct, &p.Ordinal, &created); err != nil {
		return strata.ParentRecord{}, err
	}
	p.ContentType = strata.ContentType(ct)
	p.CreatedAt = parseTime(created)
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

func unmarshalMetadata(s string) (strata.Metadata, error) {
	md := strata.Metadata{}
	if s == "" {
		return md, nil
	}
	if err := json.Unmarshal([]byte(s), &md); err != nil {
		return nil, err
	}
	return md, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

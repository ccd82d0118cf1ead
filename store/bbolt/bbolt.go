// Package bbolt implements strata.ParentStore on an embedded bbolt file.
// Writes go through bbolt's single writer; readers never block.
package bbolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/nevindra/strata"
)

var (
	bucketParents = []byte("parents")
	// bucketSources indexes parent ids by source: key "<source>\x00<parent_id>".
	bucketSources = []byte("sources")
)

const keySep = 0x00

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces the time source used for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store implements strata.ParentStore backed by a bbolt file.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ strata.ParentStore = (*Store)(nil)

// Open opens (creating if needed) the bbolt file at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt: open %s: %w", path, err)
	}
	s := &Store{db: db, logger: slog.New(slog.DiscardHandler), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Init creates the buckets.
func (s *Store) Init(_ context.Context) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketParents); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketSources)
		return err
	})
	if err != nil {
		return fmt.Errorf("bbolt: init: %w", err)
	}
	s.logger.Info("bbolt: init completed", "path", s.db.Path())
	return nil
}

// UpsertParent writes a parent and its source index entry in one
// transaction. An overwrite keeps the original created_at. Source ids may
// not contain NUL, which separates the source index key parts.
func (s *Store) UpsertParent(ctx context.Context, p strata.ParentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.IndexByte(p.SourceID, keySep) >= 0 {
		return &strata.ValidationError{Field: "source id", Reason: "must not contain NUL"}
	}
	start := time.Now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		parents := tx.Bucket(bucketParents)
		sources := tx.Bucket(bucketSources)
		if old := parents.Get([]byte(p.ID)); old != nil {
			var prev strata.ParentRecord
			if err := json.Unmarshal(old, &prev); err != nil {
				return fmt.Errorf("decode existing parent: %w", err)
			}
			p.CreatedAt = prev.CreatedAt
			if prev.SourceID != p.SourceID {
				if err := sources.Delete(sourceKey(prev.SourceID, p.ID)); err != nil {
					return err
				}
			}
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = s.now()
		}
		p.CreatedAt = p.CreatedAt.UTC()
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode parent: %w", err)
		}
		if err := parents.Put([]byte(p.ID), data); err != nil {
			return err
		}
		return sources.Put(sourceKey(p.SourceID, p.ID), nil)
	})
	if err != nil {
		s.logger.Error("bbolt: upsert parent failed", "id", p.ID, "error", err)
		return fmt.Errorf("bbolt: upsert parent %s: %w", p.ID, err)
	}
	s.logger.Debug("bbolt: upsert parent ok", "id", p.ID, "duration", time.Since(start))
	return nil
}

// GetParent returns a parent or an error wrapping strata.ErrNotFound.
func (s *Store) GetParent(_ context.Context, id string) (strata.ParentRecord, error) {
	var p strata.ParentRecord
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketParents).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return strata.ParentRecord{}, fmt.Errorf("bbolt: get parent %s: %w", id, err)
	}
	if !found {
		return strata.ParentRecord{}, fmt.Errorf("bbolt: parent %s: %w", id, strata.ErrNotFound)
	}
	normalize(&p)
	return p, nil
}

// DeleteParent removes a parent and its index entry. Missing ids are not an error.
func (s *Store) DeleteParent(_ context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		parents := tx.Bucket(bucketParents)
		data := parents.Get([]byte(id))
		if data == nil {
			return nil
		}
		var p strata.ParentRecord
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode parent: %w", err)
		}
		if err := tx.Bucket(bucketSources).Delete(sourceKey(p.SourceID, id)); err != nil {
			return err
		}
		return parents.Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("bbolt: delete parent %s: %w", id, err)
	}
	return nil
}

// DeleteParentsBySource removes every parent of a source in one transaction
// and returns their ids in ordinal order.
func (s *Store) DeleteParentsBySource(_ context.Context, sourceID string) ([]string, error) {
	var gone []strata.ParentRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		parents := tx.Bucket(bucketParents)
		c := tx.Bucket(bucketSources).Cursor()
		prefix := sourcePrefix(sourceID)
		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			id := k[len(prefix):]
			if data := parents.Get(id); data != nil {
				var p strata.ParentRecord
				if err := json.Unmarshal(data, &p); err != nil {
					return fmt.Errorf("decode parent: %w", err)
				}
				gone = append(gone, p)
				if err := parents.Delete(id); err != nil {
					return err
				}
			}
			if err := tx.Bucket(bucketSources).Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bbolt: delete parents of %s: %w", sourceID, err)
	}
	sort.SliceStable(gone, func(i, j int) bool {
		if gone[i].Ordinal != gone[j].Ordinal {
			return gone[i].Ordinal < gone[j].Ordinal
		}
		return gone[i].ID < gone[j].ID
	})
	ids := make([]string, len(gone))
	for i, p := range gone {
		ids[i] = p.ID
	}
	s.logger.Debug("bbolt: delete parents by source ok", "source_id", sourceID, "deleted", len(ids))
	return ids, nil
}

// ListParents returns one page of parents, newest first, with the total
// match count. A non-positive limit returns every match.
func (s *Store) ListParents(_ context.Context, f strata.ParentFilter, limit, offset int) ([]strata.ParentRecord, int, error) {
	src := strings.TrimSpace(f.SourceID)
	var matched []strata.ParentRecord
	keep := func(data []byte) error {
		var p strata.ParentRecord
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode parent: %w", err)
		}
		if !f.MatchesText(p.Text) {
			return nil
		}
		normalize(&p)
		matched = append(matched, p)
		return nil
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		parents := tx.Bucket(bucketParents)
		if src == "" {
			return parents.ForEach(func(_, v []byte) error { return keep(v) })
		}
		c := tx.Bucket(bucketSources).Cursor()
		prefix := sourcePrefix(src)
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if data := parents.Get(k[len(prefix):]); data != nil {
				if err := keep(data); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("bbolt: list parents: %w", err)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		return a.Ordinal < b.Ordinal
	})
	total := len(matched)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []strata.ParentRecord{}, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// AggregateBySource summarizes parents per source, largest first.
func (s *Store) AggregateBySource(_ context.Context) ([]strata.SourceSummary, error) {
	acc := strata.NewSourceAccumulator()
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketParents).ForEach(func(_, v []byte) error {
			var p strata.ParentRecord
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode parent: %w", err)
			}
			acc.Add(p.SourceID, p.ContentType, 1, p.CreatedAt.UTC())
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bbolt: aggregate by source: %w", err)
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

// Close closes the bbolt file.
func (s *Store) Close() error {
	return s.db.Close()
}

func sourcePrefix(source string) []byte {
	return append([]byte(source), keySep)
}

func sourceKey(source, id string) []byte {
	return append(sourcePrefix(source), id...)
}

func normalize(p *strata.ParentRecord) {
	p.CreatedAt = p.CreatedAt.UTC()
	if p.Metadata == nil {
		p.Metadata = strata.Metadata{}
	}
}

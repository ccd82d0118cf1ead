package ingest

import (
	"context"
	"fmt"

	"github.com/nevindra/strata"
)

// listPageSize is the page size used to enumerate a source's parents.
const listPageSize = 500

// DeleteParent removes a parent's children, then the parent itself.
// Repeating a delete that failed half-way is safe.
func (p *Pipeline) DeleteParent(ctx context.Context, id string) error {
	if err := p.children.DeleteByParent(ctx, id); err != nil {
		return fmt.Errorf("delete children of %s: %w", id, err)
	}
	if err := p.parents.DeleteParent(ctx, id); err != nil {
		return &strata.StorageError{Op: "delete parent " + id, Err: err}
	}
	p.logger.Info("deleted parent", "parent_id", id)
	return nil
}

// DeleteSource removes every parent of a source together with its children
// and returns the deleted parent ids. Children go first; parents written
// concurrently with the delete have their children removed afterwards.
func (p *Pipeline) DeleteSource(ctx context.Context, sourceID string) ([]string, error) {
	if sourceID == "" {
		return nil, &strata.ValidationError{Field: "source id", Reason: "must not be empty"}
	}
	cleared := make(map[string]bool)
	for offset := 0; ; offset += listPageSize {
		page, total, err := p.parents.ListParents(ctx, strata.ParentFilter{SourceID: sourceID}, listPageSize, offset)
		if err != nil {
			return nil, &strata.StorageError{Op: "list parents of " + sourceID, Err: err}
		}
		for _, parent := range page {
			if err := p.children.DeleteByParent(ctx, parent.ID); err != nil {
				return nil, fmt.Errorf("delete children of %s: %w", parent.ID, err)
			}
			cleared[parent.ID] = true
		}
		if len(page) == 0 || offset+len(page) >= total {
			break
		}
	}

	ids, err := p.parents.DeleteParentsBySource(ctx, sourceID)
	if err != nil {
		return nil, &strata.StorageError{Op: "delete parents of " + sourceID, Err: err}
	}
	for _, id := range ids {
		if cleared[id] {
			continue
		}
		if err := p.children.DeleteByParent(ctx, id); err != nil {
			return ids, fmt.Errorf("delete children of %s: %w", id, err)
		}
	}
	p.logger.Info("deleted source", "source_id", sourceID, "parents", len(ids))
	return ids, nil
}

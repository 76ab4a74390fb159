package harvest

import (
	"context"
	"fmt"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
	"github.com/Hkarnen/comp90024-assignment-2/internal/store"
)

// WriteResult is the outcome of a successful WriteIfAbsent.
type WriteResult int

const (
	Written WriteResult = iota + 1
	AlreadyPresent
)

func (r WriteResult) String() string {
	switch r {
	case Written:
		return "written"
	case AlreadyPresent:
		return "already_present"
	default:
		return "unknown"
	}
}

// IndexWriter stores documents under their identity key, never replacing an
// existing one.
type IndexWriter struct {
	store store.Store
}

// NewIndexWriter wraps s.
func NewIndexWriter(s store.Store) *IndexWriter {
	return &IndexWriter{store: s}
}

// WriteIfAbsent writes doc unless a document with the same identity key is
// already indexed. The write is create-only, so two concurrent harvests of the
// same reading produce one document and one AlreadyPresent.
func (w *IndexWriter) WriteIfAbsent(ctx context.Context, index string, doc domain.Document) (WriteResult, error) {
	key := doc.IdentityKey()

	exists, err := w.store.Exists(ctx, index, key)
	if err != nil {
		return 0, fmt.Errorf("check %s: %w", key, err)
	}
	if exists {
		return AlreadyPresent, nil
	}

	created, err := w.store.Create(ctx, index, key, doc)
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", key, err)
	}
	if !created {
		return AlreadyPresent, nil
	}
	return Written, nil
}

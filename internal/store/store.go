// Package store defines the document-store port shared by the harvesters and
// the read API.
package store

import (
	"context"
	"encoding/json"
)

// Store is a search/aggregation document store. Implementations wrap
// transport failures in domain.ErrStoreUnavailable and must be safe for
// concurrent use.
type Store interface {
	// Exists reports whether a document with id is present in index.
	Exists(ctx context.Context, index, id string) (bool, error)
	// Create writes doc under id only if no document has that id. It returns
	// false when one already did.
	Create(ctx context.Context, index, id string, doc any) (bool, error)
	// Put writes doc under id, replacing any existing document.
	Put(ctx context.Context, index, id string, doc any) error
	// Search runs a raw query body against index.
	Search(ctx context.Context, index string, body map[string]any) (*SearchResponse, error)
}

// Hit is one matching document.
type Hit struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

// SearchResponse holds the parts of a search result the service reads.
type SearchResponse struct {
	Hits         []Hit
	Aggregations map[string]json.RawMessage
}

// Package elastic implements store.Store on Elasticsearch.
package elastic

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
	"github.com/Hkarnen/comp90024-assignment-2/internal/store"
)

// Config holds the cluster connection settings.
type Config struct {
	Addresses          []string
	Username           string
	Password           string
	InsecureSkipVerify bool
	MaxRetries         int
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Store is an Elasticsearch-backed store.Store.
type Store struct {
	es     *elasticsearch.Client
	logger *slog.Logger
}

// New creates a client for the configured cluster. No request is made until
// the first call.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	transport := cfg.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // cluster uses a self-signed certificate
		}
		transport = t
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:  cfg.Addresses,
		Username:   cfg.Username,
		Password:   cfg.Password,
		Transport:  transport,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Store{es: es, logger: logger}, nil
}

func (s *Store) Exists(ctx context.Context, index, id string) (bool, error) {
	res, err := s.es.Exists(index, id, s.es.Exists.WithContext(ctx))
	if err != nil {
		return false, unavailable(ctx, "exists", err)
	}
	defer drain(res)

	switch {
	case res.StatusCode == http.StatusOK:
		return true, nil
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, statusError("exists", res)
	}
}

// Create indexes doc with op_type=create, so a concurrent writer that lost
// the race sees a 409 instead of overwriting.
func (s *Store) Create(ctx context.Context, index, id string, doc any) (bool, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode document %s: %w", id, err)
	}

	res, err := s.es.Create(index, id, bytes.NewReader(body), s.es.Create.WithContext(ctx))
	if err != nil {
		return false, unavailable(ctx, "create", err)
	}
	defer drain(res)

	switch {
	case res.StatusCode == http.StatusConflict:
		s.logger.Debug("document already present", "index", index, "id", id)
		return false, nil
	case res.IsError():
		return false, statusError("create", res)
	default:
		return true, nil
	}
}

func (s *Store) Put(ctx context.Context, index, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", id, err)
	}

	res, err := s.es.Index(index, bytes.NewReader(body),
		s.es.Index.WithDocumentID(id),
		s.es.Index.WithContext(ctx),
	)
	if err != nil {
		return unavailable(ctx, "index", err)
	}
	defer drain(res)

	if res.IsError() {
		return statusError("index", res)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, index string, body map[string]any) (*store.SearchResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode search body: %w", err)
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(index),
		s.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, unavailable(ctx, "search", err)
	}
	defer drain(res)

	if res.IsError() {
		return nil, statusError("search", res)
	}

	var raw searchResult
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &store.SearchResponse{
		Hits:         raw.Hits.Hits,
		Aggregations: raw.Aggregations,
	}, nil
}

type searchResult struct {
	Hits struct {
		Hits []store.Hit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

// unavailable classifies a transport error. A cancelled or expired ctx is
// the caller's doing and is returned as is.
func unavailable(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

// statusError classifies an error response. 5xx means the cluster cannot
// serve requests at all.
func statusError(op string, res *esapi.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	if res.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s: status %d: %s", domain.ErrStoreUnavailable, op, res.StatusCode, msg)
	}
	return fmt.Errorf("%s: status %d: %s", op, res.StatusCode, msg)
}

func drain(res *esapi.Response) {
	if res == nil || res.Body == nil {
		return
	}
	io.Copy(io.Discard, res.Body) //nolint:errcheck // connection reuse only
	res.Body.Close()
}

var _ store.Store = (*Store)(nil)

// Package vicroads reads the VicRoads freeway travel-time feed.
package vicroads

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
)

// Getter fetches a URL body. *upstream.Fetcher satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Client implements the traffic source.
type Client struct {
	url string
	get Getter
}

// NewClient creates a client for the feed at url. The subscription key
// header is set on the Getter.
func NewClient(url string, get Getter) *Client {
	return &Client{url: url, get: get}
}

// Features fetches every segment feature in one call. Any upstream failure is
// returned as is so the caller can abort the pass.
func (c *Client) Features(ctx context.Context) ([]domain.TrafficFeature, error) {
	body, err := c.get.Get(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("fetch traffic feed: %w", err)
	}

	var fc struct {
		Features []domain.TrafficFeature `json:"features"`
	}
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, fmt.Errorf("decode traffic feed: %w", err)
	}
	return fc.Features, nil
}

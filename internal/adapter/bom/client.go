// Package bom harvests Bureau of Meteorology station observations for Victoria.
package bom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
)

// portableTableID is the index table listing portable stations, which are
// not harvested.
const portableTableID = "tPORT"

var productIDRe = regexp.MustCompile(`products/(.+)\.shtml`)

// Getter fetches a URL body. *upstream.Fetcher satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Config holds the upstream locations.
type Config struct {
	// IndexURL is the regional observations page listing station links.
	IndexURL string
	// ObservationBaseURL is where per-station <product id>.json files live.
	ObservationBaseURL string
	// StationsURL is the fixed-width station reference table.
	StationsURL string
}

// Client implements the weather source.
type Client struct {
	cfg    Config
	get    Getter
	logger *slog.Logger
}

// NewClient creates a BOM client.
func NewClient(cfg Config, get Getter, logger *slog.Logger) *Client {
	return &Client{cfg: cfg, get: get, logger: logger}
}

// StationURLs scrapes the index page for active station products and returns
// one observation JSON URL per station, without duplicates.
func (c *Client) StationURLs(ctx context.Context) ([]string, error) {
	body, err := c.get.Get(ctx, c.cfg.IndexURL)
	if err != nil {
		return nil, fmt.Errorf("fetch station index: %w", err)
	}

	ids, err := parseStationIndex(body)
	if err != nil {
		return nil, fmt.Errorf("parse station index: %w", err)
	}

	base := strings.TrimRight(c.cfg.ObservationBaseURL, "/")
	urls := make([]string, 0, len(ids))
	for _, id := range ids {
		urls = append(urls, base+"/"+id+".json")
	}
	c.logger.Debug("scraped station index", "stations", len(urls))
	return urls, nil
}

// Observations fetches one station's recent observations.
func (c *Client) Observations(ctx context.Context, url string) ([]domain.WeatherRecord, error) {
	body, err := c.get.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	var product stationProduct
	if err := json.Unmarshal(body, &product); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return product.Observations.Data, nil
}

// StationTable fetches and parses the station reference table.
func (c *Client) StationTable(ctx context.Context) (domain.StationTable, error) {
	body, err := c.get.Get(ctx, c.cfg.StationsURL)
	if err != nil {
		return nil, fmt.Errorf("fetch station table: %w", err)
	}
	table, err := domain.ParseStationTable(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse station table: %w", err)
	}
	return table, nil
}

type stationProduct struct {
	Observations struct {
		Data []domain.WeatherRecord `json:"data"`
	} `json:"observations"`
}

// parseStationIndex returns the product ids linked from the index page,
// skipping every link that also appears in the portable stations table.
func parseStationIndex(page []byte) ([]string, error) {
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool)
	if port := findByID(root, "table", portableTableID); port != nil {
		for _, href := range hrefs(port) {
			excluded[href] = true
		}
	}

	seen := make(map[string]bool)
	var ids []string
	for _, href := range hrefs(root) {
		if excluded[href] || !strings.Contains(href, "/products/IDV") {
			continue
		}
		m := productIDRe.FindStringSubmatch(href)
		if m == nil || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		ids = append(ids, m[1])
	}
	return ids, nil
}

func findByID(n *html.Node, tag, id string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag && attr(n, "id") == id {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findByID(child, tag, id); found != nil {
			return found
		}
	}
	return nil
}

func hrefs(n *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attr(n, "href"); href != "" {
				out = append(out, href)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

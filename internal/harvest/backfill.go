package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
)

// backfillPageSize bounds one backfill pass; rerun to pick up the remainder.
const backfillPageSize = 10000

// BackfillReport is the outcome of BackfillAirQuality.
type BackfillReport struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
	// Unknown lists document ids whose site is absent from the directory.
	Unknown []string `json:"unknown,omitempty"`
	// Undecodable lists document ids whose source could not be parsed.
	Undecodable []string `json:"undecodable,omitempty"`
}

// BackfillAirQuality adds site_id and site_name to air-quality documents
// indexed before those fields existed. The site id is recovered from the
// document id and the name from the live site directory. This is the only
// path that rewrites an existing document.
func (h *Harvester) BackfillAirQuality(ctx context.Context) (*BackfillReport, error) {
	if h.airQuality == nil {
		return nil, errors.New("air quality client not configured")
	}
	logger := h.logger.With("source", domain.SourceAirQuality, "op", "backfill")

	sites, err := h.airQuality.Sites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	names := make(map[string]string, len(sites))
	for _, s := range sites {
		names[s.ID] = s.Name
	}

	resp, err := h.store.Search(ctx, h.indices.AirQuality, missingSiteQuery())
	if err != nil {
		return nil, fmt.Errorf("find documents missing site fields: %w", err)
	}

	report := &BackfillReport{}
	for _, hit := range resp.Hits {
		var doc map[string]any
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			logger.Warn("undecodable document, skipping", "id", hit.ID, "error", err)
			report.Undecodable = append(report.Undecodable, hit.ID)
			continue
		}
		if hasString(doc, "site_id") && hasString(doc, "site_name") {
			continue
		}
		report.Scanned++

		siteID, ok := domain.SiteIDFromKey(hit.ID)
		name, known := names[siteID]
		if !ok || !known {
			logger.Warn("site not in directory, leaving document unchanged", "id", hit.ID)
			report.Unknown = append(report.Unknown, hit.ID)
			continue
		}

		doc["site_id"] = siteID
		doc["site_name"] = name
		if err := h.store.Put(ctx, h.indices.AirQuality, hit.ID, doc); err != nil {
			return report, fmt.Errorf("rewrite %s: %w", hit.ID, err)
		}
		report.Updated++
	}

	logger.Info("backfill complete", "scanned", report.Scanned, "updated", report.Updated, "unknown", len(report.Unknown))
	return report, nil
}

// missingSiteQuery matches documents lacking either site field.
func missingSiteQuery() map[string]any {
	return map[string]any{
		"size": backfillPageSize,
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"bool": map[string]any{"must_not": map[string]any{"exists": map[string]any{"field": "site_id"}}}},
					map[string]any{"bool": map[string]any{"must_not": map[string]any{"exists": map[string]any{"field": "site_name"}}}},
				},
				"minimum_should_match": 1,
			},
		},
	}
}

func hasString(doc map[string]any, key string) bool {
	s, ok := doc[key].(string)
	return ok && s != ""
}

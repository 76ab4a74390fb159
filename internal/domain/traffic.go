package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FlexString decodes a JSON string or number into its textual form. The
// traffic feed emits numeric feature ids.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*s = FlexString(n.String())
	return nil
}

// TrafficProperties are the feature properties the pipeline depends on.
type TrafficProperties struct {
	ID               FlexString `json:"id"`
	FreewayName      string     `json:"freewayName"`
	SegmentName      string     `json:"segmentName"`
	PublishedTime    string     `json:"publishedTime"`
	Condition        string     `json:"condition"`
	ActualTravelTime *float64   `json:"actualTravelTime"`
	AverageSpeed     *float64   `json:"averageSpeed"`
	CongestionIndex  *float64   `json:"congestionIndex"`
}

// TrafficFeature is one GeoJSON feature of the freeway travel-time feed.
type TrafficFeature struct {
	Properties TrafficProperties `json:"properties"`
	Geometry   json.RawMessage   `json:"geometry"`
}

// TrafficSegment is the indexed traffic document.
type TrafficSegment struct {
	ObsID            string          `json:"obs_id"`
	FreewayName      string          `json:"freewayName,omitempty"`
	SegmentName      string          `json:"segmentName,omitempty"`
	PublishedTime    string          `json:"publishedTime"`
	Condition        string          `json:"condition,omitempty"`
	ActualTravelTime *float64        `json:"actualTravelTime,omitempty"`
	AverageSpeed     *float64        `json:"averageSpeed,omitempty"`
	CongestionIndex  *float64        `json:"congestionIndex,omitempty"`
	Geometry         json.RawMessage `json:"geometry,omitempty"`
}

// IdentityKey returns <feature id>---<publishedTime>.
func (s TrafficSegment) IdentityKey() string {
	return s.ObsID
}

// NormalizeTraffic maps a feed feature to its document.
func NormalizeTraffic(f TrafficFeature) (TrafficSegment, error) {
	p := f.Properties
	if p.ID == "" {
		return TrafficSegment{}, errors.New("traffic feature has no id")
	}
	if p.PublishedTime == "" {
		return TrafficSegment{}, fmt.Errorf("traffic feature %s has no publishedTime", p.ID)
	}

	seg := TrafficSegment{
		ObsID:            string(p.ID) + "---" + p.PublishedTime,
		FreewayName:      p.FreewayName,
		SegmentName:      p.SegmentName,
		PublishedTime:    p.PublishedTime,
		Condition:        p.Condition,
		ActualTravelTime: p.ActualTravelTime,
		AverageSpeed:     p.AverageSpeed,
		CongestionIndex:  p.CongestionIndex,
	}
	if len(f.Geometry) > 0 && !bytes.Equal(bytes.TrimSpace(f.Geometry), []byte("null")) {
		seg.Geometry = f.Geometry
	}
	return seg, nil
}

// FreewayRouteKey encodes a freeway display name for use in a URL path.
func FreewayRouteKey(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}

// FreewayName decodes a route key back to the display name. Names already
// containing spaces pass through unchanged.
func FreewayName(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}

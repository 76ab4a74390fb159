// Package domain models the telemetry harvested from three Victorian public
// data providers and the calendar windows used to aggregate it.
//
// # Sources
//
// Weather observations come from the Bureau of Meteorology. A regional index
// page lists one link per automatic weather station; each link maps to a
// per-station JSON product holding the last ~72 half-hourly observations.
// Station coordinates in that product are rounded, so a second fixed-width
// table (stations.txt) supplies full-precision coordinates keyed by WMO code.
//
// Air-quality readings come from the EPA Victoria Environment Monitoring API.
// A directory endpoint lists every air monitoring site; a per-site parameters
// endpoint returns time series per measured channel. Only the PM2.5 hourly
// average series ("1HR_AV") is harvested, and only readings with a non-zero
// sample count are considered complete.
//
// Traffic conditions come from the VicRoads freeway travel-time feed, one
// GeoJSON FeatureCollection with a feature per freeway segment.
//
// # Identity Keys
//
// Every document carries a deterministic identity key built from fields that
// do not change when the same upstream reading is fetched again:
//
//	weather:      <wmo>--<aifstime_utc>           e.g. 95936--20240504050000
//	air quality:  <site id>--<since>--<until>
//	traffic:      <feature id>---<publishedTime>  (three dashes)
//
// The key is used as the store's document id, so re-harvesting a reading is a
// no-op rather than a duplicate. Documents are never mutated after their first
// write; the air-quality backfill is the only exception.
//
// # Time
//
// Weather and traffic documents are stamped in Melbourne local time, while
// air-quality readings are stamped in UTC. A [TimeFilter] resolves a
// year/month/day/hour request to an inclusive [Window] in a location, and
// [Window.UTC] converts it for UTC-stored sources.
package domain

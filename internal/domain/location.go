package domain

// Location is a latitude/longitude pair. Either coordinate may be unknown.
type Location struct {
	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`
}

// Complete reports whether both coordinates are known.
func (l Location) Complete() bool {
	return l.Lat != nil && l.Lon != nil
}

// MergeLocation returns refined when it is complete, otherwise coarse.
// A partial refinement never mixes with a coarse coordinate.
func MergeLocation(coarse Location, refined *Location) Location {
	if refined != nil && refined.Complete() {
		return *refined
	}
	return coarse
}

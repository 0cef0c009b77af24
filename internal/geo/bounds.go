package geo

// Bounds is a closed lat/lng rectangle, the same shape the map layer uses:
// [[south, west], [north, east]].
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Point is a latitude/longitude pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

const (
	campusCenterLat = 35.702831
	campusCenterLng = 51.3516
	campusDelta     = 0.0055
)

// Campus is the fixed rectangle the map, location filters and item creation
// are restricted to.
func Campus() Bounds {
	return Bounds{
		South: campusCenterLat - campusDelta,
		West:  campusCenterLng - campusDelta,
		North: campusCenterLat + campusDelta,
		East:  campusCenterLng + campusDelta,
	}
}

// Center returns the midpoint of the rectangle.
func (b Bounds) Center() Point {
	return Point{
		Lat: (b.South + b.North) / 2,
		Lng: (b.West + b.East) / 2,
	}
}

// Clamp projects a coordinate into the rectangle, clamping each axis
// independently. It never fails; an in-bounds point comes back unchanged.
func Clamp(lat, lng float64, b Bounds) Point {
	return Point{
		Lat: clampAxis(lat, b.South, b.North),
		Lng: clampAxis(lng, b.West, b.East),
	}
}

// Within reports whether the coordinate lies inside the rectangle, inclusive
// on all four edges.
func Within(lat, lng float64, b Bounds) bool {
	return lat >= b.South && lat <= b.North && lng >= b.West && lng <= b.East
}

func clampAxis(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// EarthRadius is the radius of the earth in kilometers.
	EarthRadius = 6371.0
)

// ErrInvalidDistance is returned when a distance filter radius is negative or not finite.
var ErrInvalidDistance = errors.New("invalid distance filter")

// ErrInvalidCoordinate is returned when a coordinate is out of range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is a point on the earth surface expressed in signed degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewCoordinate returns a pointer to a Coordinate. Handy when the coordinate is optional.
func NewCoordinate(latitude, longitude float64) *Coordinate {
	return &Coordinate{Latitude: latitude, Longitude: longitude}
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%f,%f", c.Latitude, c.Longitude)
}

// Haversine returns the great-circle distance in kilometers between two coordinates.
func Haversine(a, b Coordinate) float64 {
	lat1 := toRad(a.Latitude)
	lat2 := toRad(b.Latitude)
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadius * c
}

// Validate checks that the coordinate is finite and within the latitude and longitude ranges.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: %s", ErrInvalidCoordinate, c)
	}
	return nil
}

// DistanceFilter restricts results to a radius in kilometers around the viewer.
// The zero value is a bounded filter of radius 0, use Unbounded() to disable filtering.
type DistanceFilter struct {
	radiusKm  float64
	unbounded bool
}

// Unbounded returns a DistanceFilter that lets every item through.
func Unbounded() DistanceFilter {
	return DistanceFilter{unbounded: true}
}

// Within returns a bounded DistanceFilter of the given radius in kilometers.
func Within(km float64) (DistanceFilter, error) {
	if km < 0 || math.IsNaN(km) || math.IsInf(km, 0) {
		return DistanceFilter{}, fmt.Errorf("%w: %v", ErrInvalidDistance, km)
	}
	return DistanceFilter{radiusKm: km}, nil
}

// DistanceOptions are the distance filter labels offered to clients, all accepted by
// ParseDistanceFilter.
var DistanceOptions = []string{"5 km", "10 km", "25 km", "50 km", "100 km", "All"}

// ParseDistanceFilter parses the distance options offered to clients ("5 km", "100", "All").
// An empty string, "all" and "0" mean unbounded.
func ParseDistanceFilter(s string) (DistanceFilter, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSpace(strings.TrimSuffix(s, "km"))
	if s == "" || s == "all" {
		return Unbounded(), nil
	}
	km, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return DistanceFilter{}, fmt.Errorf("%w: %q", ErrInvalidDistance, s)
	}
	if km == 0 {
		return Unbounded(), nil
	}
	return Within(km)
}

// IsUnbounded reports whether the filter lets every item through.
func (f DistanceFilter) IsUnbounded() bool {
	return f.unbounded
}

// RadiusKm returns the radius of a bounded filter. It is meaningless for an unbounded one.
func (f DistanceFilter) RadiusKm() float64 {
	return f.radiusKm
}

// String returns "all" for unbounded filters and the radius otherwise. It is stable and
// used to build cache keys.
func (f DistanceFilter) String() string {
	if f.unbounded {
		return "all"
	}
	return strconv.FormatFloat(f.radiusKm, 'f', -1, 64)
}

// Allows reports whether an item authored at the author coordinate passes the filter for the viewer.
// A bounded filter never lets through an item when any of both coordinates is missing.
func (f DistanceFilter) Allows(viewer, author *Coordinate) bool {
	if f.unbounded {
		return true
	}
	if viewer == nil || author == nil {
		return false
	}
	return Haversine(*viewer, *author) <= f.radiusKm
}

// Filter returns a new slice with the items whose author coordinate passes the filter.
// The input slice and its items are not modified, and the order is preserved.
func Filter[T any](items []T, viewer *Coordinate, f DistanceFilter, author func(T) *Coordinate) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if f.Allows(viewer, author(item)) {
			out = append(out, item)
		}
	}
	return out
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

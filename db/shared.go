package db

import (
	"github.com/emprius/emprius-social-backend/geo"
)

const (
	// DefaultPageSize is the default number of documents returned by list queries.
	DefaultPageSize = 20
	// MaxPageSize bounds the limit accepted by list queries.
	MaxPageSize = 100
)

// DBLocation is a GeoJSON Point. Coordinates are stored as [longitude, latitude].
type DBLocation struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

// NewDBLocation converts a coordinate into a GeoJSON point. A nil coordinate returns nil.
func NewDBLocation(c *geo.Coordinate) *DBLocation {
	if c == nil {
		return nil
	}
	return &DBLocation{
		Type:        "Point",
		Coordinates: []float64{c.Longitude, c.Latitude},
	}
}

// Coordinate returns the location as a geo.Coordinate, or nil if the location is unset or malformed.
func (l *DBLocation) Coordinate() *geo.Coordinate {
	if l == nil || len(l.Coordinates) != 2 {
		return nil
	}
	return &geo.Coordinate{
		Latitude:  l.Coordinates[1],
		Longitude: l.Coordinates[0],
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

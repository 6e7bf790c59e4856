package db

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// DefaultObfuscationRadiusMeters is the default radius for location obfuscation in meters
	DefaultObfuscationRadiusMeters = 1000
)

// GenerateObfuscatedLocation generates a deterministically randomized location within the specified radius.
// The same entity and salt always produce the same point, so repeated profile views do not leak
// the real location by averaging.
func GenerateObfuscatedLocation(location DBLocation, entityID string, salt string, radiusMeters float64) DBLocation {
	hasher := sha256.New()
	hasher.Write([]byte(entityID + salt))
	hashBytes := hasher.Sum(nil)

	seed := int64(binary.BigEndian.Uint64(hashBytes[:8]))
	rng := rand.New(rand.NewSource(seed))

	angle := rng.Float64() * 2 * math.Pi
	// square root keeps the distribution uniform over the circle area
	distance := math.Sqrt(rng.Float64()) * radiusMeters

	// 1 degree is about 111 km at the equator
	latOffset := distance * math.Cos(angle) / (111000)
	latRadians := location.Coordinates[1] * (math.Pi / 180)
	longOffset := distance * math.Sin(angle) / (111000 * math.Cos(latRadians))

	return DBLocation{
		Type: "Point",
		Coordinates: []float64{
			location.Coordinates[0] + longOffset, // Longitude
			location.Coordinates[1] + latOffset,  // Latitude
		},
	}
}

// ObfuscateLocation generates an obfuscated location for a user. A nil or malformed location returns nil.
func ObfuscateLocation(location *DBLocation, seedID primitive.ObjectID, salt string) *DBLocation {
	if location == nil || len(location.Coordinates) != 2 {
		return nil
	}
	obfuscated := GenerateObfuscatedLocation(*location, seedID.Hex(), salt, DefaultObfuscationRadiusMeters)
	return &obfuscated
}

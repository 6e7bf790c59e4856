package db

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInvalidID is returned when a document identifier is not a valid ObjectID hex string.
var ErrInvalidID = errors.New("invalid document id")

var sanitizeRegex = regexp.MustCompile("[^a-zA-Z0-9,._ -]+")

// SanitizeString removes all non-alphanumeric characters from a string, except for commas, dots,
// spaces, minus signs, and underscores.
func SanitizeString(s string) string {
	return sanitizeRegex.ReplaceAllString(s, "")
}

// RandomDatabaseName returns a random database name, used for isolation in tests.
func RandomDatabaseName() string {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return fmt.Sprintf("emprius_social_%d", rng.Int63())
}

// ParseID converts a hex string into an ObjectID.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return oid, nil
}

// ParseIDs converts a list of hex strings into ObjectIDs, failing on the first invalid one.
func ParseIDs(ids []string) ([]primitive.ObjectID, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := ParseID(id)
		if err != nil {
			return nil, err
		}
		oids = append(oids, oid)
	}
	return oids, nil
}

// HexIDs converts a list of ObjectIDs into hex strings.
func HexIDs(oids []primitive.ObjectID) []string {
	ids := make([]string, 0, len(oids))
	for _, oid := range oids {
		ids = append(ids, oid.Hex())
	}
	return ids
}

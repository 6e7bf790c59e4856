package db

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

// IsNotFound reports whether err means the requested document does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// IsDuplicate reports whether err is a unique index violation.
func IsDuplicate(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

package gateway

import (
	"errors"
	"fmt"

	"github.com/emprius/emprius-social-backend/db"
	"github.com/emprius/emprius-social-backend/geo"
	"github.com/emprius/emprius-social-backend/storage"
)

// Error taxonomy of the gateway. Every error returned by a gateway operation wraps exactly one
// of these sentinels. Errors coming from the database or the file store are never wrapped, only
// their message is kept, so callers can not depend on backend error types.
var (
	// ErrTransport means the backend could not be reached or failed unexpectedly.
	ErrTransport = errors.New("backend unavailable")
	// ErrNotFound means the requested document or file does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation means the input was rejected.
	ErrValidation = errors.New("validation failed")
	// ErrPartialWrite means a multi-step write failed halfway.
	ErrPartialWrite = errors.New("partial write")
	// ErrUnauthorized means the credentials or the session are not valid for the operation.
	ErrUnauthorized = errors.New("unauthorized")
)

// translate maps a backend error into the gateway taxonomy.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err), errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case db.IsDuplicate(err):
		return fmt.Errorf("%s: %w: already exists", op, ErrValidation)
	case errors.Is(err, db.ErrInvalidID),
		errors.Is(err, storage.ErrEmptyFile),
		errors.Is(err, storage.ErrInvalidPreview),
		errors.Is(err, geo.ErrInvalidCoordinate),
		errors.Is(err, geo.ErrInvalidDistance):
		return fmt.Errorf("%s: %w: %v", op, ErrValidation, err)
	case isTaxonomy(err):
		return err
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
	}
}

func isTaxonomy(err error) bool {
	for _, sentinel := range []error{ErrTransport, ErrNotFound, ErrValidation, ErrPartialWrite, ErrUnauthorized} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func validationError(op, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", op, ErrValidation, fmt.Sprintf(format, args...))
}

// partialWrite reports a failed multi-step write. cleanupErr is the error of the compensation
// step, if any.
func partialWrite(op string, cause, cleanupErr error) error {
	if cleanupErr != nil {
		return fmt.Errorf("%s: %w: %v (cleanup failed: %v)", op, ErrPartialWrite, cause, cleanupErr)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrPartialWrite, cause)
}

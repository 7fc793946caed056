// Package handlers implements the HTTP request handlers for the four
// FeatureHub component APIs.
package handlers

import (
	"errors"
	"net/http"

	"github.com/lunamage/featurehub/pkg/featurestore"
	"github.com/lunamage/featurehub/pkg/router"
)

// StatusForError maps domain errors to HTTP status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, featurestore.ErrEmptyKey),
		errors.Is(err, featurestore.ErrKeyTooLong),
		errors.Is(err, featurestore.ErrUnknownTier),
		errors.Is(err, featurestore.ErrUnknownMigrationStatus),
		errors.Is(err, featurestore.ErrUnknownMigrationType),
		errors.Is(err, featurestore.ErrUnknownCleanupType),
		errors.Is(err, router.ErrBatchTooLarge),
		errors.Is(err, router.ErrEmptyValue):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/medscry/internal/api/shared"
	"github.com/phrazzld/medscry/internal/domain"
)

// MapErrorToStatusCode maps service errors to HTTP status codes without
// exposing their types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOwnership):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStateConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err. Validation
// messages name the offending field; every other kind gets a fixed message.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var verr *domain.ValidationError
	var nf *domain.NotFoundError
	var sc *domain.StateConflictError
	switch {
	case errors.As(err, &verr):
		if verr.Field == "" {
			return "Invalid request: " + verr.Message
		}
		return "Invalid " + verr.Field + ": " + verr.Message
	case errors.Is(err, domain.ErrOwnership):
		return "You do not own this resource"
	case errors.As(err, &nf):
		return capitalize(nf.Entity) + " not found"
	case errors.As(err, &sc):
		return "Cannot " + sc.Action + " " + sc.Entity + " in state " + sc.From
	case errors.Is(err, domain.ErrStateConflict):
		return "Request conflicts with the current state"
	case errors.Is(err, domain.ErrPersistence):
		return "Progress could not be saved, please retry"
	default:
		return "An unexpected error occurred"
	}
}

func capitalize(s string) string {
	if s == "" {
		return "Resource"
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}

// HandleAPIError writes the mapped status and safe message for err. A
// non-empty fallback replaces the generic message of unmapped errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}

	var opts []shared.ResponseOption
	if status == http.StatusForbidden || status == http.StatusConflict {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}

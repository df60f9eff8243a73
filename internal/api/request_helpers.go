package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/api/shared"
	"github.com/phrazzld/medscry/internal/domain"
	"github.com/phrazzld/medscry/internal/platform/logger"
)

// getPathUUID extracts and parses a UUID path parameter.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	raw := chi.URLParam(r, paramName)
	if raw == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", err)
	}
	return id, nil
}

// getPathDomain extracts the domain path parameter.
func getPathDomain(r *http.Request) (string, error) {
	name := strings.TrimSpace(chi.URLParam(r, "domain"))
	if name == "" {
		return "", domain.NewValidationError("domain", "is required", nil)
	}
	return name, nil
}

// requireLearner returns the authenticated learner, writing a 401 when the
// context carries none.
func requireLearner(w http.ResponseWriter, r *http.Request, log *slog.Logger) (uuid.UUID, bool) {
	learnerID, ok := shared.GetLearnerID(r.Context())
	if !ok {
		log.Warn("learner ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Learner ID not found or invalid")
		return uuid.Nil, false
	}
	return learnerID, true
}

// requireLearnerAndPathUUID combines requireLearner with getPathUUID.
func requireLearnerAndPathUUID(
	w http.ResponseWriter,
	r *http.Request,
	paramName string,
	log *slog.Logger,
) (uuid.UUID, uuid.UUID, bool) {
	if log == nil {
		log = logger.FromContextOrDefault(r.Context(), slog.Default())
	}
	learnerID, ok := requireLearner(w, r, log)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	pathID, err := getPathUUID(r, paramName)
	if err != nil {
		log.Warn("invalid "+paramName, slog.String("value", chi.URLParam(r, paramName)))
		HandleAPIError(w, r, err, "")
		return uuid.Nil, uuid.Nil, false
	}
	return learnerID, pathID, true
}

// decodeAndValidate decodes the JSON body into v and validates it, writing a
// 400 on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := shared.DecodeJSON(w, r, v); err != nil {
		HandleAPIError(w, r, err, "")
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		HandleAPIError(w, r, err, "")
		return false
	}
	return true
}

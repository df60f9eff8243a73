package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/medscry/internal/api/shared"
	"github.com/phrazzld/medscry/internal/domain"
	"github.com/phrazzld/medscry/internal/platform/logger"
	"github.com/phrazzld/medscry/internal/service/progression"
)

// ProgressionHandler serves the learner-facing progression endpoints.
type ProgressionHandler struct {
	service progression.Service
	clock   func() time.Time
	logger  *slog.Logger
}

// NewProgressionHandler creates a ProgressionHandler.
func NewProgressionHandler(service progression.Service, logger *slog.Logger) *ProgressionHandler {
	if service == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("progression service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressionHandler{
		service: service,
		clock:   time.Now,
		logger:  logger.With(slog.String("component", "progression_handler")),
	}
}

// GetDailyMix handles GET /api/mix.
func (h *ProgressionHandler) GetDailyMix(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	learnerID, ok := requireLearner(w, r, log)
	if !ok {
		return
	}

	mix, err := h.service.GetDailyMix(r.Context(), learnerID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to build daily mix")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, mix)
}

// CompleteSession handles POST /api/sessions. A replayed session id answers
// 200 with duplicate set; a newly applied one answers 201.
func (h *ProgressionHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	learnerID, ok := requireLearner(w, r, log)
	if !ok {
		return
	}

	var outcome domain.SessionOutcome
	if err := shared.DecodeJSON(w, r, &outcome); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	// The service validates the outcome so the same rules hold for every caller.
	result, err := h.service.CompleteSession(r.Context(), learnerID, outcome)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to record session")
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	shared.RespondWithJSON(w, r, status, result)
}

// SubmitMiniOSCE handles POST /api/domains/{domain}/mini-osce.
func (h *ProgressionHandler) SubmitMiniOSCE(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	learnerID, ok := requireLearner(w, r, log)
	if !ok {
		return
	}
	domainName, err := getPathDomain(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req MiniOSCERequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.SubmitMiniOSCE(r.Context(), learnerID, domainName, req.Scores)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to score Mini-OSCE")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// RequestRecovery handles POST /api/recovery.
func (h *ProgressionHandler) RequestRecovery(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	learnerID, ok := requireLearner(w, r, log)
	if !ok {
		return
	}

	state, err := h.service.RequestRecovery(r.Context(), learnerID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to enter recovery mode")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, state)
}

// ExitRecovery handles DELETE /api/recovery.
func (h *ProgressionHandler) ExitRecovery(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	learnerID, ok := requireLearner(w, r, log)
	if !ok {
		return
	}

	state, err := h.service.ExitRecovery(r.Context(), learnerID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to exit recovery mode")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, state)
}

// ResetCard handles POST /api/cards/{id}/reset.
func (h *ProgressionHandler) ResetCard(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	learnerID, cardID, ok := requireLearnerAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	card, err := h.service.ResetCard(r.Context(), learnerID, cardID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to reset card")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, card)
}

// GetProfile handles GET /api/profile.
func (h *ProgressionHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	learnerID, ok := requireLearner(w, r, log)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(r.Context(), learnerID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load profile")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, profileToResponse(profile, h.clock()))
}

// UpdatePreferences handles PATCH /api/profile/preferences.
func (h *ProgressionHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	learnerID, ok := requireLearner(w, r, log)
	if !ok {
		return
	}

	var req PreferencesRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	profile, err := h.service.UpdatePreferences(r.Context(), learnerID, progression.Preferences{
		PrimaryDomain: req.PrimaryDomain,
		TimeZone:      req.TimeZone,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update preferences")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, profileToResponse(profile, h.clock()))
}

// ReopenDomain handles POST /api/admin/learners/{learnerID}/domains/{domain}/reopen.
// The route is guarded by the admin role; the learner comes from the path.
func (h *ProgressionHandler) ReopenDomain(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	learnerID, err := getPathUUID(r, "learnerID")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	domainName, err := getPathDomain(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req ReopenDomainRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	status, err := h.service.ReopenDomain(r.Context(), learnerID, domainName, req.Reason)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to reopen domain")
		return
	}

	actor, _ := shared.GetLearnerID(r.Context())
	log.Info("domain reopened by admin",
		slog.String("admin_id", actor.String()),
		slog.String("learner_id", learnerID.String()),
		slog.String("domain", domainName))
	shared.RespondWithJSON(w, r, http.StatusOK, status)
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

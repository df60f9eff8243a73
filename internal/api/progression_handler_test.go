package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/api/middleware"
	"github.com/phrazzld/medscry/internal/api/shared"
	"github.com/phrazzld/medscry/internal/domain"
	"github.com/phrazzld/medscry/internal/mocks"
	"github.com/phrazzld/medscry/internal/service/progression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-at-least-32-bytes-long"

var testNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func newTestRouter(svc progression.Service) http.Handler {
	h := NewProgressionHandler(svc, nil)
	h.clock = func() time.Time { return testNow }
	r := chi.NewRouter()
	r.Use(middleware.Trace(nil))
	RegisterRoutes(r, h, middleware.NewAuthMiddleware(testSecret))
	return r
}

func bearer(t *testing.T, learnerID uuid.UUID, role string) string {
	t.Helper()
	token, err := middleware.SignToken(testSecret, learnerID, role, time.Now(), time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func do(t *testing.T, h http.Handler, method, path, body, auth string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) shared.ErrorResponse {
	t.Helper()
	var resp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestNewProgressionHandlerPanicsWithoutService(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { NewProgressionHandler(nil, nil) })
}

func TestHealth(t *testing.T) {
	t.Parallel()
	w := do(t, newTestRouter(&mocks.MockProgressionService{}), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRoutesRequireAuthentication(t *testing.T) {
	t.Parallel()
	svc := &mocks.MockProgressionService{}
	router := newTestRouter(svc)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/mix"},
		{http.MethodPost, "/api/sessions"},
		{http.MethodGet, "/api/profile"},
		{http.MethodDelete, "/api/recovery"},
	} {
		w := do(t, router, route.method, route.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}
	assert.Empty(t, svc.Calls())
}

func TestGetDailyMix(t *testing.T) {
	t.Parallel()
	learnerID := uuid.New()

	tests := []struct {
		name       string
		mix        *domain.DailyMix
		err        error
		wantStatus int
	}{
		{
			name:       "success",
			mix:        &domain.DailyMix{Date: "2026-09-01", TargetBand: domain.BandB, BasedOnBand: domain.BandB},
			wantStatus: http.StatusOK,
		},
		{
			name:       "store unavailable",
			err:        progression.NewServiceError(progression.OpGetDailyMix, "failed", &domain.PersistenceError{Op: "load", Err: errors.New("timeout")}),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := &mocks.MockProgressionService{
				GetDailyMixFn: func(_ context.Context, id uuid.UUID) (*domain.DailyMix, error) {
					assert.Equal(t, learnerID, id)
					return tc.mix, tc.err
				},
			}
			w := do(t, newTestRouter(svc), http.MethodGet, "/api/mix", "", bearer(t, learnerID, ""))
			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.err == nil {
				var got domain.DailyMix
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
				assert.Equal(t, "2026-09-01", got.Date)
				return
			}
			resp := errorBody(t, w)
			assert.NotEmpty(t, resp.TraceID)
			if tc.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "Failed to build daily mix", resp.Error)
			}
		})
	}
}

func TestCompleteSession(t *testing.T) {
	t.Parallel()
	learnerID := uuid.New()
	sessionID := uuid.NewString()
	body := `{"session_id":"` + sessionID + `","domain":"renal","items_graded":[{"content_id":"renal-B-1","correct":true,"time_spent_seconds":30}],"accuracy":1}`

	tests := []struct {
		name       string
		body       string
		result     *progression.SessionResult
		err        error
		wantStatus int
		wantCalls  int
	}{
		{
			name:       "applied",
			body:       body,
			result:     &progression.SessionResult{SessionID: sessionID},
			wantStatus: http.StatusCreated,
			wantCalls:  1,
		},
		{
			name:       "duplicate",
			body:       body,
			result:     &progression.SessionResult{SessionID: sessionID, Duplicate: true},
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
		{
			name:       "malformed json",
			body:       `{"session_id":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       `{"session_id":"` + sessionID + `","learner_id":"someone-else"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "rejected by service",
			body:       body,
			err:        domain.NewValidationError("items_graded[0].grade", "must be between 0 and 5", nil),
			wantStatus: http.StatusBadRequest,
			wantCalls:  1,
		},
		{
			name:       "unknown card",
			body:       body,
			err:        &domain.NotFoundError{Entity: "card", ID: "x"},
			wantStatus: http.StatusNotFound,
			wantCalls:  1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := &mocks.MockProgressionService{
				CompleteSessionFn: func(_ context.Context, id uuid.UUID, outcome domain.SessionOutcome) (*progression.SessionResult, error) {
					assert.Equal(t, learnerID, id)
					assert.Equal(t, "renal", outcome.Domain)
					require.Len(t, outcome.ItemsGraded, 1)
					require.NotNil(t, outcome.ItemsGraded[0].Correct)
					assert.True(t, *outcome.ItemsGraded[0].Correct)
					return tc.result, tc.err
				},
			}
			w := do(t, newTestRouter(svc), http.MethodPost, "/api/sessions", tc.body, bearer(t, learnerID, ""))
			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, tc.wantCalls, svc.CallCount("CompleteSession"))
			if tc.result != nil {
				var got progression.SessionResult
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
				assert.Equal(t, tc.result.Duplicate, got.Duplicate)
			}
		})
	}
}

func TestSubmitMiniOSCE(t *testing.T) {
	t.Parallel()
	learnerID := uuid.New()

	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCalls  int
	}{
		{
			name:       "scored",
			body:       `{"scores":[{"criterion_id":"history","score":2}]}`,
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
		{
			name:       "no scores",
			body:       `{"scores":[]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "score out of range",
			body:       `{"scores":[{"criterion_id":"history","score":3}]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "domain not pending",
			body:       `{"scores":[{"criterion_id":"history","score":2}]}`,
			err:        &domain.StateConflictError{Entity: "domain", From: "in_progress", Action: "submit a Mini-OSCE for"},
			wantStatus: http.StatusConflict,
			wantCalls:  1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := &mocks.MockProgressionService{
				SubmitMiniOSCEFn: func(_ context.Context, _ uuid.UUID, domainName string, scores []domain.CriterionScore) (*progression.OSCEResult, error) {
					assert.Equal(t, "renal", domainName)
					if tc.err != nil {
						return nil, tc.err
					}
					return &progression.OSCEResult{
						Result: domain.MiniOSCEResult{CriterionScores: scores, Passed: true},
						Status: domain.DomainStatus{Domain: domainName, Status: domain.GateCompleted},
					}, nil
				},
			}
			w := do(t, newTestRouter(svc), http.MethodPost, "/api/domains/renal/mini-osce", tc.body, bearer(t, learnerID, ""))
			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, tc.wantCalls, svc.CallCount("SubmitMiniOSCE"))
		})
	}
}

func TestRecoveryEndpoints(t *testing.T) {
	t.Parallel()
	learnerID := uuid.New()
	svc := &mocks.MockProgressionService{
		RequestRecoveryFn: func(context.Context, uuid.UUID) (*domain.RecoveryState, error) {
			return &domain.RecoveryState{Active: true, Reason: domain.RecoveryReasonManual}, nil
		},
		ExitRecoveryFn: func(context.Context, uuid.UUID) (*domain.RecoveryState, error) {
			return &domain.RecoveryState{}, nil
		},
	}
	router := newTestRouter(svc)

	w := do(t, router, http.MethodPost, "/api/recovery", "", bearer(t, learnerID, ""))
	assert.Equal(t, http.StatusOK, w.Code)
	var state domain.RecoveryState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.True(t, state.Active)

	w = do(t, router, http.MethodDelete, "/api/recovery", "", bearer(t, learnerID, ""))
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.False(t, state.Active)
}

func TestResetCard(t *testing.T) {
	t.Parallel()
	learnerID := uuid.New()
	cardID := uuid.New()

	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
		wantCalls  int
	}{
		{name: "reset", path: "/api/cards/" + cardID.String() + "/reset", wantStatus: http.StatusOK, wantCalls: 1},
		{name: "bad id", path: "/api/cards/not-a-uuid/reset", wantStatus: http.StatusBadRequest},
		{
			name:       "unknown card",
			path:       "/api/cards/" + cardID.String() + "/reset",
			err:        &domain.NotFoundError{Entity: "card", ID: cardID.String()},
			wantStatus: http.StatusNotFound,
			wantCalls:  1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := &mocks.MockProgressionService{
				ResetCardFn: func(_ context.Context, _ uuid.UUID, id uuid.UUID) (*domain.ReviewCard, error) {
					assert.Equal(t, cardID, id)
					if tc.err != nil {
						return nil, tc.err
					}
					return &domain.ReviewCard{ID: id, IntervalDays: 1, DueDate: testNow}, nil
				},
			}
			w := do(t, newTestRouter(svc), http.MethodPost, tc.path, "", bearer(t, learnerID, ""))
			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, tc.wantCalls, svc.CallCount("ResetCard"))
		})
	}
}

func TestGetProfileSummary(t *testing.T) {
	t.Parallel()
	learnerID := uuid.New()

	p, err := domain.NewProfile(learnerID, domain.BandC, testNow)
	require.NoError(t, err)
	add := func(due time.Time, leech, retired bool) {
		card := domain.ReviewCard{ID: uuid.New(), LearnerID: learnerID, DueDate: due, IsLeech: leech, Retired: retired}
		p.Cards[card.ID] = card
	}
	add(testNow.Add(-time.Hour), false, false)
	add(testNow.Add(2*time.Hour), true, false)
	add(testNow.AddDate(0, 0, 3), false, false)
	add(testNow.Add(-time.Hour), false, true)
	p.Domains["renal"] = domain.DomainStatus{Domain: "renal", Status: domain.GatePending}
	p.Domains["cardiology"] = domain.DomainStatus{Domain: "cardiology", Status: domain.GateInProgress}

	svc := &mocks.MockProgressionService{
		GetProfileFn: func(context.Context, uuid.UUID) (*domain.Profile, error) { return p, nil },
	}
	w := do(t, newTestRouter(svc), http.MethodGet, "/api/profile", "", bearer(t, learnerID, ""))
	require.Equal(t, http.StatusOK, w.Code)

	var got ProfileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, learnerID.String(), got.LearnerID)
	assert.Equal(t, domain.BandC, got.Band.CurrentBand)
	assert.Equal(t, CardSummary{Total: 4, DueToday: 2, Leeches: 1, Retired: 1}, got.Cards)
	require.Len(t, got.Domains, 2)
	assert.Equal(t, "cardiology", got.Domains[0].Domain)
	assert.Equal(t, "renal", got.Domains[1].Domain)
}

func TestUpdatePreferences(t *testing.T) {
	t.Parallel()
	learnerID := uuid.New()

	svc := &mocks.MockProgressionService{
		UpdatePreferencesFn: func(_ context.Context, id uuid.UUID, prefs progression.Preferences) (*domain.Profile, error) {
			require.NotNil(t, prefs.TimeZone)
			assert.Nil(t, prefs.PrimaryDomain)
			p, err := domain.NewProfile(id, domain.BandB, testNow)
			require.NoError(t, err)
			p.TimeZone = *prefs.TimeZone
			return p, nil
		},
	}
	w := do(t, newTestRouter(svc), http.MethodPatch, "/api/profile/preferences",
		`{"time_zone":"Pacific/Auckland"}`, bearer(t, learnerID, ""))
	require.Equal(t, http.StatusOK, w.Code)

	var got ProfileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Pacific/Auckland", got.TimeZone)
}

func TestReopenDomainRequiresAdmin(t *testing.T) {
	t.Parallel()
	adminID := uuid.New()
	learnerID := uuid.New()
	path := "/api/admin/learners/" + learnerID.String() + "/domains/renal/reopen"

	tests := []struct {
		name       string
		role       string
		path       string
		body       string
		err        error
		wantStatus int
		wantCalls  int
	}{
		{name: "admin", role: shared.RoleAdmin, path: path, body: `{"reason":"failed audit"}`, wantStatus: http.StatusOK, wantCalls: 1},
		{name: "learner", path: path, body: `{"reason":"failed audit"}`, wantStatus: http.StatusForbidden},
		{name: "missing reason", role: shared.RoleAdmin, path: path, body: `{}`, wantStatus: http.StatusBadRequest},
		{
			name:       "bad learner id",
			role:       shared.RoleAdmin,
			path:       "/api/admin/learners/nope/domains/renal/reopen",
			body:       `{"reason":"x"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "not completed",
			role:       shared.RoleAdmin,
			path:       path,
			body:       `{"reason":"x"}`,
			err:        &domain.StateConflictError{Entity: "domain", From: "gate_pending", Action: "reopen"},
			wantStatus: http.StatusConflict,
			wantCalls:  1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := &mocks.MockProgressionService{
				ReopenDomainFn: func(_ context.Context, id uuid.UUID, domainName, reason string) (*domain.DomainStatus, error) {
					assert.Equal(t, learnerID, id)
					assert.Equal(t, "renal", domainName)
					if tc.err != nil {
						return nil, tc.err
					}
					return &domain.DomainStatus{Domain: domainName, Status: domain.GateInProgress, ReopenReason: reason}, nil
				},
			}
			w := do(t, newTestRouter(svc), http.MethodPost, tc.path, tc.body, bearer(t, adminID, tc.role))
			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, tc.wantCalls, svc.CallCount("ReopenDomain"))
		})
	}
}

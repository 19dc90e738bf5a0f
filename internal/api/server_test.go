package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/contentcal/internal/models"
	"github.com/rahul/contentcal/internal/pipeline"
	"github.com/rahul/contentcal/internal/service"
	"github.com/rahul/contentcal/internal/session"
)

type fakeCalendars struct {
	closed    bool
	sessions  map[string]models.ProgressSnapshot
	calendars map[string]*models.Calendar
	active    map[int]string
	healthy   bool
	started   []models.GenerationRequest
}

func newFakeCalendars() *fakeCalendars {
	return &fakeCalendars{
		sessions:  map[string]models.ProgressSnapshot{},
		calendars: map[string]*models.Calendar{},
		active:    map[int]string{},
		healthy:   true,
	}
}

func (f *fakeCalendars) Start(_ context.Context, req models.GenerationRequest) (models.ProgressSnapshot, error) {
	if err := req.Validate(); err != nil {
		return models.ProgressSnapshot{}, fmt.Errorf("%w: %v", service.ErrInvalidRequest, err)
	}
	if f.closed {
		return models.ProgressSnapshot{}, service.ErrServiceClosed
	}
	if id, ok := f.active[req.UserID]; ok {
		return models.ProgressSnapshot{}, &session.DuplicateSessionError{UserID: req.UserID, ActiveSessionID: id}
	}
	id := fmt.Sprintf("sess-%d", len(f.sessions)+1)
	snap := models.ProgressSnapshot{SessionID: id, UserID: req.UserID, StrategyID: req.StrategyID, Status: models.SessionPending}
	f.sessions[id] = snap
	f.active[req.UserID] = id
	f.started = append(f.started, req)
	return snap, nil
}

func (f *fakeCalendars) GetProgress(id string) (models.ProgressSnapshot, error) {
	snap, ok := f.sessions[id]
	if !ok {
		return models.ProgressSnapshot{}, session.ErrSessionNotFound
	}
	return snap, nil
}

func (f *fakeCalendars) ListSessions(userID int) []models.ProgressSnapshot {
	var out []models.ProgressSnapshot
	for _, snap := range f.sessions {
		if userID == 0 || snap.UserID == userID {
			out = append(out, snap)
		}
	}
	return out
}

func (f *fakeCalendars) Cancel(id string) error {
	snap, ok := f.sessions[id]
	if !ok {
		return session.ErrSessionNotFound
	}
	snap.Status = models.SessionCancelled
	f.sessions[id] = snap
	delete(f.active, snap.UserID)
	return nil
}

func (f *fakeCalendars) GetCalendar(id string) (*models.Calendar, error) {
	if _, ok := f.sessions[id]; !ok {
		return nil, session.ErrSessionNotFound
	}
	cal, ok := f.calendars[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s is running", service.ErrCalendarNotReady, id)
	}
	return cal, nil
}

func (f *fakeCalendars) Health() service.Health {
	return service.Health{Healthy: f.healthy, Steps: pipeline.Health{Healthy: f.healthy}}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var validRequest = models.GenerationRequest{UserID: 7, StrategyID: 3, CalendarType: models.CalendarMonthly, Industry: "saas", BusinessSize: "small"}

func TestStartSession(t *testing.T) {
	cals := newFakeCalendars()
	h := NewServer(cals, nil).SetupRoutes()

	rec := do(t, h, http.MethodPost, "/api/v1/calendar/sessions", validRequest)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "/api/v1/calendar/sessions/sess-1", rec.Header().Get("Location"))

	var resp startResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, models.SessionPending, resp.Status)
	require.Len(t, cals.started, 1)
	assert.Equal(t, validRequest, cals.started[0])
}

func TestStartSession_DuplicateReturnsConflict(t *testing.T) {
	h := NewServer(newFakeCalendars(), nil).SetupRoutes()
	require.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/v1/calendar/sessions", validRequest).Code)

	rec := do(t, h, http.MethodPost, "/api/v1/calendar/sessions", validRequest)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "sess-1", body["active_session_id"])
	assert.Contains(t, body["error"], "already has active session")
}

func TestStartSession_BadInput(t *testing.T) {
	h := NewServer(newFakeCalendars(), nil).SetupRoutes()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calendar/sessions", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bad := validRequest
	bad.CalendarType = "yearly"
	rec = do(t, h, http.MethodPost, "/api/v1/calendar/sessions", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "calendar_type")
}

func TestStartSession_ShuttingDown(t *testing.T) {
	cals := newFakeCalendars()
	cals.closed = true
	h := NewServer(cals, nil).SetupRoutes()

	rec := do(t, h, http.MethodPost, "/api/v1/calendar/sessions", validRequest)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProgressAndCancel(t *testing.T) {
	cals := newFakeCalendars()
	h := NewServer(cals, nil).SetupRoutes()
	do(t, h, http.MethodPost, "/api/v1/calendar/sessions", validRequest)

	rec := do(t, h, http.MethodGet, "/api/v1/calendar/sessions/sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap models.ProgressSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, 7, snap.UserID)

	rec = do(t, h, http.MethodDelete, "/api/v1/calendar/sessions/sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, models.SessionCancelled, snap.Status)

	// the slot is free again
	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/v1/calendar/sessions", validRequest).Code)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/calendar/sessions/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/v1/calendar/sessions/missing", nil).Code)
}

func TestListSessions(t *testing.T) {
	cals := newFakeCalendars()
	h := NewServer(cals, nil).SetupRoutes()
	do(t, h, http.MethodPost, "/api/v1/calendar/sessions", validRequest)
	other := validRequest
	other.UserID = 8
	do(t, h, http.MethodPost, "/api/v1/calendar/sessions", other)

	rec := do(t, h, http.MethodGet, "/api/v1/calendar/sessions?user_id=8", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snaps []models.ProgressSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, 8, snaps[0].UserID)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/calendar/sessions?user_id=abc", nil).Code)
}

func TestGetCalendar(t *testing.T) {
	cals := newFakeCalendars()
	h := NewServer(cals, nil).SetupRoutes()
	do(t, h, http.MethodPost, "/api/v1/calendar/sessions", validRequest)

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodGet, "/api/v1/calendar/sessions/sess-1/calendar", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/calendar/sessions/nope/calendar", nil).Code)

	cals.calendars["sess-1"] = &models.Calendar{SessionID: "sess-1", CalendarType: models.CalendarMonthly}
	rec := do(t, h, http.MethodGet, "/api/v1/calendar/sessions/sess-1/calendar", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cal models.Calendar
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cal))
	assert.Equal(t, "sess-1", cal.SessionID)
}

func TestHealthz(t *testing.T) {
	cals := newFakeCalendars()
	h := NewServer(cals, nil).SetupRoutes()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil).Code)

	cals.healthy = false
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/healthz", nil).Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewServer(newFakeCalendars(), nil).SetupRoutes()
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodPut, "/api/v1/calendar/sessions", nil).Code)
}

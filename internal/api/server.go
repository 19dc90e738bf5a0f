package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rahul/contentcal/internal/metrics"
	"github.com/rahul/contentcal/internal/models"
	"github.com/rahul/contentcal/internal/service"
	"github.com/rahul/contentcal/internal/session"
)

// Calendars is the calendar service as seen by the HTTP layer.
type Calendars interface {
	Start(ctx context.Context, req models.GenerationRequest) (models.ProgressSnapshot, error)
	GetProgress(id string) (models.ProgressSnapshot, error)
	ListSessions(userID int) []models.ProgressSnapshot
	Cancel(id string) error
	GetCalendar(id string) (*models.Calendar, error)
	Health() service.Health
}

type Server struct {
	calendars Calendars
	metrics   *metrics.Metrics
}

func NewServer(calendars Calendars, m *metrics.Metrics) *Server {
	return &Server{calendars: calendars, metrics: m}
}

// SetupRoutes builds the instrumented HTTP handler.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/calendar/sessions", s.handleStart)
	mux.HandleFunc("GET /api/v1/calendar/sessions", s.handleList)
	mux.HandleFunc("GET /api/v1/calendar/sessions/{id}", s.handleProgress)
	mux.HandleFunc("DELETE /api/v1/calendar/sessions/{id}", s.handleCancel)
	mux.HandleFunc("GET /api/v1/calendar/sessions/{id}/calendar", s.handleCalendar)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return otelhttp.NewHandler(s.observe(mux), "contentcal-http-server")
}

type startResponse struct {
	SessionID string                  `json:"session_id"`
	Status    models.SessionStatus    `json:"status"`
	Progress  models.ProgressSnapshot `json:"progress"`
}

// handleStart handles POST /api/v1/calendar/sessions
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req models.GenerationRequest
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snap, err := s.calendars.Start(r.Context(), req)
	var dup *session.DuplicateSessionError
	switch {
	case errors.As(err, &dup):
		s.respondJSON(w, http.StatusConflict, map[string]any{
			"error":             dup.Error(),
			"active_session_id": dup.ActiveSessionID,
		})
		return
	case errors.Is(err, service.ErrInvalidRequest):
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, service.ErrServiceClosed):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Location", "/api/v1/calendar/sessions/"+snap.SessionID)
	s.respondJSON(w, http.StatusAccepted, startResponse{SessionID: snap.SessionID, Status: snap.Status, Progress: snap})
}

// handleList handles GET /api/v1/calendar/sessions?user_id=N
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	userID := 0
	if v := r.URL.Query().Get("user_id"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "user_id must be a positive integer")
			return
		}
		userID = n
	}
	s.respondJSON(w, http.StatusOK, s.calendars.ListSessions(userID))
}

// handleProgress handles GET /api/v1/calendar/sessions/{id}
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	snap, err := s.calendars.GetProgress(r.PathValue("id"))
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, snap)
}

// handleCancel handles DELETE /api/v1/calendar/sessions/{id}
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.calendars.Cancel(id); err != nil {
		s.respondSessionError(w, err)
		return
	}
	snap, err := s.calendars.GetProgress(id)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, snap)
}

// handleCalendar handles GET /api/v1/calendar/sessions/{id}/calendar
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	cal, err := s.calendars.GetCalendar(r.PathValue("id"))
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, cal)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.calendars.Health()
	status := http.StatusOK
	if !h.Healthy {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, h)
}

func (s *Server) respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		s.respondError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, service.ErrCalendarNotReady), errors.Is(err, session.ErrSessionClosed):
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// observe counts requests by route pattern.
func (s *Server) observe(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.metrics != nil {
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			s.metrics.ObserveHTTP(r.Method, route, rec.status)
		}
	})
}

// Helper functions

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// parseJSON parses JSON request body
func (s *Server) parseJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

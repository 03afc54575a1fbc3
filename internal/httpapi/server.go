// Package httpapi serves the read surface (per-vehicle efficiency,
// fleet snapshot) and the operator session-mutation routes over HTTP,
// following zdex-EVCPMSGO's httpapi.Server: a struct of repo/service
// dependencies, one Routes() building a chi.Router, one handler method
// per route writing JSON directly onto the response writer.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rahullalw/smart-ev-analytics/internal/analytics"
	"github.com/rahullalw/smart-ev-analytics/internal/auth"
	"github.com/rahullalw/smart-ev-analytics/internal/domain"
	"github.com/rahullalw/smart-ev-analytics/internal/metrics"
	"github.com/rahullalw/smart-ev-analytics/internal/session"
	"github.com/rahullalw/smart-ev-analytics/internal/store"
)

type Server struct {
	DB         *store.DB
	Sessions   *session.Service
	Aggregator *analytics.Aggregator
	Auth       *auth.Authenticator
	Metrics    *metrics.APIMetrics
	Log        *slog.Logger
}

func NewServer(db *store.DB, sessions *session.Service, aggregator *analytics.Aggregator, authenticator *auth.Authenticator, m *metrics.APIMetrics, log *slog.Logger) *Server {
	return &Server{DB: db, Sessions: sessions, Aggregator: aggregator, Auth: authenticator, Metrics: m, Log: log}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMetrics)

	r.Get("/analytics/performance/{vehicleId}", s.GetPerformance)
	r.Get("/analytics/vehicles/states", s.ListVehicleStates)

	r.Route("/sessions", func(r chi.Router) {
		r.Use(s.requireOperator)
		r.Post("/start", s.StartSession)
		r.Post("/end", s.EndSession)
		r.Post("/bulk-start", s.BulkStartSessions)
		r.Post("/bulk-end", s.BulkEndSessions)
	})

	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/healthz", s.Healthz)

	return r
}

func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" || !s.Auth.Validate(r.Context(), apiKey) {
			writeError(w, http.StatusUnauthorized, "missing or invalid X-API-Key header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		s.Metrics.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
		s.Metrics.RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) GetPerformance(w http.ResponseWriter, r *http.Request) {
	vehicleID, err := uuid.Parse(chi.URLParam(r, "vehicleId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "vehicleId must be a uuid")
		return
	}

	report, err := s.Aggregator.Performance(r.Context(), vehicleID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no data for vehicle in window")
			return
		}
		s.Log.Error("analytics performance query failed", "vehicle_id", vehicleID, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) ListVehicleStates(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	rows, err := s.DB.FleetSnapshot(r.Context(), limit)
	if err != nil {
		s.Log.Error("fleet snapshot query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, rows)
}

type sessionPairReq struct {
	VehicleID string `json:"vehicleId"`
	MeterID   string `json:"meterId"`
}

func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var req sessionPairReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	vehicleID, err1 := uuid.Parse(req.VehicleID)
	meterID, err2 := uuid.Parse(req.MeterID)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "vehicleId and meterId must be uuids")
		return
	}

	if err := s.Sessions.StartSession(r.Context(), vehicleID, meterID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			writeError(w, http.StatusConflict, "vehicle already has an active session")
			return
		}
		s.Log.Error("start session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "start session failed")
		return
	}

	w.WriteHeader(http.StatusCreated)
}

type vehicleIDReq struct {
	VehicleID string `json:"vehicleId"`
}

func (s *Server) EndSession(w http.ResponseWriter, r *http.Request) {
	var req vehicleIDReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	vehicleID, err := uuid.Parse(req.VehicleID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "vehicleId must be a uuid")
		return
	}

	if err := s.Sessions.EndSession(r.Context(), vehicleID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vehicle has no active session")
			return
		}
		s.Log.Error("end session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "end session failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) BulkStartSessions(w http.ResponseWriter, r *http.Request) {
	var reqs []sessionPairReq
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	pairs := make([]session.Pair, 0, len(reqs))
	for _, req := range reqs {
		vehicleID, err1 := uuid.Parse(req.VehicleID)
		meterID, err2 := uuid.Parse(req.MeterID)
		if err1 != nil || err2 != nil {
			writeError(w, http.StatusBadRequest, "vehicleId and meterId must be uuids")
			return
		}
		pairs = append(pairs, session.Pair{VehicleID: vehicleID, MeterID: meterID})
	}

	started, errs := s.Sessions.BulkStartSessions(r.Context(), pairs)
	resp := map[string]any{"started": started, "requested": len(pairs)}
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		resp["errors"] = msgs
	}
	writeJSON(w, http.StatusOK, resp)
}

type bulkEndReq struct {
	VehicleIDs []string `json:"vehicleIds"`
}

func (s *Server) BulkEndSessions(w http.ResponseWriter, r *http.Request) {
	var req bulkEndReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	ids := make([]uuid.UUID, 0, len(req.VehicleIDs))
	for _, raw := range req.VehicleIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "vehicleIds must be uuids")
			return
		}
		ids = append(ids, id)
	}

	ended, err := s.Sessions.BulkEndSessions(r.Context(), ids)
	if err != nil {
		s.Log.Error("bulk end sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "bulk end failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ended": ended, "requested": len(ids)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

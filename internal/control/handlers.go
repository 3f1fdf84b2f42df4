package control

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/loomhost/internal/bridge"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		BridgeState:   s.bridge.State().String(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.bridge.Stats()
	respondJSON(w, http.StatusOK, StatusResponse{
		State:           stats.State,
		RequestsSent:    stats.RequestsSent,
		EventsDelivered: stats.EventsDelivered,
		EventsDropped:   stats.EventsDropped,
		EventsMalformed: stats.EventsMalformed,
		ConfigHash:      s.config.ConfigHash,
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleCommand handles POST /commands. The body names the command and an
// optional JSON-object payload; the decoded runtime response is passed
// through verbatim on success.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		s.writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	resp, err := s.bridge.Send(req.Command, req.Payload)
	if err != nil {
		switch {
		case errors.Is(err, bridge.ErrNotRunning):
			s.writeError(w, http.StatusConflict, "bridge is not running")
		case errors.Is(err, bridge.ErrNullResponse):
			s.writeError(w, http.StatusBadGateway, "runtime returned no response")
		default:
			s.logger.Error("command dispatch failed", "command", req.Command, "error", err)
			s.writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleRecentEvents handles GET /events/recent.
func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be 1..1000")
			return
		}
		limit = n
	}

	entries, err := s.journal.RecentEvents(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read journal", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	respondJSON(w, http.StatusOK, RecentEventsResponse{Events: entries})
}

// respondJSON is a helper to write JSON responses.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

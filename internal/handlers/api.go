package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/common"
	"github.com/ternarybob/agora/internal/interfaces"
)

type APIHandler struct {
	storage   interfaces.StorageManager
	startedAt time.Time
	logger    arbor.ILogger
}

func NewAPIHandler(storage interfaces.StorageManager) *APIHandler {
	return &APIHandler{
		storage:   storage,
		startedAt: time.Now().UTC(),
		logger:    common.GetLogger(),
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
	})
}

// HealthHandler returns health check status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// StatusHandler returns task counts by state and overall store health
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	counts, err := h.storage.TaskStorage().CountByState(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count tasks by state")
		WriteError(w, http.StatusInternalServerError, "Failed to read task counts")
		return
	}

	decisions, err := h.storage.DecisionStorage().CountDecisions(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count decisions")
		WriteError(w, http.StatusInternalServerError, "Failed to read decision count")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"version":    common.GetVersion(),
		"uptime_sec": int(time.Since(h.startedAt).Seconds()),
		"tasks":      counts,
		"decisions":  decisions,
	})
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}

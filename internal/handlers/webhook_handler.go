// -----------------------------------------------------------------------
// Webhook Handler - inbound callbacks from external AI services
// -----------------------------------------------------------------------

package handlers

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/common"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/tasks"
)

// maxCallbackBytes bounds inbound callback bodies; transcription payloads
// dominate and stay well under this in practice
const maxCallbackBytes = 32 << 20

// webhookGroups are the valid first path segments under /tasks/
var webhookGroups = map[string]bool{
	"transcription": true,
	"diarization":   true,
	"processing":    true,
}

// WebhookHandler receives job completion callbacks. The request ID in the
// path is the only routing key; a callback whose request was superseded or
// never existed gets a 404 and the sender stops retrying.
type WebhookHandler struct {
	ingestor *tasks.Ingestor
	requests interfaces.RequestStorage
	secret   string
	logger   arbor.ILogger
}

func NewWebhookHandler(ingestor *tasks.Ingestor, requests interfaces.RequestStorage, secret string) *WebhookHandler {
	return &WebhookHandler{
		ingestor: ingestor,
		requests: requests,
		secret:   secret,
		logger:   common.GetLogger(),
	}
}

// CallbackHandler handles /tasks/{group}/{requestId}:
//
//	POST|PUT - apply a job result callback
//	GET      - inspect the request's current state
func (h *WebhookHandler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	segments := PathSegments(r)
	if len(segments) != 3 || segments[0] != "tasks" || !webhookGroups[segments[1]] {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	requestID := segments[2]

	switch r.Method {
	case http.MethodGet:
		h.getRequest(w, r, requestID)
	case http.MethodPost, http.MethodPut:
		h.applyCallback(w, r, requestID)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *WebhookHandler) getRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	request, err := h.requests.GetRequest(r.Context(), requestID)
	if err != nil {
		h.logger.Error().Err(err).Str("request_id", requestID).Msg("Failed to load request")
		WriteError(w, http.StatusInternalServerError, "Failed to load request")
		return
	}
	if request == nil {
		WriteError(w, http.StatusNotFound, "Unknown request")
		return
	}
	WriteJSON(w, http.StatusOK, request)
}

func (h *WebhookHandler) applyCallback(w http.ResponseWriter, r *http.Request, requestID string) {
	if !h.authorized(r) {
		WriteError(w, http.StatusUnauthorized, "Invalid webhook secret")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), requestID, payload)
	if err != nil {
		switch {
		case errors.Is(err, tasks.ErrUnknownRequest), errors.Is(err, tasks.ErrTaskNotFound):
			WriteError(w, http.StatusNotFound, "Unknown request")
		case tasks.IsValidation(err):
			WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, tasks.ErrUnknownTaskType):
			h.logger.Error().Err(err).Str("request_id", requestID).Msg("Callback for unregistered task type")
			WriteError(w, http.StatusInternalServerError, "Unregistered task type")
		default:
			h.logger.Error().Err(err).Str("request_id", requestID).Msg("Failed to apply callback")
			WriteError(w, http.StatusInternalServerError, "Failed to apply callback, please retry")
		}
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// authorized checks the optional shared-secret header. An empty configured
// secret disables the check.
func (h *WebhookHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	provided := r.Header.Get("X-Webhook-Secret")
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) == 1
}

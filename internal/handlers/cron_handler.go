// -----------------------------------------------------------------------
// Cron Handler - externally triggered scheduled jobs
// -----------------------------------------------------------------------

package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/common"
	"github.com/ternarybob/agora/internal/services/polling"
)

// CronHandler exposes the polling run to an external scheduler. The trigger
// is authenticated with a bearer secret; an unconfigured secret disables the
// endpoint entirely rather than leaving it open.
type CronHandler struct {
	polling *polling.Service
	secret  string
	logger  arbor.ILogger
}

func NewCronHandler(pollingSvc *polling.Service, secret string) *CronHandler {
	return &CronHandler{
		polling: pollingSvc,
		secret:  secret,
		logger:  common.GetLogger(),
	}
}

// PollDecisionsHandler handles GET /cron/poll-decisions
func (h *CronHandler) PollDecisionsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	if h.secret == "" {
		WriteError(w, http.StatusServiceUnavailable, "Cron trigger is not configured")
		return
	}
	if !h.authorized(r) {
		WriteError(w, http.StatusUnauthorized, "Invalid cron secret")
		return
	}

	summary, err := h.polling.Run(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Error().Err(err).Msg("Polling run failed")
		WriteError(w, http.StatusInternalServerError, "Polling run failed")
		return
	}

	WriteJSON(w, http.StatusOK, summary)
}

func (h *CronHandler) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) == 1
}

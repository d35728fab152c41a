package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/common"
	"github.com/ternarybob/agora/internal/models"
	"github.com/ternarybob/agora/internal/services/polling"
)

// emptyRegistry never finds anything
type emptyRegistry struct{}

func (emptyRegistry) Search(ctx context.Context, meeting *models.Meeting) ([]*models.Decision, error) {
	return nil, nil
}

func newCronHandler(t *testing.T, secret string) *CronHandler {
	t.Helper()
	manager := newTestStorage(t)
	config := &common.PollingConfig{
		MinInterval:   common.Duration(6 * time.Hour),
		MaxInterval:   common.Duration(14 * 24 * time.Hour),
		Multiplier:    2.0,
		RecencyWindow: common.Duration(90 * 24 * time.Hour),
		RateLimit:     common.Duration(time.Nanosecond),
	}
	service := polling.NewService(manager, emptyRegistry{}, config, arbor.NewLogger())
	return NewCronHandler(service, secret)
}

func TestCronHandler_UnconfiguredSecretIs503(t *testing.T) {
	handler := newCronHandler(t, "")

	rec := httptest.NewRecorder()
	handler.PollDecisionsHandler(rec, httptest.NewRequest("GET", "/cron/poll-decisions", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCronHandler_BadSecretIs401(t *testing.T) {
	handler := newCronHandler(t, "topsecret")

	// No authorization header
	rec := httptest.NewRecorder()
	handler.PollDecisionsHandler(rec, httptest.NewRequest("GET", "/cron/poll-decisions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong token
	req := httptest.NewRequest("GET", "/cron/poll-decisions", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler.PollDecisionsHandler(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCronHandler_ValidSecretRunsPoll(t *testing.T) {
	handler := newCronHandler(t, "topsecret")

	req := httptest.NewRequest("GET", "/cron/poll-decisions", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	rec := httptest.NewRecorder()
	handler.PollDecisionsHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"meetings_in_scope"`)
}

func TestCronHandler_MethodGuard(t *testing.T) {
	handler := newCronHandler(t, "topsecret")

	req := httptest.NewRequest("POST", "/cron/poll-decisions", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	rec := httptest.NewRecorder()
	handler.PollDecisionsHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

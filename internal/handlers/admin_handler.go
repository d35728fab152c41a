// -----------------------------------------------------------------------
// Admin Handler - cross-city audit and review dashboards
// -----------------------------------------------------------------------

package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/common"
	"github.com/ternarybob/agora/internal/models"
	"github.com/ternarybob/agora/internal/services/polling"
	"github.com/ternarybob/agora/internal/services/reviews"
	"github.com/ternarybob/agora/internal/tasks"
)

type AdminHandler struct {
	versions *tasks.VersionManager
	reviews  *reviews.Service
	polling  *polling.Service
	logger   arbor.ILogger
}

func NewAdminHandler(versions *tasks.VersionManager, reviewsSvc *reviews.Service, pollingSvc *polling.Service) *AdminHandler {
	return &AdminHandler{
		versions: versions,
		reviews:  reviewsSvc,
		polling:  pollingSvc,
		logger:   common.GetLogger(),
	}
}

// TasksAuditHandler handles GET /admin/tasks - the filtered version audit
// grouped by city. Filters: taskTypes, cityId (comma-separated), dateFrom,
// dateTo (YYYY-MM-DD), versionMin, versionMax.
func (h *AdminHandler) TasksAuditHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	filter, err := parseAuditFilter(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	groups, err := h.versions.AuditByCity(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to build task audit")
		WriteError(w, http.StatusInternalServerError, "Failed to build task audit")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"cities": groups,
		"count":  len(groups),
	})
}

// ReviewsHandler handles GET /admin/reviews - the review workload overview.
// Filters: show (needsReview|reviewed), reviewerId, last30Days (true|false).
func (h *AdminHandler) ReviewsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	filter, err := parseReviewFilter(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	overview, err := h.reviews.Overview(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to build review overview")
		WriteError(w, http.StatusInternalServerError, "Failed to build review overview")
		return
	}

	WriteJSON(w, http.StatusOK, overview)
}

// VolumeChartHandler handles GET /admin/reviews/volume-chart - the trailing
// 12-week review volume series
func (h *AdminHandler) VolumeChartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	chart, err := h.reviews.VolumeChart(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to build volume chart")
		WriteError(w, http.StatusInternalServerError, "Failed to build volume chart")
		return
	}

	WriteJSON(w, http.StatusOK, chart)
}

// PollEffectivenessHandler handles GET /admin/diavgeia - polling hit rates
// per backoff tier
func (h *AdminHandler) PollEffectivenessHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	report, err := h.polling.Effectiveness()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to build poll effectiveness report")
		WriteError(w, http.StatusInternalServerError, "Failed to build poll effectiveness report")
		return
	}

	WriteJSON(w, http.StatusOK, report)
}

func parseReviewFilter(r *http.Request) (*reviews.Filter, error) {
	query := r.URL.Query()
	filter := &reviews.Filter{
		ReviewerID: query.Get("reviewerId"),
	}

	switch show := query.Get("show"); show {
	case "":
	case string(models.ReviewNeedsAttention), string(models.ReviewCompleted):
		filter.Show = models.ReviewClassification(show)
	default:
		return nil, fmt.Errorf("invalid show value: %s", show)
	}

	if raw := query.Get("last30Days"); raw != "" {
		last30, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid last30Days value: %s", raw)
		}
		filter.Last30Days = last30
	}

	return filter, nil
}

func parseAuditFilter(r *http.Request) (*models.TaskAuditFilter, error) {
	filter := &models.TaskAuditFilter{}
	query := r.URL.Query()

	if raw := query.Get("taskTypes"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			taskType, err := models.ParseTaskType(strings.TrimSpace(s))
			if err != nil {
				return nil, err
			}
			filter.TaskTypes = append(filter.TaskTypes, taskType)
		}
	}

	if raw := query.Get("cityId"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if city := strings.TrimSpace(s); city != "" {
				filter.CityIDs = append(filter.CityIDs, city)
			}
		}
	}

	var err error
	if filter.DateFrom, err = ParseDateParam(r, "dateFrom"); err != nil {
		return nil, err
	}
	if filter.DateTo, err = ParseDateParam(r, "dateTo"); err != nil {
		return nil, err
	}

	if raw := query.Get("versionMin"); raw != "" {
		if filter.VersionMin, err = strconv.Atoi(raw); err != nil {
			return nil, err
		}
	}
	if raw := query.Get("versionMax"); raw != "" {
		if filter.VersionMax, err = strconv.Atoi(raw); err != nil {
			return nil, err
		}
	}

	return filter, nil
}

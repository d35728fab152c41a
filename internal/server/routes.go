package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Webhook callbacks from external AI services
	// POST|PUT|GET /tasks/{transcription|diarization|processing}/{requestId}
	mux.HandleFunc("/tasks/", s.app.WebhookHandler.CallbackHandler)

	// Operator routes - task dispatch and version management
	mux.HandleFunc("/meetings/", s.app.TaskHandler.MeetingTasksHandler) // GET/POST /meetings/{id}/taskStatuses
	mux.HandleFunc("/taskStatuses/", s.app.TaskHandler.TaskStatusHandler)

	// Admin routes - audit and dashboards
	mux.HandleFunc("/admin/tasks", s.app.AdminHandler.TasksAuditHandler)
	mux.HandleFunc("/admin/reviews", s.app.AdminHandler.ReviewsHandler)
	mux.HandleFunc("/admin/reviews/volume-chart", s.app.AdminHandler.VolumeChartHandler)
	mux.HandleFunc("/admin/diavgeia", s.app.AdminHandler.PollEffectivenessHandler)

	// External scheduler trigger
	mux.HandleFunc("/cron/poll-decisions", s.app.CronHandler.PollDecisionsHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/status", s.app.APIHandler.StatusHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// -----------------------------------------------------------------------
// Task Handler - operator-facing task dispatch and version management
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/common"
	"github.com/ternarybob/agora/internal/models"
	"github.com/ternarybob/agora/internal/tasks"
)

// maxUpdateBytes bounds operator update payloads; they carry review and
// correction data, never media.
const maxUpdateBytes = 4 << 20

// dispatchBody is the operator dispatch request
type dispatchBody struct {
	TaskType   string          `json:"taskType"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

type TaskHandler struct {
	dispatcher *tasks.Dispatcher
	versions   *tasks.VersionManager
	ingestor   *tasks.Ingestor
	logger     arbor.ILogger
}

func NewTaskHandler(dispatcher *tasks.Dispatcher, versions *tasks.VersionManager, ingestor *tasks.Ingestor) *TaskHandler {
	return &TaskHandler{
		dispatcher: dispatcher,
		versions:   versions,
		ingestor:   ingestor,
		logger:     common.GetLogger(),
	}
}

// MeetingTasksHandler handles /meetings/{id}/taskStatuses:
//
//	GET  - list every task version for the meeting
//	POST - dispatch a new task at the next version
func (h *TaskHandler) MeetingTasksHandler(w http.ResponseWriter, r *http.Request) {
	segments := PathSegments(r)
	if len(segments) != 3 || segments[0] != "meetings" || segments[2] != "taskStatuses" {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	meetingID := segments[1]

	switch r.Method {
	case http.MethodGet:
		h.listTasks(w, r, meetingID)
	case http.MethodPost:
		h.dispatch(w, r, meetingID)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *TaskHandler) listTasks(w http.ResponseWriter, r *http.Request, meetingID string) {
	statuses, err := h.versions.ListByMeeting(r.Context(), meetingID)
	if err != nil {
		h.logger.Error().Err(err).Str("meeting_id", meetingID).Msg("Failed to list task statuses")
		WriteError(w, http.StatusInternalServerError, "Failed to list task statuses")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"meeting_id": meetingID,
		"count":      len(statuses),
		"tasks":      statuses,
	})
}

func (h *TaskHandler) dispatch(w http.ResponseWriter, r *http.Request, meetingID string) {
	var body dispatchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	taskType, err := models.ParseTaskType(body.TaskType)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.dispatcher.Dispatch(r.Context(), meetingID, taskType, body.Parameters)
	if err != nil {
		switch {
		case errors.Is(err, tasks.ErrMeetingNotFound):
			WriteError(w, http.StatusNotFound, "Meeting not found")
		case errors.Is(err, tasks.ErrInvalidParameters):
			WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, tasks.ErrExternalService):
			// The task row exists in failed state; return it so the
			// operator can see the recorded error.
			WriteJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error": "External service rejected the job",
				"task":  task,
			})
		default:
			h.logger.Error().Err(err).Str("meeting_id", meetingID).Msg("Dispatch failed")
			WriteError(w, http.StatusInternalServerError, "Dispatch failed")
		}
		return
	}

	WriteJSON(w, http.StatusCreated, task)
}

// TaskStatusHandler handles /taskStatuses/{id}:
//
//	GET      - fetch one task status
//	POST|PUT - apply an operator-submitted result to a running task
//	DELETE   - delete it, refused inside the grace window
func (h *TaskHandler) TaskStatusHandler(w http.ResponseWriter, r *http.Request) {
	segments := PathSegments(r)
	if len(segments) != 2 || segments[0] != "taskStatuses" {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	taskID := segments[1]

	switch r.Method {
	case http.MethodGet:
		h.getTask(w, r, taskID)
	case http.MethodPost, http.MethodPut:
		h.updateTask(w, r, taskID)
	case http.MethodDelete:
		h.deleteTask(w, r, taskID)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// updateTask completes a stage that has no third-party callback, such as a
// human review recorded by an operator. The payload shape matches the
// webhook callback envelope and runs through the same type handler.
func (h *TaskHandler) updateTask(w http.ResponseWriter, r *http.Request, taskID string) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBytes))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	result, err := h.ingestor.IngestDirect(r.Context(), taskID, payload)
	if err != nil {
		switch {
		case errors.Is(err, tasks.ErrTaskNotFound):
			WriteError(w, http.StatusNotFound, "Task not found")
		case tasks.IsValidation(err):
			WriteError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to apply task update")
			WriteError(w, http.StatusInternalServerError, "Failed to apply update, please retry")
		}
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

func (h *TaskHandler) getTask(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := h.versions.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, tasks.ErrTaskNotFound) {
			WriteError(w, http.StatusNotFound, "Task not found")
			return
		}
		h.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to load task")
		WriteError(w, http.StatusInternalServerError, "Failed to load task")
		return
	}

	now := time.Now().UTC()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"task":       task,
		"can_delete": task.CanDelete(now),
	})
}

func (h *TaskHandler) deleteTask(w http.ResponseWriter, r *http.Request, taskID string) {
	err := h.versions.DeleteTask(r.Context(), taskID, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, tasks.ErrTaskNotFound):
			WriteError(w, http.StatusNotFound, "Task not found")
		case errors.Is(err, tasks.ErrDeleteGuard):
			WriteError(w, http.StatusForbidden, "Task was updated too recently to delete")
		default:
			h.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to delete task")
			WriteError(w, http.StatusInternalServerError, "Failed to delete task")
		}
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"id":     taskID,
	})
}

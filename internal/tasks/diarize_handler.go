package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
)

// diarizationOutput is the "output" half of a diarization callback
type diarizationOutput struct {
	Diarization []diarizationSpan `json:"diarization" validate:"required,dive"`
}

type diarizationSpan struct {
	Start   float64 `json:"start" validate:"gte=0"`
	End     float64 `json:"end" validate:"gtefield=Start"`
	Speaker string  `json:"speaker" validate:"required"`
}

// DiarizeHandler applies diarization callbacks: speaker spans without text
type DiarizeHandler struct {
	transcripts interfaces.TranscriptStorage
	logger      arbor.ILogger
}

// NewDiarizeHandler creates the diarize stage handler
func NewDiarizeHandler(transcripts interfaces.TranscriptStorage, logger arbor.ILogger) *DiarizeHandler {
	return &DiarizeHandler{
		transcripts: transcripts,
		logger:      logger,
	}
}

func (h *DiarizeHandler) Type() models.TaskType {
	return models.TaskTypeDiarize
}

func (h *DiarizeHandler) Validate(payload []byte) error {
	envelope, err := parseEnvelope(payload)
	if err != nil {
		return err
	}
	if envelope.Status != "completed" {
		return nil
	}
	output, err := parseDiarizationOutput(envelope)
	if err != nil {
		return err
	}
	if len(output.Diarization) == 0 {
		return &ValidationError{Reason: "completed diarization carries no spans"}
	}
	return nil
}

func (h *DiarizeHandler) Apply(ctx context.Context, task *models.TaskStatus, payload []byte) (*ApplyResult, error) {
	envelope, err := parseEnvelope(payload)
	if err != nil {
		return nil, err
	}

	if envelope.Status != "completed" {
		return &ApplyResult{
			Outcome: models.TaskStateFailed,
			JobID:   envelope.JobID,
			Error:   envelope.Error,
		}, nil
	}

	output, err := parseDiarizationOutput(envelope)
	if err != nil {
		return nil, err
	}

	segments := make([]*models.SpeakerSegment, 0, len(output.Diarization))
	for _, span := range output.Diarization {
		segments = append(segments, &models.SpeakerSegment{
			ID:        "seg_" + newRowID(),
			MeetingID: task.MeetingID,
			Speaker:   span.Speaker,
			StartSec:  span.Start,
			EndSec:    span.End,
		})
	}

	if err := h.transcripts.ReplaceSegments(ctx, task.MeetingID, segments); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	summary, _ := json.Marshal(map[string]int{"segments": len(segments)})

	h.logger.Info().
		Str("meeting_id", task.MeetingID).
		Int("segments", len(segments)).
		Msg("Diarization applied")

	return &ApplyResult{
		Outcome: models.TaskStateSucceeded,
		JobID:   envelope.JobID,
		Summary: string(summary),
	}, nil
}

func parseDiarizationOutput(envelope *CallbackPayload) (*diarizationOutput, error) {
	if len(envelope.Output) == 0 {
		return nil, &ValidationError{Reason: "missing output"}
	}
	var output diarizationOutput
	if err := json.Unmarshal(envelope.Output, &output); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed output: %v", err)}
	}
	if err := validate.Struct(&output); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	return &output, nil
}

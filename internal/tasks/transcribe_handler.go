package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
)

// transcriptionData is the "data" half of a transcription callback
type transcriptionData struct {
	Segments []transcriptionSegment `json:"segments" validate:"required,dive"`
}

type transcriptionSegment struct {
	Speaker    string                   `json:"speaker" validate:"required"`
	Start      float64                  `json:"start" validate:"gte=0"`
	End        float64                  `json:"end" validate:"gtefield=Start"`
	Utterances []transcriptionUtterance `json:"utterances" validate:"dive"`
}

type transcriptionUtterance struct {
	Text  string              `json:"text" validate:"required"`
	Start float64             `json:"start" validate:"gte=0"`
	End   float64             `json:"end" validate:"gtefield=Start"`
	Words []transcriptionWord `json:"words" validate:"dive"`
}

type transcriptionWord struct {
	Text       string  `json:"text" validate:"required"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// TranscribeHandler applies transcription callbacks: speaker-attributed
// segments with utterances and word-level timing
type TranscribeHandler struct {
	transcripts interfaces.TranscriptStorage
	logger      arbor.ILogger
}

// NewTranscribeHandler creates the transcribe stage handler
func NewTranscribeHandler(transcripts interfaces.TranscriptStorage, logger arbor.ILogger) *TranscribeHandler {
	return &TranscribeHandler{
		transcripts: transcripts,
		logger:      logger,
	}
}

func (h *TranscribeHandler) Type() models.TaskType {
	return models.TaskTypeTranscribe
}

// Validate checks the envelope and, for completed payloads, the segment data
func (h *TranscribeHandler) Validate(payload []byte) error {
	envelope, err := parseEnvelope(payload)
	if err != nil {
		return err
	}
	if envelope.Status != "completed" {
		return nil // Failure callbacks carry no result data
	}

	data, err := parseTranscriptionData(envelope)
	if err != nil {
		return err
	}
	if len(data.Segments) == 0 {
		return &ValidationError{Reason: "completed transcription carries no segments"}
	}
	return nil
}

// Apply persists the transcript. The per-meeting replace keeps a retried
// callback from ever doubling rows even if the status guard were bypassed.
func (h *TranscribeHandler) Apply(ctx context.Context, task *models.TaskStatus, payload []byte) (*ApplyResult, error) {
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

	data, err := parseTranscriptionData(envelope)
	if err != nil {
		return nil, err
	}

	segments := make([]*models.SpeakerSegment, 0, len(data.Segments))
	var utterances []*models.Utterance
	var words []*models.Word

	for _, seg := range data.Segments {
		segment := &models.SpeakerSegment{
			MeetingID: task.MeetingID,
			Speaker:   seg.Speaker,
			StartSec:  seg.Start,
			EndSec:    seg.End,
		}
		segment.ID = "seg_" + newRowID()
		segments = append(segments, segment)

		for _, utt := range seg.Utterances {
			utterance := &models.Utterance{
				ID:        "utt_" + newRowID(),
				MeetingID: task.MeetingID,
				SegmentID: segment.ID,
				Text:      utt.Text,
				StartSec:  utt.Start,
				EndSec:    utt.End,
			}
			utterances = append(utterances, utterance)

			for _, w := range utt.Words {
				words = append(words, &models.Word{
					ID:          "word_" + newRowID(),
					UtteranceID: utterance.ID,
					Text:        w.Text,
					StartSec:    w.Start,
					EndSec:      w.End,
					Confidence:  w.Confidence,
				})
			}
		}
	}

	if err := h.transcripts.ReplaceTranscript(ctx, task.MeetingID, segments, utterances, words); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	summary, _ := json.Marshal(map[string]int{
		"segments":   len(segments),
		"utterances": len(utterances),
		"words":      len(words),
	})

	h.logger.Info().
		Str("meeting_id", task.MeetingID).
		Int("segments", len(segments)).
		Int("words", len(words)).
		Msg("Transcription applied")

	return &ApplyResult{
		Outcome: models.TaskStateSucceeded,
		JobID:   envelope.JobID,
		Summary: string(summary),
	}, nil
}

func parseTranscriptionData(envelope *CallbackPayload) (*transcriptionData, error) {
	if len(envelope.Data) == 0 {
		return nil, &ValidationError{Reason: "missing data"}
	}
	var data transcriptionData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed data: %v", err)}
	}
	if err := validate.Struct(&data); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	return &data, nil
}

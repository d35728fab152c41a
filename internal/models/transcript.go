package models

import "time"

// SpeakerSegment is one diarized span of speech attributed to a speaker tag.
// Written by the diarize stage, or by the transcribe stage when the
// transcription provider returns speaker-attributed segments.
type SpeakerSegment struct {
	ID        string    `json:"id"`
	MeetingID string    `json:"meeting_id"`
	Speaker   string    `json:"speaker"` // Provider speaker tag, e.g. "SPEAKER_03"
	StartSec  float64   `json:"start_sec"`
	EndSec    float64   `json:"end_sec"`
	CreatedAt time.Time `json:"created_at"`
}

// Utterance is one transcript unit inside a speaker segment. EditCount
// tracks how many times a human corrected the text; review metrics join on
// it to report edit efficiency.
type Utterance struct {
	ID           string     `json:"id"`
	MeetingID    string     `json:"meeting_id"`
	SegmentID    string     `json:"segment_id"`
	Text         string     `json:"text"`
	StartSec     float64    `json:"start_sec"`
	EndSec       float64    `json:"end_sec"`
	EditCount    int        `json:"edit_count"`
	LastEditedAt *time.Time `json:"last_edited_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// UtteranceCorrection is one human text correction applied by the
// fixTranscript stage
type UtteranceCorrection struct {
	UtteranceID string `json:"utterance_id"`
	Text        string `json:"text"`
}

// Word is word-level transcript data with timing, the dominant payload cost
// of transcription callbacks
type Word struct {
	ID          string  `json:"id"`
	UtteranceID string  `json:"utterance_id"`
	Text        string  `json:"text"`
	StartSec    float64 `json:"start_sec"`
	EndSec      float64 `json:"end_sec"`
	Confidence  float64 `json:"confidence"`
}

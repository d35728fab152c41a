package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
)

// TranscriptStorage implements SQLite storage for transcript domain data.
// Word-level writes are the dominant latency cost of webhook ingestion, so
// all replace operations run inside a single transaction per meeting and
// never hold a lock broader than that.
type TranscriptStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewTranscriptStorage creates a new transcript storage instance
func NewTranscriptStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.TranscriptStorage {
	return &TranscriptStorage{
		db:     db,
		logger: logger,
	}
}

// ReplaceSegments replaces a meeting's speaker segments in one transaction
func (s *TranscriptStorage) ReplaceSegments(ctx context.Context, meetingID string, segments []*models.SpeakerSegment) error {
	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM speaker_segments WHERE meeting_id = ?`, meetingID); err != nil {
		return fmt.Errorf("failed to clear segments: %w", err)
	}

	now := time.Now()
	for _, segment := range segments {
		if segment.ID == "" {
			segment.ID = "seg_" + uuid.New().String()
		}
		if segment.CreatedAt.IsZero() {
			segment.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO speaker_segments (id, meeting_id, speaker, start_sec, end_sec, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			segment.ID, meetingID, segment.Speaker, segment.StartSec,
			segment.EndSec, segment.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert segment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit segments: %w", err)
	}

	s.logger.Debug().Str("meeting_id", meetingID).Int("segments", len(segments)).
		Msg("Replaced speaker segments")
	return nil
}

// ReplaceTranscript replaces a meeting's full transcript (segments,
// utterances and word-level rows) in one transaction
func (s *TranscriptStorage) ReplaceTranscript(ctx context.Context, meetingID string, segments []*models.SpeakerSegment, utterances []*models.Utterance, words []*models.Word) error {
	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"words", "utterances", "speaker_segments"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE meeting_id = ?`, table), meetingID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	now := time.Now()

	for _, segment := range segments {
		if segment.ID == "" {
			segment.ID = "seg_" + uuid.New().String()
		}
		if segment.CreatedAt.IsZero() {
			segment.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO speaker_segments (id, meeting_id, speaker, start_sec, end_sec, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			segment.ID, meetingID, segment.Speaker, segment.StartSec,
			segment.EndSec, segment.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert segment: %w", err)
		}
	}

	for _, utterance := range utterances {
		if utterance.ID == "" {
			utterance.ID = "utt_" + uuid.New().String()
		}
		if utterance.CreatedAt.IsZero() {
			utterance.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO utterances (id, meeting_id, segment_id, text, start_sec, end_sec, edit_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
			utterance.ID, meetingID, utterance.SegmentID, utterance.Text,
			utterance.StartSec, utterance.EndSec, utterance.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert utterance: %w", err)
		}
	}

	for _, word := range words {
		if word.ID == "" {
			word.ID = "word_" + uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO words (id, utterance_id, meeting_id, text, start_sec, end_sec, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			word.ID, word.UtteranceID, meetingID, word.Text,
			word.StartSec, word.EndSec, word.Confidence); err != nil {
			return fmt.Errorf("failed to insert word: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transcript: %w", err)
	}

	s.logger.Debug().Str("meeting_id", meetingID).
		Int("segments", len(segments)).
		Int("utterances", len(utterances)).
		Int("words", len(words)).
		Msg("Replaced transcript")
	return nil
}

// ApplyCorrections updates utterance text and bumps edit counters. Returns
// the number of utterances actually changed.
func (s *TranscriptStorage) ApplyCorrections(ctx context.Context, meetingID string, corrections []models.UtteranceCorrection) (int, error) {
	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	applied := 0
	for _, correction := range corrections {
		result, err := tx.ExecContext(ctx, `
			UPDATE utterances SET
				text = ?,
				edit_count = edit_count + 1,
				last_edited_at = ?
			WHERE id = ? AND meeting_id = ? AND text <> ?`,
			correction.Text, now, correction.UtteranceID, meetingID, correction.Text)
		if err != nil {
			return 0, fmt.Errorf("failed to apply correction to %s: %w", correction.UtteranceID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read affected rows: %w", err)
		}
		applied += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit corrections: %w", err)
	}
	return applied, nil
}

// CountSegments returns the number of speaker segments for a meeting
func (s *TranscriptStorage) CountSegments(ctx context.Context, meetingID string) (int, error) {
	return s.countForMeeting(ctx, "speaker_segments", meetingID)
}

// CountWords returns the number of word rows for a meeting
func (s *TranscriptStorage) CountWords(ctx context.Context, meetingID string) (int, error) {
	return s.countForMeeting(ctx, "words", meetingID)
}

// CountEditedUtterances returns the number of utterances with at least one
// human correction
func (s *TranscriptStorage) CountEditedUtterances(ctx context.Context, meetingID string) (int, error) {
	var count int
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM utterances WHERE meeting_id = ? AND edit_count > 0`,
		meetingID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count edited utterances: %w", err)
	}
	return count, nil
}

// UtteranceSpan returns the earliest start and latest end across the
// meeting's utterances. ok is false when the meeting has no utterances.
func (s *TranscriptStorage) UtteranceSpan(ctx context.Context, meetingID string) (float64, float64, bool, error) {
	var start, end float64
	var count int
	err := s.db.DB().QueryRowContext(ctx, `
		SELECT COALESCE(MIN(start_sec), 0), COALESCE(MAX(end_sec), 0), COUNT(*)
		FROM utterances WHERE meeting_id = ?`, meetingID).Scan(&start, &end, &count)
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to compute utterance span: %w", err)
	}
	if count == 0 {
		return 0, 0, false, nil
	}
	return start, end, true, nil
}

func (s *TranscriptStorage) countForMeeting(ctx context.Context, table, meetingID string) (int, error) {
	var count int
	err := s.db.DB().QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE meeting_id = ?`, table),
		meetingID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

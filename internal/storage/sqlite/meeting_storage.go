package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
)

// MeetingStorage implements SQLite storage for cities, meetings, agenda
// subjects and summaries
type MeetingStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewMeetingStorage creates a new meeting storage instance
func NewMeetingStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.MeetingStorage {
	return &MeetingStorage{
		db:     db,
		logger: logger,
	}
}

// SaveCity creates or updates a city
func (s *MeetingStorage) SaveCity(ctx context.Context, city *models.City) error {
	if city.CreatedAt.IsZero() {
		city.CreatedAt = time.Now()
	}
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO cities (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		city.ID, city.Name, city.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save city %s: %w", city.ID, err)
	}
	return nil
}

// GetCity returns a city by ID, or nil when it does not exist
func (s *MeetingStorage) GetCity(ctx context.Context, id string) (*models.City, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT id, name, created_at FROM cities WHERE id = ?`, id)

	var city models.City
	var createdAt int64
	err := row.Scan(&city.ID, &city.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get city %s: %w", id, err)
	}
	city.CreatedAt = time.Unix(createdAt, 0)
	return &city, nil
}

// SaveMeeting creates or updates a meeting
func (s *MeetingStorage) SaveMeeting(ctx context.Context, meeting *models.Meeting) error {
	if meeting.CreatedAt.IsZero() {
		meeting.CreatedAt = time.Now()
	}
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO meetings (id, city_id, name, date, media_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			date = excluded.date,
			media_url = excluded.media_url`,
		meeting.ID, meeting.CityID, meeting.Name, meeting.Date.Unix(),
		nullString(meeting.MediaURL), meeting.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save meeting %s: %w", meeting.ID, err)
	}
	return nil
}

// GetMeeting returns a meeting by ID, or nil when it does not exist
func (s *MeetingStorage) GetMeeting(ctx context.Context, id string) (*models.Meeting, error) {
	row := s.db.DB().QueryRowContext(ctx,
		selectMeetingSQL+` WHERE id = ?`, id)
	meeting, err := scanMeeting(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting %s: %w", id, err)
	}
	return meeting, nil
}

// ListMeetings returns all meetings, newest first
func (s *MeetingStorage) ListMeetings(ctx context.Context) ([]*models.Meeting, error) {
	rows, err := s.db.DB().QueryContext(ctx, selectMeetingSQL+` ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	defer rows.Close()
	return scanMeetings(rows)
}

// ListMeetingsSince returns meetings dated at or after cutoff, newest first
func (s *MeetingStorage) ListMeetingsSince(ctx context.Context, cutoff time.Time) ([]*models.Meeting, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		selectMeetingSQL+` WHERE date >= ? ORDER BY date DESC`, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings since %s: %w", cutoff, err)
	}
	defer rows.Close()
	return scanMeetings(rows)
}

// ReplaceSubjects replaces a meeting's agenda subjects in one transaction
func (s *MeetingStorage) ReplaceSubjects(ctx context.Context, meetingID string, subjects []*models.AgendaSubject) error {
	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM agenda_subjects WHERE meeting_id = ?`, meetingID); err != nil {
		return fmt.Errorf("failed to clear subjects: %w", err)
	}

	now := time.Now()
	for _, subject := range subjects {
		if subject.ID == "" {
			subject.ID = "subj_" + uuid.New().String()
		}
		if subject.CreatedAt.IsZero() {
			subject.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO agenda_subjects (id, meeting_id, title, ordinal, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			subject.ID, meetingID, subject.Title, subject.Ordinal,
			subject.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert subject: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit subjects: %w", err)
	}
	return nil
}

// ListSubjects returns a meeting's agenda subjects in agenda order
func (s *MeetingStorage) ListSubjects(ctx context.Context, meetingID string) ([]*models.AgendaSubject, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, meeting_id, title, ordinal, created_at
		FROM agenda_subjects WHERE meeting_id = ? ORDER BY ordinal`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	defer rows.Close()

	var subjects []*models.AgendaSubject
	for rows.Next() {
		var subject models.AgendaSubject
		var createdAt int64
		if err := rows.Scan(&subject.ID, &subject.MeetingID, &subject.Title,
			&subject.Ordinal, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan subject: %w", err)
		}
		subject.CreatedAt = time.Unix(createdAt, 0)
		subjects = append(subjects, &subject)
	}
	return subjects, rows.Err()
}

// SaveSummary creates or updates a meeting summary
func (s *MeetingStorage) SaveSummary(ctx context.Context, summary *models.Summary) error {
	if summary.UpdatedAt.IsZero() {
		summary.UpdatedAt = time.Now()
	}
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO summaries (meeting_id, text, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(meeting_id) DO UPDATE SET
			text = excluded.text,
			updated_at = excluded.updated_at`,
		summary.MeetingID, summary.Text, summary.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save summary for meeting %s: %w", summary.MeetingID, err)
	}
	return nil
}

// GetSummary returns a meeting's summary, or nil when none exists
func (s *MeetingStorage) GetSummary(ctx context.Context, meetingID string) (*models.Summary, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT meeting_id, text, updated_at FROM summaries WHERE meeting_id = ?`, meetingID)

	var summary models.Summary
	var updatedAt int64
	err := row.Scan(&summary.MeetingID, &summary.Text, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary for meeting %s: %w", meetingID, err)
	}
	summary.UpdatedAt = time.Unix(updatedAt, 0)
	return &summary, nil
}

const selectMeetingSQL = `
	SELECT id, city_id, name, date, media_url, created_at FROM meetings`

func scanMeeting(row rowScanner) (*models.Meeting, error) {
	var meeting models.Meeting
	var mediaURL sql.NullString
	var date, createdAt int64

	err := row.Scan(&meeting.ID, &meeting.CityID, &meeting.Name, &date,
		&mediaURL, &createdAt)
	if err != nil {
		return nil, err
	}

	meeting.MediaURL = mediaURL.String
	meeting.Date = time.Unix(date, 0)
	meeting.CreatedAt = time.Unix(createdAt, 0)
	return &meeting, nil
}

func scanMeetings(rows *sql.Rows) ([]*models.Meeting, error) {
	var meetings []*models.Meeting
	for rows.Next() {
		meeting, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		meetings = append(meetings, meeting)
	}
	return meetings, rows.Err()
}

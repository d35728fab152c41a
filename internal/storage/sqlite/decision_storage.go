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

// DecisionStorage implements SQLite storage for transparency-registry
// decisions
type DecisionStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewDecisionStorage creates a new decision storage instance
func NewDecisionStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.DecisionStorage {
	return &DecisionStorage{
		db:     db,
		logger: logger,
	}
}

// SaveDecisions inserts decisions, skipping any whose registry number (ADA)
// is already stored. The returned count of newly inserted rows is what the
// polling scheduler treats as a hit.
func (s *DecisionStorage) SaveDecisions(ctx context.Context, decisions []*models.Decision) (int, error) {
	if len(decisions) == 0 {
		return 0, nil
	}

	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	inserted := 0
	for _, decision := range decisions {
		if decision.ID == "" {
			decision.ID = "dec_" + uuid.New().String()
		}
		if decision.DiscoveredAt.IsZero() {
			decision.DiscoveredAt = now
		}
		result, err := tx.ExecContext(ctx, `
			INSERT INTO decisions (id, meeting_id, subject_id, ada, title, document_url, published_at, discovered_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(ada) DO NOTHING`,
			decision.ID, decision.MeetingID, nullString(decision.SubjectID),
			decision.Ada, decision.Title, nullString(decision.DocumentURL),
			decision.PublishedAt.Unix(), decision.DiscoveredAt.Unix())
		if err != nil {
			return 0, fmt.Errorf("failed to insert decision %s: %w", decision.Ada, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read affected rows: %w", err)
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit decisions: %w", err)
	}
	return inserted, nil
}

// ListByMeeting returns a meeting's discovered decisions, newest first
func (s *DecisionStorage) ListByMeeting(ctx context.Context, meetingID string) ([]*models.Decision, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, meeting_id, subject_id, ada, title, document_url, published_at, discovered_at
		FROM decisions WHERE meeting_id = ? ORDER BY published_at DESC`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*models.Decision
	for rows.Next() {
		var decision models.Decision
		var subjectID, documentURL sql.NullString
		var publishedAt, discoveredAt int64
		if err := rows.Scan(&decision.ID, &decision.MeetingID, &subjectID,
			&decision.Ada, &decision.Title, &documentURL,
			&publishedAt, &discoveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decision.SubjectID = subjectID.String
		decision.DocumentURL = documentURL.String
		decision.PublishedAt = time.Unix(publishedAt, 0)
		decision.DiscoveredAt = time.Unix(discoveredAt, 0)
		decisions = append(decisions, &decision)
	}
	return decisions, rows.Err()
}

// CountDecisions returns the total number of stored decisions
func (s *DecisionStorage) CountDecisions(ctx context.Context) (int, error) {
	var count int
	err := s.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count decisions: %w", err)
	}
	return count, nil
}

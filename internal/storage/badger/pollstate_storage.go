package badger

import (
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// PollStateStorage implements Badger storage for per-meeting polling backoff
// state. The state is runtime tuning data, not relational history, so it
// lives in the key-value store rather than SQLite.
type PollStateStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPollStateStorage creates a new poll state storage instance
func NewPollStateStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PollStateStorage {
	return &PollStateStorage{
		db:     db,
		logger: logger,
	}
}

// GetState returns a meeting's poll state, or nil when it was never polled
func (s *PollStateStorage) GetState(meetingID string) (*models.PollState, error) {
	var state models.PollState
	err := s.db.Store().Get(meetingID, &state)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get poll state for %s: %w", meetingID, err)
	}
	return &state, nil
}

// SaveState creates or updates a meeting's poll state
func (s *PollStateStorage) SaveState(state *models.PollState) error {
	if state.MeetingID == "" {
		return fmt.Errorf("poll state meeting ID is required")
	}
	if err := s.db.Store().Upsert(state.MeetingID, state); err != nil {
		return fmt.Errorf("failed to save poll state for %s: %w", state.MeetingID, err)
	}
	return nil
}

// AllStates returns every stored poll state
func (s *PollStateStorage) AllStates() ([]*models.PollState, error) {
	var states []*models.PollState
	if err := s.db.Store().Find(&states, nil); err != nil {
		return nil, fmt.Errorf("failed to list poll states: %w", err)
	}
	return states, nil
}

// DeleteState removes a meeting's poll state
func (s *PollStateStorage) DeleteState(meetingID string) error {
	err := s.db.Store().Delete(meetingID, &models.PollState{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete poll state for %s: %w", meetingID, err)
	}
	return nil
}

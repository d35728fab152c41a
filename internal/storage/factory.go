package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/common"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/storage/badger"
	"github.com/ternarybob/agora/internal/storage/sqlite"
)

// Manager combines the two storage backends: SQLite for relational history
// (tasks, requests, meetings, transcripts, decisions) and Badger for
// per-meeting polling runtime state.
type Manager struct {
	sqliteDB    *sqlite.SQLiteDB
	badgerDB    *badger.BadgerDB
	tasks       interfaces.TaskStorage
	requests    interfaces.RequestStorage
	meetings    interfaces.MeetingStorage
	transcripts interfaces.TranscriptStorage
	decisions   interfaces.DecisionStorage
	pollStates  interfaces.PollStateStorage
	logger      arbor.ILogger
}

// NewStorageManager creates a new storage manager based on config
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	sqliteDB, err := sqlite.NewSQLiteDB(logger, &config.Storage.SQLite)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
	}

	badgerDB, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		sqliteDB.Close()
		return nil, fmt.Errorf("failed to open badger storage: %w", err)
	}

	return &Manager{
		sqliteDB:    sqliteDB,
		badgerDB:    badgerDB,
		tasks:       sqlite.NewTaskStorage(sqliteDB, logger),
		requests:    sqlite.NewRequestStorage(sqliteDB, logger),
		meetings:    sqlite.NewMeetingStorage(sqliteDB, logger),
		transcripts: sqlite.NewTranscriptStorage(sqliteDB, logger),
		decisions:   sqlite.NewDecisionStorage(sqliteDB, logger),
		pollStates:  badger.NewPollStateStorage(badgerDB, logger),
		logger:      logger,
	}, nil
}

func (m *Manager) TaskStorage() interfaces.TaskStorage             { return m.tasks }
func (m *Manager) RequestStorage() interfaces.RequestStorage       { return m.requests }
func (m *Manager) MeetingStorage() interfaces.MeetingStorage       { return m.meetings }
func (m *Manager) TranscriptStorage() interfaces.TranscriptStorage { return m.transcripts }
func (m *Manager) DecisionStorage() interfaces.DecisionStorage     { return m.decisions }
func (m *Manager) PollStateStorage() interfaces.PollStateStorage   { return m.pollStates }

// Close closes both backends
func (m *Manager) Close() error {
	var firstErr error
	if err := m.badgerDB.Close(); err != nil {
		firstErr = err
	}
	if err := m.sqliteDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

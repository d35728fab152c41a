package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/agora/internal/models"
)

// TaskStorage - interface for versioned task status persistence.
// The store is the only shared mutable resource in the orchestration core;
// every write path goes through an atomic conditional statement so that the
// status-transition guard and the delete guard hold under concurrency.
type TaskStorage interface {
	// CreateAtNextVersion inserts the task with version assigned as
	// (max version for meeting+type)+1 in a single serialized statement,
	// and returns the assigned version.
	CreateAtNextVersion(ctx context.Context, task *models.TaskStatus) (int, error)

	GetTask(ctx context.Context, id string) (*models.TaskStatus, error)
	ListByMeeting(ctx context.Context, meetingID string) ([]*models.TaskStatus, error)
	HighestVersion(ctx context.Context, meetingID string, taskType models.TaskType) (int, error)
	ListAudit(ctx context.Context, filter *models.TaskAuditFilter) ([]*models.TaskStatus, error)

	// Transition conditionally moves the task to the target state. The update
	// only applies when the current state legally precedes the target, which
	// makes duplicate terminal callbacks harmless. Returns true when a row
	// was updated, false when the guard rejected it.
	Transition(ctx context.Context, id string, to models.TaskState, resultSummary, errMsg string) (bool, error)

	// Delete removes the task only when its updated_at is older than cutoff,
	// re-checking the grace window inside the statement to close the race
	// between viewing and deleting. Returns true when a row was removed.
	Delete(ctx context.Context, id string, cutoff time.Time) (bool, error)

	CountByState(ctx context.Context) (map[models.TaskState]int, error)

	// MeetingIDsWithSucceeded returns distinct meeting IDs having at least
	// one succeeded task of the given type. Review classification is built
	// on this.
	MeetingIDsWithSucceeded(ctx context.Context, taskType models.TaskType) ([]string, error)
	LatestSucceeded(ctx context.Context, meetingID string, taskType models.TaskType) (*models.TaskStatus, error)
}

// RequestStorage - interface for external job request persistence
type RequestStorage interface {
	SaveRequest(ctx context.Context, request *models.JobRequest) error
	GetRequest(ctx context.Context, id string) (*models.JobRequest, error)

	// DeleteUnfinished removes any non-terminal request for the meeting and
	// type, superseding it before a new dispatch. Returns the number removed.
	DeleteUnfinished(ctx context.Context, meetingID string, taskType models.TaskType) (int, error)

	UpdateStatus(ctx context.Context, id string, status models.TaskState, externalJobID string) error
}

// MeetingStorage - interface for meeting, city, agenda and summary data.
// Cities and meetings are owned by the wider application; this subsystem
// reads them and writes only agenda subjects and summaries.
type MeetingStorage interface {
	SaveCity(ctx context.Context, city *models.City) error
	GetCity(ctx context.Context, id string) (*models.City, error)

	SaveMeeting(ctx context.Context, meeting *models.Meeting) error
	GetMeeting(ctx context.Context, id string) (*models.Meeting, error)
	ListMeetings(ctx context.Context) ([]*models.Meeting, error)
	ListMeetingsSince(ctx context.Context, cutoff time.Time) ([]*models.Meeting, error)

	ReplaceSubjects(ctx context.Context, meetingID string, subjects []*models.AgendaSubject) error
	ListSubjects(ctx context.Context, meetingID string) ([]*models.AgendaSubject, error)

	SaveSummary(ctx context.Context, summary *models.Summary) error
	GetSummary(ctx context.Context, meetingID string) (*models.Summary, error)
}

// TranscriptStorage - interface for transcript domain data written by task
// handlers. Replace operations run in one transaction per meeting so a
// retried callback never leaves partial rows behind.
type TranscriptStorage interface {
	ReplaceSegments(ctx context.Context, meetingID string, segments []*models.SpeakerSegment) error
	ReplaceTranscript(ctx context.Context, meetingID string, segments []*models.SpeakerSegment, utterances []*models.Utterance, words []*models.Word) error
	ApplyCorrections(ctx context.Context, meetingID string, corrections []models.UtteranceCorrection) (int, error)

	CountSegments(ctx context.Context, meetingID string) (int, error)
	CountWords(ctx context.Context, meetingID string) (int, error)
	CountEditedUtterances(ctx context.Context, meetingID string) (int, error)

	// UtteranceSpan returns the earliest start and latest end across the
	// meeting's utterances. ok is false when no utterances exist; such
	// meetings are excluded from duration-based aggregates.
	UtteranceSpan(ctx context.Context, meetingID string) (start, end float64, ok bool, err error)
}

// DecisionStorage - interface for transparency-registry decisions
type DecisionStorage interface {
	// SaveDecisions inserts decisions, skipping any whose registry number is
	// already stored, and returns the count of newly discovered ones.
	SaveDecisions(ctx context.Context, decisions []*models.Decision) (int, error)
	ListByMeeting(ctx context.Context, meetingID string) ([]*models.Decision, error)
	CountDecisions(ctx context.Context) (int, error)
}

// PollStateStorage - interface for per-meeting polling backoff state
type PollStateStorage interface {
	GetState(meetingID string) (*models.PollState, error) // nil when never polled
	SaveState(state *models.PollState) error
	AllStates() ([]*models.PollState, error)
	DeleteState(meetingID string) error
}

// StorageManager provides access to all storage backends
type StorageManager interface {
	TaskStorage() TaskStorage
	RequestStorage() RequestStorage
	MeetingStorage() MeetingStorage
	TranscriptStorage() TranscriptStorage
	DecisionStorage() DecisionStorage
	PollStateStorage() PollStateStorage
	Close() error
}

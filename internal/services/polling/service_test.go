package polling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/common"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
	"github.com/ternarybob/agora/internal/storage"
)

// scriptedClient returns one scripted result per Search call
type scriptedClient struct {
	results []scriptedResult
	calls   int
}

type scriptedResult struct {
	decisions []*models.Decision
	err       error
}

func (c *scriptedClient) Search(ctx context.Context, meeting *models.Meeting) ([]*models.Decision, error) {
	if c.calls >= len(c.results) {
		return nil, nil
	}
	r := c.results[c.calls]
	c.calls++
	return r.decisions, r.err
}

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()

	tempDir := t.TempDir()
	config := common.NewDefaultConfig()
	config.Storage.SQLite.Path = tempDir + "/test.db"
	config.Storage.SQLite.WALMode = false
	config.Storage.Badger.Path = tempDir + "/pollstate"

	manager, err := storage.NewStorageManager(arbor.NewLogger(), config)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	return manager
}

func seedPolledMeeting(t *testing.T, manager interfaces.StorageManager, id string, date time.Time) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, manager.MeetingStorage().SaveCity(ctx, &models.City{
		ID: "city-1", Name: "Testopolis", CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, manager.MeetingStorage().SaveMeeting(ctx, &models.Meeting{
		ID: id, CityID: "city-1", Name: "Session", Date: date, CreatedAt: time.Now().UTC(),
	}))
}

func testPollConfig() *common.PollingConfig {
	return &common.PollingConfig{
		RegistryURL:   "http://registry.invalid",
		MinInterval:   common.Duration(6 * time.Hour),
		MaxInterval:   common.Duration(14 * 24 * time.Hour),
		Multiplier:    2.0,
		RecencyWindow: common.Duration(90 * 24 * time.Hour),
		RateLimit:     common.Duration(time.Nanosecond),
		LookupTimeout: common.Duration(time.Second),
	}
}

func decision(ada string) *models.Decision {
	return &models.Decision{
		MeetingID:    "meeting-1",
		Ada:          ada,
		Title:        "Decision " + ada,
		PublishedAt:  time.Now().UTC(),
		DiscoveredAt: time.Now().UTC(),
	}
}

func TestService_BackoffGrowsOnMisses(t *testing.T) {
	manager := newTestStorage(t)
	now := time.Now().UTC()
	seedPolledMeeting(t, manager, "meeting-1", now)

	client := &scriptedClient{results: []scriptedResult{
		{}, // miss
		{}, // miss
		{}, // miss
	}}
	service := NewService(manager, client, testPollConfig(), arbor.NewLogger())
	ctx := context.Background()

	// First run: never polled, due immediately, miss doubles 6h -> 12h
	summary, err := service.Run(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MeetingsChecked)

	state, err := manager.PollStateStorage().GetState("meeting-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 12*time.Hour, state.Interval)
	assert.Equal(t, 1, state.ConsecutiveMisses)

	// 6 hours later the meeting is not yet due at 12h
	summary, err = service.Run(ctx, now.Add(6*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.MeetingsChecked)
	assert.Equal(t, 1, client.calls)

	// 12 hours later: due, another miss, 12h -> 24h
	summary, err = service.Run(ctx, now.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MeetingsChecked)

	state, err = manager.PollStateStorage().GetState("meeting-1")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, state.Interval)
	assert.Equal(t, 2, state.ConsecutiveMisses)
	assert.Equal(t, 2, state.Polls)
	assert.Equal(t, 0, state.Hits)
}

func TestService_HitResetsToFloor(t *testing.T) {
	manager := newTestStorage(t)
	now := time.Now().UTC()
	seedPolledMeeting(t, manager, "meeting-1", now)

	// Seed a deeply backed-off state
	require.NoError(t, manager.PollStateStorage().SaveState(&models.PollState{
		MeetingID:         "meeting-1",
		LastPolledAt:      now.Add(-100 * time.Hour),
		Interval:          96 * time.Hour,
		ConsecutiveMisses: 4,
		Polls:             4,
	}))

	client := &scriptedClient{results: []scriptedResult{
		{decisions: []*models.Decision{decision("ADA-1"), decision("ADA-2")}},
	}}
	service := NewService(manager, client, testPollConfig(), arbor.NewLogger())

	summary, err := service.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.DecisionsFound)

	state, err := manager.PollStateStorage().GetState("meeting-1")
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, state.Interval)
	assert.Equal(t, 0, state.ConsecutiveMisses)
	assert.Equal(t, 1, state.Hits)
}

func TestService_AlreadyKnownDecisionsAreAMiss(t *testing.T) {
	manager := newTestStorage(t)
	now := time.Now().UTC()
	seedPolledMeeting(t, manager, "meeting-1", now)

	client := &scriptedClient{results: []scriptedResult{
		{decisions: []*models.Decision{decision("ADA-1")}},
		{decisions: []*models.Decision{decision("ADA-1")}}, // same ada again
	}}
	service := NewService(manager, client, testPollConfig(), arbor.NewLogger())
	ctx := context.Background()

	_, err := service.Run(ctx, now)
	require.NoError(t, err)

	// Second lookup returns only the already-stored decision: no new rows,
	// so the backoff treats it as a miss
	summary, err := service.Run(ctx, now.Add(7*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.DecisionsFound)

	state, err := manager.PollStateStorage().GetState("meeting-1")
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour, state.Interval)

	count, err := manager.DecisionStorage().CountDecisions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestService_LookupErrorLeavesStateUntouched(t *testing.T) {
	manager := newTestStorage(t)
	now := time.Now().UTC()
	seedPolledMeeting(t, manager, "meeting-1", now)

	client := &scriptedClient{results: []scriptedResult{
		{err: errors.New("registry down")},
	}}
	service := NewService(manager, client, testPollConfig(), arbor.NewLogger())

	summary, err := service.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 0, summary.DecisionsFound)

	// No state saved: the meeting retries at the same interval next run
	state, err := manager.PollStateStorage().GetState("meeting-1")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestService_IntervalCappedAtCeiling(t *testing.T) {
	manager := newTestStorage(t)
	now := time.Now().UTC()
	seedPolledMeeting(t, manager, "meeting-1", now)

	config := testPollConfig()
	require.NoError(t, manager.PollStateStorage().SaveState(&models.PollState{
		MeetingID:    "meeting-1",
		LastPolledAt: now.Add(-15 * 24 * time.Hour),
		Interval:     10 * 24 * time.Hour,
	}))

	client := &scriptedClient{results: []scriptedResult{{}}}
	service := NewService(manager, client, config, arbor.NewLogger())

	_, err := service.Run(context.Background(), now)
	require.NoError(t, err)

	state, err := manager.PollStateStorage().GetState("meeting-1")
	require.NoError(t, err)
	assert.Equal(t, config.MaxInterval.Std(), state.Interval)
}

func TestService_RunDurationIsWallClock(t *testing.T) {
	manager := newTestStorage(t)
	now := time.Now().UTC()
	seedPolledMeeting(t, manager, "meeting-1", now)

	client := &scriptedClient{results: []scriptedResult{{}}}
	service := NewService(manager, client, testPollConfig(), arbor.NewLogger())

	// The injected logical clock can sit ahead of wall time; the reported
	// duration is elapsed wall time, never a delta against that clock.
	logical := now.Add(48 * time.Hour)
	summary, err := service.Run(context.Background(), logical)
	require.NoError(t, err)
	assert.Equal(t, logical, summary.StartedAt)
	assert.GreaterOrEqual(t, summary.Duration, time.Duration(0))
	assert.Less(t, summary.Duration, time.Minute)
}

func TestService_RecencyWindowExcludesOldMeetings(t *testing.T) {
	manager := newTestStorage(t)
	now := time.Now().UTC()
	seedPolledMeeting(t, manager, "meeting-old", now.Add(-120*24*time.Hour))

	client := &scriptedClient{}
	service := NewService(manager, client, testPollConfig(), arbor.NewLogger())

	summary, err := service.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.MeetingsInScope)
	assert.Equal(t, 0, client.calls)
}

func TestService_Effectiveness(t *testing.T) {
	manager := newTestStorage(t)
	now := time.Now().UTC()

	require.NoError(t, manager.PollStateStorage().SaveState(&models.PollState{
		MeetingID: "meeting-1", LastPolledAt: now, Interval: 6 * time.Hour, Polls: 10, Hits: 4,
	}))
	require.NoError(t, manager.PollStateStorage().SaveState(&models.PollState{
		MeetingID: "meeting-2", LastPolledAt: now, Interval: 6 * time.Hour, Polls: 6, Hits: 0,
	}))
	require.NoError(t, manager.PollStateStorage().SaveState(&models.PollState{
		MeetingID: "meeting-3", LastPolledAt: now, Interval: 24 * time.Hour, Polls: 5, Hits: 1,
	}))

	client := &scriptedClient{}
	service := NewService(manager, client, testPollConfig(), arbor.NewLogger())

	report, err := service.Effectiveness()
	require.NoError(t, err)
	require.Len(t, report.Tiers, 2)

	// Tiers ordered by interval
	assert.Equal(t, "6h0m0s", report.Tiers[0].Tier)
	assert.Equal(t, 2, report.Tiers[0].Meetings)
	assert.Equal(t, 16, report.Tiers[0].Polls)
	assert.Equal(t, 4, report.Tiers[0].Hits)
	assert.InDelta(t, 0.25, report.Tiers[0].HitRate, 0.0001)

	assert.Equal(t, "24h0m0s", report.Tiers[1].Tier)
	assert.InDelta(t, 0.2, report.Tiers[1].HitRate, 0.0001)

	assert.Equal(t, 21, report.TotalPolls)
	assert.Equal(t, 5, report.TotalHits)
}

// -----------------------------------------------------------------------
// Polling service - adaptive-backoff decision discovery
// -----------------------------------------------------------------------

package polling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/common"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
)

// Service runs the decision-registry polling cycle. Each run walks meetings
// inside the recency window, looks up only those whose backoff interval has
// elapsed, and adjusts per-meeting intervals: a hit resets to the floor, a
// miss multiplies up to the ceiling, and a lookup error changes nothing.
type Service struct {
	meetings  interfaces.MeetingStorage
	decisions interfaces.DecisionStorage
	states    interfaces.PollStateStorage
	client    RegistryClient
	config    *common.PollingConfig
	limiter   *rate.Limiter
	logger    arbor.ILogger
}

// NewService creates a polling service over the given registry client
func NewService(storage interfaces.StorageManager, client RegistryClient, config *common.PollingConfig, logger arbor.ILogger) *Service {
	every := config.RateLimit.Std()
	if every <= 0 {
		every = time.Second
	}
	return &Service{
		meetings:  storage.MeetingStorage(),
		decisions: storage.DecisionStorage(),
		states:    storage.PollStateStorage(),
		client:    client,
		config:    config,
		limiter:   rate.NewLimiter(rate.Every(every), 1),
		logger:    logger,
	}
}

// Run executes one polling cycle at now and returns its summary. Meetings
// share one run; a lookup failure for one meeting never aborts the rest.
func (s *Service) Run(ctx context.Context, now time.Time) (*models.PollRunSummary, error) {
	started := time.Now()
	summary := &models.PollRunSummary{StartedAt: now}

	cutoff := now.Add(-s.config.RecencyWindow.Std())
	meetings, err := s.meetings.ListMeetingsSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings for polling: %w", err)
	}
	summary.MeetingsInScope = len(meetings)

	for _, meeting := range meetings {
		if ctx.Err() != nil {
			break
		}

		state, err := s.states.GetState(meeting.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("meeting_id", meeting.ID).Msg("Failed to load poll state")
			summary.Errors++
			continue
		}
		if state == nil {
			state = &models.PollState{
				MeetingID: meeting.ID,
				Interval:  s.config.MinInterval.Std(),
			}
		}
		if !state.Due(now) {
			continue
		}

		summary.MeetingsChecked++

		found, err := s.pollMeeting(ctx, meeting)
		if err != nil {
			// State stays untouched so the meeting is retried at the
			// same interval next run.
			s.logger.Warn().Err(err).Str("meeting_id", meeting.ID).Msg("Registry lookup failed")
			summary.Errors++
			continue
		}

		state.LastPolledAt = now
		state.Polls++
		if found > 0 {
			state.Hits++
			state.ConsecutiveMisses = 0
			state.Interval = s.config.MinInterval.Std()
			summary.DecisionsFound += found
		} else {
			state.ConsecutiveMisses++
			state.Interval = s.nextInterval(state.Interval)
		}
		state.UpdatedAt = now

		if err := s.states.SaveState(state); err != nil {
			s.logger.Warn().Err(err).Str("meeting_id", meeting.ID).Msg("Failed to save poll state")
			summary.Errors++
		}
	}

	summary.Duration = time.Since(started)

	s.logger.Info().
		Int("in_scope", summary.MeetingsInScope).
		Int("checked", summary.MeetingsChecked).
		Int("found", summary.DecisionsFound).
		Int("errors", summary.Errors).
		Msg("Polling run completed")

	return summary, nil
}

// pollMeeting looks up the registry for one meeting and stores any decisions
// not seen before, returning the count of newly discovered ones
func (s *Service) pollMeeting(ctx context.Context, meeting *models.Meeting) (int, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	lookupCtx := ctx
	if s.config.LookupTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, s.config.LookupTimeout.Std())
		defer cancel()
	}

	decisions, err := s.client.Search(lookupCtx, meeting)
	if err != nil {
		return 0, err
	}
	if len(decisions) == 0 {
		return 0, nil
	}

	for _, d := range decisions {
		if d.ID == "" {
			d.ID = "dec_" + uuid.New().String()
		}
	}

	return s.decisions.SaveDecisions(ctx, decisions)
}

// nextInterval grows the backoff interval by the configured multiplier,
// capped at the ceiling
func (s *Service) nextInterval(current time.Duration) time.Duration {
	if current <= 0 {
		current = s.config.MinInterval.Std()
	}
	next := time.Duration(float64(current) * s.config.Multiplier)
	if next > s.config.MaxInterval.Std() {
		next = s.config.MaxInterval.Std()
	}
	return next
}

// Effectiveness aggregates lifetime poll counters by backoff tier. The view
// answers whether the interval ladder is tuned well: high hit rates at long
// intervals suggest the ceiling is too high, near-zero rates at the floor
// suggest it is too low.
func (s *Service) Effectiveness() (*models.PollEffectivenessReport, error) {
	states, err := s.states.AllStates()
	if err != nil {
		return nil, fmt.Errorf("failed to load poll states: %w", err)
	}

	type bucket struct {
		interval time.Duration
		stats    models.PollTierStats
	}
	buckets := make(map[time.Duration]*bucket)

	report := &models.PollEffectivenessReport{GeneratedAt: time.Now().UTC()}
	for _, state := range states {
		b, ok := buckets[state.Interval]
		if !ok {
			b = &bucket{interval: state.Interval}
			b.stats.Tier = state.Interval.String()
			buckets[state.Interval] = b
		}
		b.stats.Meetings++
		b.stats.Polls += state.Polls
		b.stats.Hits += state.Hits
		report.TotalPolls += state.Polls
		report.TotalHits += state.Hits
	}

	ordered := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].interval < ordered[j].interval
	})

	for _, b := range ordered {
		if b.stats.Polls > 0 {
			b.stats.HitRate = float64(b.stats.Hits) / float64(b.stats.Polls)
		}
		report.Tiers = append(report.Tiers, b.stats)
	}

	return report, nil
}

// -----------------------------------------------------------------------
// Poll State - per-meeting adaptive backoff for decision-registry polling
// -----------------------------------------------------------------------

package models

import "time"

// PollState tracks when a meeting was last polled against the decision
// registry and its current backoff interval. The interval is non-decreasing
// while misses continue and resets to the configured minimum on a hit; a
// lookup error leaves the state untouched so the meeting is retried at the
// same interval.
type PollState struct {
	MeetingID         string        `json:"meeting_id" badgerhold:"key"`
	LastPolledAt      time.Time     `json:"last_polled_at"`
	Interval          time.Duration `json:"interval"`
	ConsecutiveMisses int           `json:"consecutive_misses"`
	Polls             int           `json:"polls"` // Lifetime lookup count (errors excluded)
	Hits              int           `json:"hits"`  // Lifetime lookups that found new decisions
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Due reports whether the meeting should be polled at now
func (p *PollState) Due(now time.Time) bool {
	if p.LastPolledAt.IsZero() {
		return true
	}
	return !now.Before(p.LastPolledAt.Add(p.Interval))
}

// PollRunSummary reports the outcome of one polling run
type PollRunSummary struct {
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	MeetingsInScope int           `json:"meetings_in_scope"` // Meetings inside the recency window
	MeetingsChecked int           `json:"meetings_checked"`  // Meetings actually due and looked up
	DecisionsFound  int           `json:"decisions_found"`
	Errors          int           `json:"errors"`
}

// PollTierStats aggregates polling effectiveness for one backoff tier
type PollTierStats struct {
	Tier     string  `json:"tier"` // Human-readable interval bucket, e.g. "6h", "12h"
	Meetings int     `json:"meetings"`
	Polls    int     `json:"polls"`
	Hits     int     `json:"hits"`
	HitRate  float64 `json:"hit_rate"`
}

// PollEffectivenessReport is the operator-facing backoff tuning view
type PollEffectivenessReport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Tiers       []PollTierStats `json:"tiers"`
	TotalPolls  int             `json:"total_polls"`
	TotalHits   int             `json:"total_hits"`
}

package models

import "time"

// ReviewClassification buckets a transcribed meeting by human-review state
type ReviewClassification string

const (
	ReviewNeedsAttention ReviewClassification = "needsReview"
	ReviewCompleted      ReviewClassification = "reviewed"
)

// MeetingReview is the per-meeting row of the review workload view
type MeetingReview struct {
	MeetingID      string               `json:"meeting_id"`
	CityID         string               `json:"city_id"`
	MeetingName    string               `json:"meeting_name"`
	MeetingDate    time.Time            `json:"meeting_date"`
	Classification ReviewClassification `json:"classification"`
	DurationSec    float64              `json:"duration_sec"` // Utterance span; zero when no utterances exist
	EditedCount    int                  `json:"edited_count"` // Utterances with at least one human correction
	ReviewSeconds  float64              `json:"review_seconds,omitempty"`
	ReviewedAt     *time.Time           `json:"reviewed_at,omitempty"`
	ReviewedBy     string               `json:"reviewed_by,omitempty"`
}

// ReviewOverview answers "how much review work remains, how productive is
// review". Efficiency is nil when no review time has been recorded, never a
// divide-by-zero.
type ReviewOverview struct {
	GeneratedAt     time.Time        `json:"generated_at"`
	NeedsAttention  int              `json:"needs_attention"`
	Completed       int              `json:"completed"`
	Meetings        []*MeetingReview `json:"meetings"`
	TotalDurationH  float64          `json:"total_duration_hours"`  // Duration-weighted, zero-utterance meetings excluded
	ReviewedH       float64          `json:"reviewed_hours"`        // Duration of reviewed meetings
	ReviewTimeH     float64          `json:"review_time_hours"`     // Wall-clock review time recorded
	Efficiency      *float64         `json:"efficiency,omitempty"`  // Review time / meeting duration reviewed
	EditsPerHour    *float64         `json:"edits_per_hour,omitempty"`
}

// WeeklyVolume is one ISO-week bucket of the trailing volume chart
type WeeklyVolume struct {
	WeekStart      time.Time `json:"week_start"` // Monday
	ReviewedSec    float64   `json:"reviewed_sec"`
	NeedsReviewSec float64   `json:"needs_review_sec"`
	Meetings       int       `json:"meetings"`
}

// VolumeChart is the trailing 12-week review volume series
type VolumeChart struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Weeks       []WeeklyVolume `json:"weeks"`
}

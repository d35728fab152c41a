// -----------------------------------------------------------------------
// Reviews service - human-review workload and productivity metrics
// -----------------------------------------------------------------------

package reviews

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
)

// volumeWeeks is the trailing window of the review volume chart
const volumeWeeks = 12

// Service computes the review dashboards. A meeting enters the review
// universe once a transcribe task has succeeded; it counts as reviewed once
// a humanReview task has succeeded. Durations come from the utterance span,
// and meetings without utterances are excluded from duration aggregates.
type Service struct {
	tasks       interfaces.TaskStorage
	meetings    interfaces.MeetingStorage
	transcripts interfaces.TranscriptStorage
	logger      arbor.ILogger
}

// NewService creates a review metrics service
func NewService(storage interfaces.StorageManager, logger arbor.ILogger) *Service {
	return &Service{
		tasks:       storage.TaskStorage(),
		meetings:    storage.MeetingStorage(),
		transcripts: storage.TranscriptStorage(),
		logger:      logger,
	}
}

// reviewRecord is the summary JSON written by the humanReview handler
type reviewRecord struct {
	ReviewedBy    string  `json:"reviewedBy"`
	ReviewSeconds float64 `json:"reviewSeconds"`
}

// Filter narrows the review overview. The zero value (or nil) keeps every
// row; aggregates are computed over the rows that remain.
type Filter struct {
	Show       models.ReviewClassification // keep only rows in this classification
	ReviewerID string                      // keep only rows reviewed by this reviewer
	Last30Days bool                        // keep only meetings dated in the trailing 30 days
}

func (f *Filter) matches(row *models.MeetingReview, now time.Time) bool {
	if f == nil {
		return true
	}
	if f.Show != "" && row.Classification != f.Show {
		return false
	}
	if f.ReviewerID != "" && row.ReviewedBy != f.ReviewerID {
		return false
	}
	if f.Last30Days && row.MeetingDate.Before(now.AddDate(0, 0, -30)) {
		return false
	}
	return true
}

// Overview builds the review workload view over the meetings the filter keeps
func (s *Service) Overview(ctx context.Context, filter *Filter) (*models.ReviewOverview, error) {
	transcribed, err := s.tasks.MeetingIDsWithSucceeded(ctx, models.TaskTypeTranscribe)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcribed meetings: %w", err)
	}

	reviewedIDs, err := s.tasks.MeetingIDsWithSucceeded(ctx, models.TaskTypeHumanReview)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviewed meetings: %w", err)
	}
	reviewed := make(map[string]bool, len(reviewedIDs))
	for _, id := range reviewedIDs {
		reviewed[id] = true
	}

	overview := &models.ReviewOverview{GeneratedAt: time.Now().UTC()}

	var reviewTimeSec, reviewedDurationSec, totalEdits float64

	for _, meetingID := range transcribed {
		row, err := s.buildRow(ctx, meetingID, reviewed[meetingID])
		if err != nil {
			return nil, err
		}
		if row == nil {
			continue
		}
		if !filter.matches(row, overview.GeneratedAt) {
			continue
		}

		overview.Meetings = append(overview.Meetings, row)
		if row.Classification == models.ReviewCompleted {
			overview.Completed++
			reviewedDurationSec += row.DurationSec
			reviewTimeSec += row.ReviewSeconds
			totalEdits += float64(row.EditedCount)
		} else {
			overview.NeedsAttention++
		}
		overview.TotalDurationH += row.DurationSec / 3600
	}

	overview.ReviewedH = reviewedDurationSec / 3600
	overview.ReviewTimeH = reviewTimeSec / 3600

	if reviewTimeSec > 0 && reviewedDurationSec > 0 {
		efficiency := reviewTimeSec / reviewedDurationSec
		overview.Efficiency = &efficiency
	}
	if reviewTimeSec > 0 && totalEdits > 0 {
		perHour := totalEdits / (reviewTimeSec / 3600)
		overview.EditsPerHour = &perHour
	}

	return overview, nil
}

// buildRow assembles one meeting's review row, nil when the meeting record
// no longer exists
func (s *Service) buildRow(ctx context.Context, meetingID string, isReviewed bool) (*models.MeetingReview, error) {
	meeting, err := s.meetings.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load meeting %s: %w", meetingID, err)
	}
	if meeting == nil {
		return nil, nil
	}

	row := &models.MeetingReview{
		MeetingID:      meetingID,
		CityID:         meeting.CityID,
		MeetingName:    meeting.Name,
		MeetingDate:    meeting.Date,
		Classification: models.ReviewNeedsAttention,
	}
	if isReviewed {
		row.Classification = models.ReviewCompleted
	}

	start, end, ok, err := s.transcripts.UtteranceSpan(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute utterance span for %s: %w", meetingID, err)
	}
	if ok && end > start {
		row.DurationSec = end - start
	}

	edited, err := s.transcripts.CountEditedUtterances(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to count edited utterances for %s: %w", meetingID, err)
	}
	row.EditedCount = edited

	if isReviewed {
		task, err := s.tasks.LatestSucceeded(ctx, meetingID, models.TaskTypeHumanReview)
		if err != nil {
			return nil, fmt.Errorf("failed to load review task for %s: %w", meetingID, err)
		}
		if task != nil {
			reviewedAt := task.UpdatedAt
			row.ReviewedAt = &reviewedAt

			var record reviewRecord
			if task.ResultSummary != "" {
				// Older rows may predate the summary format; skip quietly.
				if err := json.Unmarshal([]byte(task.ResultSummary), &record); err == nil {
					row.ReviewedBy = record.ReviewedBy
					row.ReviewSeconds = record.ReviewSeconds
				}
			}
		}
	}

	return row, nil
}

// VolumeChart builds the trailing 12-week review volume series. Weeks are
// ISO weeks starting Monday, bucketed by meeting date, oldest first; weeks
// with no meetings still appear with zero values.
func (s *Service) VolumeChart(ctx context.Context) (*models.VolumeChart, error) {
	overview, err := s.Overview(ctx, nil)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	currentWeek := weekStart(now)
	firstWeek := currentWeek.AddDate(0, 0, -7*(volumeWeeks-1))

	chart := &models.VolumeChart{GeneratedAt: now}
	index := make(map[time.Time]int, volumeWeeks)
	for i := 0; i < volumeWeeks; i++ {
		ws := firstWeek.AddDate(0, 0, 7*i)
		index[ws] = i
		chart.Weeks = append(chart.Weeks, models.WeeklyVolume{WeekStart: ws})
	}

	for _, row := range overview.Meetings {
		ws := weekStart(row.MeetingDate.UTC())
		i, ok := index[ws]
		if !ok {
			continue
		}
		chart.Weeks[i].Meetings++
		if row.Classification == models.ReviewCompleted {
			chart.Weeks[i].ReviewedSec += row.DurationSec
		} else {
			chart.Weeks[i].NeedsReviewSec += row.DurationSec
		}
	}

	return chart, nil
}

// weekStart truncates t to the Monday of its ISO week, midnight UTC
func weekStart(t time.Time) time.Time {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the week that started the prior Monday
	}
	day := t.AddDate(0, 0, -(weekday - 1))
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

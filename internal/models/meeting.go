package models

import "time"

// City is an owning municipality. Managed elsewhere; this subsystem only
// reads it for scoping and audit grouping.
type City struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Meeting is one recorded council session
type Meeting struct {
	ID        string    `json:"id"`
	CityID    string    `json:"city_id"`
	Name      string    `json:"name"`
	Date      time.Time `json:"date"`      // Scheduled meeting date
	MediaURL  string    `json:"media_url"` // Source recording passed to external services
	CreatedAt time.Time `json:"created_at"`
}

// AgendaSubject is one agenda item discussed in a meeting. Subjects are
// written by the processAgenda stage and matched against registry decisions
// by the polling scheduler.
type AgendaSubject struct {
	ID        string    `json:"id"`
	MeetingID string    `json:"meeting_id"`
	Title     string    `json:"title"`
	Ordinal   int       `json:"ordinal"` // Position in the agenda
	CreatedAt time.Time `json:"created_at"`
}

// Summary is a generated meeting summary, written by the summarize stage
type Summary struct {
	MeetingID string    `json:"meeting_id"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

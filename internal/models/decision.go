package models

import "time"

// Decision is a government transparency-registry record linked to an agenda
// subject. The registry publishes no webhooks, so decisions are discovered by
// the polling scheduler.
type Decision struct {
	ID           string    `json:"id"`
	MeetingID    string    `json:"meeting_id"`
	SubjectID    string    `json:"subject_id,omitempty"` // Matched agenda subject, empty until matched
	Ada          string    `json:"ada"`                  // Registry-unique decision number
	Title        string    `json:"title"`
	DocumentURL  string    `json:"document_url"`
	PublishedAt  time.Time `json:"published_at"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// -----------------------------------------------------------------------
// Diavgeia client - decision lookups against the transparency registry
// -----------------------------------------------------------------------

package polling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/agora/internal/models"
)

// RegistryClient looks up published decisions for one meeting. The registry
// is a plain search API with no webhooks; hits are detected by comparing
// returned decision numbers against what is already stored.
type RegistryClient interface {
	Search(ctx context.Context, meeting *models.Meeting) ([]*models.Decision, error)
}

// DiavgeiaClient queries the Diavgeia transparency registry search endpoint
type DiavgeiaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDiavgeiaClient creates a registry client for the given search endpoint
func NewDiavgeiaClient(baseURL string, httpClient *http.Client) *DiavgeiaClient {
	return &DiavgeiaClient{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// diavgeiaResponse mirrors the registry search response shape
type diavgeiaResponse struct {
	Decisions []struct {
		Ada         string `json:"ada"`
		Subject     string `json:"subject"`
		DocumentURL string `json:"documentUrl"`
		IssueDate   int64  `json:"issueDate"` // Unix milliseconds
	} `json:"decisions"`
}

// Search queries the registry for decisions published around the meeting
// date, scoped by the meeting's organization
func (c *DiavgeiaClient) Search(ctx context.Context, meeting *models.Meeting) ([]*models.Decision, error) {
	query := url.Values{}
	query.Set("org", meeting.CityID)
	query.Set("from_date", meeting.Date.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d", resp.StatusCode)
	}

	var body diavgeiaResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode registry response: %w", err)
	}

	now := time.Now().UTC()
	decisions := make([]*models.Decision, 0, len(body.Decisions))
	for _, d := range body.Decisions {
		if d.Ada == "" {
			continue
		}
		decisions = append(decisions, &models.Decision{
			MeetingID:    meeting.ID,
			Ada:          d.Ada,
			Title:        d.Subject,
			DocumentURL:  d.DocumentURL,
			PublishedAt:  time.UnixMilli(d.IssueDate).UTC(),
			DiscoveredAt: now,
		})
	}

	return decisions, nil
}

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ActivitySummary is one row of the upstream activity-list endpoint
type ActivitySummary struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	SportType   string    `json:"sport_type"`
	StartDate   time.Time `json:"start_date"`
	Distance    float64   `json:"distance"`
	MovingTime  int64     `json:"moving_time"`
	ElapsedTime int64     `json:"elapsed_time"`
}

// ActivityDetail is the full per-activity payload, including route geometry
type ActivityDetail struct {
	ActivitySummary
	Calories     float64 `json:"calories"`
	AvgHeartRate float64 `json:"average_heartrate"`
	Map          struct {
		Polyline        string `json:"polyline"`
		SummaryPolyline string `json:"summary_polyline"`
	} `json:"map"`

	// Raw holds the verbatim response body for the raw_detail column
	Raw json.RawMessage `json:"-"`
}

// UpstreamProvider is the client for the upstream activity API
type UpstreamProvider struct {
	BaseURL string
	Client  *http.Client
}

// NewUpstreamProvider creates an upstream API client
func NewUpstreamProvider(baseURL string) *UpstreamProvider {
	return &UpstreamProvider{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ListActivities fetches one page of the athlete's activity list, newest
// first, bounded by the optional before/after timestamps
func (p *UpstreamProvider) ListActivities(ctx context.Context, accessToken string, before, after *time.Time, perPage int) ([]ActivitySummary, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(perPage))
	if before != nil {
		q.Set("before", strconv.FormatInt(before.Unix(), 10))
	}
	if after != nil {
		q.Set("after", strconv.FormatInt(after.Unix(), 10))
	}

	endpoint := fmt.Sprintf("%s/athlete/activities?%s", p.BaseURL, q.Encode())

	var page []ActivitySummary
	if err := p.doGET(ctx, endpoint, accessToken, &page); err != nil {
		return nil, err
	}
	return page, nil
}

// GetActivity fetches the full detail payload for one activity
func (p *UpstreamProvider) GetActivity(ctx context.Context, accessToken string, activityID int64) (*ActivityDetail, error) {
	endpoint := fmt.Sprintf("%s/activities/%d", p.BaseURL, activityID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building detail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, &TransientAPIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientAPIError{Message: err.Error()}
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		// A missing or private activity is a per-activity problem, not a
		// batch problem.
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
			return nil, &PartialDataError{ActivityID: activityID, Message: resp.Status}
		}
		return nil, err
	}

	var detail ActivityDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, &PartialDataError{ActivityID: activityID, Message: "malformed detail payload: " + err.Error()}
	}
	detail.Raw = json.RawMessage(body)
	return &detail, nil
}

// doGET performs an authenticated GET and decodes the JSON response
func (p *UpstreamProvider) doGET(ctx context.Context, endpoint, accessToken string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.Client.Do(req)
	if err != nil {
		return &TransientAPIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientAPIError{Message: err.Error()}
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// classifyStatus maps upstream status codes onto the error taxonomy
func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return &AuthError{Message: truncateBody(body)}
	case status == http.StatusTooManyRequests || status >= 500:
		return &TransientAPIError{StatusCode: status, Message: truncateBody(body)}
	default:
		return fmt.Errorf("upstream returned status %d: %s", status, truncateBody(body))
	}
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}

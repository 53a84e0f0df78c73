package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"growth-engine/internal/domain"
)

// jsonAPI is the transport used by Client. *apiclient.Client satisfies it.
type jsonAPI interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
	PostJSON(ctx context.Context, path string, in, out any) error
}

type segmentRequest struct {
	Users []domain.UserRecord `json:"users"`
}

type segmentResponse struct {
	Segments map[string][]string `json:"segments"`
}

type churnRequest struct {
	Users []domain.UserRecord `json:"users"`
}

type churnScore struct {
	UserID string  `json:"userId"`
	Risk   float64 `json:"risk"`
}

type churnResponse struct {
	Scores []churnScore `json:"scores"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// Client calls the scoring service that owns segmentation, churn and price
// sensitivity models.
type Client struct {
	api jsonAPI
}

func New(api jsonAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("analytics: api must not be nil")
	}
	return &Client{api: api}, nil
}

// SegmentUsers returns segments that reference the caller's records. Users
// the service assigns but that were not in activity are ignored.
func (c *Client) SegmentUsers(ctx context.Context, activity []domain.UserRecord) (domain.Segments, error) {
	var out segmentResponse
	if err := c.api.PostJSON(ctx, "/v1/segments", segmentRequest{Users: activity}, &out); err != nil {
		return nil, fmt.Errorf("analytics: segment users: %w", err)
	}

	byID := indexUsers(activity)
	segments := make(domain.Segments, len(out.Segments))
	for label, ids := range out.Segments {
		users := make([]domain.UserRecord, 0, len(ids))
		for _, id := range ids {
			if u, ok := byID[id]; ok {
				users = append(users, u)
			}
		}
		segments[label] = users
	}
	return segments, nil
}

// PredictChurn returns one score per input user, in input order. A user the
// service did not score is an error.
func (c *Client) PredictChurn(ctx context.Context, users []domain.UserRecord) ([]domain.ChurnRiskScore, error) {
	if len(users) == 0 {
		return nil, nil
	}
	var out churnResponse
	if err := c.api.PostJSON(ctx, "/v1/churn", churnRequest{Users: users}, &out); err != nil {
		return nil, fmt.Errorf("analytics: predict churn: %w", err)
	}

	risk := make(map[string]float64, len(out.Scores))
	for _, s := range out.Scores {
		risk[s.UserID] = s.Risk
	}
	scores := make([]domain.ChurnRiskScore, 0, len(users))
	for _, u := range users {
		r, ok := risk[u.ID]
		if !ok {
			return nil, fmt.Errorf("analytics: predict churn: no score for user %q", u.ID)
		}
		scores = append(scores, domain.ChurnRiskScore{User: u, Risk: r})
	}
	return scores, nil
}

func (c *Client) AnalyzePriceSensitivity(ctx context.Context, usage domain.UsageData) (domain.SensitivityData, error) {
	var out domain.SensitivityData
	if err := c.api.PostJSON(ctx, "/v1/price-sensitivity", usage, &out); err != nil {
		return domain.SensitivityData{}, fmt.Errorf("analytics: analyze price sensitivity: %w", err)
	}
	return out, nil
}

func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	var out healthResponse
	if err := c.api.GetJSON(ctx, "/v1/health", nil, &out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, nil
	}
	return strings.EqualFold(out.Status, "ok"), nil
}

func indexUsers(users []domain.UserRecord) map[string]domain.UserRecord {
	byID := make(map[string]domain.UserRecord, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID
}

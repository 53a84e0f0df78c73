package signals

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"growth-engine/internal/domain"
)

const defaultInactiveDays = 30

// jsonAPI is the transport used by Client. *apiclient.Client satisfies it.
type jsonAPI interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
	PostJSON(ctx context.Context, path string, in, out any) error
}

type usersResponse struct {
	Users []domain.UserRecord `json:"users"`
}

type campaignRequest struct {
	CampaignID string   `json:"campaignId"`
	TemplateID int      `json:"templateId"`
	Subject    string   `json:"subject"`
	Message    string   `json:"message"`
	UserIDs    []string `json:"userIds"`
}

type emailRequest struct {
	To       string `json:"to"`
	Template string `json:"template"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type metricsResponse struct {
	Metrics domain.Metrics `json:"metrics"`
}

// Client talks to the marketing/engagement provider that owns user activity,
// usage statistics, campaign sends and transactional email.
type Client struct {
	api          jsonAPI
	inactiveDays int
}

type Option func(*Client)

// WithInactiveDays sets how long a user must be idle to count as inactive.
func WithInactiveDays(days int) Option {
	return func(c *Client) {
		if days > 0 {
			c.inactiveDays = days
		}
	}
}

func New(api jsonAPI, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("signals: api must not be nil")
	}
	c := &Client{api: api, inactiveDays: defaultInactiveDays}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) FetchUserActivity(ctx context.Context) ([]domain.UserRecord, error) {
	var out usersResponse
	if err := c.api.GetJSON(ctx, "/v1/users/activity", nil, &out); err != nil {
		return nil, fmt.Errorf("signals: fetch user activity: %w", err)
	}
	return out.Users, nil
}

func (c *Client) FetchInactiveUsers(ctx context.Context) ([]domain.UserRecord, error) {
	q := url.Values{"days": {strconv.Itoa(c.inactiveDays)}}
	var out usersResponse
	if err := c.api.GetJSON(ctx, "/v1/users/inactive", q, &out); err != nil {
		return nil, fmt.Errorf("signals: fetch inactive users: %w", err)
	}
	return out.Users, nil
}

func (c *Client) FetchUsageStats(ctx context.Context) (domain.UsageData, error) {
	var out domain.UsageData
	if err := c.api.GetJSON(ctx, "/v1/usage", nil, &out); err != nil {
		return domain.UsageData{}, fmt.Errorf("signals: fetch usage stats: %w", err)
	}
	return out, nil
}

// TriggerCampaign sends tmpl to every user in one request.
func (c *Client) TriggerCampaign(ctx context.Context, users []domain.UserRecord, tmpl domain.CampaignTemplate) error {
	if len(users) == 0 {
		return errors.New("signals: trigger campaign: no users")
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	req := campaignRequest{
		CampaignID: tmpl.ID,
		TemplateID: tmpl.TemplateID,
		Subject:    tmpl.Subject,
		Message:    tmpl.Body,
		UserIDs:    ids,
	}
	if err := c.api.PostJSON(ctx, "/v1/campaigns", req, nil); err != nil {
		return fmt.Errorf("signals: trigger campaign %s: %w", tmpl.ID, err)
	}
	return nil
}

func (c *Client) SendEmail(ctx context.Context, address, templateKind string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return errors.New("signals: send email: address is required")
	}
	if err := c.api.PostJSON(ctx, "/v1/emails", emailRequest{To: address, Template: templateKind}, nil); err != nil {
		return fmt.Errorf("signals: send email: %w", err)
	}
	return nil
}

// HealthCheck reports whether the provider answers and says it is ok. A
// transport failure is reported as unhealthy rather than as an error, unless
// ctx is done.
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

func (c *Client) FetchMarketingMetrics(ctx context.Context, period string) (domain.Metrics, error) {
	return c.fetchMetrics(ctx, "marketing", period)
}

func (c *Client) FetchRetentionMetrics(ctx context.Context, period string) (domain.Metrics, error) {
	return c.fetchMetrics(ctx, "retention", period)
}

func (c *Client) fetchMetrics(ctx context.Context, kind, period string) (domain.Metrics, error) {
	var out metricsResponse
	if err := c.api.GetJSON(ctx, "/v1/metrics/"+kind, url.Values{"period": {period}}, &out); err != nil {
		return nil, fmt.Errorf("signals: fetch %s metrics: %w", kind, err)
	}
	return out.Metrics, nil
}

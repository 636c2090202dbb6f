package gateway_http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	httpclient "github.com/jagawarga/jagawarga/internal/pkg/http"
	"github.com/jagawarga/jagawarga/internal/pkg/logger"
	"github.com/jagawarga/jagawarga/internal/pkg/models"
	"github.com/jagawarga/jagawarga/services/report"
)

// Client is the HTTP gateway to the report backend.
type Client struct {
	client *httpclient.Client
}

// NewClient creates a report backend client.
func NewClient(baseURL string, timeout time.Duration, token string) *Client {
	return &Client{
		client: httpclient.NewClient(httpclient.Config{
			BaseURL: baseURL,
			Timeout: timeout,
			Token:   token,
		}),
	}
}

// GetUsersWithinRadius submits the volunteer's location and asks the backend
// who is nearby. The backend signals an empty radius with a non-2xx status
// rather than an empty list.
func (c *Client) GetUsersWithinRadius(ctx context.Context, rep models.LocationReport) (*models.ProximityResult, error) {
	resp, err := c.client.Post(ctx, "/api/getUsers", rep)
	if err != nil {
		return nil, fmt.Errorf("radius query failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpclient.Discard(resp)
		logger.Debug("Radius query returned no peers",
			logger.Int("status", resp.StatusCode),
			logger.String("user_id", rep.UserID))
		return nil, report.ErrNoPeersInRange
	}

	var result models.ProximityResult
	if err := httpclient.DecodeJSON(resp, &result); err != nil {
		return nil, fmt.Errorf("radius query failed: %w", err)
	}
	return &result, nil
}

// SaveUser registers the volunteer's starting position with the backend.
func (c *Client) SaveUser(ctx context.Context, rep models.LocationReport) error {
	resp, err := c.client.Post(ctx, "/api/saveUser", rep)
	if err != nil {
		return fmt.Errorf("failed to save initial location: %w", err)
	}
	defer httpclient.Discard(resp)

	if resp.StatusCode != http.StatusCreated {
		return &httpclient.HTTPError{StatusCode: resp.StatusCode, Message: "failed to save initial location"}
	}
	return nil
}

// UpdateCaseActive flips a case's active flag. Not retried on failure: the
// backend does not guarantee idempotency for this moderation action.
func (c *Client) UpdateCaseActive(ctx context.Context, sharedID string, active bool) error {
	body := models.FalseReportRequest{SharedID: sharedID, IsActive: active}
	resp, err := c.client.Patch(ctx, "/api/updateIsActive", body)
	if err != nil {
		return fmt.Errorf("failed to update case %s: %w", sharedID, err)
	}
	defer httpclient.Discard(resp)

	if resp.StatusCode != http.StatusOK {
		return &httpclient.HTTPError{StatusCode: resp.StatusCode, Message: "failed to update case active flag"}
	}
	return nil
}

package external

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"powerwatch/internal/schedule"
	"powerwatch/internal/types"
)

// browserUserAgent is sent to the schedule API, which rejects unknown agents.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// YasnoConfig locates the planned-outages endpoint.
type YasnoConfig struct {
	BaseURL string
	Region  string
	DSO     string
	Clock   types.Clock
}

// YasnoClient fetches the published outage schedule.
type YasnoClient struct {
	*BaseClient
	url   string
	clock types.Clock
}

// NewYasnoClient creates a YasnoClient.
func NewYasnoClient(base *BaseClient, cfg YasnoConfig) *YasnoClient {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	return &YasnoClient{
		BaseClient: base,
		url: fmt.Sprintf("%s/api/blackout-service/public/shutdowns/regions/%s/dsos/%s/planned-outages",
			strings.TrimRight(cfg.BaseURL, "/"), cfg.Region, cfg.DSO),
		clock: cfg.Clock,
	}
}

// NewYasnoBaseClient returns the transport used for schedule fetches: one
// retry, a breaker, and the browser user agent.
func NewYasnoBaseClient(timeout time.Duration) *BaseClient {
	return NewBaseClient(
		&http.Client{Timeout: timeout},
		RetryPolicy{MaxRetries: 1, MinWait: 500 * time.Millisecond, MaxWait: 2 * time.Second},
		browserUserAgent,
		WithBreaker("yasno", 5, 60*time.Second),
	)
}

// Fetch retrieves the schedule for group. Failures are fetch_* errors.
func (c *YasnoClient) Fetch(ctx context.Context, group string) (*types.ScheduleDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build schedule request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeFetchUnavailable, "schedule service unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodeFetchUnavailable,
			fmt.Sprintf("schedule service returned %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeFetchUnavailable, "failed to read schedule response", err)
	}
	return schedule.ParseDocument(body, group, c.clock.Now())
}

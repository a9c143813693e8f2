package entitlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// LedgerConfig configures the live ledger client.
type LedgerConfig struct {
	// BaseURL is the ledger service endpoint.
	BaseURL string

	// AdminToken authenticates this service to the ledger.
	AdminToken string

	// Timeout bounds each round trip. Defaults to 15s.
	Timeout time.Duration
}

// LedgerClient implements Gateway against the user-info ledger's HTTP API.
type LedgerClient struct {
	httpClient *http.Client
	baseURL    string
	adminToken string
}

// Compile-time check that LedgerClient implements Gateway.
var _ Gateway = (*LedgerClient)(nil)

// NewLedgerClient creates a live ledger client.
func NewLedgerClient(cfg LedgerConfig) (*LedgerClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("entitlement: base URL is required")
	}
	if cfg.AdminToken == "" {
		return nil, fmt.Errorf("entitlement: admin token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &LedgerClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		adminToken: cfg.AdminToken,
	}, nil
}

// Grant sets the user's plan.
func (c *LedgerClient) Grant(ctx context.Context, accountID string, plan Plan) error {
	return c.setPlan(ctx, accountID, plan)
}

// Revoke resets the user's plan to free.
func (c *LedgerClient) Revoke(ctx context.Context, accountID string) error {
	return c.setPlan(ctx, accountID, FreePlan())
}

func (c *LedgerClient) setPlan(ctx context.Context, accountID string, plan Plan) error {
	body, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("%w: failed to encode plan: %v", ErrServiceAccess, err)
	}

	endpoint := fmt.Sprintf("%s/v1/users/%s/subscription-plan", c.baseURL, url.PathEscape(accountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to build request: %v", ErrServiceAccess, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.adminToken)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceAccess, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("%w: ledger returned status %d: %s", ErrServiceAccess, res.StatusCode, msg)
	}

	return nil
}

package playstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultBaseURL = "https://androidpublisher.googleapis.com"

	// Scope required for the Android Publisher API.
	publisherScope = "https://www.googleapis.com/auth/androidpublisher"
)

// GoogleConfig configures the live Android Publisher client.
type GoogleConfig struct {
	// ServiceAccountJSON is the raw service account key.
	ServiceAccountJSON string

	// Timeout bounds each API round trip. Defaults to 15s.
	Timeout time.Duration

	// BaseURL overrides the API endpoint. Tests only.
	BaseURL string
}

// GoogleClient implements Client against the Android Publisher REST API.
// OAuth token acquisition is cached and refreshed by the underlying token
// source; a fresh token is only minted when the cached one expires.
type GoogleClient struct {
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	baseURL     string
}

// Compile-time check that GoogleClient implements Client.
var _ Client = (*GoogleClient)(nil)

// NewGoogleClient creates a live client from a service account key.
func NewGoogleClient(cfg GoogleConfig) (*GoogleClient, error) {
	if cfg.ServiceAccountJSON == "" {
		return nil, fmt.Errorf("playstore: service account JSON is required")
	}

	jwtCfg, err := google.JWTConfigFromJSON([]byte(cfg.ServiceAccountJSON), publisherScope)
	if err != nil {
		return nil, fmt.Errorf("playstore: failed to parse service account JSON: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &GoogleClient{
		httpClient: &http.Client{Timeout: timeout},
		// JWTConfig token sources cache the current token and re-mint
		// only on expiry.
		tokenSource: jwtCfg.TokenSource(context.Background()),
		baseURL:     baseURL,
	}, nil
}

// FetchSubscription retrieves the subscriptionsv2 purchase resource.
func (c *GoogleClient) FetchSubscription(ctx context.Context, packageName, purchaseToken string) (*SubscriptionDetail, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.subscriptionURL(packageName, purchaseToken))
	if err != nil {
		return nil, err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, apiError("fetch", res)
	}

	var detail SubscriptionDetail
	if err := json.NewDecoder(res.Body).Decode(&detail); err != nil {
		return nil, fmt.Errorf("%w: failed to parse subscription detail: %v", ErrRejected, err)
	}

	return &detail, nil
}

// Acknowledge confirms processing of the purchase. Callers check the fetched
// acknowledgement state first and skip this call when already acknowledged.
func (c *GoogleClient) Acknowledge(ctx context.Context, packageName, purchaseToken string) error {
	req, err := c.newRequest(ctx, http.MethodPost, c.subscriptionURL(packageName, purchaseToken)+":acknowledge")
	if err != nil {
		return err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return apiError("acknowledge", res)
	}

	return nil
}

func (c *GoogleClient) subscriptionURL(packageName, purchaseToken string) string {
	return fmt.Sprintf("%s/androidpublisher/v3/applications/%s/purchases/subscriptionsv2/tokens/%s",
		c.baseURL, url.PathEscape(packageName), url.PathEscape(purchaseToken))
}

func (c *GoogleClient) newRequest(ctx context.Context, method, endpoint string) (*http.Request, error) {
	token, err := c.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("playstore: failed to build request: %w", err)
	}
	token.SetAuthHeader(req)

	return req, nil
}

func apiError(operation string, res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return &APIError{
		Operation:  operation,
		StatusCode: res.StatusCode,
		Body:       string(body),
	}
}

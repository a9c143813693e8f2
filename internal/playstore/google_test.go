package playstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// testGoogleClient builds a client pointed at a test server, with a static
// token instead of a real service account.
func testGoogleClient(serverURL string) *GoogleClient {
	return &GoogleClient{
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		tokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
		baseURL:     serverURL,
	}
}

func TestGoogleClient_FetchSubscription(t *testing.T) {
	expiry := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/androidpublisher/v3/applications/com.example.app/purchases/subscriptionsv2/tokens/token-abc", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		// Body matches the documented subscriptionsv2 resource shape,
		// autoRenewingPlan being an object rather than a flag.
		fmt.Fprint(w, `{
			"kind": "androidpublisher#subscriptionPurchaseV2",
			"subscriptionState": "SUBSCRIPTION_STATE_ACTIVE",
			"acknowledgementState": "ACKNOWLEDGEMENT_STATE_PENDING",
			"lineItems": [
				{
					"productId": "premium_plan",
					"expiryTime": "2026-09-01T12:00:00Z",
					"autoRenewingPlan": {"autoRenewEnabled": true}
				}
			]
		}`)
	}))
	defer server.Close()

	client := testGoogleClient(server.URL)
	detail, err := client.FetchSubscription(context.Background(), "com.example.app", "token-abc")
	require.NoError(t, err)

	assert.Equal(t, StateActive, detail.SubscriptionState)
	require.Len(t, detail.LineItems, 1)
	assert.Equal(t, "premium_plan", detail.LineItems[0].ProductID)
	assert.True(t, detail.LineItems[0].ExpiryTime.Equal(expiry))
	assert.True(t, detail.LineItems[0].AutoRenewing())
}

func TestGoogleClient_FetchSubscription_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"The purchase token was not found."}}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := testGoogleClient(server.URL)
	_, err := client.FetchSubscription(context.Background(), "com.example.app", "bogus")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "fetch", apiErr.Operation)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestGoogleClient_FetchSubscription_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client := testGoogleClient(server.URL)
	_, err := client.FetchSubscription(context.Background(), "com.example.app", "token-abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestGoogleClient_Acknowledge(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := testGoogleClient(server.URL)
	err := client.Acknowledge(context.Background(), "com.example.app", "token-abc")
	require.NoError(t, err)
	assert.Equal(t, "/androidpublisher/v3/applications/com.example.app/purchases/subscriptionsv2/tokens/token-abc:acknowledge", gotPath)
}

func TestGoogleClient_Acknowledge_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "already acknowledged", http.StatusConflict)
	}))
	defer server.Close()

	client := testGoogleClient(server.URL)
	err := client.Acknowledge(context.Background(), "com.example.app", "token-abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
}

func TestNewGoogleClient_RequiresServiceAccount(t *testing.T) {
	_, err := NewGoogleClient(GoogleConfig{})
	require.Error(t, err)
}

package playstore

import (
	"context"
	"fmt"
	"time"
)

// MockClient is a deterministic in-memory Client for tests and local
// development. By default it reports an active, unacknowledged subscription
// with a single line item named after the token's package.
type MockClient struct {
	// FetchSubscriptionFunc allows customizing fetch behavior
	FetchSubscriptionFunc func(ctx context.Context, packageName, purchaseToken string) (*SubscriptionDetail, error)

	// AcknowledgeFunc allows customizing acknowledge behavior
	AcknowledgeFunc func(ctx context.Context, packageName, purchaseToken string) error

	// DefaultProductID is the product id used for the default line item.
	DefaultProductID string

	// CallLog tracks method calls for test assertions
	CallLog []string
}

// Compile-time check that MockClient implements Client.
var _ Client = (*MockClient)(nil)

// NewMockClient creates a new mock Android Publisher client.
func NewMockClient(defaultProductID string) *MockClient {
	return &MockClient{
		DefaultProductID: defaultProductID,
		CallLog:          []string{},
	}
}

// FetchSubscription returns a canned active subscription detail.
func (m *MockClient) FetchSubscription(ctx context.Context, packageName, purchaseToken string) (*SubscriptionDetail, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("FetchSubscription(%s, %s)", packageName, purchaseToken))

	if m.FetchSubscriptionFunc != nil {
		return m.FetchSubscriptionFunc(ctx, packageName, purchaseToken)
	}

	return &SubscriptionDetail{
		Kind:                 "androidpublisher#subscriptionPurchaseV2",
		StartTime:            time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339),
		RegionCode:           "US",
		SubscriptionState:    StateActive,
		LatestOrderID:        "GPA.0000-0000-0000-00000",
		AcknowledgementState: AcknowledgementStatePending,
		ExternalAccount: &ExternalAccountIdentifiers{
			ObfuscatedExternalAccountID: "mock-account",
		},
		LineItems: []LineItem{
			{
				ProductID:        m.DefaultProductID,
				ExpiryTime:       time.Now().UTC().Add(30 * 24 * time.Hour),
				AutoRenewingPlan: &AutoRenewingPlan{AutoRenewEnabled: true},
			},
		},
	}, nil
}

// Acknowledge records the call and succeeds.
func (m *MockClient) Acknowledge(ctx context.Context, packageName, purchaseToken string) error {
	m.CallLog = append(m.CallLog, fmt.Sprintf("Acknowledge(%s, %s)", packageName, purchaseToken))

	if m.AcknowledgeFunc != nil {
		return m.AcknowledgeFunc(ctx, packageName, purchaseToken)
	}

	return nil
}

// Reset clears the call log.
func (m *MockClient) Reset() {
	m.CallLog = []string{}
}

package playstore

import (
	"context"
	"time"
)

// Client defines the interface for the Google Play Android Publisher API.
// Implementations: GoogleClient (live REST) and MockClient (deterministic,
// in-memory). Selected via configuration, never conditional compilation.
type Client interface {
	// FetchSubscription retrieves the authoritative subscription detail
	// for a purchase token. The returned detail is the only trusted source
	// of subscription state; notification payloads are just triggers.
	FetchSubscription(ctx context.Context, packageName, purchaseToken string) (*SubscriptionDetail, error)

	// Acknowledge confirms processing of a purchase with Google Play.
	// Idempotent from the caller's perspective: callers skip the call when
	// the fetched detail already reports the purchase as acknowledged.
	Acknowledge(ctx context.Context, packageName, purchaseToken string) error
}

// Subscription states returned by the subscriptionsv2 resource.
const (
	StateActive        = "SUBSCRIPTION_STATE_ACTIVE"
	StateCanceled      = "SUBSCRIPTION_STATE_CANCELED"
	StateInGracePeriod = "SUBSCRIPTION_STATE_IN_GRACE_PERIOD"
	StateOnHold        = "SUBSCRIPTION_STATE_ON_HOLD"
	StatePaused        = "SUBSCRIPTION_STATE_PAUSED"
	StateExpired       = "SUBSCRIPTION_STATE_EXPIRED"
)

// Acknowledgement states returned by the subscriptionsv2 resource.
const (
	AcknowledgementStatePending      = "ACKNOWLEDGEMENT_STATE_PENDING"
	AcknowledgementStateAcknowledged = "ACKNOWLEDGEMENT_STATE_ACKNOWLEDGED"
)

// SubscriptionDetail is the subset of the subscriptionsv2 purchase resource
// the reconciliation engine consumes.
type SubscriptionDetail struct {
	Kind                 string                      `json:"kind"`
	StartTime            string                      `json:"startTime,omitempty"`
	RegionCode           string                      `json:"regionCode,omitempty"`
	SubscriptionState    string                      `json:"subscriptionState"`
	LatestOrderID        string                      `json:"latestOrderId,omitempty"`
	AcknowledgementState string                      `json:"acknowledgementState"`
	LineItems            []LineItem                  `json:"lineItems"`
	LinkedPurchaseToken  string                      `json:"linkedPurchaseToken,omitempty"`
	ExternalAccount      *ExternalAccountIdentifiers `json:"externalAccountIdentifiers,omitempty"`
}

// LineItem is one product entry within a subscription, carrying its own
// expiry and plan type.
type LineItem struct {
	ProductID        string            `json:"productId"`
	ExpiryTime       time.Time         `json:"expiryTime"`
	AutoRenewingPlan *AutoRenewingPlan `json:"autoRenewingPlan,omitempty"`
}

// AutoRenewingPlan is present on a line item when the product renews
// automatically; prepaid line items omit it.
type AutoRenewingPlan struct {
	AutoRenewEnabled bool `json:"autoRenewEnabled,omitempty"`
}

// AutoRenewing reports whether the line item renews automatically.
func (li *LineItem) AutoRenewing() bool {
	return li.AutoRenewingPlan != nil && li.AutoRenewingPlan.AutoRenewEnabled
}

// ExternalAccountIdentifiers carries the developer-supplied account
// identifiers attached to the purchase. ObfuscatedExternalAccountID is the
// authoritative identity for entitlement calls.
type ExternalAccountIdentifiers struct {
	ExternalAccountID           string `json:"externalAccountId,omitempty"`
	ObfuscatedExternalAccountID string `json:"obfuscatedExternalAccountId,omitempty"`
	ObfuscatedExternalProfileID string `json:"obfuscatedExternalProfileId,omitempty"`
}

// AccountID returns the identity entitlement calls should target, or ""
// when the purchase carries no usable identifier.
func (d *SubscriptionDetail) AccountID() string {
	if d.ExternalAccount == nil {
		return ""
	}
	if id := d.ExternalAccount.ObfuscatedExternalAccountID; id != "" {
		return id
	}
	return d.ExternalAccount.ExternalAccountID
}

// Acknowledged reports whether the purchase no longer needs an acknowledge call.
func (d *SubscriptionDetail) Acknowledged() bool {
	return d.AcknowledgementState != AcknowledgementStatePending
}

// LineItem returns the line item for productID, or nil when the product is
// not part of this subscription.
func (d *SubscriptionDetail) LineItem(productID string) *LineItem {
	for i := range d.LineItems {
		if d.LineItems[i].ProductID == productID {
			return &d.LineItems[i]
		}
	}
	return nil
}

// LatestExpiry returns the furthest line-item expiry, used when a
// notification does not pin a specific product. Zero when there are no
// line items.
func (d *SubscriptionDetail) LatestExpiry() time.Time {
	var latest time.Time
	for _, item := range d.LineItems {
		if item.ExpiryTime.After(latest) {
			latest = item.ExpiryTime
		}
	}
	return latest
}

// Decision is the transition derived from a subscription state.
type Decision int

const (
	// DecisionProceed: grant or maintain access.
	DecisionProceed Decision = iota
	// DecisionNoAction: access persists until natural expiry (canceled).
	DecisionNoAction
	// DecisionSuspend: accepted but not granted (on hold, paused).
	DecisionSuspend
	// DecisionRevoke: revoke access.
	DecisionRevoke
	// DecisionInvalid: unrecognized state, reject.
	DecisionInvalid
)

// Decide maps a provider subscription state to a transition decision.
// Used by both the verification and notification paths.
func Decide(state string) Decision {
	switch state {
	case StateActive, StateInGracePeriod:
		return DecisionProceed
	case StateCanceled:
		return DecisionNoAction
	case StateOnHold, StatePaused:
		return DecisionSuspend
	case StateExpired:
		return DecisionRevoke
	default:
		return DecisionInvalid
	}
}

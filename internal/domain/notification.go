package domain

// Real-time developer notification (RTDN) types, as delivered by Google
// Play through a Pub/Sub push subscription. The push body wraps a base64
// encoded DeveloperNotification; the notification itself is only a trigger
// to re-fetch authoritative subscription state, never a source of truth.

// PubsubEnvelope is the Pub/Sub push transport envelope.
type PubsubEnvelope struct {
	Message      PubsubMessage `json:"message"`
	Subscription string        `json:"subscription"`
}

// PubsubMessage carries the base64-encoded notification payload.
type PubsubMessage struct {
	Data        string `json:"data"`
	MessageID   string `json:"messageId"`
	PublishTime string `json:"publishTime"`
}

// DeveloperNotification is the decoded RTDN payload. Exactly one of the
// three notification fields is set.
type DeveloperNotification struct {
	Version                    string                      `json:"version"`
	PackageName                string                      `json:"packageName"`
	EventTimeMillis            string                      `json:"eventTimeMillis"`
	SubscriptionNotification   *SubscriptionNotification   `json:"subscriptionNotification,omitempty"`
	OneTimeProductNotification *OneTimeProductNotification `json:"oneTimeProductNotification,omitempty"`
	TestNotification           *TestNotification           `json:"testNotification,omitempty"`
}

// SubscriptionNotification describes a subscription lifecycle event.
type SubscriptionNotification struct {
	Version          string `json:"version"`
	NotificationType int    `json:"notificationType"`
	PurchaseToken    string `json:"purchaseToken"`
	SubscriptionID   string `json:"subscriptionId"`
}

// OneTimeProductNotification describes a one-time product event.
type OneTimeProductNotification struct {
	Version          string `json:"version"`
	NotificationType int    `json:"notificationType"`
	PurchaseToken    string `json:"purchaseToken"`
	SKU              string `json:"sku"`
}

// TestNotification is sent from the Play Console to verify the endpoint.
type TestNotification struct {
	Version string `json:"version"`
}

// Subscription notification types.
// https://developer.android.com/google/play/billing/rtdn-reference
const (
	SubscriptionRecovered            = 1
	SubscriptionRenewed              = 2
	SubscriptionCanceled             = 3
	SubscriptionPurchased            = 4
	SubscriptionOnHold               = 5
	SubscriptionInGracePeriod        = 6
	SubscriptionRestarted            = 7
	SubscriptionPriceChangeConfirmed = 8
	SubscriptionDeferred             = 9
	SubscriptionPaused               = 10
	SubscriptionPauseScheduleChanged = 11
	SubscriptionRevoked              = 12
	SubscriptionExpired              = 13
)

// One-time product notification types.
const (
	OneTimeProductPurchased = 1
	OneTimeProductCanceled  = 2
)

// SubscriptionNotificationName returns a stable label for logging and
// metrics; unknown values are reported as "unknown".
func SubscriptionNotificationName(notificationType int) string {
	switch notificationType {
	case SubscriptionRecovered:
		return "recovered"
	case SubscriptionRenewed:
		return "renewed"
	case SubscriptionCanceled:
		return "canceled"
	case SubscriptionPurchased:
		return "purchased"
	case SubscriptionOnHold:
		return "on_hold"
	case SubscriptionInGracePeriod:
		return "in_grace_period"
	case SubscriptionRestarted:
		return "restarted"
	case SubscriptionPriceChangeConfirmed:
		return "price_change_confirmed"
	case SubscriptionDeferred:
		return "deferred"
	case SubscriptionPaused:
		return "paused"
	case SubscriptionPauseScheduleChanged:
		return "pause_schedule_changed"
	case SubscriptionRevoked:
		return "revoked"
	case SubscriptionExpired:
		return "expired"
	default:
		return "unknown"
	}
}

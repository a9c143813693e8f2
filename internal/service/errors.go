package service

import (
	"github.com/dukerupert/heimdall/internal/domain"
)

// Token ownership errors - use domain.ECONFLICT
var (
	ErrTokenAlreadyUsed = domain.Conflict("", "Purchase token already used by a different user")
)

// Subscription state errors. On-hold and paused are soft accepts: the
// request was understood but no entitlement was granted.
var (
	ErrSubscriptionCanceled         = domain.Invalid("", "Subscription has been canceled")
	ErrSubscriptionExpired          = domain.Invalid("", "Subscription has expired")
	ErrSubscriptionOnHold           = domain.Accepted("", "Subscription is on hold")
	ErrSubscriptionPaused           = domain.Accepted("", "Subscription is paused by user")
	ErrSubscriptionInvalidState     = domain.Invalid("", "Unknown or invalid subscription state")
	ErrSubscriptionInvalidLineItems = domain.Invalid("", "Subscription has no line item for the requested product")
	ErrExternalAccountMissing       = domain.Invalid("", "External account identifiers are missing")
)

// Notification path errors - a failed notification makes the webhook
// request re-deliverable
var (
	ErrRenewalForUnknownToken = domain.Errorf(domain.ENOTFOUND, "", "Renewal received for an unknown purchase token")
	ErrRevokeForUnknownToken  = domain.Errorf(domain.ENOTFOUND, "", "Revocation received for an unknown purchase token")
)

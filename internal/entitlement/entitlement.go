// Package entitlement talks to the external user-info ledger that
// materializes subscription plans. Grant and revoke both issue "set plan"
// calls, so re-running either converges on the same ledger state.
package entitlement

import (
	"context"
	"errors"
)

// ProCreditAllotment is the number of credits granted with the pro plan.
const ProCreditAllotment = 500

// ErrServiceAccess is returned when the ledger call fails for any reason.
// A failed grant or revoke fails the whole reconciliation; the local record
// is deliberately written after this call so a retry can re-drive it.
var ErrServiceAccess = errors.New("entitlement: service access failed")

// PlanName identifies a subscription plan on the ledger.
type PlanName string

const (
	PlanFree PlanName = "free"
	PlanPro  PlanName = "pro"
)

// Plan is the plan descriptor sent to the ledger.
type Plan struct {
	Name PlanName `json:"plan"`

	// CreditsAlloted and CreditsLeft are only meaningful for the pro plan.
	CreditsAlloted int64 `json:"total_credits_alloted,omitempty"`
	CreditsLeft    int64 `json:"free_credits_left,omitempty"`
}

// ProPlan returns the pro plan with the standard credit allotment.
func ProPlan() Plan {
	return Plan{
		Name:           PlanPro,
		CreditsAlloted: ProCreditAllotment,
		CreditsLeft:    ProCreditAllotment,
	}
}

// FreePlan returns the free plan descriptor.
func FreePlan() Plan {
	return Plan{Name: PlanFree}
}

// Gateway grants or revokes a named entitlement plan for a user identity.
// Both calls are idempotent per call: "set plan to X", never "add credits".
type Gateway interface {
	// Grant sets the user's plan on the ledger.
	Grant(ctx context.Context, accountID string, plan Plan) error

	// Revoke resets the user's plan to free.
	Revoke(ctx context.Context, accountID string) error
}

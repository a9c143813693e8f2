package entitlement

import (
	"context"
	"fmt"
	"sync"
)

// MockGateway is a deterministic in-memory Gateway for tests and local
// development. It records the last plan set per account.
type MockGateway struct {
	// GrantFunc allows customizing grant behavior
	GrantFunc func(ctx context.Context, accountID string, plan Plan) error

	// RevokeFunc allows customizing revoke behavior
	RevokeFunc func(ctx context.Context, accountID string) error

	mu sync.Mutex

	// Plans stores the current plan per account id
	Plans map[string]Plan

	// CallLog tracks method calls for test assertions
	CallLog []string
}

// Compile-time check that MockGateway implements Gateway.
var _ Gateway = (*MockGateway)(nil)

// NewMockGateway creates a new mock entitlement gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Plans:   make(map[string]Plan),
		CallLog: []string{},
	}
}

// Grant records the plan for the account.
func (m *MockGateway) Grant(ctx context.Context, accountID string, plan Plan) error {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("Grant(%s, %s)", accountID, plan.Name))
	m.mu.Unlock()

	if m.GrantFunc != nil {
		return m.GrantFunc(ctx, accountID, plan)
	}

	m.mu.Lock()
	m.Plans[accountID] = plan
	m.mu.Unlock()
	return nil
}

// Revoke resets the account to the free plan.
func (m *MockGateway) Revoke(ctx context.Context, accountID string) error {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("Revoke(%s)", accountID))
	m.mu.Unlock()

	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, accountID)
	}

	m.mu.Lock()
	m.Plans[accountID] = FreePlan()
	m.mu.Unlock()
	return nil
}

// GrantCount returns how many Grant calls were made.
func (m *MockGateway) GrantCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, call := range m.CallLog {
		if len(call) >= 5 && call[:5] == "Grant" {
			n++
		}
	}
	return n
}

package interfaces

import (
	"context"

	"github.com/sheikh-saqib/gym-payments-ledger/internal/billing"
)

// MemberRef is the ownership of a member as the ledger sees it.
type MemberRef struct {
	ID       string
	TenantID string
	BranchID string
}

// TenantDirectory answers ownership and billing questions about records the
// ledger does not own (tenants, branches and members are managed elsewhere).
// Unknown IDs return storage.ErrNotFound.
type TenantDirectory interface {
	BillingStatus(ctx context.Context, tenantID string) (billing.Status, error)
	BranchTenant(ctx context.Context, branchID string) (string, error)
	Member(ctx context.Context, memberID string) (MemberRef, error)
}

package postgres

import (
	"context"
	"database/sql"

	"github.com/sheikh-saqib/gym-payments-ledger/internal/billing"
	interfaces "github.com/sheikh-saqib/gym-payments-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/storage"
)

// Directory reads tenant, branch and member ownership from the tables the
// CRUD side of the system maintains.
type Directory struct {
	db *sql.DB
}

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) BillingStatus(ctx context.Context, tenantID string) (billing.Status, error) {
	var status string
	err := d.db.QueryRowContext(ctx, `SELECT billing_status FROM tenants WHERE id = $1`, tenantID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return billing.Status(status), nil
}

func (d *Directory) BranchTenant(ctx context.Context, branchID string) (string, error) {
	var tenantID string
	err := d.db.QueryRowContext(ctx, `SELECT tenant_id FROM branches WHERE id = $1`, branchID).Scan(&tenantID)
	if err == sql.ErrNoRows {
		return "", storage.ErrNotFound
	}
	return tenantID, err
}

func (d *Directory) Member(ctx context.Context, memberID string) (interfaces.MemberRef, error) {
	member := interfaces.MemberRef{ID: memberID}
	err := d.db.QueryRowContext(ctx, `SELECT tenant_id, branch_id FROM members WHERE id = $1`, memberID).
		Scan(&member.TenantID, &member.BranchID)
	if err == sql.ErrNoRows {
		return interfaces.MemberRef{}, storage.ErrNotFound
	}
	if err != nil {
		return interfaces.MemberRef{}, err
	}
	return member, nil
}

var _ interfaces.TenantDirectory = (*Directory)(nil)

package interfaces

import (
	"context"
	"time"

	"github.com/sheikh-saqib/gym-payments-ledger/internal/models"
)

// PaymentStore is the durable, tenant-partitioned ledger table.
// Reads that miss return storage.ErrNotFound.
type PaymentStore interface {
	CreatePayment(ctx context.Context, payment models.Payment) error
	GetPayment(ctx context.Context, id string) (models.Payment, error)
	ListPayments(ctx context.Context, tenantID string, filter models.PaymentFilter) ([]models.Payment, int, error)
	RevenueSource

	// WithTx runs fn inside one atomic transaction. If fn returns an error
	// nothing it wrote is kept.
	WithTx(ctx context.Context, fn func(tx PaymentTx) error) error
}

// PaymentTx is the set of operations allowed inside WithTx.
type PaymentTx interface {
	// GetPaymentForUpdate reads a row and holds it against concurrent
	// writers until the transaction ends.
	GetPaymentForUpdate(ctx context.Context, id string) (models.Payment, error)
	// MarkCorrected flips is_corrected on a row that still has the given
	// version and has not been corrected; otherwise storage.ErrConflict.
	MarkCorrected(ctx context.Context, id string, version int, at time.Time) error
	// CreatePayment inserts a row. A second row pointing at the same
	// corrected payment is rejected with storage.ErrConflict.
	CreatePayment(ctx context.Context, payment models.Payment) error
}

// RevenueSource yields the (paidOn, amount) pairs a revenue report sums.
type RevenueSource interface {
	ListRevenueRows(ctx context.Context, tenantID string, filter models.RevenueFilter) ([]models.RevenueRow, error)
}

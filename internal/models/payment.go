package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is the closed set of ways a member can pay.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodCreditCard   PaymentMethod = "CREDIT_CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCheck        PaymentMethod = "CHECK"
	MethodOther        PaymentMethod = "OTHER"
)

// PaymentMethods lists every recognised method in display order.
var PaymentMethods = []PaymentMethod{MethodCash, MethodCreditCard, MethodBankTransfer, MethodCheck, MethodOther}

func (m PaymentMethod) Valid() bool {
	for _, known := range PaymentMethods {
		if m == known {
			return true
		}
	}
	return false
}

// Payment is one row of the ledger. Rows are never deleted; a correction
// inserts a new row pointing back at the one it supersedes.
type Payment struct {
	ID                 string          `json:"id"`
	TenantID           string          `json:"tenantId"`
	BranchID           string          `json:"branchId"`
	MemberID           string          `json:"memberId"`
	Amount             decimal.Decimal `json:"amount"`
	PaidOn             Date            `json:"paidOn"`
	PaymentMethod      PaymentMethod   `json:"paymentMethod"`
	Note               *string         `json:"note,omitempty"`
	IsCorrection       bool            `json:"isCorrection"`
	CorrectedPaymentID *string         `json:"correctedPaymentId,omitempty"`
	IsCorrected        bool            `json:"isCorrected"`
	Version            int             `json:"version"`
	CreatedBy          string          `json:"createdBy"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// PaymentFilter narrows a tenant's payments for listing.
// Zero values mean "no constraint".
type PaymentFilter struct {
	MemberID      string
	BranchID      string
	PaymentMethod PaymentMethod
	StartDate     Date
	EndDate       Date

	// IncludeCorrections returns superseded originals alongside their
	// replacements; by default only rows that are still current are listed.
	IncludeCorrections bool
	Offset             int
	Limit              int
}

// RevenueFilter selects the rows that feed a revenue report.
type RevenueFilter struct {
	StartDate         Date
	EndDate           Date
	BranchID          string
	PaymentMethod     PaymentMethod
	IncludeSuperseded bool
}

// RevenueRow is the projection of a payment the aggregator needs.
type RevenueRow struct {
	PaidOn Date
	Amount decimal.Decimal
}

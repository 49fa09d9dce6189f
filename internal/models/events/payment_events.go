package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicPaymentRecorded  = "payment_recorded"
	TopicPaymentCorrected = "payment_corrected"
)

type PaymentRecorded struct {
	PaymentID     string          `json:"payment_id"`
	TenantID      string          `json:"tenant_id"`
	BranchID      string          `json:"branch_id"`
	MemberID      string          `json:"member_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaidOn        string          `json:"paid_on"`
	PaymentMethod string          `json:"payment_method"`
	RecordedBy    string          `json:"recorded_by"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

type PaymentCorrected struct {
	PaymentID          string          `json:"payment_id"`
	CorrectedPaymentID string          `json:"corrected_payment_id"`
	TenantID           string          `json:"tenant_id"`
	PreviousAmount     decimal.Decimal `json:"previous_amount"`
	Amount             decimal.Decimal `json:"amount"`
	CorrectedBy        string          `json:"corrected_by"`
	OccurredAt         time.Time       `json:"occurred_at"`
}

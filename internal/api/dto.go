package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/gym-payments-ledger/internal/ledger"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/models"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/revenue"
)

type createPaymentRequest struct {
	MemberID      string          `json:"memberId" validate:"required"`
	BranchID      string          `json:"branchId"`
	Amount        decimal.Decimal `json:"amount"`
	PaidOn        models.Date     `json:"paidOn"`
	PaymentMethod string          `json:"paymentMethod" validate:"required,oneof=CASH CREDIT_CARD BANK_TRANSFER CHECK OTHER"`
	Note          *string         `json:"note" validate:"omitempty,max=500"`
}

type paymentChangesRequest struct {
	Amount        *decimal.Decimal `json:"amount"`
	PaidOn        *models.Date     `json:"paidOn"`
	PaymentMethod *string          `json:"paymentMethod" validate:"omitempty,oneof=CASH CREDIT_CARD BANK_TRANSFER CHECK OTHER"`
	Note          *string          `json:"note" validate:"omitempty,max=500"`
}

type correctPaymentRequest struct {
	Changes paymentChangesRequest `json:"changes"`
	Version *int                  `json:"version" validate:"required,gte=0"`
}

func (c paymentChangesRequest) toChanges() ledger.PaymentChanges {
	changes := ledger.PaymentChanges{
		Amount: c.Amount,
		PaidOn: c.PaidOn,
		Note:   c.Note,
	}
	if c.PaymentMethod != nil {
		method := models.PaymentMethod(*c.PaymentMethod)
		changes.PaymentMethod = &method
	}
	return changes
}

type paymentResponse struct {
	ID                 string               `json:"id"`
	TenantID           string               `json:"tenantId"`
	BranchID           string               `json:"branchId"`
	MemberID           string               `json:"memberId"`
	Amount             string               `json:"amount"`
	PaidOn             models.Date          `json:"paidOn"`
	PaymentMethod      models.PaymentMethod `json:"paymentMethod"`
	Note               *string              `json:"note"`
	IsCorrection       bool                 `json:"isCorrection"`
	CorrectedPaymentID *string              `json:"correctedPaymentId"`
	IsCorrected        bool                 `json:"isCorrected"`
	Version            int                  `json:"version"`
	CreatedBy          string               `json:"createdBy"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

func toPaymentResponse(p models.Payment) paymentResponse {
	return paymentResponse{
		ID:                 p.ID,
		TenantID:           p.TenantID,
		BranchID:           p.BranchID,
		MemberID:           p.MemberID,
		Amount:             p.Amount.StringFixed(2),
		PaidOn:             p.PaidOn,
		PaymentMethod:      p.PaymentMethod,
		Note:               p.Note,
		IsCorrection:       p.IsCorrection,
		CorrectedPaymentID: p.CorrectedPaymentID,
		IsCorrected:        p.IsCorrected,
		Version:            p.Version,
		CreatedBy:          p.CreatedBy,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func toPaymentResponses(payments []models.Payment) []paymentResponse {
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	return out
}

type bucketResponse struct {
	PeriodKey    string `json:"periodKey"`
	RevenueSum   string `json:"revenueSum"`
	PaymentCount int    `json:"paymentCount"`
}

type revenueResponse struct {
	StartDate    models.Date      `json:"startDate"`
	EndDate      models.Date      `json:"endDate"`
	GroupBy      revenue.GroupBy  `json:"groupBy"`
	TotalRevenue string           `json:"totalRevenue"`
	PaymentCount int              `json:"paymentCount"`
	Breakdown    []bucketResponse `json:"breakdown"`
}

func toRevenueResponse(r revenue.Report) revenueResponse {
	out := revenueResponse{
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		GroupBy:      r.GroupBy,
		TotalRevenue: r.Total.StringFixed(2),
		PaymentCount: r.PaymentCount,
		Breakdown:    make([]bucketResponse, 0, len(r.Breakdown)),
	}
	for _, b := range r.Breakdown {
		out.Breakdown = append(out.Breakdown, bucketResponse{
			PeriodKey:    b.PeriodKey,
			RevenueSum:   b.RevenueSum.StringFixed(2),
			PaymentCount: b.PaymentCount,
		})
	}
	return out
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldError converts the first validator failure into the ledger's
// ValidationError so every 400 has the same shape.
func fieldError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "oneof":
		msg = "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		msg = fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		msg = fmt.Sprintf("must be at least %s", fe.Param())
	default:
		msg = "is invalid"
	}
	return ledger.ValidationError{Field: fe.Field(), Message: msg}
}

package ledger

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/gym-payments-ledger/internal/models"
)

const (
	MaxNoteLength = 500
	// CorrectionWarningDays is how old a payment can be before correcting it
	// produces an advisory warning.
	CorrectionWarningDays = 90
)

// MaxAmount is the largest amount a single payment row can carry.
var MaxAmount = decimal.RequireFromString("999999.99")

// Bounds on the decimal representation, checked before any arithmetic.
// Comparisons rescale to a common exponent, so an input like 1e-1000000000
// would otherwise allocate a coefficient with a billion digits.
const (
	minAmountExponent = -10
	maxAmountExponent = 6
	maxAmountDigits   = 18
)

// ValidateAmount checks 0 < amount <= MaxAmount with at most two decimals.
func ValidateAmount(amount decimal.Decimal) error {
	if exp := amount.Exponent(); exp < minAmountExponent || exp > maxAmountExponent || amount.NumDigits() > maxAmountDigits {
		return invalid("amount", "is out of range")
	}
	if !amount.IsPositive() {
		return invalid("amount", "must be greater than 0")
	}
	if amount.GreaterThan(MaxAmount) {
		return invalid("amount", "must not exceed %s", MaxAmount.StringFixed(2))
	}
	if !amount.Equal(amount.Round(2)) {
		return invalid("amount", "must have at most two decimal places")
	}
	return nil
}

// ValidatePaidOn rejects missing dates and dates after today.
func ValidatePaidOn(paidOn, today models.Date) error {
	if paidOn.IsZero() {
		return invalid("paidOn", "is required")
	}
	if paidOn.After(today) {
		return invalid("paidOn", "cannot be in the future")
	}
	return nil
}

func ValidateMethod(method models.PaymentMethod) error {
	if !method.Valid() {
		return invalid("paymentMethod", "must be one of CASH, CREDIT_CARD, BANK_TRANSFER, CHECK, OTHER")
	}
	return nil
}

func ValidateNote(note *string) error {
	if note != nil && utf8.RuneCountInString(*note) > MaxNoteLength {
		return invalid("note", "must be at most %d characters", MaxNoteLength)
	}
	return nil
}

// normalizeNote trims whitespace and drops empty notes.
func normalizeNote(note *string) *string {
	if note == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func validateFields(amount decimal.Decimal, paidOn models.Date, method models.PaymentMethod, note *string, today models.Date) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if err := ValidatePaidOn(paidOn, today); err != nil {
		return err
	}
	if err := ValidateMethod(method); err != nil {
		return err
	}
	return ValidateNote(note)
}

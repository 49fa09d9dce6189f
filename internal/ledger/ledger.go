package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/gym-payments-ledger/internal/clock"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/models"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/models/events"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/storage"
)

// Ledger records payments and corrects them. Apart from the event outbox it
// keeps no state between calls; every guarantee comes from the store's
// transactions.
type Ledger struct {
	store     interfaces.PaymentStore
	directory interfaces.TenantDirectory
	publisher interfaces.EventPublisher
	clock     clock.Clock
	log       *zap.Logger

	// outbox is drained by one goroutine, so events leave in queue order.
	outbox    chan outgoingEvent
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	drained   sync.WaitGroup
}

const (
	outboxSize     = 1024
	publishTimeout = 10 * time.Second
)

type outgoingEvent struct {
	ctx   context.Context
	topic string
	key   string
	event any
}

type Option func(*Ledger)

func WithPublisher(p interfaces.EventPublisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

func WithClock(c clock.Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log.Named("ledger.service") }
}

func NewLedger(store interfaces.PaymentStore, directory interfaces.TenantDirectory, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		directory: directory,
		clock:     clock.Real{},
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.publisher != nil {
		l.outbox = make(chan outgoingEvent, outboxSize)
		l.drained.Add(1)
		go l.drain()
	}
	return l
}

// Close stops accepting events and waits for queued ones to be published.
func (l *Ledger) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		if l.outbox != nil {
			close(l.outbox)
		}
		l.mu.Unlock()
		l.drained.Wait()
	})
}

// CreatePaymentInput describes a new payment. BranchID may be empty, in
// which case the member's home branch is used.
type CreatePaymentInput struct {
	TenantID      string
	BranchID      string
	MemberID      string
	Amount        decimal.Decimal
	PaidOn        models.Date
	PaymentMethod models.PaymentMethod
	Note          *string
	CreatedBy     string
}

// PaymentChanges overlays a correction on the original row. Nil fields keep
// the original value.
type PaymentChanges struct {
	Amount        *decimal.Decimal
	PaidOn        *models.Date
	PaymentMethod *models.PaymentMethod
	Note          *string
}

func (c PaymentChanges) empty() bool {
	return c.Amount == nil && c.PaidOn == nil && c.PaymentMethod == nil && c.Note == nil
}

type CorrectPaymentInput struct {
	TenantID        string
	PaymentID       string
	Changes         PaymentChanges
	ExpectedVersion int
	ActingUser      string
}

// CorrectionResult is the replacement row plus an optional advisory warning.
type CorrectionResult struct {
	Payment models.Payment
	Warning string
}

// Create validates and records a new payment.
func (l *Ledger) Create(ctx context.Context, in CreatePaymentInput) (models.Payment, error) {
	now := l.clock.Now()
	note := normalizeNote(in.Note)
	if err := validateFields(in.Amount, in.PaidOn, in.PaymentMethod, note, models.DateOf(now)); err != nil {
		return models.Payment{}, err
	}

	branchID, err := l.resolveOwnership(ctx, in.TenantID, in.BranchID, in.MemberID)
	if err != nil {
		return models.Payment{}, err
	}

	payment := models.Payment{
		ID:            uuid.New().String(),
		TenantID:      in.TenantID,
		BranchID:      branchID,
		MemberID:      in.MemberID,
		Amount:        in.Amount.Round(2),
		PaidOn:        in.PaidOn,
		PaymentMethod: in.PaymentMethod,
		Note:          note,
		Version:       0,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := l.store.CreatePayment(ctx, payment); err != nil {
		return models.Payment{}, fmt.Errorf("create payment: %w", err)
	}

	l.log.Info("payment recorded",
		zap.String("tenant_id", payment.TenantID),
		zap.String("payment_id", payment.ID),
		zap.String("amount", payment.Amount.StringFixed(2)),
	)
	l.publish(ctx, events.TopicPaymentRecorded, payment.TenantID, events.PaymentRecorded{
		PaymentID:     payment.ID,
		TenantID:      payment.TenantID,
		BranchID:      payment.BranchID,
		MemberID:      payment.MemberID,
		Amount:        payment.Amount,
		PaidOn:        payment.PaidOn.String(),
		PaymentMethod: string(payment.PaymentMethod),
		RecordedBy:    payment.CreatedBy,
		OccurredAt:    now,
	})
	return payment, nil
}

// resolveOwnership checks that the branch and member live under tenantID and
// returns the branch the payment is booked against.
func (l *Ledger) resolveOwnership(ctx context.Context, tenantID, branchID, memberID string) (string, error) {
	if memberID == "" {
		return "", invalid("memberId", "is required")
	}
	member, err := l.directory.Member(ctx, memberID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrTenantMismatch
	}
	if err != nil {
		return "", fmt.Errorf("resolve member: %w", err)
	}
	if member.TenantID != tenantID {
		return "", ErrTenantMismatch
	}

	if branchID == "" {
		return member.BranchID, nil
	}
	owner, err := l.directory.BranchTenant(ctx, branchID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrTenantMismatch
	}
	if err != nil {
		return "", fmt.Errorf("resolve branch: %w", err)
	}
	if owner != tenantID {
		return "", ErrTenantMismatch
	}
	return branchID, nil
}

// Correct supersedes a payment with a new row. The checks and both writes
// run in one store transaction, so of two concurrent corrections of the same
// row at most one commits.
func (l *Ledger) Correct(ctx context.Context, in CorrectPaymentInput) (CorrectionResult, error) {
	now := l.clock.Now()
	today := models.DateOf(now)

	changes := in.Changes
	if changes.empty() {
		return CorrectionResult{}, invalid("changes", "at least one field must be provided")
	}
	if err := validateChanges(changes, today); err != nil {
		return CorrectionResult{}, err
	}

	var original, replacement models.Payment
	err := l.store.WithTx(ctx, func(tx interfaces.PaymentTx) error {
		var err error
		original, err = tx.GetPaymentForUpdate(ctx, in.PaymentID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if original.TenantID != in.TenantID {
			return ErrTenantMismatch
		}
		if original.Version != in.ExpectedVersion {
			return ErrVersionConflict
		}
		if original.IsCorrected {
			return ErrAlreadyCorrected
		}

		replacement = overlay(original, changes)
		replacement.ID = uuid.New().String()
		replacement.IsCorrection = true
		replacement.CorrectedPaymentID = &original.ID
		replacement.IsCorrected = false
		replacement.Version = 0
		replacement.CreatedBy = in.ActingUser
		replacement.CreatedAt = now
		replacement.UpdatedAt = now

		if err := tx.MarkCorrected(ctx, original.ID, original.Version, now); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return ErrVersionConflict
			}
			return err
		}
		if err := tx.CreatePayment(ctx, replacement); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return ErrAlreadyCorrected
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTenantMismatch) || IsConflict(err) {
			return CorrectionResult{}, err
		}
		return CorrectionResult{}, fmt.Errorf("correct payment %s: %w", in.PaymentID, err)
	}

	result := CorrectionResult{Payment: replacement}
	if original.PaidOn.Before(today.AddDays(-CorrectionWarningDays)) {
		result.Warning = fmt.Sprintf("the corrected payment was made on %s, more than %d days ago; reports for that period will change",
			original.PaidOn, CorrectionWarningDays)
	}

	l.log.Info("payment corrected",
		zap.String("tenant_id", in.TenantID),
		zap.String("payment_id", replacement.ID),
		zap.String("corrected_payment_id", original.ID),
		zap.Bool("warning", result.Warning != ""),
	)
	l.publish(ctx, events.TopicPaymentCorrected, in.TenantID, events.PaymentCorrected{
		PaymentID:          replacement.ID,
		CorrectedPaymentID: original.ID,
		TenantID:           in.TenantID,
		PreviousAmount:     original.Amount,
		Amount:             replacement.Amount,
		CorrectedBy:        in.ActingUser,
		OccurredAt:         now,
	})
	return result, nil
}

func validateChanges(c PaymentChanges, today models.Date) error {
	if c.Amount != nil {
		if err := ValidateAmount(*c.Amount); err != nil {
			return err
		}
	}
	if c.PaidOn != nil {
		if err := ValidatePaidOn(*c.PaidOn, today); err != nil {
			return err
		}
	}
	if c.PaymentMethod != nil {
		if err := ValidateMethod(*c.PaymentMethod); err != nil {
			return err
		}
	}
	return ValidateNote(normalizeNote(c.Note))
}

// overlay copies p and applies the non-nil changes. An empty note clears it.
func overlay(p models.Payment, c PaymentChanges) models.Payment {
	out := p
	if p.Note != nil {
		note := *p.Note
		out.Note = &note
	}
	out.CorrectedPaymentID = nil
	if c.Amount != nil {
		out.Amount = c.Amount.Round(2)
	}
	if c.PaidOn != nil {
		out.PaidOn = *c.PaidOn
	}
	if c.PaymentMethod != nil {
		out.PaymentMethod = *c.PaymentMethod
	}
	if c.Note != nil {
		out.Note = normalizeNote(c.Note)
	}
	return out
}

// Get returns one payment owned by tenantID.
func (l *Ledger) Get(ctx context.Context, tenantID, id string) (models.Payment, error) {
	p, err := l.store.GetPayment(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Payment{}, ErrNotFound
	}
	if err != nil {
		return models.Payment{}, fmt.Errorf("get payment %s: %w", id, err)
	}
	if p.TenantID != tenantID {
		return models.Payment{}, ErrTenantMismatch
	}
	return p, nil
}

// Page is one page of a listing plus the size of the whole result.
type Page struct {
	Payments []models.Payment
	Total    int
}

// List returns a page of the tenant's payments matching filter.
func (l *Ledger) List(ctx context.Context, tenantID string, filter models.PaymentFilter) (Page, error) {
	if !filter.StartDate.IsZero() && !filter.EndDate.IsZero() && filter.StartDate.After(filter.EndDate) {
		return Page{}, invalid("startDate", "must not be after endDate")
	}
	if filter.PaymentMethod != "" {
		if err := ValidateMethod(filter.PaymentMethod); err != nil {
			return Page{}, err
		}
	}
	payments, total, err := l.store.ListPayments(ctx, tenantID, filter)
	if err != nil {
		return Page{}, fmt.Errorf("list payments: %w", err)
	}
	return Page{Payments: payments, Total: total}, nil
}

// MemberHistory lists every row booked against a member, superseded ones
// included, so the full audit trail is visible.
func (l *Ledger) MemberHistory(ctx context.Context, tenantID, memberID string, filter models.PaymentFilter) (Page, error) {
	member, err := l.directory.Member(ctx, memberID)
	if errors.Is(err, storage.ErrNotFound) {
		return Page{}, ErrMemberNotFound
	}
	if err != nil {
		return Page{}, fmt.Errorf("resolve member: %w", err)
	}
	if member.TenantID != tenantID {
		return Page{}, ErrTenantMismatch
	}

	filter.MemberID = memberID
	filter.IncludeCorrections = true
	return l.List(ctx, tenantID, filter)
}

// publish queues an event without blocking. The event outlives the request
// context.
func (l *Ledger) publish(ctx context.Context, topic, key string, event any) {
	if l.outbox == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.log.Warn("ledger closed, event dropped", zap.String("topic", topic), zap.String("key", key))
		return
	}
	select {
	case l.outbox <- outgoingEvent{ctx: context.WithoutCancel(ctx), topic: topic, key: key, event: event}:
	default:
		l.log.Warn("event queue full, event dropped", zap.String("topic", topic), zap.String("key", key))
	}
}

func (l *Ledger) drain() {
	defer l.drained.Done()
	for ev := range l.outbox {
		ctx, cancel := context.WithTimeout(ev.ctx, publishTimeout)
		if err := l.publisher.Publish(ctx, ev.topic, ev.key, ev.event); err != nil {
			l.log.Warn("publish event failed", zap.String("topic", ev.topic), zap.Error(err))
		}
		cancel()
	}
}

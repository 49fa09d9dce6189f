package memory

import (
	"context" // standard Go package for request-scoped context (timeouts, cancellation)
	"sort"
	"sync" // standard Go package for concurrency primitives like Mutex
	"time"

	"github.com/sheikh-saqib/gym-payments-ledger/internal/billing"
	interfaces "github.com/sheikh-saqib/gym-payments-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/models"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/storage"
)

// MemoryLedgerStore is an in-memory implementation of interfaces.PaymentStore
// and interfaces.TenantDirectory. A single mutex serialises transactions,
// which gives the same guarantees as SERIALIZABLE isolation.
type MemoryLedgerStore struct {
	mu        sync.Mutex                // protects everything below
	payments  map[string]models.Payment // payment id -> row
	order     []string                  // insertion order, used as a tiebreaker when sorting
	corrected map[string]string         // original id -> id of the row that corrected it
	tenants   map[string]billing.Status // tenant id -> billing status
	branches  map[string]string         // branch id -> tenant id
	members   map[string]interfaces.MemberRef
}

// NewMemoryLedgerStore creates and returns a new MemoryLedgerStore instance
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		payments:  make(map[string]models.Payment),
		order:     make([]string, 0),
		corrected: make(map[string]string),
		tenants:   make(map[string]billing.Status),
		branches:  make(map[string]string),
		members:   make(map[string]interfaces.MemberRef),
	}
}

// AddTenant registers a tenant, or updates its billing status.
func (m *MemoryLedgerStore) AddTenant(tenantID string, status billing.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[tenantID] = status
}

func (m *MemoryLedgerStore) AddBranch(tenantID, branchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.branches[branchID] = tenantID
}

func (m *MemoryLedgerStore) AddMember(tenantID, branchID, memberID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[memberID] = interfaces.MemberRef{ID: memberID, TenantID: tenantID, BranchID: branchID}
}

func (m *MemoryLedgerStore) BillingStatus(_ context.Context, tenantID string) (billing.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.tenants[tenantID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return status, nil
}

func (m *MemoryLedgerStore) BranchTenant(_ context.Context, branchID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tenantID, ok := m.branches[branchID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return tenantID, nil
}

func (m *MemoryLedgerStore) Member(_ context.Context, memberID string) (interfaces.MemberRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[memberID]
	if !ok {
		return interfaces.MemberRef{}, storage.ErrNotFound
	}
	return member, nil
}

// CreatePayment saves a payment outside of any explicit transaction.
func (m *MemoryLedgerStore) CreatePayment(_ context.Context, payment models.Payment) error {
	m.mu.Lock()         // lock the mutex to prevent concurrent writes
	defer m.mu.Unlock() // unlock automatically when function exits (even if error occurs)

	return m.insert(payment)
}

// insert requires m.mu to be held.
func (m *MemoryLedgerStore) insert(payment models.Payment) error {
	if _, exists := m.payments[payment.ID]; exists {
		return storage.ErrConflict
	}
	if payment.CorrectedPaymentID != nil {
		if _, taken := m.corrected[*payment.CorrectedPaymentID]; taken {
			return storage.ErrConflict
		}
		m.corrected[*payment.CorrectedPaymentID] = payment.ID
	}
	m.payments[payment.ID] = clonePayment(payment)
	m.order = append(m.order, payment.ID)
	return nil
}

func (m *MemoryLedgerStore) GetPayment(_ context.Context, id string) (models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return models.Payment{}, storage.ErrNotFound
	}
	return clonePayment(p), nil // return a copy so external code can't modify internal state
}

// ListPayments returns the newest payments first, paginated by filter.Offset
// and filter.Limit, plus the number of rows matching before pagination.
func (m *MemoryLedgerStore) ListPayments(_ context.Context, tenantID string, filter models.PaymentFilter) ([]models.Payment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	position := make(map[string]int, len(m.order))
	var result []models.Payment
	for i, id := range m.order {
		position[id] = i
		p := m.payments[id]
		if p.TenantID != tenantID || !matchesFilter(p, filter) {
			continue
		}
		result = append(result, clonePayment(p))
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.PaidOn.Equal(b.PaidOn) {
			return a.PaidOn.After(b.PaidOn)
		}
		return position[a.ID] > position[b.ID]
	})

	total := len(result)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if filter.Limit <= 0 || end > total {
		end = total
	}
	return result[start:end], total, nil
}

func matchesFilter(p models.Payment, f models.PaymentFilter) bool {
	if f.MemberID != "" && p.MemberID != f.MemberID {
		return false
	}
	if f.BranchID != "" && p.BranchID != f.BranchID {
		return false
	}
	if f.PaymentMethod != "" && p.PaymentMethod != f.PaymentMethod {
		return false
	}
	if !f.StartDate.IsZero() && p.PaidOn.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && p.PaidOn.After(f.EndDate) {
		return false
	}
	if !f.IncludeCorrections && p.IsCorrected {
		return false
	}
	return true
}

func (m *MemoryLedgerStore) ListRevenueRows(_ context.Context, tenantID string, filter models.RevenueFilter) ([]models.RevenueRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []models.RevenueRow
	for _, id := range m.order {
		p := m.payments[id]
		if p.TenantID != tenantID {
			continue
		}
		if p.PaidOn.Before(filter.StartDate) || p.PaidOn.After(filter.EndDate) {
			continue
		}
		if filter.BranchID != "" && p.BranchID != filter.BranchID {
			continue
		}
		if filter.PaymentMethod != "" && p.PaymentMethod != filter.PaymentMethod {
			continue
		}
		if p.IsCorrected && !filter.IncludeSuperseded {
			continue
		}
		rows = append(rows, models.RevenueRow{PaidOn: p.PaidOn, Amount: p.Amount})
	}
	return rows, nil
}

// WithTx holds the store lock for the whole of fn and applies its writes
// only when fn succeeds.
func (m *MemoryLedgerStore) WithTx(_ context.Context, fn func(tx interfaces.PaymentTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m, updated: make(map[string]models.Payment)}
	if err := fn(tx); err != nil {
		return err
	}

	for _, p := range tx.inserted {
		if err := m.insert(p); err != nil {
			// unreachable: memoryTx.CreatePayment already checked both constraints
			return err
		}
	}
	for id, p := range tx.updated {
		m.payments[id] = p
	}
	return nil
}

// memoryTx stages writes until WithTx commits them. The store lock is held
// by WithTx, so its methods must not lock again.
type memoryTx struct {
	store    *MemoryLedgerStore
	updated  map[string]models.Payment
	inserted []models.Payment
}

func (tx *memoryTx) lookup(id string) (models.Payment, bool) {
	if p, ok := tx.updated[id]; ok {
		return p, true
	}
	for _, p := range tx.inserted {
		if p.ID == id {
			return p, true
		}
	}
	p, ok := tx.store.payments[id]
	return p, ok
}

func (tx *memoryTx) GetPaymentForUpdate(_ context.Context, id string) (models.Payment, error) {
	p, ok := tx.lookup(id)
	if !ok {
		return models.Payment{}, storage.ErrNotFound
	}
	return clonePayment(p), nil
}

func (tx *memoryTx) MarkCorrected(_ context.Context, id string, version int, at time.Time) error {
	p, ok := tx.lookup(id)
	if !ok {
		return storage.ErrNotFound
	}
	if p.Version != version || p.IsCorrected {
		return storage.ErrConflict
	}
	p = clonePayment(p)
	p.IsCorrected = true
	p.UpdatedAt = at
	tx.updated[id] = p
	return nil
}

func (tx *memoryTx) CreatePayment(_ context.Context, payment models.Payment) error {
	if _, exists := tx.lookup(payment.ID); exists {
		return storage.ErrConflict
	}
	if payment.CorrectedPaymentID != nil {
		target := *payment.CorrectedPaymentID
		if _, taken := tx.store.corrected[target]; taken {
			return storage.ErrConflict
		}
		for _, p := range tx.inserted {
			if p.CorrectedPaymentID != nil && *p.CorrectedPaymentID == target {
				return storage.ErrConflict
			}
		}
	}
	tx.inserted = append(tx.inserted, clonePayment(payment))
	return nil
}

func clonePayment(p models.Payment) models.Payment {
	out := p
	if p.Note != nil {
		note := *p.Note
		out.Note = &note
	}
	if p.CorrectedPaymentID != nil {
		id := *p.CorrectedPaymentID
		out.CorrectedPaymentID = &id
	}
	return out
}

// Compile-time check: ensure MemoryLedgerStore implements both interfaces
var (
	_ interfaces.PaymentStore    = (*MemoryLedgerStore)(nil)
	_ interfaces.TenantDirectory = (*MemoryLedgerStore)(nil)
)

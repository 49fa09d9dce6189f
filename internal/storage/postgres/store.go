package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	interfaces "github.com/sheikh-saqib/gym-payments-ledger/internal/interfaces" // interface PaymentStore
	"github.com/sheikh-saqib/gym-payments-ledger/internal/models"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/storage"
)

const uniqueViolation = "23505"

const paymentColumns = `id, tenant_id, branch_id, member_id, amount, paid_on, payment_method, note,
	is_correction, corrected_payment_id, is_corrected, version, created_by, created_at, updated_at`

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (models.Payment, error) {
	var (
		p           models.Payment
		method      string
		note        sql.NullString
		correctedID sql.NullString
	)
	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.BranchID,
		&p.MemberID,
		&p.Amount,
		&p.PaidOn,
		&method,
		&note,
		&p.IsCorrection,
		&correctedID,
		&p.IsCorrected,
		&p.Version,
		&p.CreatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return models.Payment{}, err
	}
	p.PaymentMethod = models.PaymentMethod(method)
	if note.Valid {
		p.Note = &note.String
	}
	if correctedID.Valid {
		p.CorrectedPaymentID = &correctedID.String
	}
	return p, nil
}

func insertPayment(ctx context.Context, q querier, p models.Payment) error {
	const query = `INSERT INTO payments (` + paymentColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	_, err := q.ExecContext(ctx, query,
		p.ID, p.TenantID, p.BranchID, p.MemberID, p.Amount, p.PaidOn, string(p.PaymentMethod),
		nullString(p.Note), p.IsCorrection, nullString(p.CorrectedPaymentID), p.IsCorrected,
		p.Version, p.CreatedBy, p.CreatedAt, p.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return storage.ErrConflict
	}
	return err
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (p *PostgresLedgerStore) CreatePayment(ctx context.Context, payment models.Payment) error {
	return insertPayment(ctx, p.db, payment)
}

func (p *PostgresLedgerStore) GetPayment(ctx context.Context, id string) (models.Payment, error) {
	const query = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	payment, err := scanPayment(p.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return models.Payment{}, storage.ErrNotFound
	}
	return payment, err
}

// whereClause accumulates AND-ed conditions with positional arguments.
type whereClause struct {
	conds []string
	args  []any
}

func (w *whereClause) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *whereClause) addRaw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *whereClause) String() string {
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (p *PostgresLedgerStore) ListPayments(ctx context.Context, tenantID string, filter models.PaymentFilter) ([]models.Payment, int, error) {
	var where whereClause
	where.add("tenant_id = ?", tenantID)
	if filter.MemberID != "" {
		where.add("member_id = ?", filter.MemberID)
	}
	if filter.BranchID != "" {
		where.add("branch_id = ?", filter.BranchID)
	}
	if filter.PaymentMethod != "" {
		where.add("payment_method = ?", string(filter.PaymentMethod))
	}
	if !filter.StartDate.IsZero() {
		where.add("paid_on >= ?", filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		where.add("paid_on <= ?", filter.EndDate)
	}
	if !filter.IncludeCorrections {
		where.addRaw("is_corrected = FALSE")
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments`+where.String(), where.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + paymentColumns + ` FROM payments` + where.String() +
		` ORDER BY paid_on DESC, created_at DESC, id`
	args := where.args
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func (p *PostgresLedgerStore) ListRevenueRows(ctx context.Context, tenantID string, filter models.RevenueFilter) ([]models.RevenueRow, error) {
	var where whereClause
	where.add("tenant_id = ?", tenantID)
	where.add("paid_on >= ?", filter.StartDate)
	where.add("paid_on <= ?", filter.EndDate)
	if filter.BranchID != "" {
		where.add("branch_id = ?", filter.BranchID)
	}
	if filter.PaymentMethod != "" {
		where.add("payment_method = ?", string(filter.PaymentMethod))
	}
	if !filter.IncludeSuperseded {
		where.addRaw("is_corrected = FALSE")
	}

	rows, err := p.db.QueryContext(ctx, `SELECT paid_on, amount FROM payments`+where.String()+` ORDER BY paid_on`, where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.RevenueRow
	for rows.Next() {
		var row models.RevenueRow
		if err := rows.Scan(&row.PaidOn, &row.Amount); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// WithTx runs fn in a READ COMMITTED transaction. Rows read through
// GetPaymentForUpdate are locked with SELECT ... FOR UPDATE, so a second
// corrector blocks until the first commits and then sees is_corrected = TRUE.
func (p *PostgresLedgerStore) WithTx(ctx context.Context, fn func(tx interfaces.PaymentTx) error) (err error) {
	dbTx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = dbTx.Rollback()
		}
	}()

	if err = fn(&postgresTx{tx: dbTx}); err != nil {
		return err
	}
	return dbTx.Commit()
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) GetPaymentForUpdate(ctx context.Context, id string) (models.Payment, error) {
	const query = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`

	payment, err := scanPayment(t.tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return models.Payment{}, storage.ErrNotFound
	}
	return payment, err
}

func (t *postgresTx) MarkCorrected(ctx context.Context, id string, version int, at time.Time) error {
	const query = `UPDATE payments SET is_corrected = TRUE, updated_at = $3
	WHERE id = $1 AND version = $2 AND is_corrected = FALSE`

	res, err := t.tx.ExecContext(ctx, query, id, version, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrConflict
	}
	return nil
}

func (t *postgresTx) CreatePayment(ctx context.Context, payment models.Payment) error {
	return insertPayment(ctx, t.tx, payment)
}

var _ interfaces.PaymentStore = (*PostgresLedgerStore)(nil)

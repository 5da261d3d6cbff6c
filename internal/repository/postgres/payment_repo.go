package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lendbook/lendbook-backend/internal/domain"
)

const paymentColumns = `id, loan_id, amount, payment_date, method, reference, notes, recorded_by,
	principal_portion, interest_portion, overpayment_portion, created_at`

// PaymentRepository implements domain.PaymentRepository using PostgreSQL.
// Payments are append-only; there is no update or delete.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// CreateTx inserts a payment within a transaction
func (r *PaymentRepository) CreateTx(ctx context.Context, tx any, payment *domain.Payment) (*domain.Payment, error) {
	pgxTx, err := txFrom(tx)
	if err != nil {
		return nil, err
	}

	nums, err := decimalsToPgNumeric(payment.Amount, payment.PrincipalPortion, payment.InterestPortion)
	if err != nil {
		return nil, err
	}
	overpayment, err := decimalPtrToPgNumeric(payment.OverpaymentPortion)
	if err != nil {
		return nil, err
	}

	row := pgxTx.QueryRow(ctx, `
		INSERT INTO loan_payments (loan_id, amount, payment_date, method, reference, notes,
			recorded_by, principal_portion, interest_portion, overpayment_portion)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+paymentColumns,
		payment.LoanID,
		nums[0],
		timeToPgDate(payment.PaymentDate),
		string(payment.Method),
		stringPtrToPgText(payment.Reference),
		stringPtrToPgText(payment.Notes),
		uuidToPg(payment.RecordedBy),
		nums[1],
		nums[2],
		overpayment,
	)
	return scanPayment(row)
}

// GetByID retrieves a payment by its ID
func (r *PaymentRepository) GetByID(ctx context.Context, id int32) (*domain.Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM loan_payments WHERE id = $1`, id)
	return scanPayment(row)
}

// GetByLoanID lists a loan's payments in the order they were received
func (r *PaymentRepository) GetByLoanID(ctx context.Context, loanID int32) ([]*domain.Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM loan_payments
		WHERE loan_id = $1
		ORDER BY payment_date, id`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// CountByLoanIDTx counts a loan's payments inside a transaction
func (r *PaymentRepository) CountByLoanIDTx(ctx context.Context, tx any, loanID int32) (int64, error) {
	pgxTx, err := txFrom(tx)
	if err != nil {
		return 0, err
	}
	var count int64
	err = pgxTx.QueryRow(ctx, `SELECT COUNT(*) FROM loan_payments WHERE loan_id = $1`, loanID).Scan(&count)
	return count, err
}

// GetTotals sums a loan's payments and their split
func (r *PaymentRepository) GetTotals(ctx context.Context, loanID int32) (*domain.PaymentTotals, error) {
	var (
		totals                                   domain.PaymentTotals
		amount, principal, interest, overpayment pgtype.Numeric
	)
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(principal_portion), 0),
			COALESCE(SUM(interest_portion), 0),
			COALESCE(SUM(overpayment_portion), 0),
			COUNT(*) FILTER (WHERE overpayment_portion IS NULL)
		FROM loan_payments
		WHERE loan_id = $1`, loanID).
		Scan(&totals.Count, &amount, &principal, &interest, &overpayment, &totals.LegacyCount)
	if err != nil {
		return nil, err
	}
	totals.Amount = pgNumericToDecimal(amount)
	totals.Principal = pgNumericToDecimal(principal)
	totals.Interest = pgNumericToDecimal(interest)
	totals.Overpayment = pgNumericToDecimal(overpayment)
	return &totals, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p                                        domain.Payment
		amount, principal, interest, overpayment pgtype.Numeric
		paymentDate                              pgtype.Date
		method                                   string
		reference, notes                         pgtype.Text
		recordedBy                               pgtype.UUID
		createdAt                                pgtype.Timestamptz
	)
	err := row.Scan(&p.ID, &p.LoanID, &amount, &paymentDate, &method, &reference, &notes,
		&recordedBy, &principal, &interest, &overpayment, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}

	p.Amount = pgNumericToDecimal(amount)
	p.PaymentDate = pgDateToTime(paymentDate)
	p.Method = domain.PaymentMethod(method)
	p.Reference = pgTextToStringPtr(reference)
	p.Notes = pgTextToStringPtr(notes)
	p.RecordedBy = recordedBy.Bytes
	p.PrincipalPortion = pgNumericToDecimal(principal)
	p.InterestPortion = pgNumericToDecimal(interest)
	p.OverpaymentPortion = pgNumericToDecimalPtr(overpayment)
	p.CreatedAt = createdAt.Time
	return &p, nil
}

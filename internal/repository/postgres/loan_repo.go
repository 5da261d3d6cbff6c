package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/shopspring/decimal"
)

const loanColumns = `id, customer_id, officer_id, principal, interest_rate, term, term_unit,
	application_date, disbursement_date, status, purpose, created_at, updated_at`

// LoanRepository implements domain.LoanRepository using PostgreSQL
type LoanRepository struct {
	pool *pgxpool.Pool
}

// NewLoanRepository creates a new LoanRepository
func NewLoanRepository(pool *pgxpool.Pool) *LoanRepository {
	return &LoanRepository{pool: pool}
}

// CreateTx creates a new loan within a transaction
func (r *LoanRepository) CreateTx(ctx context.Context, tx any, loan *domain.Loan) (*domain.Loan, error) {
	pgxTx, err := txFrom(tx)
	if err != nil {
		return nil, err
	}

	nums, err := decimalsToPgNumeric(loan.Principal, loan.InterestRate)
	if err != nil {
		return nil, err
	}

	row := pgxTx.QueryRow(ctx, `
		INSERT INTO loans (customer_id, officer_id, principal, interest_rate, term, term_unit,
			application_date, disbursement_date, status, purpose)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+loanColumns,
		uuidToPg(loan.CustomerID),
		uuidPtrToPg(loan.OfficerID),
		nums[0],
		nums[1],
		loan.Term,
		string(loan.TermUnit),
		timeToPgDate(loan.ApplicationDate),
		timePtrToPgDate(loan.DisbursementDate),
		string(loan.Status),
		stringPtrToPgText(loan.Purpose),
	)
	return scanLoan(row)
}

// GetByID retrieves a loan by its ID
func (r *LoanRepository) GetByID(ctx context.Context, id int32) (*domain.Loan, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
	return scanLoan(row)
}

// GetByIDForUpdateTx retrieves a loan and locks its row until the transaction ends
func (r *LoanRepository) GetByIDForUpdateTx(ctx context.Context, tx any, id int32) (*domain.Loan, error) {
	pgxTx, err := txFrom(tx)
	if err != nil {
		return nil, err
	}
	row := pgxTx.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id)
	return scanLoan(row)
}

// List retrieves loans matching the filter, newest first
func (r *LoanRepository) List(ctx context.Context, filter domain.LoanFilter) ([]*domain.Loan, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, uuidToPg(*filter.CustomerID))
		conds = append(conds, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.OfficerID != nil {
		args = append(args, uuidToPg(*filter.OfficerID))
		conds = append(conds, fmt.Sprintf("officer_id = $%d", len(args)))
	}

	query := `SELECT ` + loanColumns + ` FROM loans`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loans := make([]*domain.Loan, 0)
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

// UpdateStatusTx sets the loan status and, when given, the disbursement date
func (r *LoanRepository) UpdateStatusTx(ctx context.Context, tx any, id int32, status domain.LoanStatus, disbursementDate *time.Time) (*domain.Loan, error) {
	pgxTx, err := txFrom(tx)
	if err != nil {
		return nil, err
	}
	row := pgxTx.QueryRow(ctx, `
		UPDATE loans
		SET status = $2, disbursement_date = COALESCE($3, disbursement_date), updated_at = NOW()
		WHERE id = $1
		RETURNING `+loanColumns,
		id, string(status), timePtrToPgDate(disbursementDate))
	return scanLoan(row)
}

// UpdateInterestRateTx corrects the loan's interest rate
func (r *LoanRepository) UpdateInterestRateTx(ctx context.Context, tx any, id int32, rate decimal.Decimal) (*domain.Loan, error) {
	pgxTx, err := txFrom(tx)
	if err != nil {
		return nil, err
	}
	num, err := decimalToPgNumeric(rate)
	if err != nil {
		return nil, err
	}
	row := pgxTx.QueryRow(ctx, `
		UPDATE loans SET interest_rate = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+loanColumns,
		id, num)
	return scanLoan(row)
}

func scanLoan(row pgx.Row) (*domain.Loan, error) {
	var (
		loan             domain.Loan
		customerID       pgtype.UUID
		officerID        pgtype.UUID
		principal        pgtype.Numeric
		rate             pgtype.Numeric
		termUnit         string
		applicationDate  pgtype.Date
		disbursementDate pgtype.Date
		status           string
		purpose          pgtype.Text
		createdAt        pgtype.Timestamptz
		updatedAt        pgtype.Timestamptz
	)
	err := row.Scan(&loan.ID, &customerID, &officerID, &principal, &rate, &loan.Term, &termUnit,
		&applicationDate, &disbursementDate, &status, &purpose, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}

	loan.CustomerID = customerID.Bytes
	loan.OfficerID = pgUUIDToPtr(officerID)
	loan.Principal = pgNumericToDecimal(principal)
	loan.InterestRate = pgNumericToDecimal(rate)
	loan.TermUnit = domain.TermUnit(termUnit)
	loan.ApplicationDate = pgDateToTime(applicationDate)
	loan.DisbursementDate = pgDateToTimePtr(disbursementDate)
	loan.Status = domain.LoanStatus(status)
	loan.Purpose = pgTextToStringPtr(purpose)
	loan.CreatedAt = createdAt.Time
	loan.UpdatedAt = updatedAt.Time
	return &loan, nil
}

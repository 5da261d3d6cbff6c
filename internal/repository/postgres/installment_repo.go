package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lendbook/lendbook-backend/internal/domain"
)

const installmentColumns = `id, loan_id, sequence, due_date, principal_due, interest_due,
	original_interest, total_due, amount_paid, principal_paid, interest_paid, status, paid_at,
	created_at, updated_at`

// InstallmentRepository implements domain.InstallmentRepository using PostgreSQL
type InstallmentRepository struct {
	pool *pgxpool.Pool
}

// NewInstallmentRepository creates a new InstallmentRepository
func NewInstallmentRepository(pool *pgxpool.Pool) *InstallmentRepository {
	return &InstallmentRepository{pool: pool}
}

// CreateBatchTx inserts a whole schedule in one round trip and fills in the generated IDs
func (r *InstallmentRepository) CreateBatchTx(ctx context.Context, tx any, installments []*domain.Installment) error {
	pgxTx, err := txFrom(tx)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, inst := range installments {
		nums, err := decimalsToPgNumeric(inst.PrincipalDue, inst.InterestDue, inst.OriginalInterest,
			inst.TotalDue, inst.AmountPaid, inst.PrincipalPaid, inst.InterestPaid)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO loan_installments (loan_id, sequence, due_date, principal_due, interest_due,
				original_interest, total_due, amount_paid, principal_paid, interest_paid, status, paid_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, created_at, updated_at`,
			inst.LoanID, inst.Sequence, timeToPgDate(inst.DueDate),
			nums[0], nums[1], nums[2], nums[3], nums[4], nums[5], nums[6],
			string(inst.Status), timePtrToPgDate(inst.PaidAt),
		)
	}

	results := pgxTx.SendBatch(ctx, batch)
	defer results.Close()

	for _, inst := range installments {
		var createdAt, updatedAt pgtype.Timestamptz
		if err := results.QueryRow().Scan(&inst.ID, &createdAt, &updatedAt); err != nil {
			return err
		}
		inst.CreatedAt = createdAt.Time
		inst.UpdatedAt = updatedAt.Time
	}
	return results.Close()
}

// DeleteByLoanIDTx removes a loan's whole schedule and returns how many rows went
func (r *InstallmentRepository) DeleteByLoanIDTx(ctx context.Context, tx any, loanID int32) (int64, error) {
	pgxTx, err := txFrom(tx)
	if err != nil {
		return 0, err
	}
	tag, err := pgxTx.Exec(ctx, `DELETE FROM loan_installments WHERE loan_id = $1`, loanID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetByLoanID returns a loan's schedule ordered by due date
func (r *InstallmentRepository) GetByLoanID(ctx context.Context, loanID int32) ([]*domain.Installment, error) {
	return listInstallments(ctx, r.pool, loanID)
}

// GetByLoanIDTx is GetByLoanID inside a transaction
func (r *InstallmentRepository) GetByLoanIDTx(ctx context.Context, tx any, loanID int32) ([]*domain.Installment, error) {
	pgxTx, err := txFrom(tx)
	if err != nil {
		return nil, err
	}
	return listInstallments(ctx, pgxTx, loanID)
}

// UpdateAccrualTx writes the accrued interest, total and status of one installment
func (r *InstallmentRepository) UpdateAccrualTx(ctx context.Context, tx any, inst *domain.Installment) error {
	pgxTx, err := txFrom(tx)
	if err != nil {
		return err
	}
	nums, err := decimalsToPgNumeric(inst.InterestDue, inst.TotalDue)
	if err != nil {
		return err
	}
	_, err = pgxTx.Exec(ctx, `
		UPDATE loan_installments
		SET interest_due = $2, total_due = $3, status = $4, updated_at = NOW()
		WHERE id = $1`,
		inst.ID, nums[0], nums[1], string(inst.Status))
	return err
}

// UpdateAllocationTx writes the paid amounts and status after a payment was applied
func (r *InstallmentRepository) UpdateAllocationTx(ctx context.Context, tx any, inst *domain.Installment) error {
	pgxTx, err := txFrom(tx)
	if err != nil {
		return err
	}
	nums, err := decimalsToPgNumeric(inst.AmountPaid, inst.PrincipalPaid, inst.InterestPaid)
	if err != nil {
		return err
	}
	_, err = pgxTx.Exec(ctx, `
		UPDATE loan_installments
		SET amount_paid = $2, principal_paid = $3, interest_paid = $4, status = $5,
			paid_at = $6, updated_at = NOW()
		WHERE id = $1`,
		inst.ID, nums[0], nums[1], nums[2], string(inst.Status), timePtrToPgDate(inst.PaidAt))
	return err
}

// ListLoanIDsForAccrual returns active loans owning open installments due before asOf
func (r *InstallmentRepository) ListLoanIDsForAccrual(ctx context.Context, asOf time.Time) ([]int32, error) {
	return listLoanIDs(ctx, r.pool, `
		SELECT DISTINCT i.loan_id
		FROM loan_installments i
		JOIN loans l ON l.id = i.loan_id
		WHERE l.status = 'active'
			AND i.status IN ('pending', 'partial', 'overdue')
			AND i.due_date < $1
		ORDER BY i.loan_id`,
		timeToPgDate(asOf))
}

// ListLoanIDsWithOverdue returns active loans that have at least one overdue installment
func (r *InstallmentRepository) ListLoanIDsWithOverdue(ctx context.Context) ([]int32, error) {
	return listLoanIDs(ctx, r.pool, `
		SELECT DISTINCT i.loan_id
		FROM loan_installments i
		JOIN loans l ON l.id = i.loan_id
		WHERE l.status = 'active' AND i.status = 'overdue'
		ORDER BY i.loan_id`)
}

func listLoanIDs(ctx context.Context, db DBTX, query string, args ...any) ([]int32, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int32])
}

func listInstallments(ctx context.Context, db DBTX, loanID int32) ([]*domain.Installment, error) {
	rows, err := db.Query(ctx, `
		SELECT `+installmentColumns+`
		FROM loan_installments
		WHERE loan_id = $1
		ORDER BY due_date, sequence`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	installments := make([]*domain.Installment, 0)
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		installments = append(installments, inst)
	}
	return installments, rows.Err()
}

func scanInstallment(row pgx.Row) (*domain.Installment, error) {
	var (
		inst                                domain.Installment
		dueDate, paidAt                     pgtype.Date
		principalDue, interestDue, original pgtype.Numeric
		totalDue, amountPaid                pgtype.Numeric
		principalPaid, interestPaid         pgtype.Numeric
		status                              string
		createdAt, updatedAt                pgtype.Timestamptz
	)
	err := row.Scan(&inst.ID, &inst.LoanID, &inst.Sequence, &dueDate, &principalDue, &interestDue,
		&original, &totalDue, &amountPaid, &principalPaid, &interestPaid, &status, &paidAt,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	inst.DueDate = pgDateToTime(dueDate)
	inst.PrincipalDue = pgNumericToDecimal(principalDue)
	inst.InterestDue = pgNumericToDecimal(interestDue)
	inst.OriginalInterest = pgNumericToDecimal(original)
	inst.TotalDue = pgNumericToDecimal(totalDue)
	inst.AmountPaid = pgNumericToDecimal(amountPaid)
	inst.PrincipalPaid = pgNumericToDecimal(principalPaid)
	inst.InterestPaid = pgNumericToDecimal(interestPaid)
	inst.Status = domain.InstallmentStatus(status)
	inst.PaidAt = pgDateToTimePtr(paidAt)
	inst.CreatedAt = createdAt.Time
	inst.UpdatedAt = updatedAt.Time
	return &inst, nil
}

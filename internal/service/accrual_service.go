package service

import (
	"context"
	"time"

	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/util"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AccrualService applies overdue status and penalty interest to installments past due
type AccrualService struct {
	tx              domain.Transactor
	loanRepo        domain.LoanRepository
	installmentRepo domain.InstallmentRepository
	policy          domain.OverduePeriodPolicy
	logger          zerolog.Logger
}

// NewAccrualService creates a new AccrualService
func NewAccrualService(
	tx domain.Transactor,
	loanRepo domain.LoanRepository,
	installmentRepo domain.InstallmentRepository,
	policy domain.OverduePeriodPolicy,
	logger zerolog.Logger,
) *AccrualService {
	if policy == "" {
		policy = domain.OverduePolicyFixed
	}
	return &AccrualService{
		tx:              tx,
		loanRepo:        loanRepo,
		installmentRepo: installmentRepo,
		policy:          policy,
		logger:          logger.With().Str("component", "accrual_service").Logger(),
	}
}

// PeriodsOverdue counts the whole periods between due and asOf under the given policy.
// Weeks are always 7-day blocks; months are 30-day blocks under the fixed policy and
// whole calendar months under the calendar policy.
func PeriodsOverdue(policy domain.OverduePeriodPolicy, unit domain.TermUnit, due, asOf time.Time) int {
	days := util.DaysBetween(due, asOf)
	if days <= 0 {
		return 0
	}
	if unit == domain.TermUnitWeeks {
		return days / 7
	}
	if policy == domain.OverduePolicyCalendar {
		return util.FullMonthsBetween(due, asOf)
	}
	return days / 30
}

// AccrueInstallment computes the accrued state of one installment as of asOf.
// It returns the updated copy and whether anything changed. Interest is derived
// from OriginalInterest and only ever grows, so repeating a run or running an
// earlier asOf after a later one leaves the installment as it is. Installments
// that owe nothing are left alone.
func AccrueInstallment(inst *domain.Installment, unit domain.TermUnit, policy domain.OverduePeriodPolicy, asOf time.Time) (*domain.Installment, bool) {
	if !inst.Status.IsOpen() || !inst.RemainingDue().IsPositive() ||
		!util.DateOnly(inst.DueDate).Before(util.DateOnly(asOf)) {
		return inst, false
	}

	next := *inst
	next.Status = domain.InstallmentOverdue

	periods := PeriodsOverdue(policy, unit, inst.DueDate, asOf)
	if periods > 0 {
		accrued := inst.OriginalInterest.Mul(decimal.NewFromInt(int64(periods + 1)))
		if accrued.GreaterThan(inst.InterestDue) {
			next.InterestDue = accrued
			next.TotalDue = inst.PrincipalDue.Add(accrued)
		}
	}

	changed := next.Status != inst.Status ||
		!next.InterestDue.Equal(inst.InterestDue) ||
		!next.TotalDue.Equal(inst.TotalDue)
	return &next, changed
}

// AccrueOverdue walks every active loan with open installments due before asOf and
// marks them overdue, accruing interest for each whole period elapsed. Each loan is
// processed in its own transaction holding the loan row lock. A failing loan is logged
// and counted; it does not stop the run. A zero asOf means today.
func (s *AccrualService) AccrueOverdue(ctx context.Context, asOf time.Time) (*domain.AccrualResult, error) {
	if asOf.IsZero() {
		asOf = util.Today()
	}
	asOf = util.DateOnly(asOf)

	loanIDs, err := s.installmentRepo.ListLoanIDsForAccrual(ctx, asOf)
	if err != nil {
		return nil, domain.StorageError(err)
	}

	result := &domain.AccrualResult{AsOf: asOf}
	for _, loanID := range loanIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.LoansScanned++
		updated, err := s.accrueLoan(ctx, loanID, asOf)
		if err != nil {
			result.Errors++
			s.logger.Error().
				Err(err).
				Int32("loan_id", loanID).
				Msg("Failed to accrue overdue interest")
			continue
		}
		result.UpdatedCount += updated
	}

	s.logger.Info().
		Str("as_of", util.FormatDate(asOf)).
		Str("policy", string(s.policy)).
		Int("loans_scanned", result.LoansScanned).
		Int("updated_count", result.UpdatedCount).
		Int("errors", result.Errors).
		Msg("Overdue accrual complete")
	return result, nil
}

func (s *AccrualService) accrueLoan(ctx context.Context, loanID int32, asOf time.Time) (int, error) {
	updated := 0
	err := s.tx.WithinTx(ctx, func(tx any) error {
		loan, err := s.loanRepo.GetByIDForUpdateTx(ctx, tx, loanID)
		if err != nil {
			return err
		}
		// status may have changed between listing and locking
		if loan.Status != domain.LoanStatusActive {
			return nil
		}

		installments, err := s.installmentRepo.GetByLoanIDTx(ctx, tx, loanID)
		if err != nil {
			return err
		}
		for _, inst := range installments {
			next, changed := AccrueInstallment(inst, loan.TermUnit, s.policy, asOf)
			if !changed {
				continue
			}
			if err := s.installmentRepo.UpdateAccrualTx(ctx, tx, next); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

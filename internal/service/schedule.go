package service

import (
	"time"

	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/util"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// InterestPerPeriod is the flat interest charged each period: ratePercent of the
// principal, rounded to the currency scale
func InterestPerPeriod(principal, ratePercent decimal.Decimal, scale int32) decimal.Decimal {
	return util.RoundMoney(principal.Mul(ratePercent).Div(hundred), scale)
}

// GenerateSchedule builds the repayment schedule of a loan without persisting it.
//
// Principal is split evenly with the rounding remainder on the final installment. Every
// installment carries the same flat interest, recorded a second time as OriginalInterest
// so overdue accrual always starts from the generated amount. Installment i is due i
// periods after start, always counted from start so month-end clamping never drifts.
func GenerateSchedule(
	loanID int32,
	principal decimal.Decimal,
	ratePercent decimal.Decimal,
	term int32,
	start time.Time,
	unit domain.TermUnit,
	scale int32,
) ([]*domain.Installment, error) {
	if err := domain.ValidateLoanTerms(principal, ratePercent, term, unit); err != nil {
		return nil, err
	}
	if start.IsZero() {
		return nil, domain.ErrInvalidDate
	}

	start = util.DateOnly(start)
	interest := InterestPerPeriod(principal, ratePercent, scale)
	shares := util.SplitEvenly(principal, int(term), scale)

	installments := make([]*domain.Installment, 0, term)
	for i := 1; i <= int(term); i++ {
		principalDue := shares[i-1]
		installments = append(installments, &domain.Installment{
			LoanID:           loanID,
			Sequence:         int32(i),
			DueDate:          unit.Advance(start, i),
			PrincipalDue:     principalDue,
			InterestDue:      interest,
			OriginalInterest: interest,
			TotalDue:         principalDue.Add(interest),
			AmountPaid:       decimal.Zero,
			PrincipalPaid:    decimal.Zero,
			InterestPaid:     decimal.Zero,
			Status:           domain.InstallmentPending,
		})
	}
	return installments, nil
}

// ScheduleTotals sums a schedule
func ScheduleTotals(installments []*domain.Installment) (principal, interest, total decimal.Decimal) {
	for _, inst := range installments {
		principal = principal.Add(inst.PrincipalDue)
		interest = interest.Add(inst.InterestDue)
		total = total.Add(inst.TotalDue)
	}
	return principal, interest, total
}

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanBalance is a read-only snapshot of what a loan owes and has received.
// Nothing here is persisted; it is recomputed on every read.
type LoanBalance struct {
	LoanID             int32           `json:"loanId"`
	Status             LoanStatus      `json:"status"`
	Principal          decimal.Decimal `json:"principal"`
	TotalDue           decimal.Decimal `json:"totalDue"`
	TotalPaid          decimal.Decimal `json:"totalPaid"`
	PrincipalPaid      decimal.Decimal `json:"principalPaid"`
	InterestPaid       decimal.Decimal `json:"interestPaid"`
	OutstandingBalance decimal.Decimal `json:"outstandingBalance"`
	Overpayment        decimal.Decimal `json:"overpayment"`
	InstallmentCount   int             `json:"installmentCount"`
	PaidCount          int             `json:"paidCount"`
	OverdueCount       int             `json:"overdueCount"`
	PaymentCount       int64           `json:"paymentCount"`
	// ScheduleMissing is set when the loan has no installments and TotalDue fell back to the principal
	ScheduleMissing bool `json:"scheduleMissing"`
	// OverpaymentApproximated is set when legacy payments lacked a persisted split
	OverpaymentApproximated bool `json:"overpaymentApproximated"`
}

// CustomerBalance sums the balances of every loan a customer holds
type CustomerBalance struct {
	CustomerID         uuid.UUID       `json:"customerId"`
	LoanCount          int             `json:"loanCount"`
	TotalDue           decimal.Decimal `json:"totalDue"`
	TotalPaid          decimal.Decimal `json:"totalPaid"`
	OutstandingBalance decimal.Decimal `json:"outstandingBalance"`
	Overpayment        decimal.Decimal `json:"overpayment"`
	Loans              []*LoanBalance  `json:"loans"`
}

// AccrualResult summarises one overdue accrual run
type AccrualResult struct {
	AsOf         time.Time `json:"asOf"`
	LoansScanned int       `json:"loansScanned"`
	UpdatedCount int       `json:"updatedCount"`
	Errors       int       `json:"errors"`
}

// OverdueNotifyResult summarises one overdue notification run
type OverdueNotifyResult struct {
	AsOf          time.Time `json:"asOf"`
	LoansOverdue  int       `json:"loansOverdue"`
	Notifications int       `json:"notifications"`
	Skipped       int       `json:"skipped"`
	Errors        int       `json:"errors"`
}

// OverduePeriodPolicy decides how many whole periods an installment is overdue
type OverduePeriodPolicy string

const (
	// OverduePolicyFixed counts weeks as 7 days and months as 30 days
	OverduePolicyFixed OverduePeriodPolicy = "fixed"
	// OverduePolicyCalendar counts months as whole calendar months
	OverduePolicyCalendar OverduePeriodPolicy = "calendar"
)

// ParseOverduePeriodPolicy accepts "fixed" or "calendar"; empty means fixed
func ParseOverduePeriodPolicy(s string) (OverduePeriodPolicy, error) {
	switch OverduePeriodPolicy(s) {
	case "", OverduePolicyFixed:
		return OverduePolicyFixed, nil
	case OverduePolicyCalendar:
		return OverduePolicyCalendar, nil
	}
	return "", fmt.Errorf("unknown overdue period policy %q", s)
}

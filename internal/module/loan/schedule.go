package loan

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/coopledger/pkg/money"
)

var monthsPerYear = decimal.NewFromInt(12)

// EMI returns the equal monthly installment of a reducing-balance loan,
// P·r·(1+r)^n / ((1+r)^n − 1) with r the monthly rate. A zero rate
// spreads the principal evenly.
func EMI(principal, annualRate decimal.Decimal, months int) decimal.Decimal {
	if months <= 0 {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(months))
	if annualRate.IsZero() {
		return money.Round(principal.Div(n))
	}

	r := annualRate.Div(monthsPerYear)
	factor := decimal.NewFromInt(1)
	onePlusR := factor.Add(r)
	for i := 0; i < months; i++ {
		factor = factor.Mul(onePlusR)
	}
	return money.Round(principal.Mul(r).Mul(factor).Div(factor.Sub(decimal.NewFromInt(1))))
}

// BuildSchedule lays out the reducing-balance EMI schedule. Interest for a
// month is charged on the opening balance; the last installment takes the
// remaining balance so the principal column sums to exactly principal.
// The first installment falls due one month after start.
func BuildSchedule(principal, annualRate decimal.Decimal, months int, start time.Time) []*Installment {
	principal = money.Round(principal)
	if months <= 0 || !principal.IsPositive() {
		return nil
	}

	emi := EMI(principal, annualRate, months)
	r := annualRate.Div(monthsPerYear)
	balance := principal
	schedule := make([]*Installment, 0, months)

	for i := 1; i <= months; i++ {
		interest := money.Round(balance.Mul(r))
		part := emi.Sub(interest)
		if i == months || part.GreaterThan(balance) {
			part = balance
		}
		if part.IsNegative() {
			part = decimal.Zero
		}
		balance = balance.Sub(part)

		schedule = append(schedule, &Installment{
			ID:            uuid.New(),
			InstallmentNo: i,
			DueDate:       start.AddDate(0, i, 0),
			Principal:     part,
			Interest:      interest,
			Total:         part.Add(interest),
			BalanceAfter:  balance,
		})
	}
	return schedule
}

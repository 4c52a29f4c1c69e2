package payroll

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/coopledger/pkg/money"
)

// Status is the lifecycle state of a payroll run
type Status string

const (
	StatusDraft     Status = "draft"
	StatusFinalized Status = "finalized"
)

// Run is one period's salary batch
type Run struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Period         string
	Status         Status
	TotalGross     decimal.Decimal
	TotalTDS       decimal.Decimal
	TotalNet       decimal.Decimal
	JournalEntryID *uuid.UUID
	FinalizedAt    *time.Time
	CreatedAt      time.Time
	Items          []*Item
}

// Item is one employee's line in a run. TDS and Net are computed at finalize.
type Item struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	RunID        uuid.UUID
	EmployeeID   uuid.UUID
	EmployeeName string
	Gross        decimal.Decimal
	TaxRate      decimal.Decimal
	TDS          decimal.Decimal
	Net          decimal.Decimal
}

// ItemInput is a caller-supplied payroll line
type ItemInput struct {
	EmployeeID   uuid.UUID
	EmployeeName string
	Gross        decimal.Decimal
	TaxRate      decimal.Decimal
}

// Validate checks one payroll line
func (i ItemInput) Validate() error {
	if i.EmployeeID == uuid.Nil {
		return ErrMissingEmployee
	}
	if !money.IsPositive(i.Gross) {
		return ErrInvalidGross
	}
	if i.TaxRate.IsNegative() || i.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return ErrInvalidTaxRate
	}
	return nil
}

// CreateRunParams is the input of CreateRun
type CreateRunParams struct {
	TenantID uuid.UUID
	Period   string
	Items    []ItemInput
}

// Validate checks the parameters that do not need storage
func (p CreateRunParams) Validate() error {
	if strings.TrimSpace(p.Period) == "" {
		return ErrMissingPeriod
	}
	if len(p.Items) == 0 {
		return ErrNoItems
	}
	for _, item := range p.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// computeTotals fills TDS and Net per item and the run totals
func (r *Run) computeTotals() {
	gross, tds, net := decimal.Zero, decimal.Zero, decimal.Zero
	for _, item := range r.Items {
		item.Gross = money.Round(item.Gross)
		item.TDS, item.Net = money.SplitTax(item.Gross, item.TaxRate)
		gross = gross.Add(item.Gross)
		tds = tds.Add(item.TDS)
		net = net.Add(item.Net)
	}
	r.TotalGross = money.Round(gross)
	r.TotalTDS = money.Round(tds)
	r.TotalNet = money.Round(net)
}

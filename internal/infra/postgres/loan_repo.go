package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/coopledger/internal/module/loan"
)

const (
	loanProductColumns     = `id, tenant_id, name, interest_rate, max_tenure_months, created_at`
	loanApplicationColumns = `id, tenant_id, member_id, product_id, loan_no, principal, interest_rate, tenure_months, outstanding, status, disburse_cash, disbursed_on, disbursement_entry, created_at, updated_at`
	installmentColumns     = `id, tenant_id, loan_id, installment_no, due_date, principal, interest, total, balance_after, paid_on, journal_entry_id`
)

// LoanRepository implements loan.Repository for PostgreSQL
type LoanRepository struct {
	pool *pgxpool.Pool
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(pool *pgxpool.Pool) *LoanRepository {
	return &LoanRepository{pool: pool}
}

// CreateProduct inserts a loan product
func (r *LoanRepository) CreateProduct(ctx context.Context, p *loan.Product) error {
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO loan_products (`+loanProductColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.TenantID, p.Name, p.InterestRate, p.MaxTenureMonths, p.CreatedAt)
	if err != nil {
		return classify(err, "failed to create loan product")
	}
	return nil
}

// GetProduct retrieves a loan product by ID
func (r *LoanRepository) GetProduct(ctx context.Context, tenantID, id uuid.UUID) (*loan.Product, error) {
	q := getQueryer(ctx, r.pool)
	var p loan.Product
	err := q.QueryRow(ctx, `SELECT `+loanProductColumns+` FROM loan_products WHERE tenant_id = $1 AND id = $2`, tenantID, id).
		Scan(&p.ID, &p.TenantID, &p.Name, &p.InterestRate, &p.MaxTenureMonths, &p.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, loan.ErrProductNotFound
		}
		return nil, classify(err, "failed to get loan product")
	}
	return &p, nil
}

// CreateApplication inserts a loan application
func (r *LoanRepository) CreateApplication(ctx context.Context, a *loan.Application) error {
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO loan_applications (`+loanApplicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		a.ID,
		a.TenantID,
		a.MemberID,
		a.ProductID,
		a.LoanNo,
		a.Principal,
		a.InterestRate,
		a.TenureMonths,
		a.Outstanding,
		string(a.Status),
		a.DisburseCash,
		a.DisbursedOn,
		a.DisbursementEntry,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return classify(err, "failed to create loan application")
	}
	return nil
}

// GetApplication retrieves a loan application by ID
func (r *LoanRepository) GetApplication(ctx context.Context, tenantID, id uuid.UUID) (*loan.Application, error) {
	return r.getApplication(ctx, tenantID, id, false)
}

// GetApplicationForUpdate retrieves a loan application with its row locked
func (r *LoanRepository) GetApplicationForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*loan.Application, error) {
	return r.getApplication(ctx, tenantID, id, true)
}

func (r *LoanRepository) getApplication(ctx context.Context, tenantID, id uuid.UUID, forUpdate bool) (*loan.Application, error) {
	q := getQueryer(ctx, r.pool)
	row := q.QueryRow(ctx, `
		SELECT `+loanApplicationColumns+`
		FROM loan_applications
		WHERE tenant_id = $1 AND id = $2
	`+lockClause(ctx, forUpdate), tenantID, id)

	app, err := scanApplication(row)
	if err != nil {
		if isNoRows(err) {
			return nil, loan.ErrApplicationNotFound
		}
		return nil, classify(err, "failed to get loan application")
	}
	return app, nil
}

// UpdateApplication saves outstanding, status and disbursement details
func (r *LoanRepository) UpdateApplication(ctx context.Context, a *loan.Application) error {
	q := getQueryer(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE loan_applications
		SET outstanding = $3,
			status = $4,
			disbursed_on = $5,
			disbursement_entry = $6,
			updated_at = $7
		WHERE tenant_id = $1 AND id = $2
	`, a.TenantID, a.ID, a.Outstanding, string(a.Status), a.DisbursedOn, a.DisbursementEntry, a.UpdatedAt)
	if err != nil {
		return classify(err, "failed to update loan application")
	}
	if tag.RowsAffected() == 0 {
		return loan.ErrApplicationNotFound
	}
	return nil
}

// UpdateStatus saves a workflow status change
func (r *LoanRepository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status loan.Status) error {
	q := getQueryer(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE loan_applications SET status = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, string(status))
	if err != nil {
		return classify(err, "failed to update loan status")
	}
	if tag.RowsAffected() == 0 {
		return loan.ErrApplicationNotFound
	}
	return nil
}

// CreateSchedule inserts the EMI schedule in one batch
func (r *LoanRepository) CreateSchedule(ctx context.Context, installments []*loan.Installment) error {
	if len(installments) == 0 {
		return nil
	}

	q := getQueryer(ctx, r.pool)
	batch := &pgx.Batch{}
	for _, i := range installments {
		batch.Queue(`
			INSERT INTO loan_emi_schedules (`+installmentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			i.ID,
			i.TenantID,
			i.LoanID,
			i.InstallmentNo,
			i.DueDate,
			i.Principal,
			i.Interest,
			i.Total,
			i.BalanceAfter,
			i.PaidOn,
			i.JournalEntryID,
		)
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return classify(err, "failed to create EMI schedule")
		}
	}
	return nil
}

// ListSchedule returns a loan's installments in order
func (r *LoanRepository) ListSchedule(ctx context.Context, tenantID, loanID uuid.UUID) ([]*loan.Installment, error) {
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+installmentColumns+`
		FROM loan_emi_schedules
		WHERE tenant_id = $1 AND loan_id = $2
		ORDER BY installment_no
	`, tenantID, loanID)
	if err != nil {
		return nil, classify(err, "failed to list EMI schedule")
	}
	defer rows.Close()

	var out []*loan.Installment
	for rows.Next() {
		var i loan.Installment
		if err := rows.Scan(
			&i.ID,
			&i.TenantID,
			&i.LoanID,
			&i.InstallmentNo,
			&i.DueDate,
			&i.Principal,
			&i.Interest,
			&i.Total,
			&i.BalanceAfter,
			&i.PaidOn,
			&i.JournalEntryID,
		); err != nil {
			return nil, classify(err, "failed to scan installment")
		}
		out = append(out, &i)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to iterate EMI schedule")
	}
	return out, nil
}

// UpdateInstallment marks an installment paid
func (r *LoanRepository) UpdateInstallment(ctx context.Context, i *loan.Installment) error {
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, `
		UPDATE loan_emi_schedules SET paid_on = $3, journal_entry_id = $4
		WHERE tenant_id = $1 AND id = $2
	`, i.TenantID, i.ID, i.PaidOn, i.JournalEntryID)
	if err != nil {
		return classify(err, "failed to update installment")
	}
	return nil
}

func scanApplication(row pgx.Row) (*loan.Application, error) {
	var a loan.Application
	var status string
	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.MemberID,
		&a.ProductID,
		&a.LoanNo,
		&a.Principal,
		&a.InterestRate,
		&a.TenureMonths,
		&a.Outstanding,
		&status,
		&a.DisburseCash,
		&a.DisbursedOn,
		&a.DisbursementEntry,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = loan.Status(status)
	return &a, nil
}

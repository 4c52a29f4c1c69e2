package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/coopledger/internal/module/payroll"
)

const (
	payrollRunColumns  = `id, tenant_id, period, status, total_gross, total_tds, total_net, journal_entry_id, finalized_at, created_at`
	payrollItemColumns = `id, tenant_id, run_id, employee_id, employee_name, gross, tax_rate, tds, net`
)

// PayrollRepository implements payroll.Repository for PostgreSQL
type PayrollRepository struct {
	pool *pgxpool.Pool
}

// NewPayrollRepository creates a new payroll repository
func NewPayrollRepository(pool *pgxpool.Pool) *PayrollRepository {
	return &PayrollRepository{pool: pool}
}

// CreateRun inserts a run and its items in one batch
func (r *PayrollRepository) CreateRun(ctx context.Context, run *payroll.Run) error {
	q := getQueryer(ctx, r.pool)

	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO payroll_runs (`+payrollRunColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		run.ID,
		run.TenantID,
		run.Period,
		string(run.Status),
		run.TotalGross,
		run.TotalTDS,
		run.TotalNet,
		run.JournalEntryID,
		run.FinalizedAt,
		run.CreatedAt,
	)
	for _, item := range run.Items {
		batch.Queue(`
			INSERT INTO payroll_items (`+payrollItemColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			item.ID,
			item.TenantID,
			item.RunID,
			item.EmployeeID,
			item.EmployeeName,
			item.Gross,
			item.TaxRate,
			item.TDS,
			item.Net,
		)
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			if isUniqueViolation(err, "payroll_runs_tenant_period_key") {
				return payroll.ErrDuplicatePeriod
			}
			return classify(err, "failed to create payroll run")
		}
	}
	return nil
}

// GetRun retrieves a run with its items
func (r *PayrollRepository) GetRun(ctx context.Context, tenantID, id uuid.UUID) (*payroll.Run, error) {
	return r.getRun(ctx, tenantID, id, false)
}

// GetRunForUpdate retrieves a run with its row locked, and its items
func (r *PayrollRepository) GetRunForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*payroll.Run, error) {
	return r.getRun(ctx, tenantID, id, true)
}

func (r *PayrollRepository) getRun(ctx context.Context, tenantID, id uuid.UUID, forUpdate bool) (*payroll.Run, error) {
	q := getQueryer(ctx, r.pool)

	var run payroll.Run
	var status string
	err := q.QueryRow(ctx, `
		SELECT `+payrollRunColumns+`
		FROM payroll_runs
		WHERE tenant_id = $1 AND id = $2
	`+lockClause(ctx, forUpdate), tenantID, id).Scan(
		&run.ID,
		&run.TenantID,
		&run.Period,
		&status,
		&run.TotalGross,
		&run.TotalTDS,
		&run.TotalNet,
		&run.JournalEntryID,
		&run.FinalizedAt,
		&run.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, payroll.ErrRunNotFound
		}
		return nil, classify(err, "failed to get payroll run")
	}
	run.Status = payroll.Status(status)

	rows, err := q.Query(ctx, `
		SELECT `+payrollItemColumns+`
		FROM payroll_items
		WHERE run_id = $1
		ORDER BY employee_name, id
	`, run.ID)
	if err != nil {
		return nil, classify(err, "failed to get payroll items")
	}
	defer rows.Close()

	for rows.Next() {
		var item payroll.Item
		if err := rows.Scan(
			&item.ID,
			&item.TenantID,
			&item.RunID,
			&item.EmployeeID,
			&item.EmployeeName,
			&item.Gross,
			&item.TaxRate,
			&item.TDS,
			&item.Net,
		); err != nil {
			return nil, classify(err, "failed to scan payroll item")
		}
		run.Items = append(run.Items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to iterate payroll items")
	}
	return &run, nil
}

// UpdateRun saves the run's status and totals and each item's TDS and net
func (r *PayrollRepository) UpdateRun(ctx context.Context, run *payroll.Run) error {
	q := getQueryer(ctx, r.pool)

	batch := &pgx.Batch{}
	batch.Queue(`
		UPDATE payroll_runs
		SET status = $3,
			total_gross = $4,
			total_tds = $5,
			total_net = $6,
			journal_entry_id = $7,
			finalized_at = $8
		WHERE tenant_id = $1 AND id = $2
	`,
		run.TenantID,
		run.ID,
		string(run.Status),
		run.TotalGross,
		run.TotalTDS,
		run.TotalNet,
		run.JournalEntryID,
		run.FinalizedAt,
	)
	for _, item := range run.Items {
		batch.Queue(`UPDATE payroll_items SET tds = $2, net = $3 WHERE id = $1`, item.ID, item.TDS, item.Net)
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()

	tag, err := br.Exec()
	if err != nil {
		return classify(err, "failed to update payroll run")
	}
	if tag.RowsAffected() == 0 {
		return payroll.ErrRunNotFound
	}
	for i := 1; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return classify(err, "failed to update payroll item")
		}
	}
	return nil
}

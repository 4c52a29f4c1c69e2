package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/coopledger/internal/module/savings"
)

const (
	savingProductColumns     = `id, tenant_id, name, interest_rate, tax_rate, minimum_balance, created_at`
	savingAccountColumns     = `id, tenant_id, member_id, product_id, account_no, balance, interest_accrued, status, last_accrued_on, created_at, updated_at`
	savingTransactionColumns = `id, tenant_id, account_id, transaction_no, type, amount, tds, balance_after, is_cash, journal_entry_id, created_at`
)

// SavingsRepository implements savings.Repository for PostgreSQL
type SavingsRepository struct {
	pool *pgxpool.Pool
}

// NewSavingsRepository creates a new savings repository
func NewSavingsRepository(pool *pgxpool.Pool) *SavingsRepository {
	return &SavingsRepository{pool: pool}
}

// CreateProduct inserts a saving product
func (r *SavingsRepository) CreateProduct(ctx context.Context, p *savings.Product) error {
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO saving_products (`+savingProductColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.TenantID, p.Name, p.InterestRate, p.TaxRate, p.MinimumBalance, p.CreatedAt)
	if err != nil {
		return classify(err, "failed to create saving product")
	}
	return nil
}

// GetProduct retrieves a saving product by ID
func (r *SavingsRepository) GetProduct(ctx context.Context, tenantID, id uuid.UUID) (*savings.Product, error) {
	q := getQueryer(ctx, r.pool)
	var p savings.Product
	err := q.QueryRow(ctx, `SELECT `+savingProductColumns+` FROM saving_products WHERE tenant_id = $1 AND id = $2`, tenantID, id).
		Scan(&p.ID, &p.TenantID, &p.Name, &p.InterestRate, &p.TaxRate, &p.MinimumBalance, &p.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, savings.ErrProductNotFound
		}
		return nil, classify(err, "failed to get saving product")
	}
	return &p, nil
}

// CreateAccount inserts a saving account
func (r *SavingsRepository) CreateAccount(ctx context.Context, a *savings.Account) error {
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO saving_accounts (`+savingAccountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		a.ID,
		a.TenantID,
		a.MemberID,
		a.ProductID,
		a.AccountNo,
		a.Balance,
		a.InterestAccrued,
		string(a.Status),
		a.LastAccruedOn,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return classify(err, "failed to create saving account")
	}
	return nil
}

// GetAccount retrieves a saving account by ID
func (r *SavingsRepository) GetAccount(ctx context.Context, tenantID, id uuid.UUID) (*savings.Account, error) {
	return r.getAccount(ctx, tenantID, id, false)
}

// GetAccountForUpdate retrieves a saving account with its row locked
func (r *SavingsRepository) GetAccountForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*savings.Account, error) {
	return r.getAccount(ctx, tenantID, id, true)
}

func (r *SavingsRepository) getAccount(ctx context.Context, tenantID, id uuid.UUID, forUpdate bool) (*savings.Account, error) {
	q := getQueryer(ctx, r.pool)
	row := q.QueryRow(ctx, `
		SELECT `+savingAccountColumns+`
		FROM saving_accounts
		WHERE tenant_id = $1 AND id = $2
	`+lockClause(ctx, forUpdate), tenantID, id)

	account, err := scanSavingAccount(row)
	if err != nil {
		if isNoRows(err) {
			return nil, savings.ErrAccountNotFound
		}
		return nil, classify(err, "failed to get saving account")
	}
	return account, nil
}

// UpdateAccount saves balance, accrual and status
func (r *SavingsRepository) UpdateAccount(ctx context.Context, a *savings.Account) error {
	q := getQueryer(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE saving_accounts
		SET balance = $3,
			interest_accrued = $4,
			status = $5,
			last_accrued_on = $6,
			updated_at = $7
		WHERE tenant_id = $1 AND id = $2
	`, a.TenantID, a.ID, a.Balance, a.InterestAccrued, string(a.Status), a.LastAccruedOn, a.UpdatedAt)
	if err != nil {
		return classify(err, "failed to update saving account")
	}
	if tag.RowsAffected() == 0 {
		return savings.ErrAccountNotFound
	}
	return nil
}

// CreateTransaction records a saving movement
func (r *SavingsRepository) CreateTransaction(ctx context.Context, t *savings.Transaction) error {
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO saving_transactions (`+savingTransactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		t.ID,
		t.TenantID,
		t.AccountID,
		t.TransactionNo,
		string(t.Type),
		t.Amount,
		t.TDS,
		t.BalanceAfter,
		t.IsCash,
		t.JournalEntryID,
		t.CreatedAt,
	)
	if err != nil {
		return classify(err, "failed to create saving transaction")
	}
	return nil
}

// ListTransactions returns an account's movements, oldest first
func (r *SavingsRepository) ListTransactions(ctx context.Context, tenantID, accountID uuid.UUID) ([]*savings.Transaction, error) {
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+savingTransactionColumns+`
		FROM saving_transactions
		WHERE tenant_id = $1 AND account_id = $2
		ORDER BY created_at, transaction_no
	`, tenantID, accountID)
	if err != nil {
		return nil, classify(err, "failed to list saving transactions")
	}
	defer rows.Close()

	var out []*savings.Transaction
	for rows.Next() {
		var t savings.Transaction
		var txType string
		if err := rows.Scan(
			&t.ID,
			&t.TenantID,
			&t.AccountID,
			&t.TransactionNo,
			&txType,
			&t.Amount,
			&t.TDS,
			&t.BalanceAfter,
			&t.IsCash,
			&t.JournalEntryID,
			&t.CreatedAt,
		); err != nil {
			return nil, classify(err, "failed to scan saving transaction")
		}
		t.Type = savings.TransactionType(txType)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to iterate saving transactions")
	}
	return out, nil
}

func scanSavingAccount(row pgx.Row) (*savings.Account, error) {
	var a savings.Account
	var status string
	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.MemberID,
		&a.ProductID,
		&a.AccountNo,
		&a.Balance,
		&a.InterestAccrued,
		&status,
		&a.LastAccruedOn,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = savings.AccountStatus(status)
	return &a, nil
}

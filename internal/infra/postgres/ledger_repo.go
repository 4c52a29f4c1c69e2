package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/coopledger/internal/ledger"
)

// LedgerRepository implements ledger.Repository using PostgreSQL
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Account operations

const accountColumns = `id, tenant_id, code, name, type, is_group, is_active, parent_id, created_at`

// CreateAccount inserts an account together with its zero balance row
func (r *LedgerRepository) CreateAccount(ctx context.Context, account *ledger.Account) error {
	q := getQueryer(ctx, r.pool)

	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		account.ID,
		account.TenantID,
		account.Code,
		account.Name,
		string(account.Type),
		account.IsGroup,
		account.IsActive,
		account.ParentID,
		account.CreatedAt,
	)
	batch.Queue(`
		INSERT INTO account_balances (account_id, tenant_id, debit_total, credit_total, balance, updated_at)
		VALUES ($1, $2, 0, 0, 0, $3)
	`, account.ID, account.TenantID, account.CreatedAt)

	br := q.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			if isUniqueViolation(err, "accounts_tenant_code_key") {
				return ledger.ErrDuplicateAccountCode
			}
			return classify(err, "failed to create account")
		}
	}
	return nil
}

// GetAccount retrieves an account by ID within a tenant
func (r *LedgerRepository) GetAccount(ctx context.Context, tenantID, id uuid.UUID) (*ledger.Account, error) {
	q := getQueryer(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id = $1 AND id = $2`, tenantID, id)

	account, err := scanAccount(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, classify(err, "failed to get account")
	}
	return account, nil
}

// GetAccountByCode retrieves an account by its structured code
func (r *LedgerRepository) GetAccountByCode(ctx context.Context, tenantID uuid.UUID, code string) (*ledger.Account, error) {
	q := getQueryer(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id = $1 AND code = $2`, tenantID, code)

	account, err := scanAccount(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, classify(err, "failed to get account by code")
	}
	return account, nil
}

// GetAccountsForPosting loads the accounts of an entry with FOR SHARE so a
// concurrent deactivation waits for the posting to finish.
func (r *LedgerRepository) GetAccountsForPosting(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE tenant_id = $1 AND id = ANY($2) ORDER BY id`
	if stateFrom(ctx) != nil {
		query += " FOR SHARE"
	}

	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, query, tenantID, ids)
	if err != nil {
		return nil, classify(err, "failed to query accounts")
	}
	defer rows.Close()

	accounts := make(map[uuid.UUID]*ledger.Account, len(ids))
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, classify(err, "failed to scan account")
		}
		accounts[account.ID] = account
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "error iterating accounts")
	}
	return accounts, nil
}

// ListAccounts returns the tenant's chart ordered by code
func (r *LedgerRepository) ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]*ledger.Account, error) {
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id = $1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, classify(err, "failed to list accounts")
	}
	defer rows.Close()

	var accounts []*ledger.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, classify(err, "failed to scan account")
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "error iterating accounts")
	}
	return accounts, nil
}

// SetAccountActive flips the active flag of an account
func (r *LedgerRepository) SetAccountActive(ctx context.Context, tenantID, id uuid.UUID, active bool) error {
	q := getQueryer(ctx, r.pool)
	tag, err := q.Exec(ctx, `UPDATE accounts SET is_active = $3 WHERE tenant_id = $1 AND id = $2`, tenantID, id, active)
	if err != nil {
		return classify(err, "failed to update account")
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*ledger.Account, error) {
	var a ledger.Account
	var accountType string
	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.Code,
		&a.Name,
		&accountType,
		&a.IsGroup,
		&a.IsActive,
		&a.ParentID,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Type = ledger.AccountType(accountType)
	return &a, nil
}

// Product-GL map operations

// UpsertProductMapping creates or replaces a mapping
func (r *LedgerRepository) UpsertProductMapping(ctx context.Context, m *ledger.ProductGLMap) error {
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO product_gl_maps (tenant_id, product_type, product_id, mapping_key, account_code, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, product_type, product_id, mapping_key)
		DO UPDATE SET
			account_code = EXCLUDED.account_code,
			updated_at = EXCLUDED.updated_at
	`,
		m.TenantID,
		string(m.ProductType),
		m.ProductID,
		string(m.Key),
		m.AccountCode,
		m.UpdatedAt,
	)
	if err != nil {
		return classify(err, "failed to upsert product mapping")
	}
	return nil
}

// GetProductMapping returns one mapping with no fallback between products
func (r *LedgerRepository) GetProductMapping(ctx context.Context, tenantID uuid.UUID, productType ledger.ProductType, productID uuid.UUID, key ledger.MappingKey) (*ledger.ProductGLMap, error) {
	q := getQueryer(ctx, r.pool)

	m := ledger.ProductGLMap{TenantID: tenantID, ProductType: productType, ProductID: productID, Key: key}
	err := q.QueryRow(ctx, `
		SELECT account_code, updated_at
		FROM product_gl_maps
		WHERE tenant_id = $1 AND product_type = $2 AND product_id = $3 AND mapping_key = $4
	`, tenantID, string(productType), productID, string(key)).Scan(&m.AccountCode, &m.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrGLMappingNotConfigured
		}
		return nil, classify(err, "failed to get product mapping")
	}
	return &m, nil
}

// Journal operations

// CreateJournalEntry writes the entry header and all lines in one batch
func (r *LedgerRepository) CreateJournalEntry(ctx context.Context, entry *ledger.JournalEntry) error {
	q := getQueryer(ctx, r.pool)

	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO journal_entries (id, tenant_id, entry_no, description, posting_date, source_type, source_id, reversal_of, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		entry.ID,
		entry.TenantID,
		entry.EntryNo,
		entry.Description,
		entry.PostingDate,
		entry.SourceType,
		entry.SourceID,
		entry.ReversalOf,
		entry.CreatedAt,
	)

	for _, line := range entry.Lines {
		var subledgerType *string
		var subledgerID *uuid.UUID
		if line.Subledger != nil {
			subledgerType = &line.Subledger.Type
			subledgerID = &line.Subledger.ID
		}
		batch.Queue(`
			INSERT INTO journal_lines (id, tenant_id, entry_id, line_no, account_id, debit, credit, narration, subledger_type, subledger_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			line.ID,
			entry.TenantID,
			entry.ID,
			line.LineNo,
			line.AccountID,
			line.Debit,
			line.Credit,
			line.Narration,
			subledgerType,
			subledgerID,
		)
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			if isUniqueViolation(err, "journal_entries_reversal_of_key") {
				return ledger.ErrAlreadyReversed
			}
			return classify(err, "failed to insert journal entry")
		}
	}
	return nil
}

const entryColumns = `id, tenant_id, entry_no, description, posting_date, source_type, source_id, reversal_of, created_at`

// GetJournalEntry retrieves an entry with its lines
func (r *LedgerRepository) GetJournalEntry(ctx context.Context, tenantID, id uuid.UUID) (*ledger.JournalEntry, error) {
	q := getQueryer(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id = $1 AND id = $2`, tenantID, id)

	entry, err := scanEntry(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrJournalEntryNotFound
		}
		return nil, classify(err, "failed to get journal entry")
	}

	if err := r.loadLines(ctx, []*ledger.JournalEntry{entry}); err != nil {
		return nil, err
	}
	return entry, nil
}

// FindReversal returns the entry that reverses entryID
func (r *LedgerRepository) FindReversal(ctx context.Context, tenantID, entryID uuid.UUID) (*ledger.JournalEntry, error) {
	q := getQueryer(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id = $1 AND reversal_of = $2`, tenantID, entryID)

	entry, err := scanEntry(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrJournalEntryNotFound
		}
		return nil, classify(err, "failed to find reversal")
	}
	return entry, nil
}

// ListJournalEntries lists entries with filters and pagination
func (r *LedgerRepository) ListJournalEntries(ctx context.Context, filters ledger.JournalFilters) ([]*ledger.JournalEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries je WHERE tenant_id = $1`
	args := []any{filters.TenantID}
	argPos := 2

	if filters.AccountID != nil {
		query += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM journal_lines jl WHERE jl.entry_id = je.id AND jl.account_id = $%d)", argPos)
		args = append(args, *filters.AccountID)
		argPos++
	}

	if filters.SourceType != nil {
		query += fmt.Sprintf(" AND source_type = $%d", argPos)
		args = append(args, *filters.SourceType)
		argPos++
	}

	if filters.SourceID != nil {
		query += fmt.Sprintf(" AND source_id = $%d", argPos)
		args = append(args, *filters.SourceID)
		argPos++
	}

	if filters.FromDate != nil {
		query += fmt.Sprintf(" AND posting_date >= $%d", argPos)
		args = append(args, *filters.FromDate)
		argPos++
	}

	if filters.ToDate != nil {
		query += fmt.Sprintf(" AND posting_date <= $%d", argPos)
		args = append(args, *filters.ToDate)
		argPos++
	}

	query += " ORDER BY posting_date DESC, entry_no DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filters.Limit)
		argPos++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, filters.Offset)
	}

	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "failed to query journal entries")
	}
	defer rows.Close()

	var entries []*ledger.JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, classify(err, "failed to scan journal entry")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "error iterating journal entries")
	}

	if err := r.loadLines(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *LedgerRepository) loadLines(ctx context.Context, entries []*ledger.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*ledger.JournalEntry, len(entries))
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT id, entry_id, line_no, account_id, debit, credit, narration, subledger_type, subledger_id
		FROM journal_lines
		WHERE entry_id = ANY($1)
		ORDER BY entry_id, line_no
	`, ids)
	if err != nil {
		return classify(err, "failed to query journal lines")
	}
	defer rows.Close()

	for rows.Next() {
		var l ledger.JournalLine
		var subledgerType *string
		var subledgerID *uuid.UUID
		if err := rows.Scan(
			&l.ID,
			&l.EntryID,
			&l.LineNo,
			&l.AccountID,
			&l.Debit,
			&l.Credit,
			&l.Narration,
			&subledgerType,
			&subledgerID,
		); err != nil {
			return classify(err, "failed to scan journal line")
		}
		if subledgerType != nil && subledgerID != nil {
			l.Subledger = &ledger.SubledgerRef{Type: *subledgerType, ID: *subledgerID}
		}
		if e, ok := byID[l.EntryID]; ok {
			e.Lines = append(e.Lines, &l)
		}
	}
	if err := rows.Err(); err != nil {
		return classify(err, "error iterating journal lines")
	}
	return nil
}

func scanEntry(row pgx.Row) (*ledger.JournalEntry, error) {
	var e ledger.JournalEntry
	err := row.Scan(
		&e.ID,
		&e.TenantID,
		&e.EntryNo,
		&e.Description,
		&e.PostingDate,
		&e.SourceType,
		&e.SourceID,
		&e.ReversalOf,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Balance operations

// GetAccountBalance retrieves the running balance of an account
func (r *LedgerRepository) GetAccountBalance(ctx context.Context, tenantID, accountID uuid.UUID) (*ledger.AccountBalance, error) {
	return r.getAccountBalance(ctx, tenantID, accountID, false)
}

// GetAccountBalanceForUpdate retrieves the balance with row-level locking (SELECT FOR UPDATE).
// Only meaningful inside a transaction.
func (r *LedgerRepository) GetAccountBalanceForUpdate(ctx context.Context, tenantID, accountID uuid.UUID) (*ledger.AccountBalance, error) {
	return r.getAccountBalance(ctx, tenantID, accountID, true)
}

func (r *LedgerRepository) getAccountBalance(ctx context.Context, tenantID, accountID uuid.UUID, forUpdate bool) (*ledger.AccountBalance, error) {
	query := `
		SELECT tenant_id, account_id, debit_total, credit_total, balance, updated_at
		FROM account_balances
		WHERE tenant_id = $1 AND account_id = $2
	` + lockClause(ctx, forUpdate)

	var b ledger.AccountBalance
	q := getQueryer(ctx, r.pool)
	err := q.QueryRow(ctx, query, tenantID, accountID).Scan(
		&b.TenantID,
		&b.AccountID,
		&b.DebitTotal,
		&b.CreditTotal,
		&b.Balance,
		&b.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			// Return zero balance if not found
			return &ledger.AccountBalance{
				TenantID:    tenantID,
				AccountID:   accountID,
				DebitTotal:  decimal.Zero,
				CreditTotal: decimal.Zero,
				Balance:     decimal.Zero,
				UpdatedAt:   time.Now().UTC(),
			}, nil
		}
		return nil, classify(err, "failed to get account balance")
	}
	return &b, nil
}

// UpsertAccountBalance creates or updates an account balance
func (r *LedgerRepository) UpsertAccountBalance(ctx context.Context, balance *ledger.AccountBalance) error {
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO account_balances (account_id, tenant_id, debit_total, credit_total, balance, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id)
		DO UPDATE SET
			debit_total = EXCLUDED.debit_total,
			credit_total = EXCLUDED.credit_total,
			balance = EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at
	`,
		balance.AccountID,
		balance.TenantID,
		balance.DebitTotal,
		balance.CreditTotal,
		balance.Balance,
		balance.UpdatedAt,
	)
	if err != nil {
		return classify(err, "failed to upsert account balance")
	}
	return nil
}

// CalculateBalanceFromLines sums every line posted against an account
func (r *LedgerRepository) CalculateBalanceFromLines(ctx context.Context, tenantID, accountID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	var debit, credit decimal.Decimal
	q := getQueryer(ctx, r.pool)
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(debit), 0), COALESCE(SUM(credit), 0)
		FROM journal_lines
		WHERE tenant_id = $1 AND account_id = $2
	`, tenantID, accountID).Scan(&debit, &credit)
	if err != nil {
		return decimal.Zero, decimal.Zero, classify(err, "failed to calculate balance from lines")
	}
	return debit, credit, nil
}

// SumSubledgerLines sums the lines of one sub-ledger entity on one account
func (r *LedgerRepository) SumSubledgerLines(ctx context.Context, tenantID, accountID uuid.UUID, ref ledger.SubledgerRef) (decimal.Decimal, decimal.Decimal, error) {
	var debit, credit decimal.Decimal
	q := getQueryer(ctx, r.pool)
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(debit), 0), COALESCE(SUM(credit), 0)
		FROM journal_lines
		WHERE tenant_id = $1 AND account_id = $2 AND subledger_type = $3 AND subledger_id = $4
	`, tenantID, accountID, ref.Type, ref.ID).Scan(&debit, &credit)
	if err != nil {
		return decimal.Zero, decimal.Zero, classify(err, "failed to sum sub-ledger lines")
	}
	return debit, credit, nil
}

package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/coopledger/internal/module/share"
)

const (
	shareClassColumns       = `id, tenant_id, name, unit_price, created_at`
	shareAccountColumns     = `id, tenant_id, member_id, share_class_id, total_kitta, amount, created_at, updated_at`
	shareTransactionColumns = `id, tenant_id, share_account_id, member_id, transaction_no, certificate_no, type, kitta, unit_price, amount, is_cash, journal_entry_id, created_at`
)

// ShareRepository implements share.Repository for PostgreSQL
type ShareRepository struct {
	pool *pgxpool.Pool
}

// NewShareRepository creates a new share repository
func NewShareRepository(pool *pgxpool.Pool) *ShareRepository {
	return &ShareRepository{pool: pool}
}

// CreateClass inserts a share class
func (r *ShareRepository) CreateClass(ctx context.Context, class *share.Class) error {
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO share_classes (`+shareClassColumns+`)
		VALUES ($1, $2, $3, $4, $5)
	`, class.ID, class.TenantID, class.Name, class.UnitPrice, class.CreatedAt)
	if err != nil {
		return classify(err, "failed to create share class")
	}
	return nil
}

// GetClass retrieves a share class by ID
func (r *ShareRepository) GetClass(ctx context.Context, tenantID, id uuid.UUID) (*share.Class, error) {
	q := getQueryer(ctx, r.pool)
	var c share.Class
	err := q.QueryRow(ctx, `SELECT `+shareClassColumns+` FROM share_classes WHERE tenant_id = $1 AND id = $2`, tenantID, id).
		Scan(&c.ID, &c.TenantID, &c.Name, &c.UnitPrice, &c.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, share.ErrShareClassNotFound
		}
		return nil, classify(err, "failed to get share class")
	}
	return &c, nil
}

// GetOrCreateAccountForUpdate inserts an empty holding unless one exists and
// then locks it. Two first purchases racing on the same member and class
// both end up on the single row the unique key allows.
func (r *ShareRepository) GetOrCreateAccountForUpdate(ctx context.Context, account *share.Account) (*share.Account, error) {
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO share_accounts (`+shareAccountColumns+`)
		VALUES ($1, $2, $3, $4, 0, 0, $5, $5)
		ON CONFLICT ON CONSTRAINT share_accounts_member_class_key DO NOTHING
	`, account.ID, account.TenantID, account.MemberID, account.ShareClassID, account.CreatedAt)
	if err != nil {
		return nil, classify(err, "failed to create share account")
	}
	return r.GetAccountForUpdate(ctx, account.TenantID, account.MemberID, account.ShareClassID)
}

// GetAccountForUpdate loads a member's holding in a class with its row locked
func (r *ShareRepository) GetAccountForUpdate(ctx context.Context, tenantID, memberID, classID uuid.UUID) (*share.Account, error) {
	q := getQueryer(ctx, r.pool)
	row := q.QueryRow(ctx, `
		SELECT `+shareAccountColumns+`
		FROM share_accounts
		WHERE tenant_id = $1 AND member_id = $2 AND share_class_id = $3
	`+lockClause(ctx, true), tenantID, memberID, classID)

	account, err := scanShareAccount(row)
	if err != nil {
		if isNoRows(err) {
			return nil, share.ErrShareAccountNotFound
		}
		return nil, classify(err, "failed to lock share account")
	}
	return account, nil
}

// GetAccount retrieves a share account by ID
func (r *ShareRepository) GetAccount(ctx context.Context, tenantID, id uuid.UUID) (*share.Account, error) {
	q := getQueryer(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+shareAccountColumns+` FROM share_accounts WHERE tenant_id = $1 AND id = $2`, tenantID, id)

	account, err := scanShareAccount(row)
	if err != nil {
		if isNoRows(err) {
			return nil, share.ErrShareAccountNotFound
		}
		return nil, classify(err, "failed to get share account")
	}
	return account, nil
}

// UpdateAccount saves the holding totals
func (r *ShareRepository) UpdateAccount(ctx context.Context, account *share.Account) error {
	q := getQueryer(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE share_accounts
		SET total_kitta = $3, amount = $4, updated_at = $5
		WHERE tenant_id = $1 AND id = $2
	`, account.TenantID, account.ID, account.TotalKitta, account.Amount, account.UpdatedAt)
	if err != nil {
		return classify(err, "failed to update share account")
	}
	if tag.RowsAffected() == 0 {
		return share.ErrShareAccountNotFound
	}
	return nil
}

// CreateTransaction records a share issue or return
func (r *ShareRepository) CreateTransaction(ctx context.Context, tx *share.Transaction) error {
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO share_transactions (`+shareTransactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		tx.ID,
		tx.TenantID,
		tx.ShareAccountID,
		tx.MemberID,
		tx.TransactionNo,
		tx.CertificateNo,
		string(tx.Type),
		tx.Kitta,
		tx.UnitPrice,
		tx.Amount,
		tx.IsCash,
		tx.JournalEntryID,
		tx.CreatedAt,
	)
	if err != nil {
		return classify(err, "failed to create share transaction")
	}
	return nil
}

// ListTransactions returns an account's movements, oldest first
func (r *ShareRepository) ListTransactions(ctx context.Context, tenantID, accountID uuid.UUID) ([]*share.Transaction, error) {
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+shareTransactionColumns+`
		FROM share_transactions
		WHERE tenant_id = $1 AND share_account_id = $2
		ORDER BY created_at, transaction_no
	`, tenantID, accountID)
	if err != nil {
		return nil, classify(err, "failed to list share transactions")
	}
	defer rows.Close()

	var out []*share.Transaction
	for rows.Next() {
		var t share.Transaction
		var txType string
		if err := rows.Scan(
			&t.ID,
			&t.TenantID,
			&t.ShareAccountID,
			&t.MemberID,
			&t.TransactionNo,
			&t.CertificateNo,
			&txType,
			&t.Kitta,
			&t.UnitPrice,
			&t.Amount,
			&t.IsCash,
			&t.JournalEntryID,
			&t.CreatedAt,
		); err != nil {
			return nil, classify(err, "failed to scan share transaction")
		}
		t.Type = share.TransactionType(txType)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to iterate share transactions")
	}
	return out, nil
}

func scanShareAccount(row pgx.Row) (*share.Account, error) {
	var a share.Account
	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.MemberID,
		&a.ShareClassID,
		&a.TotalKitta,
		&a.Amount,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

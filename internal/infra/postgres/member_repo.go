package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/coopledger/internal/module/member"
)

const memberColumns = `id, tenant_id, member_no, full_name, status, entry_fee, initial_kitta, share_class_id, pays_cash, entry_fee_entry_id, created_at, updated_at`

// MemberRepository implements member.Repository for PostgreSQL
type MemberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(pool *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

// Create inserts a member
func (r *MemberRepository) Create(ctx context.Context, m *member.Member) error {
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO members (`+memberColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		m.ID,
		m.TenantID,
		m.MemberNo,
		m.FullName,
		string(m.Status),
		m.EntryFee,
		m.InitialKitta,
		m.ShareClassID,
		m.PaysCash,
		m.EntryFeeEntryID,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return classify(err, "failed to create member")
	}
	return nil
}

// Get retrieves a member by ID
func (r *MemberRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*member.Member, error) {
	return r.get(ctx, tenantID, id, false)
}

// GetForUpdate retrieves a member with its row locked
func (r *MemberRepository) GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*member.Member, error) {
	return r.get(ctx, tenantID, id, true)
}

func (r *MemberRepository) get(ctx context.Context, tenantID, id uuid.UUID, forUpdate bool) (*member.Member, error) {
	q := getQueryer(ctx, r.pool)
	row := q.QueryRow(ctx, `
		SELECT `+memberColumns+`
		FROM members
		WHERE tenant_id = $1 AND id = $2
	`+lockClause(ctx, forUpdate), tenantID, id)

	m, err := scanMember(row)
	if err != nil {
		if isNoRows(err) {
			return nil, member.ErrMemberNotFound
		}
		return nil, classify(err, "failed to get member")
	}
	return m, nil
}

// Update saves status and the entry fee posting
func (r *MemberRepository) Update(ctx context.Context, m *member.Member) error {
	q := getQueryer(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE members
		SET status = $3, entry_fee_entry_id = $4, updated_at = $5
		WHERE tenant_id = $1 AND id = $2
	`, m.TenantID, m.ID, string(m.Status), m.EntryFeeEntryID, m.UpdatedAt)
	if err != nil {
		return classify(err, "failed to update member")
	}
	if tag.RowsAffected() == 0 {
		return member.ErrMemberNotFound
	}
	return nil
}

// UpdateStatus saves a workflow status change
func (r *MemberRepository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status member.Status) error {
	q := getQueryer(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE members SET status = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, string(status))
	if err != nil {
		return classify(err, "failed to update member status")
	}
	if tag.RowsAffected() == 0 {
		return member.ErrMemberNotFound
	}
	return nil
}

func scanMember(row pgx.Row) (*member.Member, error) {
	var m member.Member
	var status string
	err := row.Scan(
		&m.ID,
		&m.TenantID,
		&m.MemberNo,
		&m.FullName,
		&status,
		&m.EntryFee,
		&m.InitialKitta,
		&m.ShareClassID,
		&m.PaysCash,
		&m.EntryFeeEntryID,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Status = member.Status(status)
	return &m, nil
}

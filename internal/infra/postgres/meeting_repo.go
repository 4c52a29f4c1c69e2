package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/coopledger/internal/module/meeting"
)

const (
	meetingColumns  = `id, tenant_id, meeting_no, title, scheduled_at, allowance_tax_rate, status, journal_entry_id, created_at, updated_at`
	attendeeColumns = `id, tenant_id, meeting_id, attendee_id, name, allowance, tds, net`
)

// MeetingRepository implements meeting.Repository for PostgreSQL
type MeetingRepository struct {
	pool *pgxpool.Pool
}

// NewMeetingRepository creates a new meeting repository
func NewMeetingRepository(pool *pgxpool.Pool) *MeetingRepository {
	return &MeetingRepository{pool: pool}
}

// CreateMeeting inserts a meeting
func (r *MeetingRepository) CreateMeeting(ctx context.Context, m *meeting.Meeting) error {
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO meetings (`+meetingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		m.ID,
		m.TenantID,
		m.MeetingNo,
		m.Title,
		m.ScheduledAt,
		m.AllowanceTaxRate,
		string(m.Status),
		m.JournalEntryID,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return classify(err, "failed to create meeting")
	}
	return nil
}

// GetMeeting retrieves a meeting with its attendees
func (r *MeetingRepository) GetMeeting(ctx context.Context, tenantID, id uuid.UUID) (*meeting.Meeting, error) {
	return r.getMeeting(ctx, tenantID, id, false)
}

// GetMeetingForUpdate retrieves a meeting with its row locked, and its attendees
func (r *MeetingRepository) GetMeetingForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*meeting.Meeting, error) {
	return r.getMeeting(ctx, tenantID, id, true)
}

func (r *MeetingRepository) getMeeting(ctx context.Context, tenantID, id uuid.UUID, forUpdate bool) (*meeting.Meeting, error) {
	q := getQueryer(ctx, r.pool)

	var m meeting.Meeting
	var status string
	err := q.QueryRow(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE tenant_id = $1 AND id = $2
	`+lockClause(ctx, forUpdate), tenantID, id).Scan(
		&m.ID,
		&m.TenantID,
		&m.MeetingNo,
		&m.Title,
		&m.ScheduledAt,
		&m.AllowanceTaxRate,
		&status,
		&m.JournalEntryID,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, meeting.ErrMeetingNotFound
		}
		return nil, classify(err, "failed to get meeting")
	}
	m.Status = meeting.Status(status)

	rows, err := q.Query(ctx, `
		SELECT `+attendeeColumns+`
		FROM meeting_attendees
		WHERE meeting_id = $1
		ORDER BY name, id
	`, m.ID)
	if err != nil {
		return nil, classify(err, "failed to get meeting attendees")
	}
	defer rows.Close()

	for rows.Next() {
		var a meeting.Attendee
		if err := rows.Scan(
			&a.ID,
			&a.TenantID,
			&a.MeetingID,
			&a.AttendeeID,
			&a.Name,
			&a.Allowance,
			&a.TDS,
			&a.Net,
		); err != nil {
			return nil, classify(err, "failed to scan meeting attendee")
		}
		m.Attendees = append(m.Attendees, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to iterate meeting attendees")
	}
	return &m, nil
}

// UpdateMeeting saves status, settlement entry and the attendees' TDS and net
func (r *MeetingRepository) UpdateMeeting(ctx context.Context, m *meeting.Meeting) error {
	q := getQueryer(ctx, r.pool)

	batch := &pgx.Batch{}
	batch.Queue(`
		UPDATE meetings
		SET status = $3, journal_entry_id = $4, updated_at = $5
		WHERE tenant_id = $1 AND id = $2
	`, m.TenantID, m.ID, string(m.Status), m.JournalEntryID, m.UpdatedAt)
	for _, a := range m.Attendees {
		batch.Queue(`UPDATE meeting_attendees SET tds = $2, net = $3 WHERE id = $1`, a.ID, a.TDS, a.Net)
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()

	tag, err := br.Exec()
	if err != nil {
		return classify(err, "failed to update meeting")
	}
	if tag.RowsAffected() == 0 {
		return meeting.ErrMeetingNotFound
	}
	for i := 1; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return classify(err, "failed to update meeting attendee")
		}
	}
	return nil
}

// AddAttendee records one attendee's allowance
func (r *MeetingRepository) AddAttendee(ctx context.Context, a *meeting.Attendee) error {
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO meeting_attendees (`+attendeeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.TenantID, a.MeetingID, a.AttendeeID, a.Name, a.Allowance, a.TDS, a.Net)
	if err != nil {
		if isUniqueViolation(err, "meeting_attendees_meeting_id_attendee_id_key") {
			return meeting.ErrDuplicateAttendee
		}
		return classify(err, "failed to add meeting attendee")
	}
	return nil
}

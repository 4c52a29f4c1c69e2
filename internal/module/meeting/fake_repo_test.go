package meeting_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/module/meeting"
)

type memRepo struct {
	mu        sync.Mutex
	meetings  map[uuid.UUID]*meeting.Meeting
	attendees []*meeting.Attendee
}

func newMemRepo() *memRepo {
	return &memRepo{meetings: make(map[uuid.UUID]*meeting.Meeting)}
}

func (r *memRepo) CreateMeeting(ctx context.Context, m *meeting.Meeting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	cp.Attendees = nil
	r.meetings[m.ID] = &cp
	return nil
}

func (r *memRepo) GetMeeting(ctx context.Context, tenantID, id uuid.UUID) (*meeting.Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[id]
	if !ok || m.TenantID != tenantID {
		return nil, meeting.ErrMeetingNotFound
	}
	cp := *m
	cp.Attendees = nil
	for _, a := range r.attendees {
		if a.MeetingID == id {
			c := *a
			cp.Attendees = append(cp.Attendees, &c)
		}
	}
	return &cp, nil
}

func (r *memRepo) GetMeetingForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*meeting.Meeting, error) {
	return r.GetMeeting(ctx, tenantID, id)
}

func (r *memRepo) UpdateMeeting(ctx context.Context, m *meeting.Meeting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.meetings[m.ID]; !ok {
		return meeting.ErrMeetingNotFound
	}
	cp := *m
	cp.Attendees = nil
	r.meetings[m.ID] = &cp
	for _, updated := range m.Attendees {
		for i, a := range r.attendees {
			if a.ID == updated.ID {
				c := *updated
				r.attendees[i] = &c
			}
		}
	}
	return nil
}

func (r *memRepo) AddAttendee(ctx context.Context, a *meeting.Attendee) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.attendees {
		if existing.MeetingID == a.MeetingID && existing.AttendeeID == a.AttendeeID {
			return meeting.ErrDuplicateAttendee
		}
	}
	cp := *a
	r.attendees = append(r.attendees, &cp)
	return nil
}

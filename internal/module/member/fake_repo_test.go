package member_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/module/member"
)

type memRepo struct {
	mu      sync.Mutex
	members map[uuid.UUID]*member.Member
}

func newMemRepo() *memRepo {
	return &memRepo{members: make(map[uuid.UUID]*member.Member)}
}

func (r *memRepo) Create(ctx context.Context, m *member.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.members[m.ID] = &cp
	return nil
}

func (r *memRepo) Get(ctx context.Context, tenantID, id uuid.UUID) (*member.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok || m.TenantID != tenantID {
		return nil, member.ErrMemberNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memRepo) GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*member.Member, error) {
	return r.Get(ctx, tenantID, id)
}

func (r *memRepo) Update(ctx context.Context, m *member.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[m.ID]; !ok {
		return member.ErrMemberNotFound
	}
	cp := *m
	r.members[m.ID] = &cp
	return nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status member.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok || m.TenantID != tenantID {
		return member.ErrMemberNotFound
	}
	m.Status = status
	return nil
}

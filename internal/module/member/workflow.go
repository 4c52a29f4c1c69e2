package member

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/workflow"
)

type entity struct {
	m *Member
}

func (e *entity) ID() uuid.UUID { return e.m.ID }

func (e *entity) TenantID() uuid.UUID { return e.m.TenantID }

func (e *entity) GetStatus() string { return string(e.m.Status) }

func (e *entity) SetStatus(status string) { e.m.Status = Status(status) }

func (e *entity) Field(name string) (any, bool) {
	switch name {
	case "entryFee":
		return e.m.EntryFee, true
	case "initialKitta":
		return e.m.InitialKitta, true
	case "paysCash":
		return e.m.PaysCash, true
	case "status":
		return string(e.m.Status), true
	}
	return nil, false
}

// WorkflowStore lets the workflow engine drive member KYC status
type WorkflowStore struct {
	repo Repository
}

// NewWorkflowStore creates the member entity store
func NewWorkflowStore(repo Repository) *WorkflowStore {
	return &WorkflowStore{repo: repo}
}

func (s *WorkflowStore) EntityType() string { return workflow.EntityMember }

func (s *WorkflowStore) HistoryTable() string { return workflow.DefaultHistoryTable }

func (s *WorkflowStore) Load(ctx context.Context, tenantID, id uuid.UUID) (workflow.Entity, error) {
	m, err := s.repo.GetForUpdate(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil, workflow.ErrEntityNotFound
		}
		return nil, err
	}
	return &entity{m: m}, nil
}

func (s *WorkflowStore) SaveStatus(ctx context.Context, e workflow.Entity) error {
	if err := s.repo.UpdateStatus(ctx, e.TenantID(), e.ID(), Status(e.GetStatus())); err != nil {
		return fmt.Errorf("failed to save member status: %w", err)
	}
	return nil
}

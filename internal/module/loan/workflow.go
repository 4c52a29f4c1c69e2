package loan

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/workflow"
)

// entity exposes an application to the workflow engine. Conditions may test
// principal, outstanding, tenureMonths and memberId.
type entity struct {
	app *Application
}

func (e *entity) ID() uuid.UUID { return e.app.ID }

func (e *entity) TenantID() uuid.UUID { return e.app.TenantID }

func (e *entity) GetStatus() string { return string(e.app.Status) }

func (e *entity) SetStatus(status string) { e.app.Status = Status(status) }

func (e *entity) Field(name string) (any, bool) {
	switch name {
	case "principal":
		return e.app.Principal, true
	case "outstanding":
		return e.app.Outstanding, true
	case "tenureMonths":
		return e.app.TenureMonths, true
	case "memberId":
		return e.app.MemberID.String(), true
	case "status":
		return string(e.app.Status), true
	}
	return nil, false
}

// WorkflowStore lets the workflow engine drive loan application status
type WorkflowStore struct {
	repo Repository
}

// NewWorkflowStore creates the loan application entity store
func NewWorkflowStore(repo Repository) *WorkflowStore {
	return &WorkflowStore{repo: repo}
}

func (s *WorkflowStore) EntityType() string { return workflow.EntityLoan }

func (s *WorkflowStore) HistoryTable() string { return workflow.DefaultHistoryTable }

func (s *WorkflowStore) Load(ctx context.Context, tenantID, id uuid.UUID) (workflow.Entity, error) {
	app, err := s.repo.GetApplicationForUpdate(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrApplicationNotFound) {
			return nil, workflow.ErrEntityNotFound
		}
		return nil, err
	}
	return &entity{app: app}, nil
}

func (s *WorkflowStore) SaveStatus(ctx context.Context, e workflow.Entity) error {
	if err := s.repo.UpdateStatus(ctx, e.TenantID(), e.ID(), Status(e.GetStatus())); err != nil {
		return fmt.Errorf("failed to save loan status: %w", err)
	}
	return nil
}

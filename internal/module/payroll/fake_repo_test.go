package payroll_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/module/payroll"
)

type memRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*payroll.Run
}

func newMemRepo() *memRepo {
	return &memRepo{runs: make(map[uuid.UUID]*payroll.Run)}
}

func clone(run *payroll.Run) *payroll.Run {
	cp := *run
	cp.Items = make([]*payroll.Item, len(run.Items))
	for i, item := range run.Items {
		c := *item
		cp.Items[i] = &c
	}
	return &cp
}

func (r *memRepo) CreateRun(ctx context.Context, run *payroll.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.runs {
		if existing.TenantID == run.TenantID && existing.Period == run.Period {
			return payroll.ErrDuplicatePeriod
		}
	}
	r.runs[run.ID] = clone(run)
	return nil
}

func (r *memRepo) GetRun(ctx context.Context, tenantID, id uuid.UUID) (*payroll.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || run.TenantID != tenantID {
		return nil, payroll.ErrRunNotFound
	}
	return clone(run), nil
}

func (r *memRepo) GetRunForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*payroll.Run, error) {
	return r.GetRun(ctx, tenantID, id)
}

func (r *memRepo) UpdateRun(ctx context.Context, run *payroll.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; !ok {
		return payroll.ErrRunNotFound
	}
	r.runs[run.ID] = clone(run)
	return nil
}

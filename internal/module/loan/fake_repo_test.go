package loan_test

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/module/loan"
)

type memRepo struct {
	mu           sync.Mutex
	products     map[uuid.UUID]*loan.Product
	applications map[uuid.UUID]*loan.Application
	installments map[uuid.UUID]*loan.Installment
}

func newMemRepo() *memRepo {
	return &memRepo{
		products:     make(map[uuid.UUID]*loan.Product),
		applications: make(map[uuid.UUID]*loan.Application),
		installments: make(map[uuid.UUID]*loan.Installment),
	}
}

func (r *memRepo) CreateProduct(ctx context.Context, product *loan.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *product
	r.products[product.ID] = &cp
	return nil
}

func (r *memRepo) GetProduct(ctx context.Context, tenantID, id uuid.UUID) (*loan.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok || p.TenantID != tenantID {
		return nil, loan.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) CreateApplication(ctx context.Context, app *loan.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *app
	r.applications[app.ID] = &cp
	return nil
}

func (r *memRepo) GetApplication(ctx context.Context, tenantID, id uuid.UUID) (*loan.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.applications[id]
	if !ok || a.TenantID != tenantID {
		return nil, loan.ErrApplicationNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) GetApplicationForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*loan.Application, error) {
	return r.GetApplication(ctx, tenantID, id)
}

func (r *memRepo) UpdateApplication(ctx context.Context, app *loan.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.applications[app.ID]; !ok {
		return loan.ErrApplicationNotFound
	}
	cp := *app
	r.applications[app.ID] = &cp
	return nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status loan.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.applications[id]
	if !ok || a.TenantID != tenantID {
		return loan.ErrApplicationNotFound
	}
	a.Status = status
	return nil
}

func (r *memRepo) CreateSchedule(ctx context.Context, installments []*loan.Installment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range installments {
		cp := *inst
		r.installments[inst.ID] = &cp
	}
	return nil
}

func (r *memRepo) ListSchedule(ctx context.Context, tenantID, loanID uuid.UUID) ([]*loan.Installment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*loan.Installment
	for _, inst := range r.installments {
		if inst.TenantID == tenantID && inst.LoanID == loanID {
			cp := *inst
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstallmentNo < out[j].InstallmentNo })
	return out, nil
}

func (r *memRepo) UpdateInstallment(ctx context.Context, installment *loan.Installment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *installment
	r.installments[installment.ID] = &cp
	return nil
}

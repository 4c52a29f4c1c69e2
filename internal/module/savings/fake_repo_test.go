package savings_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/module/savings"
)

type memRepo struct {
	mu       sync.Mutex
	products map[uuid.UUID]*savings.Product
	accounts map[uuid.UUID]*savings.Account
	txs      []*savings.Transaction
}

func newMemRepo() *memRepo {
	return &memRepo{
		products: make(map[uuid.UUID]*savings.Product),
		accounts: make(map[uuid.UUID]*savings.Account),
	}
}

func (r *memRepo) CreateProduct(ctx context.Context, product *savings.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *product
	r.products[product.ID] = &cp
	return nil
}

func (r *memRepo) GetProduct(ctx context.Context, tenantID, id uuid.UUID) (*savings.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok || p.TenantID != tenantID {
		return nil, savings.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) CreateAccount(ctx context.Context, account *savings.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *memRepo) GetAccount(ctx context.Context, tenantID, id uuid.UUID) (*savings.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok || a.TenantID != tenantID {
		return nil, savings.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) GetAccountForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*savings.Account, error) {
	return r.GetAccount(ctx, tenantID, id)
}

func (r *memRepo) UpdateAccount(ctx context.Context, account *savings.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *memRepo) CreateTransaction(ctx context.Context, tx *savings.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, tx)
	return nil
}

func (r *memRepo) ListTransactions(ctx context.Context, tenantID, accountID uuid.UUID) ([]*savings.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*savings.Transaction
	for _, tx := range r.txs {
		if tx.TenantID == tenantID && tx.AccountID == accountID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (r *memRepo) setStatus(id uuid.UUID, status savings.AccountStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[id].Status = status
}

// tamper changes the stored balance without a posting
func (r *memRepo) tamper(id uuid.UUID, balance string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[id].Balance = mustParse(balance)
}

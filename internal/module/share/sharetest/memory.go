// Package sharetest provides an in-memory share repository for tests.
package sharetest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/module/share"
)

// Repository is an in-memory share.Repository
type Repository struct {
	mu       sync.Mutex
	classes  map[uuid.UUID]*share.Class
	accounts map[uuid.UUID]*share.Account
	txs      []*share.Transaction
}

// NewRepository returns an empty repository
func NewRepository() *Repository {
	return &Repository{
		classes:  make(map[uuid.UUID]*share.Class),
		accounts: make(map[uuid.UUID]*share.Account),
	}
}

func (r *Repository) CreateClass(ctx context.Context, class *share.Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *class
	r.classes[class.ID] = &cp
	return nil
}

func (r *Repository) GetClass(ctx context.Context, tenantID, id uuid.UUID) (*share.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[id]
	if !ok || c.TenantID != tenantID {
		return nil, share.ErrShareClassNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *Repository) find(tenantID, memberID, classID uuid.UUID) *share.Account {
	for _, a := range r.accounts {
		if a.TenantID == tenantID && a.MemberID == memberID && a.ShareClassID == classID {
			return a
		}
	}
	return nil
}

func (r *Repository) GetOrCreateAccountForUpdate(ctx context.Context, account *share.Account) (*share.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.find(account.TenantID, account.MemberID, account.ShareClassID); a != nil {
		cp := *a
		return &cp, nil
	}
	cp := *account
	r.accounts[account.ID] = &cp
	out := cp
	return &out, nil
}

func (r *Repository) GetAccountForUpdate(ctx context.Context, tenantID, memberID, classID uuid.UUID) (*share.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.find(tenantID, memberID, classID)
	if a == nil {
		return nil, share.ErrShareAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *Repository) GetAccount(ctx context.Context, tenantID, id uuid.UUID) (*share.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok || a.TenantID != tenantID {
		return nil, share.ErrShareAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *Repository) UpdateAccount(ctx context.Context, account *share.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *Repository) CreateTransaction(ctx context.Context, tx *share.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, tx)
	return nil
}

func (r *Repository) ListTransactions(ctx context.Context, tenantID, accountID uuid.UUID) ([]*share.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*share.Transaction
	for _, tx := range r.txs {
		if tx.TenantID == tenantID && tx.ShareAccountID == accountID {
			out = append(out, tx)
		}
	}
	return out, nil
}

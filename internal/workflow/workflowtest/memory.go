// Package workflowtest provides in-memory workflow collaborators for tests.
package workflowtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/shared/txn"
	"github.com/kislikjeka/coopledger/internal/workflow"
)

// History is an in-memory workflow.HistoryRepository. With a transaction
// manager, appends only land when the surrounding transaction commits, so a
// rolled back transition leaves no record.
type History struct {
	mu      sync.Mutex
	tx      txn.Manager
	records []*workflow.HistoryRecord
}

// NewHistory returns an empty history. tx may be nil.
func NewHistory(tx txn.Manager) *History {
	return &History{tx: tx}
}

func (h *History) Append(ctx context.Context, table string, record *workflow.HistoryRecord) error {
	if table != workflow.DefaultHistoryTable {
		return fmt.Errorf("unknown history table %q", table)
	}
	cp := *record
	apply := func(context.Context) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.records = append(h.records, &cp)
	}
	if h.tx != nil {
		h.tx.AfterCommit(ctx, apply)
		return nil
	}
	apply(ctx)
	return nil
}

func (h *History) Last(ctx context.Context, table string, tenantID uuid.UUID, entityType string, entityID uuid.UUID) (*workflow.HistoryRecord, error) {
	records, err := h.List(ctx, table, tenantID, entityType, entityID)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[len(records)-1], nil
}

func (h *History) List(ctx context.Context, table string, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]*workflow.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*workflow.HistoryRecord
	for _, r := range h.records {
		if r.TenantID == tenantID && r.EntityType == entityType && r.EntityID == entityID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Len returns the number of stored records
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Entity is a map-backed workflow.Entity
type Entity struct {
	EntityID uuid.UUID
	Tenant   uuid.UUID
	Status   string
	Fields   map[string]any
}

func (e *Entity) ID() uuid.UUID { return e.EntityID }

func (e *Entity) TenantID() uuid.UUID { return e.Tenant }

func (e *Entity) GetStatus() string { return e.Status }

func (e *Entity) SetStatus(status string) { e.Status = status }

func (e *Entity) Field(name string) (any, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// Store is an in-memory workflow.EntityStore. Like History, status writes
// wait for commit when a transaction manager is set.
type Store struct {
	mu       sync.Mutex
	typ      string
	tx       txn.Manager
	entities map[uuid.UUID]*Entity
	// FailSave makes SaveStatus return this error when set
	FailSave error
}

// NewStore returns an empty store for entityType. tx may be nil.
func NewStore(entityType string, tx txn.Manager) *Store {
	return &Store{typ: entityType, tx: tx, entities: make(map[uuid.UUID]*Entity)}
}

// Put adds or replaces an entity
func (s *Store) Put(e *Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entities[e.EntityID] = &cp
}

// Get returns a copy of the stored entity
func (s *Store) Get(id uuid.UUID) *Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

func (s *Store) EntityType() string { return s.typ }

func (s *Store) HistoryTable() string { return workflow.DefaultHistoryTable }

func (s *Store) Load(ctx context.Context, tenantID, id uuid.UUID) (workflow.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok || e.Tenant != tenantID {
		return nil, workflow.ErrEntityNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) SaveStatus(ctx context.Context, entity workflow.Entity) error {
	if s.FailSave != nil {
		return s.FailSave
	}
	s.mu.Lock()
	_, ok := s.entities[entity.ID()]
	s.mu.Unlock()
	if !ok {
		return workflow.ErrEntityNotFound
	}

	id, status := entity.ID(), entity.GetStatus()
	apply := func(context.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.entities[id].Status = status
	}
	if s.tx != nil {
		s.tx.AfterCommit(ctx, apply)
		return nil
	}
	apply(ctx)
	return nil
}

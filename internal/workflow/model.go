package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// State is one node of a workflow
type State struct {
	Name     string
	Terminal bool
}

// Transition is a declared edge between two states. All conditions must hold
// and, when Roles is non-empty, the actor must carry at least one of them.
type Transition struct {
	From        string
	To          string
	Conditions  []Condition
	Roles       []string
	BeforeHooks []string
	AfterHooks  []string
}

// Definition describes the lifecycle of one entity type. BeforeHooks and
// AfterHooks run on every transition, after the transition-specific ones.
type Definition struct {
	Name         string
	EntityType   string
	InitialState string
	States       []State
	Transitions  []Transition
	BeforeHooks  []string
	AfterHooks   []string
}

// State returns the named state
func (d *Definition) State(name string) (State, bool) {
	for _, s := range d.States {
		if s.Name == name {
			return s, true
		}
	}
	return State{}, false
}

// Find returns the transition declared from → to
func (d *Definition) Find(from, to string) (Transition, bool) {
	for _, t := range d.Transitions {
		if t.From == from && t.To == to {
			return t, true
		}
	}
	return Transition{}, false
}

// Entity is the view of a business object the engine needs
type Entity interface {
	ID() uuid.UUID
	TenantID() uuid.UUID
	GetStatus() string
	SetStatus(status string)
	// Field exposes attributes that conditions can test
	Field(name string) (any, bool)
}

// EntityStore loads and saves the status of one entity type
type EntityStore interface {
	EntityType() string
	// Load returns the entity with its row locked for the transaction in ctx.
	// A missing entity returns ErrEntityNotFound.
	Load(ctx context.Context, tenantID, id uuid.UUID) (Entity, error)
	SaveStatus(ctx context.Context, entity Entity) error
	HistoryTable() string
}

// Actor is who requests a transition
type Actor struct {
	ID    uuid.UUID
	Roles []string
}

// HasAnyRole reports whether the actor carries one of roles
func (a Actor) HasAnyRole(roles []string) bool {
	for _, want := range roles {
		for _, have := range a.Roles {
			if want == have {
				return true
			}
		}
	}
	return false
}

// TransitionRequest asks the engine to move an entity to ToState. Data
// carries caller-supplied values; conditions read it only for fields the
// entity does not expose.
type TransitionRequest struct {
	WorkflowName string
	EntityType   string
	EntityID     uuid.UUID
	TenantID     uuid.UUID
	ToState      string
	Actor        Actor
	Remarks      string
	Data         map[string]any
}

// Result reports a completed transition
type Result struct {
	Success   bool
	FromState string
	ToState   string
	Message   string
	HistoryID uuid.UUID
}

// HistoryRecord is one append-only row of the transition log
type HistoryRecord struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	WorkflowName string
	EntityType   string
	EntityID     uuid.UUID
	FromState    string
	ToState      string
	ActorID      *uuid.UUID
	Remarks      string
	CreatedAt    time.Time
}

// HistoryRepository persists transition history. table is the store's
// HistoryTable; implementations reject tables they do not know.
type HistoryRepository interface {
	Append(ctx context.Context, table string, record *HistoryRecord) error
	// Last returns the newest record of one entity, or nil when there is none
	Last(ctx context.Context, table string, tenantID uuid.UUID, entityType string, entityID uuid.UUID) (*HistoryRecord, error)
	// List returns the records of one entity, oldest first
	List(ctx context.Context, table string, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]*HistoryRecord, error)
}

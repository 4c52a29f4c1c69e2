package workflow

import (
	"context"
	"fmt"
	"sync"
)

// Criticality decides what a hook failure does to the transition
type Criticality int

const (
	// Critical hook failures abort the transition and roll everything back
	Critical Criticality = iota
	// BestEffort hook failures are logged and discarded; the hook's own
	// writes are rolled back to a savepoint
	BestEffort
)

func (c Criticality) String() string {
	if c == BestEffort {
		return "best_effort"
	}
	return "critical"
}

// HookContext is what a hook sees of the transition in progress
type HookContext struct {
	Request   TransitionRequest
	Entity    Entity
	FromState string
	ToState   string
}

// HookFunc runs inside the transition's transaction
type HookFunc func(ctx context.Context, hc *HookContext) error

// Hook is a registered hook
type Hook struct {
	Name        string
	EntityType  string
	Criticality Criticality
	Fn          HookFunc
}

type hookKey struct {
	entityType string
	name       string
}

// HookRegistry maps (entity type, hook name) to its function and criticality.
// Workflow definitions refer to hooks by name only.
type HookRegistry struct {
	mu    sync.RWMutex
	hooks map[hookKey]Hook
}

// NewHookRegistry returns an empty registry
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[hookKey]Hook)}
}

// Register adds a hook. A second registration of the same name fails.
func (r *HookRegistry) Register(entityType, name string, criticality Criticality, fn HookFunc) error {
	if entityType == "" || name == "" || fn == nil {
		return fmt.Errorf("%w: hook needs an entity type, a name and a function", ErrInvalidDefinition)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := hookKey{entityType: entityType, name: name}
	if _, exists := r.hooks[key]; exists {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateHook, entityType, name)
	}
	r.hooks[key] = Hook{Name: name, EntityType: entityType, Criticality: criticality, Fn: fn}
	return nil
}

// Lookup returns the hook registered under (entityType, name)
func (r *HookRegistry) Lookup(entityType, name string) (Hook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hooks[hookKey{entityType: entityType, name: name}]
	return h, ok
}

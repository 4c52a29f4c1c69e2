package workflow

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the workflow definitions known to the engine. It is built
// at startup; Register validates each definition against the hook registry.
type Registry struct {
	mu          sync.RWMutex
	hooks       *HookRegistry
	definitions map[string]*Definition
}

// NewRegistry creates a registry whose definitions may use hooks from hooks
func NewRegistry(hooks *HookRegistry) *Registry {
	return &Registry{
		hooks:       hooks,
		definitions: make(map[string]*Definition),
	}
}

// Register validates and stores a definition
func (r *Registry) Register(def Definition) error {
	if err := r.validate(&def); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateWorkflow, def.Name)
	}
	r.definitions[def.Name] = &def
	return nil
}

// Get returns the named definition
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
	}
	return def, nil
}

// Names returns the registered workflow names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) validate(def *Definition) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidDefinition, def.Name, fmt.Sprintf(format, args...))
	}

	if def.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if def.EntityType == "" {
		return invalid("entity type is required")
	}
	if len(def.States) == 0 {
		return invalid("no states")
	}

	seen := make(map[string]bool, len(def.States))
	for _, s := range def.States {
		if s.Name == "" {
			return invalid("state without a name")
		}
		if seen[s.Name] {
			return invalid("duplicate state %q", s.Name)
		}
		seen[s.Name] = true
	}

	if _, ok := def.State(def.InitialState); !ok {
		return invalid("initial state %q is not declared", def.InitialState)
	}

	edges := make(map[[2]string]bool, len(def.Transitions))
	for _, t := range def.Transitions {
		from, ok := def.State(t.From)
		if !ok {
			return invalid("transition %s → %s: unknown state %q", t.From, t.To, t.From)
		}
		if _, ok := def.State(t.To); !ok {
			return invalid("transition %s → %s: unknown state %q", t.From, t.To, t.To)
		}
		if from.Terminal {
			return invalid("transition %s → %s leaves terminal state", t.From, t.To)
		}
		edge := [2]string{t.From, t.To}
		if edges[edge] {
			return invalid("transition %s → %s declared twice", t.From, t.To)
		}
		edges[edge] = true

		for _, c := range t.Conditions {
			if c.Field == "" || !c.Operator.IsValid() {
				return invalid("transition %s → %s: bad condition %s", t.From, t.To, c)
			}
		}
		if err := r.checkHooks(def, t.BeforeHooks); err != nil {
			return err
		}
		if err := r.checkHooks(def, t.AfterHooks); err != nil {
			return err
		}
	}

	if err := r.checkHooks(def, def.BeforeHooks); err != nil {
		return err
	}
	return r.checkHooks(def, def.AfterHooks)
}

func (r *Registry) checkHooks(def *Definition, names []string) error {
	for _, name := range names {
		if r.hooks == nil {
			return fmt.Errorf("%w: %s/%s in workflow %s", ErrUnknownHook, def.EntityType, name, def.Name)
		}
		if _, ok := r.hooks.Lookup(def.EntityType, name); !ok {
			return fmt.Errorf("%w: %s/%s in workflow %s", ErrUnknownHook, def.EntityType, name, def.Name)
		}
	}
	return nil
}

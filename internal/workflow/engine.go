package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kislikjeka/coopledger/internal/shared/errors"
	"github.com/kislikjeka/coopledger/internal/shared/txn"
	"github.com/kislikjeka/coopledger/pkg/logger"
	"github.com/kislikjeka/coopledger/pkg/metrics"
)

// Engine executes guarded transitions. The status change, the history row
// and every hook share one transaction; a critical hook failure undoes all
// of them.
type Engine struct {
	registry *Registry
	hooks    *HookRegistry
	stores   map[string]EntityStore
	history  HistoryRepository
	runner   *txn.Runner
	metrics  *metrics.LedgerMetrics
	logger   *logger.Logger
	now      func() time.Time
}

// NewEngine creates a workflow engine
func NewEngine(registry *Registry, hooks *HookRegistry, history HistoryRepository, runner *txn.Runner, log *logger.Logger, m *metrics.LedgerMetrics) *Engine {
	return &Engine{
		registry: registry,
		hooks:    hooks,
		stores:   make(map[string]EntityStore),
		history:  history,
		runner:   runner,
		metrics:  m,
		logger:   log.WithField("component", "workflow"),
		now:      time.Now,
	}
}

// RegisterStore makes an entity type loadable by the engine
func (e *Engine) RegisterStore(store EntityStore) {
	e.stores[store.EntityType()] = store
}

// Transition moves an entity along a declared edge.
//
// Steps, all inside one transaction:
// 1. Load and lock the entity, derive its current state
// 2. Check the edge is declared, not from a terminal state, the actor's roles and the conditions
// 3. Run before hooks (transition-specific, then generic)
// 4. Save the new status and append the history row
// 5. Run after hooks (transition-specific, then generic)
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (*Result, error) {
	def, err := e.registry.Get(req.WorkflowName)
	if err != nil {
		e.metrics.ObserveTransition(req.WorkflowName, err)
		return nil, apperrors.NotFound("workflow "+req.WorkflowName, err)
	}
	if req.EntityType == "" {
		req.EntityType = def.EntityType
	}
	if req.EntityType != def.EntityType {
		err := apperrors.Validation(
			fmt.Sprintf("workflow %s handles %s, not %s", def.Name, def.EntityType, req.EntityType),
			ErrInvalidDefinition,
		)
		e.metrics.ObserveTransition(req.WorkflowName, err)
		return nil, err
	}
	store, ok := e.stores[def.EntityType]
	if !ok {
		err := apperrors.Internal("no entity store for "+def.EntityType, ErrStoreNotFound)
		e.metrics.ObserveTransition(req.WorkflowName, err)
		return nil, err
	}

	var result *Result
	err = e.runner.Run(ctx, "workflow."+def.Name, func(ctx context.Context) error {
		var err error
		result, err = e.transition(ctx, def, store, req)
		return err
	})
	e.metrics.ObserveTransition(def.Name, err)
	if err != nil {
		e.logger.WithContext(ctx).Warn("transition rejected",
			"workflow", def.Name,
			"entity_id", req.EntityID,
			"to_state", req.ToState,
			"error", err,
		)
		return nil, err
	}

	e.logger.WithContext(ctx).Info("transition completed",
		"workflow", def.Name,
		"entity_id", req.EntityID,
		"from_state", result.FromState,
		"to_state", result.ToState,
	)
	return result, nil
}

func (e *Engine) transition(ctx context.Context, def *Definition, store EntityStore, req TransitionRequest) (*Result, error) {
	entity, err := store.Load(ctx, req.TenantID, req.EntityID)
	if err != nil {
		if errors.Is(err, ErrEntityNotFound) {
			return nil, apperrors.NotFound(fmt.Sprintf("%s %s", def.EntityType, req.EntityID), err)
		}
		return nil, fmt.Errorf("failed to load %s: %w", def.EntityType, err)
	}
	if entity.TenantID() != req.TenantID {
		return nil, apperrors.NotFound(fmt.Sprintf("%s %s", def.EntityType, req.EntityID), ErrEntityNotFound)
	}

	current, err := e.currentState(ctx, def, store, entity)
	if err != nil {
		return nil, err
	}

	t, err := e.check(def, current, entity, req)
	if err != nil {
		return nil, err
	}

	hc := &HookContext{Request: req, Entity: entity, FromState: current, ToState: req.ToState}

	if err := e.runHooks(ctx, def.EntityType, append(append([]string{}, t.BeforeHooks...), def.BeforeHooks...), hc); err != nil {
		return nil, err
	}

	entity.SetStatus(req.ToState)
	if err := store.SaveStatus(ctx, entity); err != nil {
		return nil, fmt.Errorf("failed to save %s status: %w", def.EntityType, err)
	}

	record := &HistoryRecord{
		ID:           uuid.New(),
		TenantID:     req.TenantID,
		WorkflowName: def.Name,
		EntityType:   def.EntityType,
		EntityID:     req.EntityID,
		FromState:    current,
		ToState:      req.ToState,
		Remarks:      req.Remarks,
		CreatedAt:    e.now().UTC(),
	}
	if req.Actor.ID != uuid.Nil {
		actorID := req.Actor.ID
		record.ActorID = &actorID
	}
	if err := e.history.Append(ctx, store.HistoryTable(), record); err != nil {
		return nil, fmt.Errorf("failed to append workflow history: %w", err)
	}

	if err := e.runHooks(ctx, def.EntityType, append(append([]string{}, t.AfterHooks...), def.AfterHooks...), hc); err != nil {
		return nil, err
	}

	return &Result{
		Success:   true,
		FromState: current,
		ToState:   req.ToState,
		Message:   fmt.Sprintf("%s moved from %s to %s", def.EntityType, current, req.ToState),
		HistoryID: record.ID,
	}, nil
}

// currentState is the entity's own status, which SaveStatus writes in the
// same transaction as the history row and which domain services may move
// directly. History only answers for entities that carry no status.
func (e *Engine) currentState(ctx context.Context, def *Definition, store EntityStore, entity Entity) (string, error) {
	if status := entity.GetStatus(); status != "" {
		return status, nil
	}
	last, err := e.history.Last(ctx, store.HistoryTable(), entity.TenantID(), def.EntityType, entity.ID())
	if err != nil {
		return "", fmt.Errorf("failed to read workflow history: %w", err)
	}
	if last != nil {
		return last.ToState, nil
	}
	return def.InitialState, nil
}

func (e *Engine) check(def *Definition, current string, entity Entity, req TransitionRequest) (Transition, error) {
	state, ok := def.State(current)
	if ok && state.Terminal {
		return Transition{}, apperrors.InvalidTransition(
			fmt.Sprintf("%s is in terminal state %s", def.EntityType, current),
			ErrTerminalState,
		).WithDetail("current_state", current).
			WithDetail("requested_state", req.ToState)
	}

	t, ok := def.Find(current, req.ToState)
	if !ok {
		return Transition{}, apperrors.InvalidTransition(
			fmt.Sprintf("cannot move %s from %s to %s", def.EntityType, current, req.ToState),
			ErrInvalidTransition,
		).WithDetail("current_state", current).
			WithDetail("requested_state", req.ToState)
	}

	if len(t.Roles) > 0 && !req.Actor.HasAnyRole(t.Roles) {
		return Transition{}, apperrors.Forbidden(
			fmt.Sprintf("%s → %s requires one of %v", current, req.ToState, t.Roles),
			ErrRoleRequired,
		).WithDetail("required_roles", t.Roles)
	}

	for _, c := range t.Conditions {
		// Request data only fills fields the entity does not expose
		actual, present := entity.Field(c.Field)
		if !present {
			actual, present = req.Data[c.Field]
		}
		okCond, err := c.Evaluate(actual, present)
		if err != nil {
			return Transition{}, apperrors.Validation("condition "+c.String()+": "+err.Error(), ErrConditionNotMet).
				WithDetail("condition", c.String())
		}
		if !okCond {
			return Transition{}, apperrors.InvalidTransition("condition not met: "+c.String(), ErrConditionNotMet).
				WithDetail("condition", c.String()).
				WithDetail("actual", fmt.Sprint(actual))
		}
	}

	return t, nil
}

func (e *Engine) runHooks(ctx context.Context, entityType string, names []string, hc *HookContext) error {
	for _, name := range names {
		hook, ok := e.hooks.Lookup(entityType, name)
		if !ok {
			// Register rejects unknown hooks, so this is a wiring bug
			return apperrors.Internal("hook "+name+" disappeared", ErrUnknownHook)
		}

		if hook.Criticality == Critical {
			if err := invoke(ctx, hook, hc); err != nil {
				e.metrics.IncHookFailure(hook.Criticality.String())
				return fmt.Errorf("%w: %s: %w", ErrHookFailed, name, err)
			}
			continue
		}

		err := e.runner.Manager().WithinSavepoint(ctx, func(ctx context.Context) error {
			return invoke(ctx, hook, hc)
		})
		if err != nil {
			e.metrics.IncHookFailure(hook.Criticality.String())
			e.logger.WithContext(ctx).Warn("best-effort hook failed",
				"hook", name,
				"entity_type", entityType,
				"entity_id", hc.Request.EntityID,
				"error", err,
			)
		}
	}
	return nil
}

func invoke(ctx context.Context, hook Hook, hc *HookContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("hook %s panicked: %v", hook.Name, p)
		}
	}()
	return hook.Fn(ctx, hc)
}

// GetAvailableTransitions lists the transitions declared out of a state
func (e *Engine) GetAvailableTransitions(workflowName, currentState string) ([]Transition, error) {
	def, err := e.registry.Get(workflowName)
	if err != nil {
		return nil, apperrors.NotFound("workflow "+workflowName, err)
	}
	state, ok := def.State(currentState)
	if !ok {
		return nil, apperrors.Validation(fmt.Sprintf("workflow %s has no state %s", workflowName, currentState), ErrInvalidTransition)
	}
	if state.Terminal {
		return []Transition{}, nil
	}

	out := make([]Transition, 0)
	for _, t := range def.Transitions {
		if t.From == currentState {
			out = append(out, t)
		}
	}
	return out, nil
}

// AvailableTransitionsFor narrows GetAvailableTransitions to those the roles allow
func (e *Engine) AvailableTransitionsFor(workflowName, currentState string, roles []string) ([]Transition, error) {
	all, err := e.GetAvailableTransitions(workflowName, currentState)
	if err != nil {
		return nil, err
	}
	actor := Actor{Roles: roles}
	out := make([]Transition, 0, len(all))
	for _, t := range all {
		if len(t.Roles) == 0 || actor.HasAnyRole(t.Roles) {
			out = append(out, t)
		}
	}
	return out, nil
}

// History returns the transitions of one entity, oldest first
func (e *Engine) History(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]*HistoryRecord, error) {
	store, ok := e.stores[entityType]
	if !ok {
		return nil, apperrors.Validation("unknown entity type "+entityType, ErrStoreNotFound)
	}
	records, err := e.history.List(ctx, store.HistoryTable(), tenantID, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow history: %w", err)
	}
	return records, nil
}

// TimeInState sums how long an entity has spent in state, according to its
// history. An interval still open is counted up to now.
func (e *Engine) TimeInState(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID, state string, now time.Time) (time.Duration, error) {
	records, err := e.History(ctx, tenantID, entityType, entityID)
	if err != nil {
		return 0, err
	}
	return timeInState(records, state, now), nil
}

func timeInState(records []*HistoryRecord, state string, now time.Time) time.Duration {
	var total time.Duration
	for i, rec := range records {
		if rec.ToState != state {
			continue
		}
		end := now
		if i+1 < len(records) {
			end = records[i+1].CreatedAt
		}
		if end.After(rec.CreatedAt) {
			total += end.Sub(rec.CreatedAt)
		}
	}
	return total
}

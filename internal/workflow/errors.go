package workflow

import "errors"

// Definition errors, reported by Registry.Register at startup
var (
	ErrInvalidDefinition = errors.New("invalid workflow definition")
	ErrDuplicateWorkflow = errors.New("workflow already registered")
	ErrUnknownHook       = errors.New("hook is not registered for entity type")
	ErrDuplicateHook     = errors.New("hook already registered")
)

// Transition errors
var (
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrEntityNotFound    = errors.New("entity not found")
	ErrStoreNotFound     = errors.New("no entity store for entity type")
	ErrInvalidTransition = errors.New("transition not allowed")
	ErrTerminalState     = errors.New("entity is in a terminal state")
	ErrConditionNotMet   = errors.New("transition condition not met")
	ErrRoleRequired      = errors.New("actor lacks a required role")
	ErrHookFailed        = errors.New("workflow hook failed")
)

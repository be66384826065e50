package scheduler

import "errors"

var (
	// ErrOrchestratorStopped is returned when a run is triggered after Stop
	ErrOrchestratorStopped = errors.New("sync orchestrator is stopped")

	// ErrExecutorNotRegistered is returned when no executor handles a run kind
	ErrExecutorNotRegistered = errors.New("no executor registered for run kind")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)

package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session ID cannot be resolved.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTaskNotFound is returned when a task ID cannot be resolved.
	ErrTaskNotFound = errors.New("task not found")

	// ErrCheckpointNotFound is returned by stores when no snapshot exists for a task.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrToolNotFound is returned when a step references a tool that is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidInput is returned when a request is malformed or fails sanitization.
	ErrInvalidInput = errors.New("invalid input")
)

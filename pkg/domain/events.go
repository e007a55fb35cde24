package domain

import (
	"context"
	"time"
)

// EventType defines the category of a lifecycle event.
type EventType string

const (
	EventNodeEnter  EventType = "node_enter"
	EventNodeLeave  EventType = "node_leave"
	EventToolCall   EventType = "tool_call"
	EventToolReturn EventType = "tool_return"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id"`
}

// NodeEvent represents entry into or exit from a node.
type NodeEvent struct {
	EventBase
	Node     NodeID        `json:"node"`
	Phase    Phase         `json:"phase"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// ToolEvent represents a tool invocation for one plan step.
type ToolEvent struct {
	EventBase
	StepID   string        `json:"step_id"`
	ToolName string        `json:"tool_name"`
	Input    any           `json:"input,omitempty"`
	Output   any           `json:"output,omitempty"`
	IsError  bool          `json:"is_error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter  func(context.Context, *NodeEvent)
	OnNodeLeave  func(context.Context, *NodeEvent)
	OnToolCall   func(context.Context, *ToolEvent)
	OnToolReturn func(context.Context, *ToolEvent)
}

// ChainHooks fans each callback out to every non-nil hook in order.
func ChainHooks(hooks ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range hooks {
		out.OnNodeEnter = chain(out.OnNodeEnter, h.OnNodeEnter)
		out.OnNodeLeave = chain(out.OnNodeLeave, h.OnNodeLeave)
		out.OnToolCall = chain(out.OnToolCall, h.OnToolCall)
		out.OnToolReturn = chain(out.OnToolReturn, h.OnToolReturn)
	}
	return out
}

func chain[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}

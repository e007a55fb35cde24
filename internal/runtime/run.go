package runtime

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/aretw0/errand/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Transition describes one completed step.
type Transition struct {
	Node     domain.NodeID
	Next     domain.NodeID
	Duration time.Duration
	// State is a snapshot taken after the update was applied.
	State *domain.AgentState
}

// Step runs the node at id against s, applies its update in place and
// returns the routing decision. Node errors and panics are folded into s as a
// terminal failure. A canceled context leaves s untouched and is returned.
func (m *Machine) Step(ctx context.Context, s *domain.AgentState, id domain.NodeID) (domain.NodeID, error) {
	if !m.Has(id) {
		return domain.Terminate, fmt.Errorf("node %s is not part of this machine", id)
	}
	if err := ctx.Err(); err != nil {
		return domain.Terminate, err
	}
	n := m.nodes[id]

	ctx, span := m.tracer.Start(ctx, "node."+id.String(), trace.WithAttributes(
		attribute.String("task.id", s.TaskID),
		attribute.String("task.phase", string(s.CurrentPhase)),
	))
	defer span.End()

	start := time.Now()
	m.emitNode(ctx, m.hooks.OnNodeEnter, domain.EventNodeEnter, s, id, 0, nil)

	update, err := m.invoke(ctx, n.run, s)
	if err != nil && ctx.Err() != nil {
		span.SetStatus(codes.Error, "canceled")
		return domain.Terminate, ctx.Err()
	}
	if err != nil {
		m.logger.Error("node failed", "task_id", s.TaskID, "node", id.String(), "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		update = domain.Fail(err.Error())
	}
	s.Apply(update)

	next := m.route(n, s)
	elapsed := time.Since(start)
	span.SetAttributes(attribute.String("route.next", next.String()))
	m.emitNode(ctx, m.hooks.OnNodeLeave, domain.EventNodeLeave, s, id, elapsed, err)
	m.checkpoint(ctx, s)
	return next, nil
}

// invoke runs fn, converting a panic into an error.
func (m *Machine) invoke(ctx context.Context, fn NodeFunc, s *domain.AgentState) (u domain.Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("node panicked", "task_id", s.TaskID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("node panicked: %v", r)
		}
	}()
	return fn(ctx, s.Clone())
}

func (m *Machine) route(n *node, s *domain.AgentState) domain.NodeID {
	for _, r := range n.routes {
		if r.matches(s) {
			return r.To
		}
	}
	// Compile guarantees an unconditional last rule.
	return domain.Terminate
}

// Run drives s from entry until a route terminates.
func (m *Machine) Run(ctx context.Context, s *domain.AgentState, entry domain.NodeID) error {
	return m.Walk(ctx, s, entry, nil)
}

// Walk is Run with a callback after every transition. A callback error
// stops the walk and is returned.
func (m *Machine) Walk(ctx context.Context, s *domain.AgentState, entry domain.NodeID, visit func(Transition) error) error {
	current := entry
	for steps := 0; current != domain.Terminate; steps++ {
		if steps >= m.maxSteps {
			m.logger.Warn("step limit reached", "task_id", s.TaskID, "node", current.String(), "limit", m.maxSteps)
			s.Apply(domain.Fail(fmt.Sprintf("step limit of %d reached at node %s", m.maxSteps, current)))
			m.checkpoint(ctx, s)
			return nil
		}

		start := time.Now()
		next, err := m.Step(ctx, s, current)
		if err != nil {
			return err
		}
		if visit != nil {
			if err := visit(Transition{Node: current, Next: next, Duration: time.Since(start), State: s.Clone()}); err != nil {
				return err
			}
		}
		current = next
	}
	return nil
}

func (m *Machine) emitNode(ctx context.Context, hook func(context.Context, *domain.NodeEvent), typ domain.EventType, s *domain.AgentState, id domain.NodeID, d time.Duration, err error) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: typ, TaskID: s.TaskID},
		Node:      id,
		Phase:     s.CurrentPhase,
		Duration:  d,
		Err:       err,
	})
}

func (m *Machine) checkpoint(ctx context.Context, s *domain.AgentState) {
	if m.checkpoints == nil || s.TaskID == "" {
		return
	}
	if err := m.checkpoints.Save(ctx, domain.Fold(s, domain.Progress(s))); err != nil {
		m.logger.Warn("scratch checkpoint failed", "task_id", s.TaskID, "err", err)
	}
}

package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/errand/internal/logging"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxSteps bounds how many nodes a single Run may visit.
const DefaultMaxSteps = 50

// NodeFunc is a node transform. It must not mutate s.
type NodeFunc func(ctx context.Context, s *domain.AgentState) (domain.Update, error)

type node struct {
	run    NodeFunc
	routes []Rule
}

// Graph collects nodes before compilation.
type Graph struct {
	nodes [domain.NodeCount]*node
	errs  []error
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// AddNode registers fn under id with its routing table.
func (g *Graph) AddNode(id domain.NodeID, fn NodeFunc, routes ...Rule) *Graph {
	switch {
	case !id.Valid():
		g.errs = append(g.errs, fmt.Errorf("invalid node id %d", id))
	case g.nodes[id] != nil:
		g.errs = append(g.errs, fmt.Errorf("node %s registered twice", id))
	case fn == nil:
		g.errs = append(g.errs, fmt.Errorf("node %s has no transform", id))
	default:
		g.nodes[id] = &node{run: fn, routes: routes}
	}
	return g
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Machine) { m.hooks = hooks }
}

// WithMaxSteps overrides DefaultMaxSteps.
func WithMaxSteps(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.maxSteps = n
		}
	}
}

// WithCheckpointer saves a snapshot after every step. The cache binds each
// compiled machine to its own in-memory store this way.
func WithCheckpointer(store ports.CheckpointStore) Option {
	return func(m *Machine) { m.checkpoints = store }
}

// WithTracer overrides the global otel tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Machine) { m.tracer = tracer }
}

// Machine is a compiled, immutable graph. It is safe for concurrent use by
// runs over different states.
type Machine struct {
	entry       domain.NodeID
	nodes       [domain.NodeCount]*node
	maxSteps    int
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	checkpoints ports.CheckpointStore
	tracer      trace.Tracer
}

// Compile validates the graph and returns a Machine entered at entry.
func (g *Graph) Compile(entry domain.NodeID, opts ...Option) (*Machine, error) {
	errs := append([]error(nil), g.errs...)
	if !entry.Valid() || g.nodes[entry] == nil {
		errs = append(errs, fmt.Errorf("entry node %s is not defined", entry))
	}
	for id, n := range g.nodes {
		if n == nil {
			continue
		}
		from := domain.NodeID(id)
		if len(n.routes) == 0 || n.routes[len(n.routes)-1].When != nil {
			errs = append(errs, fmt.Errorf("node %s: routing table must end with an unconditional rule", from))
		}
		for _, r := range n.routes {
			if r.To == domain.Terminate {
				continue
			}
			if !r.To.Valid() || g.nodes[r.To] == nil {
				errs = append(errs, fmt.Errorf("node %s routes to undefined node %s", from, r.To))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}

	m := &Machine{
		entry:    entry,
		nodes:    g.nodes,
		maxSteps: DefaultMaxSteps,
		logger:   logging.NewNop(),
		tracer:   otel.Tracer("github.com/aretw0/errand/internal/runtime"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Entry returns the node a fresh task starts at.
func (m *Machine) Entry() domain.NodeID {
	return m.entry
}

// Has reports whether id is part of this machine.
func (m *Machine) Has(id domain.NodeID) bool {
	return id.Valid() && m.nodes[id] != nil
}

// Edge is one distinct route of a compiled machine.
type Edge struct {
	From        domain.NodeID
	To          domain.NodeID
	Conditional bool
}

// Nodes lists the compiled nodes in id order.
func (m *Machine) Nodes() []domain.NodeID {
	var ids []domain.NodeID
	for id, n := range m.nodes {
		if n != nil {
			ids = append(ids, domain.NodeID(id))
		}
	}
	return ids
}

// Edges lists every distinct route in node and rule order.
func (m *Machine) Edges() []Edge {
	var edges []Edge
	seen := make(map[Edge]bool)
	for id, n := range m.nodes {
		if n == nil {
			continue
		}
		for _, r := range n.routes {
			e := Edge{From: domain.NodeID(id), To: r.To, Conditional: r.When != nil}
			if !seen[e] {
				seen[e] = true
				edges = append(edges, e)
			}
		}
	}
	return edges
}

// EntryFor maps a restored phase to the node that should resume it. Phases
// without a node of the same name, and terminal phases, start at Entry.
func (m *Machine) EntryFor(p domain.Phase) domain.NodeID {
	if p.Terminal() {
		return m.entry
	}
	for id, n := range m.nodes {
		if n != nil && domain.NodeID(id).String() == string(p) {
			return domain.NodeID(id)
		}
	}
	return m.entry
}

// Snapshot returns the last checkpoint the machine saved for taskID.
func (m *Machine) Snapshot(ctx context.Context, taskID string) (domain.Checkpoint, error) {
	if m.checkpoints == nil {
		return domain.Checkpoint{}, domain.ErrCheckpointNotFound
	}
	return m.checkpoints.Load(ctx, taskID)
}

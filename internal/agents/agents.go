// Package agents assembles a compiled machine for each task type: the
// profile that parameterises the generic nodes, the domain nodes a type
// adds, and the routing tables that connect them.
package agents

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/errand/internal/nodes"
	"github.com/aretw0/errand/internal/runtime"
	"github.com/aretw0/errand/internal/tools"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/registry"
)

// Scopes lists the built-in tools each task type may plan with.
var Scopes = map[domain.TaskType][]string{
	domain.TaskGeneral:  {tools.WebSearch},
	domain.TaskMedicine: {tools.PharmacySearch, tools.PhoneCall, tools.Geocode},
	domain.TaskTravel:   {tools.WebSearch, tools.Geocode, tools.BookHotel},
}

// Scope declares Scopes on reg.
func Scope(reg *registry.Registry) {
	for _, tt := range domain.TaskTypes {
		reg.Scope(tt, Scopes[tt]...)
	}
}

// Factory builds machines that share one set of collaborators.
type Factory struct {
	deps nodes.Deps
	opts []runtime.Option
}

// NewFactory creates a factory. opts apply to every machine it builds.
func NewFactory(d nodes.Deps, opts ...runtime.Option) *Factory {
	return &Factory{deps: d.WithDefaults(), opts: opts}
}

// Build compiles the machine for taskType. extra options are applied after
// the factory's own.
func (f *Factory) Build(taskType domain.TaskType, extra ...runtime.Option) (*runtime.Machine, error) {
	var g *runtime.Graph
	switch taskType {
	case domain.TaskGeneral:
		g = linear(f.deps, GeneralProfile())
	case domain.TaskMedicine:
		g = linear(f.deps, MedicineProfile())
	case domain.TaskTravel:
		g = travel(f.deps, TravelProfile())
	default:
		return nil, fmt.Errorf("%w: unknown task type %q", domain.ErrInvalidInput, taskType)
	}
	opts := append(append([]runtime.Option(nil), f.opts...), extra...)
	m, err := g.Compile(domain.NodeClarification, opts...)
	if err != nil {
		return nil, fmt.Errorf("build %s machine: %w", taskType, err)
	}
	return m, nil
}

// linear is clarification → planning → execution → validation, with
// validation looping back to planning when a refinement is warranted.
func linear(d nodes.Deps, p nodes.Profile) *runtime.Graph {
	return runtime.NewGraph().
		AddNode(domain.NodeClarification, nodes.Clarification(d, p),
			runtime.StandardRoutes(runtime.InPhase(domain.PhasePlanning), domain.NodePlanning, domain.Terminate)...).
		AddNode(domain.NodePlanning, nodes.Planning(d, p),
			runtime.StandardRoutes(runtime.InPhase(domain.PhaseExecution), domain.NodeExecution, domain.Terminate)...).
		AddNode(domain.NodeExecution, nodes.Execution(d, p),
			runtime.StandardRoutes(runtime.InPhase(domain.PhaseValidation), domain.NodeValidation, domain.NodeExecution)...).
		AddNode(domain.NodeValidation, nodes.Validation(d, p),
			runtime.Rule{When: runtime.HasError, To: domain.Terminate},
			runtime.Rule{When: runtime.InPhase(domain.PhasePlanning), To: domain.NodePlanning},
			runtime.Rule{When: runtime.Paused, To: domain.Terminate},
			runtime.Otherwise(domain.Terminate))
}

// decodeResult converts a step result into out through JSON, so values that
// kept their Go type and values restored from a durable store decode alike.
func decodeResult(result any, out any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

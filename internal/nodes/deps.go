package nodes

import (
	"context"
	"log/slog"

	"github.com/aretw0/errand/internal/logging"
	"github.com/aretw0/errand/internal/steps"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/llm"
	"github.com/aretw0/errand/pkg/llm/parse"
	"github.com/aretw0/errand/pkg/registry"
	"github.com/google/uuid"
)

const (
	// DefaultMaxPayloadChars is the result size above which validation skips
	// the model call.
	DefaultMaxPayloadChars = 12000

	// DefaultMaxRefinements bounds validation-driven re-planning.
	DefaultMaxRefinements = 2
)

// Deps are the collaborators every node needs.
type Deps struct {
	LLM      llm.Client
	Registry *registry.Registry
	Runner   *steps.Runner
	Logger   *slog.Logger

	MaxPayloadChars int
	MaxRefinements  int

	// NewID mints step ids.
	NewID func() string
}

// WithDefaults fills unset collaborators and limits.
func (d Deps) WithDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.Runner == nil && d.Registry != nil {
		d.Runner = steps.NewRunner(d.Registry, steps.WithLogger(d.Logger))
	}
	if d.MaxPayloadChars <= 0 {
		d.MaxPayloadChars = DefaultMaxPayloadChars
	}
	if d.MaxRefinements <= 0 {
		d.MaxRefinements = DefaultMaxRefinements
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

// Field is a gathered-info key the extractor looks for.
type Field struct {
	Key         string
	Description string
}

// Profile is what varies between task types.
type Profile struct {
	TaskType domain.TaskType
	// Persona is one sentence describing the assistant in prompts.
	Persona  string
	Fields   []Field
	Required []string

	// PlanningHint is appended to the planning prompt.
	PlanningHint string

	// AfterClarification is the phase entered once info is sufficient.
	AfterClarification domain.Phase

	// AfterValidation is the phase entered on a passing validation.
	// PhaseComplete also generates the final response.
	AfterValidation domain.Phase

	// ConfirmRefinement sends a needs-refinement verdict to the
	// confirmation loop instead of back to planning.
	ConfirmRefinement bool

	// DefaultPlan replaces a malformed or empty model plan.
	DefaultPlan func(s *domain.AgentState) domain.Plan

	// MergeResult lifts a completed step's result into typed state.
	MergeResult func(step domain.ExecutionStep) (domain.Update, error)

	// Summarize renders what the user is asked to confirm.
	Summarize func(s *domain.AgentState) string

	// AcceptPhase is where an accepted confirmation goes.
	AcceptPhase func(s *domain.AgentState) domain.Phase
}

// complete asks the model for JSON and decodes it into a T, falling back to
// fallback when the output holds nothing decodable.
func complete[T any](ctx context.Context, d Deps, req llm.Request, fallback T) (T, error) {
	req.JSON = true
	text, err := d.LLM.Complete(ctx, req)
	if err != nil {
		return fallback, err
	}
	out, tier := parse.Or(text, fallback)
	if tier != parse.TierDirect {
		d.Logger.Debug("lenient model output", "call", req.Name, "tier", tier.String())
	}
	return out, nil
}

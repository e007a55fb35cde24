package nodes

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/errand/internal/runtime"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/llm"
)

// Verdict is the outcome of a validation reply.
type Verdict int

const (
	VerdictAmbiguous Verdict = iota
	VerdictValid
	VerdictNeedsRefinement
)

func (v Verdict) String() string {
	switch v {
	case VerdictValid:
		return "valid"
	case VerdictNeedsRefinement:
		return "needs_refinement"
	}
	return "ambiguous"
}

// Only the leading token counts; "the plan is VALID overall" is ambiguous.
var (
	validRe      = regexp.MustCompile(`(?i)^\s*[*_]*VALID\b`)
	refinementRe = regexp.MustCompile(`(?is)^\s*[*_]*NEEDS[\s_-]+REFINEMENT\b[*_]*[\s:.\-]*(.*)$`)
)

// ParseVerdict classifies a validation reply and extracts the stated reason
// for a refinement.
func ParseVerdict(text string) (Verdict, string) {
	if validRe.MatchString(text) {
		return VerdictValid, ""
	}
	if m := refinementRe.FindStringSubmatch(text); m != nil {
		reason := strings.TrimSpace(m[1])
		if reason == "" {
			reason = "the results did not fully answer the request"
		}
		return VerdictNeedsRefinement, reason
	}
	return VerdictAmbiguous, ""
}

// Validation reviews executed results. A valid or ambiguous reply moves on;
// a needs-refinement reply re-plans, or enters the confirmation loop for
// profiles that have one. Oversized results skip the model call.
func Validation(d Deps, p Profile) runtime.NodeFunc {
	d = d.WithDefaults()
	return func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
		payload := ResultsJSON(s.ExecutionPlan)
		if len(payload) > d.MaxPayloadChars {
			d.Logger.Info("results too large to validate", "task_id", s.TaskID, "chars", len(payload), "limit", d.MaxPayloadChars)
			return d.pass(ctx, p, s, payload)
		}

		reply, err := d.LLM.Complete(ctx, llm.Request{
			Name:   "validate",
			System: validateSystem,
			Prompt: validatePrompt(p, s, payload),
		})
		if err != nil {
			if ctx.Err() != nil {
				return domain.Update{}, err
			}
			d.Logger.Warn("validation call failed, passing through", "task_id", s.TaskID, "err", err)
		}

		verdict, reason := ParseVerdict(reply)
		d.Logger.Debug("validation verdict", "task_id", s.TaskID, "verdict", verdict.String())

		if verdict != VerdictNeedsRefinement {
			return d.pass(ctx, p, s, payload)
		}
		if p.ConfirmRefinement {
			return domain.Update{
				Phase:            domain.Ptr(domain.PhaseConfirmation),
				RefinementReason: domain.Ptr(reason),
				UserMessage:      domain.Ptr(""),
			}, nil
		}
		if s.Refinements >= d.MaxRefinements {
			d.Logger.Info("refinement limit reached", "task_id", s.TaskID, "limit", d.MaxRefinements)
			return d.pass(ctx, p, s, payload)
		}
		return domain.Update{
			Phase:            domain.Ptr(domain.PhasePlanning),
			RefinementReason: domain.Ptr(reason),
			Refinements:      domain.Ptr(s.Refinements + 1),
		}, nil
	}
}

// pass moves past validation, generating the final response when the
// profile completes here.
func (d Deps) pass(ctx context.Context, p Profile, s *domain.AgentState, payload string) (domain.Update, error) {
	next := p.AfterValidation
	if next == "" {
		next = domain.PhaseComplete
	}
	if next != domain.PhaseComplete {
		return domain.Update{Phase: domain.Ptr(next)}, nil
	}
	text, err := d.respond(ctx, p, s, payload)
	if err != nil {
		return domain.Update{}, err
	}
	return Complete(text), nil
}

// Complete is the update that finishes a task with text.
func Complete(text string) domain.Update {
	return domain.Update{
		Phase:              domain.Ptr(domain.PhaseComplete),
		FinalResponse:      domain.Ptr(text),
		RequiresHumanInput: domain.Ptr(false),
	}
}

// respond writes the final answer. A failed model call degrades to a plain
// listing of the results.
func (d Deps) respond(ctx context.Context, p Profile, s *domain.AgentState, payload string) (string, error) {
	payload = Clip(payload, d.MaxPayloadChars)
	text, err := d.LLM.Complete(ctx, llm.Request{
		Name:   "respond",
		System: respondSystem,
		Prompt: respondPrompt(p, s, payload),
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		d.Logger.Warn("response generation failed, summarizing results", "task_id", s.TaskID, "err", err)
		return Summary(s.ExecutionPlan), nil
	}
	if strings.TrimSpace(text) == "" {
		return Summary(s.ExecutionPlan), nil
	}
	return strings.TrimSpace(text), nil
}

// Summary lists each step's outcome as markdown.
func Summary(plan domain.Plan) string {
	var b strings.Builder
	b.WriteString("Here is what I found:\n")
	for _, st := range plan {
		switch st.Status {
		case domain.StepCompleted:
			fmt.Fprintf(&b, "\n- **%s**: %s", st.Name, toJSON(st.Result))
		case domain.StepFailed:
			fmt.Fprintf(&b, "\n- **%s**: failed (%s)", st.Name, st.Error)
		}
	}
	return b.String()
}

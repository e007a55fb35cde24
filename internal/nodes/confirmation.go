package nodes

import (
	"context"
	"regexp"
	"strings"

	"github.com/aretw0/errand/internal/runtime"
	"github.com/aretw0/errand/pkg/domain"
)

// Decision is the reading of a user's reply to a confirmation.
type Decision int

const (
	DecisionChanges Decision = iota
	DecisionAccept
)

func (d Decision) String() string {
	if d == DecisionAccept {
		return "accept"
	}
	return "changes"
}

var (
	acceptRe = regexp.MustCompile(`(?i)\b(yes|yep|yeah|sure|ok|okay|confirm(ed)?|approve[d]?|accept(ed)?|perfect|great|looks good|sounds good|go ahead|book it|do it|lgtm|love it)\b`)
	changeRe = regexp.MustCompile(`(?i)\b(no|nope|not|don't|change[sd]?|modify|adjust|instead|different|rather|prefer|swap|replace|add|remove|fewer|more|less|cheaper|but|however|except)\b`)
)

// ClassifyFeedback decides between accepting and requesting changes without
// a model call. A change signal outweighs an accept signal ("yes, but...").
// A reply with neither is taken as change feedback.
func ClassifyFeedback(reply string) Decision {
	reply = strings.TrimSpace(reply)
	switch {
	case strings.EqualFold(reply, domain.OptionConfirm):
		return DecisionAccept
	case strings.EqualFold(reply, domain.OptionRequestChanges):
		return DecisionChanges
	case changeRe.MatchString(reply):
		return DecisionChanges
	case acceptRe.MatchString(reply):
		return DecisionAccept
	}
	return DecisionChanges
}

// Confirmation presents the profile's summary and pauses with the standard
// options. Re-entered with the user's reply, it either moves to the accept
// phase or records the reply as feedback for refinement.
func Confirmation(d Deps, p Profile) runtime.NodeFunc {
	d = d.WithDefaults()
	return func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
		reply := strings.TrimSpace(s.UserMessage)
		if reply == "" {
			return present(p, s), nil
		}

		decision := ClassifyFeedback(reply)
		d.Logger.Debug("confirmation reply", "task_id", s.TaskID, "decision", decision.String())

		if decision == DecisionAccept {
			next := domain.PhaseComplete
			if p.AcceptPhase != nil {
				next = p.AcceptPhase(s)
			}
			return domain.Update{
				Phase:              domain.Ptr(next),
				UserMessage:        domain.Ptr(""),
				RequiresHumanInput: domain.Ptr(false),
			}, nil
		}
		return domain.Update{
			Phase:              domain.Ptr(domain.PhaseRefinement),
			Feedback:           domain.Ptr(reply),
			UserMessage:        domain.Ptr(""),
			RequiresHumanInput: domain.Ptr(false),
		}, nil
	}
}

func present(p Profile, s *domain.AgentState) domain.Update {
	var b strings.Builder
	if p.Summarize != nil {
		b.WriteString(p.Summarize(s))
	}
	if s.RefinementReason != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Note: " + s.RefinementReason)
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString("Shall I go ahead, or would you like changes?")

	u := domain.Pause(domain.HumanInputRequest{
		Type:     domain.InputConfirmation,
		Question: b.String(),
		Options:  []string{domain.OptionConfirm, domain.OptionRequestChanges},
	})
	u.Phase = domain.Ptr(domain.PhaseConfirmation)
	return u
}

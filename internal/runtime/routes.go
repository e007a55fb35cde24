package runtime

import "github.com/aretw0/errand/pkg/domain"

// Predicate inspects the merged state after a node has run.
type Predicate func(s *domain.AgentState) bool

// Rule routes to To when When holds. A nil When always matches.
type Rule struct {
	When Predicate
	To   domain.NodeID
}

func (r Rule) matches(s *domain.AgentState) bool {
	return r.When == nil || r.When(s)
}

// HasError holds once the state carries a terminal error.
func HasError(s *domain.AgentState) bool { return s.Error != "" }

// Paused holds while the task waits on the user.
func Paused(s *domain.AgentState) bool { return s.RequiresHumanInput }

// InPhase holds when the state's phase equals p.
func InPhase(p domain.Phase) Predicate {
	return func(s *domain.AgentState) bool { return s.CurrentPhase == p }
}

// Otherwise is the unconditional fallback rule.
func Otherwise(to domain.NodeID) Rule {
	return Rule{To: to}
}

// StandardRoutes builds the table every node follows: an error terminates,
// then success advances to next, then a pause terminates, then fallback.
// Error must come first so a failing node never leaves a question behind,
// and a pause must come before the fallback so it is never overridden.
func StandardRoutes(success Predicate, next, fallback domain.NodeID) []Rule {
	return []Rule{
		{When: HasError, To: domain.Terminate},
		{When: success, To: next},
		{When: Paused, To: domain.Terminate},
		Otherwise(fallback),
	}
}

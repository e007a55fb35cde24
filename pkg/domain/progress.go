package domain

// phaseWeights are the progress percentages at the start of each phase.
var phaseWeights = map[Phase]float64{
	PhaseClarification: 10,
	PhasePlanning:      30,
	PhaseResearch:      30,
	PhaseExecution:     60,
	PhaseValidation:    90,
	PhaseItinerary:     91,
	PhaseConfirmation:  93,
	PhaseRefinement:    93,
	PhaseBooking:       97,
	PhaseComplete:      100,
}

// executionBand is how far execution progress can climb above its base
// weight as the cursor moves through the plan.
const executionBand = 30

// Progress returns the task's completion percentage in [0, 100]. Unknown
// phases and the error phase report 0.
func Progress(s *AgentState) float64 {
	p := phaseWeights[s.CurrentPhase]
	if s.CurrentPhase == PhaseExecution && len(s.ExecutionPlan) > 0 {
		p += executionBand * float64(s.CurrentStepIndex) / float64(len(s.ExecutionPlan))
	}
	return min(p, 100)
}

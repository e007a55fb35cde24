package domain

import "slices"

// AgentState is the record threaded through a task's phase machine.
type AgentState struct {
	SessionID string   `json:"sessionId"`
	TaskID    string   `json:"taskId"`
	TaskType  TaskType `json:"taskType"`
	UserID    string   `json:"userId,omitempty"`

	CurrentPhase      Phase        `json:"currentPhase"`
	HasSufficientInfo bool         `json:"hasSufficientInfo"`
	GatheredInfo      GatheredInfo `json:"gatheredInfo"`
	ExecutionPlan     Plan         `json:"executionPlan,omitempty"`
	CurrentStepIndex  int          `json:"currentStepIndex"`

	// Error is terminal: once set, every routing table ends the run.
	Error string `json:"error,omitempty"`

	RequiresHumanInput bool               `json:"requiresHumanInput"`
	HumanInputRequest  *HumanInputRequest `json:"humanInputRequest,omitempty"`
	FinalResponse      string             `json:"finalResponse,omitempty"`

	// UserMessage is the utterance that started the current turn.
	UserMessage      string `json:"userMessage,omitempty"`
	RefinementReason string `json:"refinementReason,omitempty"`
	Refinements      int    `json:"refinements,omitempty"`

	Pharmacies  []Pharmacy   `json:"pharmacies,omitempty"`
	CallResults []CallResult `json:"callResults,omitempty"`
	Itinerary   *Itinerary   `json:"itinerary,omitempty"`
	Bookings    []Booking    `json:"bookings,omitempty"`
	Feedback    string       `json:"feedback,omitempty"`
}

// NewAgentState returns a fresh base state for a task.
func NewAgentState(sessionID, taskID string, taskType TaskType) *AgentState {
	return &AgentState{
		SessionID:    sessionID,
		TaskID:       taskID,
		TaskType:     taskType,
		CurrentPhase: PhaseClarification,
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *AgentState) Clone() *AgentState {
	if s == nil {
		return nil
	}
	out := *s
	out.GatheredInfo = s.GatheredInfo.Clone()
	out.ExecutionPlan = s.ExecutionPlan.Clone()
	if s.HumanInputRequest != nil {
		req := *s.HumanInputRequest
		req.Options = slices.Clone(req.Options)
		req.MissingFields = slices.Clone(req.MissingFields)
		out.HumanInputRequest = &req
	}
	out.Pharmacies = slices.Clone(s.Pharmacies)
	out.CallResults = slices.Clone(s.CallResults)
	if s.Itinerary != nil {
		it := *s.Itinerary
		it.Days = slices.Clone(it.Days)
		out.Itinerary = &it
	}
	out.Bookings = slices.Clone(s.Bookings)
	return &out
}

// PlanComplete reports whether the cursor has reached the end of the plan.
func (s *AgentState) PlanComplete() bool {
	return len(s.ExecutionPlan) > 0 && s.CurrentStepIndex >= len(s.ExecutionPlan)
}

// Paused reports whether the task is waiting on the user.
func (s *AgentState) Paused() bool {
	return s.RequiresHumanInput && s.HumanInputRequest != nil
}

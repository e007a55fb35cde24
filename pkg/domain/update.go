package domain

// Update is the partial state change a node returns. Nil fields are left
// untouched; each set field is folded in by its reducer in Apply.
type Update struct {
	Phase             *Phase
	HasSufficientInfo *bool

	// GatheredInfo is merged key by key, never replaced wholesale.
	GatheredInfo *GatheredInfo

	// ExecutionPlan replaces the whole plan when non-nil.
	ExecutionPlan Plan

	// CurrentStepIndex only moves forward and is clamped to the plan length.
	CurrentStepIndex *int

	Error *string

	// RequiresHumanInput=false also clears HumanInputRequest.
	RequiresHumanInput *bool
	HumanInputRequest  *HumanInputRequest

	FinalResponse *string

	// UserMessage set to "" marks the turn's message as consumed, so a node
	// reached later in the same run knows it has no fresh reply to act on.
	UserMessage *string

	RefinementReason *string
	Refinements      *int

	// Pharmacies are merged by id, CallResults appended uniquely by pharmacy,
	// Bookings merged by id.
	Pharmacies  []Pharmacy
	CallResults []CallResult
	Bookings    []Booking
	Itinerary   *Itinerary
	Feedback    *string
}

// Ptr returns a pointer to v. It keeps Update literals short.
func Ptr[T any](v T) *T {
	return &v
}

// Pause builds an update that suspends the task with req.
func Pause(req HumanInputRequest) Update {
	return Update{
		RequiresHumanInput: Ptr(true),
		HumanInputRequest:  &req,
	}
}

// Fail builds the terminal update for a node failure.
func Fail(msg string) Update {
	return Update{
		Error: Ptr(msg),
		Phase: Ptr(PhaseError),
	}
}

// Apply folds u into s using each field's reducer.
func (s *AgentState) Apply(u Update) {
	if u.Phase != nil {
		s.CurrentPhase = *u.Phase
	}
	if u.HasSufficientInfo != nil {
		s.HasSufficientInfo = *u.HasSufficientInfo
	}
	if u.GatheredInfo != nil {
		s.GatheredInfo = s.GatheredInfo.Merge(*u.GatheredInfo)
	}
	if u.ExecutionPlan != nil {
		s.ExecutionPlan = u.ExecutionPlan.Clone()
	}
	if u.CurrentStepIndex != nil && *u.CurrentStepIndex > s.CurrentStepIndex {
		s.CurrentStepIndex = *u.CurrentStepIndex
	}
	if s.CurrentStepIndex > len(s.ExecutionPlan) {
		s.CurrentStepIndex = len(s.ExecutionPlan)
	}
	if u.Error != nil {
		s.Error = *u.Error
	}
	if u.RequiresHumanInput != nil {
		s.RequiresHumanInput = *u.RequiresHumanInput
		if !s.RequiresHumanInput {
			s.HumanInputRequest = nil
		}
	}
	if u.HumanInputRequest != nil {
		req := *u.HumanInputRequest
		s.HumanInputRequest = &req
	}
	if u.FinalResponse != nil {
		s.FinalResponse = *u.FinalResponse
	}
	if u.UserMessage != nil {
		s.UserMessage = *u.UserMessage
	}
	if u.RefinementReason != nil {
		s.RefinementReason = *u.RefinementReason
	}
	if u.Refinements != nil {
		s.Refinements = *u.Refinements
	}
	s.Pharmacies = MergeByID(s.Pharmacies, u.Pharmacies, pharmacyKey)
	s.CallResults = AppendUnique(s.CallResults, u.CallResults, callResultKey)
	s.Bookings = MergeByID(s.Bookings, u.Bookings, bookingKey)
	if u.Itinerary != nil {
		it := *u.Itinerary
		s.Itinerary = &it
	}
	if u.Feedback != nil {
		s.Feedback = *u.Feedback
	}
}

// Merge combines two updates produced by the same node, b taking precedence.
// Accumulating fields are concatenated so their reducers still see every entry.
func (u Update) Merge(b Update) Update {
	out := u
	if b.Phase != nil {
		out.Phase = b.Phase
	}
	if b.HasSufficientInfo != nil {
		out.HasSufficientInfo = b.HasSufficientInfo
	}
	if b.GatheredInfo != nil {
		if out.GatheredInfo == nil {
			out.GatheredInfo = b.GatheredInfo
		} else {
			merged := out.GatheredInfo.Merge(*b.GatheredInfo)
			out.GatheredInfo = &merged
		}
	}
	if b.ExecutionPlan != nil {
		out.ExecutionPlan = b.ExecutionPlan
	}
	if b.CurrentStepIndex != nil {
		out.CurrentStepIndex = b.CurrentStepIndex
	}
	if b.Error != nil {
		out.Error = b.Error
	}
	if b.RequiresHumanInput != nil {
		out.RequiresHumanInput = b.RequiresHumanInput
	}
	if b.HumanInputRequest != nil {
		out.HumanInputRequest = b.HumanInputRequest
	}
	if b.FinalResponse != nil {
		out.FinalResponse = b.FinalResponse
	}
	if b.UserMessage != nil {
		out.UserMessage = b.UserMessage
	}
	if b.RefinementReason != nil {
		out.RefinementReason = b.RefinementReason
	}
	if b.Refinements != nil {
		out.Refinements = b.Refinements
	}
	out.Pharmacies = append(append([]Pharmacy(nil), u.Pharmacies...), b.Pharmacies...)
	out.CallResults = append(append([]CallResult(nil), u.CallResults...), b.CallResults...)
	out.Bookings = append(append([]Booking(nil), u.Bookings...), b.Bookings...)
	if b.Itinerary != nil {
		out.Itinerary = b.Itinerary
	}
	if b.Feedback != nil {
		out.Feedback = b.Feedback
	}
	return out
}

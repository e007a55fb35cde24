package domain

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Reserved GatheredInfo keys that carry typed state through a checkpoint.
const (
	KeyStepIndex        = "_stepIndex"
	KeySufficientInfo   = "_hasSufficientInfo"
	KeyRefinements      = "_refinements"
	KeyRefinementReason = "_refinementReason"
	KeyPharmacies       = "_pharmacies"
	KeyCallResults      = "_callResults"
	KeyItinerary        = "_itinerary"
	KeyBookings         = "_bookings"
	KeyFeedback         = "_feedback"
)

var reservedKeys = []string{
	KeyStepIndex, KeySufficientInfo, KeyRefinements, KeyRefinementReason,
	KeyPharmacies, KeyCallResults, KeyItinerary, KeyBookings, KeyFeedback,
}

// Checkpoint is the durable snapshot of a task. GatheredInfo is the superset
// that typed top-level state is folded into.
type Checkpoint struct {
	TaskID        string       `json:"taskId"`
	Phase         Phase        `json:"phase"`
	GatheredInfo  GatheredInfo `json:"gatheredInfo"`
	ExecutionPlan Plan         `json:"executionPlan,omitempty"`
	Progress      float64      `json:"progress"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Fold flattens s into a checkpoint with the given progress.
func Fold(s *AgentState, progress float64) Checkpoint {
	info := s.GatheredInfo.Clone()
	if info.Extra == nil {
		info.Extra = make(map[string]any)
	}
	info.Extra[KeyStepIndex] = s.CurrentStepIndex
	if s.HasSufficientInfo {
		info.Extra[KeySufficientInfo] = true
	}
	if s.Refinements > 0 {
		info.Extra[KeyRefinements] = s.Refinements
	}
	if s.RefinementReason != "" {
		info.Extra[KeyRefinementReason] = s.RefinementReason
	}
	if len(s.Pharmacies) > 0 {
		info.Extra[KeyPharmacies] = s.Pharmacies
	}
	if len(s.CallResults) > 0 {
		info.Extra[KeyCallResults] = s.CallResults
	}
	if s.Itinerary != nil {
		info.Extra[KeyItinerary] = s.Itinerary
	}
	if len(s.Bookings) > 0 {
		info.Extra[KeyBookings] = s.Bookings
	}
	if s.Feedback != "" {
		info.Extra[KeyFeedback] = s.Feedback
	}
	return Checkpoint{
		TaskID:        s.TaskID,
		Phase:         s.CurrentPhase,
		GatheredInfo:  info,
		ExecutionPlan: s.ExecutionPlan.Clone(),
		Progress:      progress,
	}
}

// Restore overlays cp onto base and lifts folded fields back to their typed
// homes. Pause fields are always reset so a resumed task never re-shows a
// stale question.
func Restore(base *AgentState, cp Checkpoint) (*AgentState, error) {
	s := base.Clone()
	s.CurrentPhase = cp.Phase
	s.ExecutionPlan = cp.ExecutionPlan.Clone()
	s.RequiresHumanInput = false
	s.HumanInputRequest = nil
	s.Error = ""

	info := cp.GatheredInfo.Clone()
	folded := make(map[string]any)
	for _, k := range reservedKeys {
		if v, ok := info.Extra[k]; ok {
			folded[k] = v
			delete(info.Extra, k)
		}
	}
	if len(info.Extra) == 0 {
		info.Extra = nil
	}
	s.GatheredInfo = info

	var lifted struct {
		StepIndex        int          `json:"_stepIndex"`
		SufficientInfo   bool         `json:"_hasSufficientInfo"`
		Refinements      int          `json:"_refinements"`
		RefinementReason string       `json:"_refinementReason"`
		Pharmacies       []Pharmacy   `json:"_pharmacies"`
		CallResults      []CallResult `json:"_callResults"`
		Itinerary        *Itinerary   `json:"_itinerary"`
		Bookings         []Booking    `json:"_bookings"`
		Feedback         string       `json:"_feedback"`
	}
	if err := decodeFolded(folded, &lifted); err != nil {
		return nil, fmt.Errorf("lift checkpoint fields: %w", err)
	}

	if _, ok := folded[KeyStepIndex]; ok {
		s.CurrentStepIndex = lifted.StepIndex
	} else {
		s.CurrentStepIndex = s.ExecutionPlan.NextPending()
	}
	s.CurrentStepIndex = min(max(s.CurrentStepIndex, 0), len(s.ExecutionPlan))
	s.HasSufficientInfo = lifted.SufficientInfo
	s.Refinements = lifted.Refinements
	s.RefinementReason = lifted.RefinementReason
	s.Pharmacies = lifted.Pharmacies
	s.CallResults = lifted.CallResults
	s.Itinerary = lifted.Itinerary
	s.Bookings = lifted.Bookings
	s.Feedback = lifted.Feedback
	return s, nil
}

// decodeFolded decodes values that either kept their Go types (in-memory
// stores) or went through JSON (durable stores).
func decodeFolded(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

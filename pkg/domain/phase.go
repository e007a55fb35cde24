package domain

import (
	"fmt"
	"strings"
)

// Phase is a named stage of task progress.
type Phase string

const (
	PhaseClarification Phase = "clarification"
	PhasePlanning      Phase = "planning"
	PhaseExecution     Phase = "execution"
	PhaseValidation    Phase = "validation"
	PhaseComplete      Phase = "complete"
	PhaseError         Phase = "error"

	// Travel phases.
	PhaseResearch     Phase = "research"
	PhaseItinerary    Phase = "itinerary"
	PhaseConfirmation Phase = "confirmation"
	PhaseRefinement   Phase = "refinement"
	PhaseBooking      Phase = "booking"
)

// Terminal reports whether no further node should run for this phase.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// NodeID identifies a node in a compiled machine. The set is closed so routing
// tables can be checked for completeness when a machine is built.
type NodeID int

const (
	// Terminate is the routing target that ends a run.
	Terminate NodeID = iota - 1
	NodeClarification
	NodePlanning
	NodeExecution
	NodeValidation
	NodeResearch
	NodeItinerary
	NodeConfirmation
	NodeRefinement
	NodeBooking

	// NodeCount is the number of defined nodes.
	NodeCount
)

var nodeNames = [NodeCount]string{
	NodeClarification: "clarification",
	NodePlanning:      "planning",
	NodeExecution:     "execution",
	NodeValidation:    "validation",
	NodeResearch:      "research",
	NodeItinerary:     "itinerary",
	NodeConfirmation:  "confirmation",
	NodeRefinement:    "refinement",
	NodeBooking:       "booking",
}

func (n NodeID) String() string {
	if n == Terminate {
		return "__end__"
	}
	if n < 0 || n >= NodeCount {
		return fmt.Sprintf("node(%d)", int(n))
	}
	return nodeNames[n]
}

// Valid reports whether n names a real node.
func (n NodeID) Valid() bool {
	return n >= 0 && n < NodeCount
}

// MarshalText renders the node by name in JSON payloads.
func (n NodeID) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// TaskType selects the agent (node set, tools, routing) that handles a task.
type TaskType string

const (
	TaskGeneral  TaskType = "general"
	TaskMedicine TaskType = "medicine"
	TaskTravel   TaskType = "travel"
)

// TaskTypes lists every supported task type.
var TaskTypes = []TaskType{TaskGeneral, TaskMedicine, TaskTravel}

// ParseTaskType resolves a loosely formatted name to a known task type.
func ParseTaskType(s string) (TaskType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range TaskTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

package domain

// InputType categorises the question shown to the user during a pause.
type InputType string

const (
	InputClarification InputType = "clarification"
	InputConfirmation  InputType = "confirmation"
	InputChoice        InputType = "choice"
	InputText          InputType = "text"
)

// Standard confirmation options.
const (
	OptionConfirm        = "Confirm"
	OptionRequestChanges = "Request changes"
)

// HumanInputRequest is the question a paused task returns to its caller.
type HumanInputRequest struct {
	Type          InputType `json:"type"`
	Question      string    `json:"question"`
	Options       []string  `json:"options,omitempty"`
	MissingFields []string  `json:"missingFields,omitempty"`
}

package domain

// Response is what a caller receives for one turn.
type Response struct {
	SessionID     string             `json:"sessionId"`
	TaskID        string             `json:"taskId,omitempty"`
	Response      string             `json:"response"`
	RequiresInput bool               `json:"requiresInput"`
	InputRequest  *HumanInputRequest `json:"inputRequest,omitempty"`
	IsComplete    bool               `json:"isComplete"`
	Progress      float64            `json:"progress"`

	// Set only on the turn that minted a guest identity.
	UserID       string `json:"userId,omitempty"`
	SessionToken string `json:"sessionToken,omitempty"`
}

// StreamEventType tags frames of the streaming intake.
type StreamEventType string

const (
	StreamSession  StreamEventType = "session"
	StreamProgress StreamEventType = "progress"
	StreamComplete StreamEventType = "complete"
	StreamError    StreamEventType = "error"
)

// ProgressData is the payload of a progress frame.
type ProgressData struct {
	Phase      Phase   `json:"phase"`
	StepIndex  *int    `json:"stepIndex,omitempty"`
	TotalSteps *int    `json:"totalSteps,omitempty"`
	Progress   float64 `json:"progress"`
}

// StreamEvent is one frame of the streaming intake. Which fields are set
// depends on Type.
type StreamEvent struct {
	Type   StreamEventType `json:"type"`
	TaskID string          `json:"taskId,omitempty"`

	SessionID         string `json:"sessionId,omitempty"`
	UserID            string `json:"userId,omitempty"`
	SessionToken      string `json:"sessionToken,omitempty"`
	IsNewGuestSession bool   `json:"isNewGuestSession,omitempty"`

	Node string        `json:"node,omitempty"`
	Data *ProgressData `json:"data,omitempty"`

	Response *Response `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Terminal reports whether the frame ends a stream.
func (e StreamEvent) Terminal() bool {
	return e.Type == StreamComplete || e.Type == StreamError
}

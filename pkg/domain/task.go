package domain

import "time"

// TaskStatus is the coarse lifecycle of a task record.
type TaskStatus string

const (
	TaskActive   TaskStatus = "active"
	TaskComplete TaskStatus = "complete"
	TaskFailed   TaskStatus = "failed"
)

// Session groups the tasks of one user conversation.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Task is one request being driven through a machine.
type Task struct {
	ID            string     `json:"id"`
	SessionID     string     `json:"sessionId"`
	Type          TaskType   `json:"type"`
	Status        TaskStatus `json:"status"`
	AwaitingInput bool       `json:"awaitingInput"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Open reports whether the task can still receive messages.
func (t *Task) Open() bool {
	return t.Status == TaskActive
}

// Guest is an anonymous identity minted for callers without credentials.
type Guest struct {
	UserID    string    `json:"userId"`
	Token     string    `json:"sessionToken"`
	CreatedAt time.Time `json:"createdAt"`
}

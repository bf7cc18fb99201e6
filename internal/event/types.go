package event

import "github.com/agentboard-ai/agentboard/pkg/types"

// EventType represents the type of event.
type EventType string

const (
	SessionStarted   EventType = "session.started"
	SessionRunning   EventType = "session.running"
	SessionCompleted EventType = "session.completed"
	SessionFailed    EventType = "session.failed"
	SessionCancelled EventType = "session.cancelled"
	LogAppended      EventType = "log.appended"
	QuestionAsked    EventType = "question.asked"
	QuestionAnswered EventType = "question.answered"
	EditFinalized    EventType = "edit.finalized"
	ShellExited      EventType = "shell.exited"
	UploadEvicted    EventType = "upload.evicted"
)

// Event is one live notification about a session, scoped by its key.
type Event struct {
	Type       EventType `json:"type"`
	SessionKey string    `json:"sessionKey"`
	Data       any       `json:"data,omitempty"`
}

// LogAppendedData is the data for log.appended events. It carries the entry
// verbatim so live observers see exactly what the log store recorded.
type LogAppendedData struct {
	Entry types.LogEntry `json:"entry"`
}

// SessionFailedData is the data for session.failed events.
type SessionFailedData struct {
	Message string `json:"message"`
}

// QuestionAskedData is the data for question.asked events.
type QuestionAskedData struct {
	Questions []types.Question `json:"questions"`
}

// QuestionAnsweredData is the data for question.answered events.
type QuestionAnsweredData struct {
	Answer types.Answer `json:"answer"`
}

// EditFinalizedData is the data for edit.finalized events.
type EditFinalizedData struct {
	Result    string `json:"result"`
	Diff      string `json:"diff,omitempty"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// ShellExitedData is the data for shell.exited events.
type ShellExitedData struct {
	ExitCode int `json:"exitCode"`
}

package storage

import "time"

// EventWriter records dispatcher call events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *CallEvent)
	Close()
}

// Call outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// CallEvent is one tool invocation made by the dispatcher.
type CallEvent struct {
	CallID    string    `json:"call_id"`
	Timestamp time.Time `json:"timestamp"`
	Namespace string    `json:"namespace"`
	Model     string    `json:"model"`
	Operation string    `json:"operation"`
	ToolName  string    `json:"tool_name"`
	Outcome   string    `json:"outcome"` // "ok", "error"
	ErrorKind string    `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	LatencyMs float32   `json:"latency_ms"`
}

// Nop discards every event.
type Nop struct{}

func (Nop) Write(*CallEvent) {}
func (Nop) Close()           {}

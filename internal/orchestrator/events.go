package orchestrator

import "github.com/antsh3k/codex-cv/pkg/models"

// EventKind identifies the lifecycle phase an Event reports.
type EventKind int

const (
	// EventStarted fires once per spawned sub-conversation, immediately
	// after a successful spawn.
	EventStarted EventKind = iota
	// EventMessage forwards an assistant message or stream notice.
	EventMessage
	// EventCompleted fires exactly once per run with the terminal state.
	EventCompleted
)

// String returns the event kind name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventMessage:
		return "message"
	case EventCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Event is a progress notification produced while a subagent run executes.
// Events arrive strictly in the order the engine produced them.
type Event struct {
	// Kind discriminates the variant.
	Kind EventKind
	// AgentName is the subagent being run.
	AgentName string
	// ConversationID identifies the sub-conversation, once spawned.
	ConversationID string
	// Model is the resolved model; empty means the session default.
	Model string
	// Message carries assistant text and stream notices for EventMessage.
	Message string
	// State is the terminal run state, set only on EventCompleted.
	State models.RunState
}

// Sink receives lifecycle events for a run. A nil sink discards them.
type Sink func(Event)

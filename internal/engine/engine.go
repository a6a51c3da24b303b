// Package engine defines the conversational engine boundary the orchestrator
// depends on, plus the production Anthropic adapter and a scripted engine for
// tests. Orchestration never interprets engine internals beyond the event
// vocabulary here.
package engine

import "context"

// EventKind discriminates engine events.
type EventKind int

const (
	// EventAgentMessage carries an assistant message chunk.
	EventAgentMessage EventKind = iota
	// EventTaskComplete signals the turn finished; Message holds the final
	// assistant message, possibly empty.
	EventTaskComplete
	// EventTurnAborted signals the turn ended early; AbortReason says why.
	EventTurnAborted
	// EventError is an engine-level failure that ends the turn.
	EventError
	// EventStreamError is a transport-level warning that does not end the
	// turn by itself.
	EventStreamError
	// EventShutdownComplete signals the conversation is gone.
	EventShutdownComplete
)

// String returns the event kind name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventAgentMessage:
		return "agent_message"
	case EventTaskComplete:
		return "task_complete"
	case EventTurnAborted:
		return "turn_aborted"
	case EventError:
		return "error"
	case EventStreamError:
		return "stream_error"
	case EventShutdownComplete:
		return "shutdown_complete"
	default:
		return "unknown"
	}
}

// Abort reasons reported with EventTurnAborted.
const (
	AbortInterrupted = "interrupted"
	AbortReplaced    = "replaced"
	AbortReviewEnded = "review-ended"
)

// Event is one tagged engine event.
type Event struct {
	// Kind discriminates the variant.
	Kind EventKind
	// Message holds the text payload for AgentMessage, TaskComplete, Error,
	// and StreamError events.
	Message string
	// AbortReason is set for TurnAborted events.
	AbortReason string
}

// SpawnResult is what a successful Spawn hands back.
type SpawnResult struct {
	// ConversationID identifies the sub-conversation for Release.
	ConversationID string
	// ResolvedModel is the model the conversation will run with; empty means
	// the session default.
	ResolvedModel string
	// Conversation is the live handle.
	Conversation Conversation
}

// Conversation is one isolated sub-conversation.
type Conversation interface {
	// Submit sends user text into the conversation.
	Submit(ctx context.Context, text string) error
	// NextEvent blocks for the next engine event.
	NextEvent(ctx context.Context) (Event, error)
}

// Engine spawns and releases isolated sub-conversations.
type Engine interface {
	// Spawn creates a sub-conversation seeded with the given instructions.
	// modelOverride, when non-empty, selects the model for this conversation.
	Spawn(ctx context.Context, instructions, modelOverride string) (SpawnResult, error)
	// Release frees the sub-conversation's resources. Safe to call once per
	// spawned conversation; unknown ids are ignored.
	Release(conversationID string)
}

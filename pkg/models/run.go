package models

import "time"

// RunOutcome tags the terminal result of one orchestrated subagent run.
type RunOutcome string

const (
	// RunOutcomeSuccess indicates the subagent completed its task.
	RunOutcomeSuccess RunOutcome = "success"
	// RunOutcomeError indicates the run ended with an error, abort, or timeout.
	RunOutcomeError RunOutcome = "error"
)

// Valid returns true if the outcome is a known value.
func (o RunOutcome) Valid() bool {
	switch o {
	case RunOutcomeSuccess, RunOutcomeError:
		return true
	default:
		return false
	}
}

// RunStatus represents the lifecycle state of a run as tracked outside the
// orchestrator, e.g. in the run ledger.
type RunStatus string

const (
	// RunStatusRunning indicates the run is in flight.
	RunStatusRunning RunStatus = "running"
	// RunStatusSucceeded indicates the run reached a successful terminal state.
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusFailed indicates the run reached a failed terminal state.
	RunStatusFailed RunStatus = "failed"
	// RunStatusStale indicates a row left behind by a process that died mid-run.
	RunStatusStale RunStatus = "stale"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed, RunStatusStale:
		return true
	default:
		return false
	}
}

// RunState is the terminal record of one orchestrated subagent execution.
// It is created at spawn, mutated only by the orchestrating goroutine, and
// frozen once the run reaches a terminal state.
type RunState struct {
	// AgentName is the subagent definition that was executed.
	AgentName string `json:"agent_name"`
	// ConversationID identifies the isolated sub-conversation.
	ConversationID string `json:"conversation_id"`
	// Model is the resolved model for the run; empty means the session default.
	Model string `json:"model,omitempty"`
	// Outcome is the terminal result.
	Outcome RunOutcome `json:"outcome"`
	// Error holds the failure or abort reason when Outcome is error.
	Error string `json:"error,omitempty"`
	// LastMessage is the final assistant message observed, if any.
	LastMessage string `json:"last_message,omitempty"`
	// Duration is the wall-clock time from spawn to terminal transition.
	Duration time.Duration `json:"duration"`
}

// Success reports whether the run ended in a successful outcome.
func (r *RunState) Success() bool {
	return r.Outcome == RunOutcomeSuccess
}

// DurationMillis returns the run duration as milliseconds, saturating at the
// maximum representable value instead of wrapping.
func (r *RunState) DurationMillis() uint64 {
	ms := r.Duration.Milliseconds()
	if ms < 0 {
		// A negative duration can only come from clock skew; report zero.
		return 0
	}
	return uint64(ms)
}

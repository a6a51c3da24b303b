// Package telemetry records one observation per completed subagent run.
// Observations are fire-and-forget: no sink failure ever propagates back
// into orchestration.
package telemetry

import (
	"log"

	"github.com/antsh3k/codex-cv/pkg/models"
)

// SessionDefaultModel is the sentinel reported when a run resolved no model
// of its own.
const SessionDefaultModel = "session default"

// Observation is the record of one completed run.
type Observation struct {
	// AgentName is the executed subagent.
	AgentName string
	// Model is the resolved model, or SessionDefaultModel.
	Model string
	// DurationMillis is the run's wall-clock duration in milliseconds.
	DurationMillis uint64
	// Success reports whether the run completed its task.
	Success bool
	// Outcome is the full terminal outcome variant.
	Outcome models.RunOutcome
	// Error is the failure or abort reason, if any.
	Error string
}

// FromRunState derives an observation from a terminal run state,
// substituting the session-default sentinel for an empty model.
func FromRunState(state models.RunState) Observation {
	model := state.Model
	if model == "" {
		model = SessionDefaultModel
	}
	return Observation{
		AgentName:      state.AgentName,
		Model:          model,
		DurationMillis: state.DurationMillis(),
		Success:        state.Success(),
		Outcome:        state.Outcome,
		Error:          state.Error,
	}
}

// Sink consumes observations.
type Sink interface {
	Observe(Observation)
}

// LogSink writes observations to the process log.
type LogSink struct{}

// Observe logs the observation.
func (LogSink) Observe(o Observation) {
	log.Printf("[telemetry] agent=%s model=%q duration_ms=%d success=%t outcome=%s",
		o.AgentName, o.Model, o.DurationMillis, o.Success, o.Outcome)
}

// MultiSink fans one observation out to several sinks.
type MultiSink []Sink

// Observe forwards to every sink in order.
func (m MultiSink) Observe(o Observation) {
	for _, sink := range m {
		sink.Observe(o)
	}
}

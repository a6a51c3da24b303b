package orchestrator

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/antsh3k/codex-cv/internal/subagent"
	"github.com/antsh3k/codex-cv/internal/telemetry"
	"github.com/antsh3k/codex-cv/pkg/models"
)

// execute wraps attempt with the retry policy and owns the terminal
// obligations: exactly one Completed event, one telemetry observation, and
// the whole-run duration, regardless of how the attempts went.
func (o *Orchestrator) execute(ctx context.Context, spec *subagent.Spec, prompt string, sink Sink) (models.RunState, error) {
	start := time.Now()

	var state models.RunState
	var runErr error
	for attempt := 0; ; attempt++ {
		state, runErr = o.attempt(ctx, spec, prompt, sink)
		if runErr == nil {
			break
		}
		if errors.Is(runErr, ErrTimeout) {
			state.Error = runErr.Error()
			break
		}
		if attempt >= o.opts.MaxRetries || ctx.Err() != nil {
			state.Error = runErr.Error()
			if state.Error == "" {
				state.Error = "subagent run failed"
			}
			break
		}
		log.Printf("[retry] %s attempt %d failed, retrying: %v", spec.Name(), attempt+1, runErr)
	}

	state.Duration = time.Since(start)
	o.emit(sink, Event{
		Kind:           EventCompleted,
		AgentName:      state.AgentName,
		ConversationID: state.ConversationID,
		Model:          state.Model,
		State:          state,
	})
	if o.telemetry != nil {
		o.telemetry.Observe(telemetry.FromRunState(state))
	}
	log.Printf("[orchestrator] %s completed outcome=%s duration=%s",
		state.AgentName, state.Outcome, state.Duration.Round(time.Millisecond))
	return state, runErr
}

// Package orchestrator runs one subagent task end to end: it spawns an
// isolated sub-conversation, streams engine events to the caller, and always
// lands on exactly one terminal run state with the conversation released.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antsh3k/codex-cv/internal/engine"
	"github.com/antsh3k/codex-cv/internal/registry"
	"github.com/antsh3k/codex-cv/internal/subagent"
	"github.com/antsh3k/codex-cv/internal/telemetry"
	"github.com/antsh3k/codex-cv/pkg/models"
)

var (
	// ErrDisabled is returned when subagent execution is turned off.
	ErrDisabled = errors.New("subagents are disabled")
	// ErrUnknownAgent is returned when the named subagent is not registered.
	ErrUnknownAgent = errors.New("unknown subagent")
	// ErrTimeout is returned when a single attempt exceeds its deadline.
	// Timeouts are never retried.
	ErrTimeout = errors.New("subagent run timed out")
)

const (
	// DefaultAttemptTimeout bounds one attempt when Options leaves it unset.
	DefaultAttemptTimeout = 300 * time.Second
	// DefaultMaxRetries is the retry bound when Options.MaxRetries is negative.
	DefaultMaxRetries = 2

	// defaultPrompt is submitted when the caller provides no prompt text.
	defaultPrompt = "Complete the task described in your instructions and report the result."
)

// Options configures an Orchestrator.
type Options struct {
	// Enabled gates all runs; when false every Run fails with ErrDisabled.
	Enabled bool
	// AttemptTimeout bounds a single attempt. Zero or negative selects
	// DefaultAttemptTimeout.
	AttemptTimeout time.Duration
	// MaxRetries bounds retries after the first attempt. Zero means no
	// retries; negative selects DefaultMaxRetries.
	MaxRetries int
}

// Orchestrator executes subagent runs against an engine.
type Orchestrator struct {
	engine    engine.Engine
	registry  *registry.Registry
	telemetry telemetry.Sink
	opts      Options
}

// New builds an Orchestrator. The telemetry sink may be nil.
func New(eng engine.Engine, reg *registry.Registry, sink telemetry.Sink, opts Options) *Orchestrator {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	return &Orchestrator{
		engine:    eng,
		registry:  reg,
		telemetry: sink,
		opts:      opts,
	}
}

// Run resolves name against the registry and executes the subagent with the
// given prompt. Lifecycle events go to sink; a nil sink discards them.
func (o *Orchestrator) Run(ctx context.Context, name, prompt string, sink Sink) (models.RunState, error) {
	if !o.opts.Enabled {
		return models.RunState{}, ErrDisabled
	}
	rec, ok := o.registry.Get(name)
	if !ok {
		return models.RunState{}, fmt.Errorf("%w `%s`", ErrUnknownAgent, name)
	}
	return o.execute(ctx, rec.Spec, prompt, sink)
}

// RunSpec executes an already-resolved definition, bypassing registry lookup.
func (o *Orchestrator) RunSpec(ctx context.Context, spec *subagent.Spec, prompt string, sink Sink) (models.RunState, error) {
	if !o.opts.Enabled {
		return models.RunState{}, ErrDisabled
	}
	return o.execute(ctx, spec, prompt, sink)
}

// attempt performs one spawn-submit-stream cycle. It returns a nil error when
// the attempt reached a terminal outcome (success, abort, or shutdown) and a
// non-nil error when the attempt itself failed. The caller decides whether a
// failed attempt is retried.
func (o *Orchestrator) attempt(ctx context.Context, spec *subagent.Spec, prompt string, sink Sink) (models.RunState, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.opts.AttemptTimeout)
	defer cancel()

	state := models.RunState{
		AgentName: spec.Name(),
		Outcome:   models.RunOutcomeError,
	}

	res, err := o.engine.Spawn(attemptCtx, spec.Instructions(), spec.Model())
	if err != nil {
		return state, fmt.Errorf("spawn %s: %w", spec.Name(), err)
	}
	defer o.engine.Release(res.ConversationID)

	state.ConversationID = res.ConversationID
	state.Model = res.ResolvedModel
	o.emit(sink, Event{
		Kind:           EventStarted,
		AgentName:      spec.Name(),
		ConversationID: res.ConversationID,
		Model:          res.ResolvedModel,
	})

	text := strings.TrimSpace(prompt)
	if text == "" {
		text = defaultPrompt
	}
	if err := res.Conversation.Submit(attemptCtx, text); err != nil {
		return state, fmt.Errorf("submit to %s: %w", spec.Name(), err)
	}

	for {
		ev, err := res.Conversation.NextEvent(attemptCtx)
		if err != nil {
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				return state, fmt.Errorf("%w after %s", ErrTimeout, o.opts.AttemptTimeout)
			}
			return state, fmt.Errorf("next event from %s: %w", spec.Name(), err)
		}
		switch ev.Kind {
		case engine.EventAgentMessage:
			if ev.Message != "" {
				state.LastMessage = ev.Message
				o.forward(sink, &state, ev.Message)
			}
		case engine.EventTaskComplete:
			// The final message is forwarded once more unless it repeats
			// the last streamed chunk.
			if ev.Message != "" && ev.Message != state.LastMessage {
				state.LastMessage = ev.Message
				o.forward(sink, &state, ev.Message)
			}
			state.Outcome = models.RunOutcomeSuccess
			state.Error = ""
			return state, nil
		case engine.EventTurnAborted:
			state.Error = ev.AbortReason
			return state, nil
		case engine.EventError:
			if ev.Message != "" {
				o.forward(sink, &state, ev.Message)
			}
			return state, fmt.Errorf("engine error from %s: %s", spec.Name(), ev.Message)
		case engine.EventStreamError:
			// Stream warnings do not terminate the attempt and do not
			// become the last message.
			if ev.Message != "" {
				o.forward(sink, &state, ev.Message)
			}
		case engine.EventShutdownComplete:
			return state, nil
		}
	}
}

// forward emits one EventMessage carrying the given text.
func (o *Orchestrator) forward(sink Sink, state *models.RunState, text string) {
	o.emit(sink, Event{
		Kind:           EventMessage,
		AgentName:      state.AgentName,
		ConversationID: state.ConversationID,
		Model:          state.Model,
		Message:        text,
	})
}

func (o *Orchestrator) emit(sink Sink, ev Event) {
	if sink != nil {
		sink(ev)
	}
}

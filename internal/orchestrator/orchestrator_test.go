package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/antsh3k/codex-cv/internal/engine"
	"github.com/antsh3k/codex-cv/internal/registry"
	"github.com/antsh3k/codex-cv/internal/subagent"
	"github.com/antsh3k/codex-cv/internal/telemetry"
	"github.com/antsh3k/codex-cv/pkg/models"
)

func testSpec(t *testing.T, name string) *subagent.Spec {
	t.Helper()
	spec, err := subagent.NewBuilder(name).
		Description("Agent used by orchestrator tests.").
		Keywords(name).
		Instructions("Do the task.").
		Build()
	if err != nil {
		t.Fatalf("build spec: %v", err)
	}
	return spec
}

// eventLog collects sink events. Run invokes the sink synchronously, so a
// plain slice is enough.
type eventLog struct {
	events []Event
}

func (l *eventLog) sink(ev Event) {
	l.events = append(l.events, ev)
}

func (l *eventLog) countKind(kind EventKind) int {
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (l *eventLog) kinds() []EventKind {
	out := make([]EventKind, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (l *eventLog) messages() []string {
	var out []string
	for _, ev := range l.events {
		if ev.Kind == EventMessage {
			out = append(out, ev.Message)
		}
	}
	return out
}

func (l *eventLog) completed() (Event, bool) {
	for _, ev := range l.events {
		if ev.Kind == EventCompleted {
			return ev, true
		}
	}
	return Event{}, false
}

func emptyRegistry() *registry.Registry {
	return registry.New(registry.Options{})
}

func kindsEqual(got, want []EventKind) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestRunSpecSuccess(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.Script{
		Events: []engine.Event{
			{Kind: engine.EventAgentMessage, Message: "analyzing the request"},
			{Kind: engine.EventTaskComplete, Message: "all checks passed"},
		},
	})
	tracker := telemetry.NewTracker()
	orch := New(eng, emptyRegistry(), tracker, Options{Enabled: true, AttemptTimeout: 5 * time.Second})

	var log eventLog
	state, err := orch.RunSpec(context.Background(), testSpec(t, "reviewer"), "Review the diff.", log.sink)
	if err != nil {
		t.Fatalf("RunSpec: %v", err)
	}
	if state.Outcome != models.RunOutcomeSuccess {
		t.Errorf("outcome = %s, want success", state.Outcome)
	}
	if state.LastMessage != "all checks passed" {
		t.Errorf("last message = %q", state.LastMessage)
	}
	if state.Error != "" {
		t.Errorf("unexpected error text %q", state.Error)
	}
	if state.ConversationID == "" {
		t.Error("expected a conversation id")
	}
	if state.Duration <= 0 {
		t.Errorf("duration = %v, want positive", state.Duration)
	}

	want := []EventKind{EventStarted, EventMessage, EventMessage, EventCompleted}
	if !kindsEqual(log.kinds(), want) {
		t.Errorf("event kinds = %v, want %v", log.kinds(), want)
	}
	completed, ok := log.completed()
	if !ok {
		t.Fatal("no Completed event")
	}
	if completed.State.Outcome != state.Outcome || completed.State.LastMessage != state.LastMessage {
		t.Errorf("Completed state %+v does not match returned state %+v", completed.State, state)
	}
	if err := eng.ReleasedOnceEach(); err != nil {
		t.Error(err)
	}
	if got := len(tracker.Observations()); got != 1 {
		t.Errorf("telemetry observations = %d, want 1", got)
	}
}

func TestRunSpecDuplicateFinalMessageForwardedOnce(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.Script{
		Events: []engine.Event{
			{Kind: engine.EventAgentMessage, Message: "done"},
			{Kind: engine.EventTaskComplete, Message: "done"},
		},
	})
	orch := New(eng, emptyRegistry(), nil, Options{Enabled: true, AttemptTimeout: 5 * time.Second})

	var log eventLog
	state, err := orch.RunSpec(context.Background(), testSpec(t, "reviewer"), "go", log.sink)
	if err != nil {
		t.Fatalf("RunSpec: %v", err)
	}
	if state.LastMessage != "done" {
		t.Errorf("last message = %q", state.LastMessage)
	}
	want := []EventKind{EventStarted, EventMessage, EventCompleted}
	if !kindsEqual(log.kinds(), want) {
		t.Errorf("event kinds = %v, want %v", log.kinds(), want)
	}
}

func TestRunSpecEmptyFinalMessageKeepsLast(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.Script{
		Events: []engine.Event{
			{Kind: engine.EventAgentMessage, Message: "progress report"},
			{Kind: engine.EventTaskComplete},
		},
	})
	orch := New(eng, emptyRegistry(), nil, Options{Enabled: true, AttemptTimeout: 5 * time.Second})

	state, err := orch.RunSpec(context.Background(), testSpec(t, "tester"), "go", nil)
	if err != nil {
		t.Fatalf("RunSpec: %v", err)
	}
	if state.Outcome != models.RunOutcomeSuccess {
		t.Errorf("outcome = %s, want success", state.Outcome)
	}
	if state.LastMessage != "progress report" {
		t.Errorf("last message = %q", state.LastMessage)
	}
}

func TestRunSpecAbortIsTerminalNotRetried(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.Script{
		Events: []engine.Event{
			{Kind: engine.EventTurnAborted, AbortReason: engine.AbortInterrupted},
		},
	})
	orch := New(eng, emptyRegistry(), nil, Options{Enabled: true, AttemptTimeout: 5 * time.Second, MaxRetries: 2})

	var log eventLog
	state, err := orch.RunSpec(context.Background(), testSpec(t, "tester"), "go", log.sink)
	if err != nil {
		t.Fatalf("RunSpec: %v", err)
	}
	if state.Outcome != models.RunOutcomeError {
		t.Errorf("outcome = %s, want error", state.Outcome)
	}
	if state.Error != engine.AbortInterrupted {
		t.Errorf("error = %q, want %q", state.Error, engine.AbortInterrupted)
	}
	if got := eng.Spawns(); got != 1 {
		t.Errorf("spawns = %d, want 1 (aborts are not retried)", got)
	}
	if got := log.countKind(EventCompleted); got != 1 {
		t.Errorf("Completed events = %d, want 1", got)
	}
	if err := eng.ReleasedOnceEach(); err != nil {
		t.Error(err)
	}
}

func TestRunSpecShutdownEndsRun(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.Script{
		Events: []engine.Event{
			{Kind: engine.EventShutdownComplete},
		},
	})
	orch := New(eng, emptyRegistry(), nil, Options{Enabled: true, AttemptTimeout: 5 * time.Second, MaxRetries: 2})

	state, err := orch.RunSpec(context.Background(), testSpec(t, "tester"), "go", nil)
	if err != nil {
		t.Fatalf("RunSpec: %v", err)
	}
	if state.Outcome != models.RunOutcomeError {
		t.Errorf("outcome = %s, want error", state.Outcome)
	}
	if state.Error != "" {
		t.Errorf("error = %q, want empty", state.Error)
	}
	if got := eng.Spawns(); got != 1 {
		t.Errorf("spawns = %d, want 1", got)
	}
}

func TestRunSpecEngineErrorRetried(t *testing.T) {
	eng := engine.NewScriptedEngine(
		engine.Script{Events: []engine.Event{
			{Kind: engine.EventError, Message: "backend unavailable"},
		}},
		engine.Script{Events: []engine.Event{
			{Kind: engine.EventTaskComplete, Message: "recovered"},
		}},
	)
	orch := New(eng, emptyRegistry(), nil, Options{Enabled: true, AttemptTimeout: 5 * time.Second, MaxRetries: 2})

	var log eventLog
	state, err := orch.RunSpec(context.Background(), testSpec(t, "code-writer"), "go", log.sink)
	if err != nil {
		t.Fatalf("RunSpec after retry: %v", err)
	}
	if state.Outcome != models.RunOutcomeSuccess {
		t.Errorf("outcome = %s, want success", state.Outcome)
	}
	if got := eng.Spawns(); got != 2 {
		t.Errorf("spawns = %d, want 2", got)
	}
	if got := log.countKind(EventStarted); got != 2 {
		t.Errorf("Started events = %d, want one per attempt", got)
	}
	found := false
	for _, msg := range log.messages() {
		if msg == "backend unavailable" {
			found = true
		}
	}
	if !found {
		t.Error("engine error text was not forwarded as a message")
	}
	if got := log.countKind(EventCompleted); got != 1 {
		t.Errorf("Completed events = %d, want 1", got)
	}
	if err := eng.ReleasedOnceEach(); err != nil {
		t.Error(err)
	}
}

func TestRunSpecRetriesExhausted(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.Script{
		Events: []engine.Event{
			{Kind: engine.EventError, Message: "backend unavailable"},
		},
	})
	tracker := telemetry.NewTracker()
	orch := New(eng, emptyRegistry(), tracker, Options{Enabled: true, AttemptTimeout: 5 * time.Second, MaxRetries: 1})

	var log eventLog
	state, err := orch.RunSpec(context.Background(), testSpec(t, "code-writer"), "go", log.sink)
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "backend unavailable") {
		t.Errorf("error %q does not surface the last engine error", err)
	}
	if state.Outcome != models.RunOutcomeError {
		t.Errorf("outcome = %s, want error", state.Outcome)
	}
	if state.Error == "" {
		t.Error("terminal state has no error text")
	}
	if got := eng.Spawns(); got != 2 {
		t.Errorf("spawns = %d, want 2 (initial + 1 retry)", got)
	}
	if got := log.countKind(EventCompleted); got != 1 {
		t.Errorf("Completed events = %d, want 1", got)
	}
	if err := eng.ReleasedOnceEach(); err != nil {
		t.Error(err)
	}
	obs := tracker.Observations()
	if len(obs) != 1 {
		t.Fatalf("telemetry observations = %d, want 1", len(obs))
	}
	if obs[0].Success {
		t.Error("failed run recorded as success")
	}
}

func TestRunSpecZeroMaxRetriesMeansNoRetry(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.Script{
		Events: []engine.Event{
			{Kind: engine.EventError, Message: "backend unavailable"},
		},
	})
	orch := New(eng, emptyRegistry(), nil, Options{Enabled: true, AttemptTimeout: 5 * time.Second})

	if _, err := orch.RunSpec(context.Background(), testSpec(t, "tester"), "go", nil); err == nil {
		t.Fatal("expected an error")
	}
	if got := eng.Spawns(); got != 1 {
		t.Errorf("spawns = %d, want 1", got)
	}
}

func TestRunSpecTimeoutNotRetried(t *testing.T) {
	// A script with no events blocks in NextEvent until the attempt deadline.
	eng := engine.NewScriptedEngine(engine.Script{})
	orch := New(eng, emptyRegistry(), nil, Options{Enabled: true, AttemptTimeout: 25 * time.Millisecond, MaxRetries: 2})

	var log eventLog
	state, err := orch.RunSpec(context.Background(), testSpec(t, "tester"), "go", log.sink)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if state.Outcome != models.RunOutcomeError {
		t.Errorf("outcome = %s, want error", state.Outcome)
	}
	if !strings.Contains(state.Error, "timed out") {
		t.Errorf("error text %q does not mention the timeout", state.Error)
	}
	if got := eng.Spawns(); got != 1 {
		t.Errorf("spawns = %d, want 1 (timeouts are not retried)", got)
	}
	if got := log.countKind(EventCompleted); got != 1 {
		t.Errorf("Completed events = %d, want 1", got)
	}
	if err := eng.ReleasedOnceEach(); err != nil {
		t.Error(err)
	}
}

func TestRunSpecStreamErrorDoesNotTerminate(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.Script{
		Events: []engine.Event{
			{Kind: engine.EventStreamError, Message: "stream hiccup"},
			{Kind: engine.EventAgentMessage, Message: "real work"},
			{Kind: engine.EventTaskComplete},
		},
	})
	orch := New(eng, emptyRegistry(), nil, Options{Enabled: true, AttemptTimeout: 5 * time.Second})

	var log eventLog
	state, err := orch.RunSpec(context.Background(), testSpec(t, "tester"), "go", log.sink)
	if err != nil {
		t.Fatalf("RunSpec: %v", err)
	}
	if state.Outcome != models.RunOutcomeSuccess {
		t.Errorf("outcome = %s, want success", state.Outcome)
	}
	if state.LastMessage != "real work" {
		t.Errorf("last message = %q, stream warnings must not become the last message", state.LastMessage)
	}
	msgs := log.messages()
	if len(msgs) == 0 || msgs[0] != "stream hiccup" {
		t.Errorf("messages = %v, want the stream warning forwarded first", msgs)
	}
}

func TestRunSpecSubmitErrorRetried(t *testing.T) {
	eng := engine.NewScriptedEngine(
		engine.Script{SubmitErr: errors.New("pipe closed")},
		engine.Script{Events: []engine.Event{
			{Kind: engine.EventTaskComplete, Message: "ok"},
		}},
	)
	orch := New(eng, emptyRegistry(), nil, Options{Enabled: true, AttemptTimeout: 5 * time.Second, MaxRetries: 2})

	state, err := orch.RunSpec(context.Background(), testSpec(t, "tester"), "go", nil)
	if err != nil {
		t.Fatalf("RunSpec after submit retry: %v", err)
	}
	if state.Outcome != models.RunOutcomeSuccess {
		t.Errorf("outcome = %s, want success", state.Outcome)
	}
	if got := eng.Spawns(); got != 2 {
		t.Errorf("spawns = %d, want 2", got)
	}
	if err := eng.ReleasedOnceEach(); err != nil {
		t.Error(err)
	}
}

func TestRunSpecSpawnErrorStillCompletes(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.Script{SpawnErr: errors.New("no capacity")})
	tracker := telemetry.NewTracker()
	orch := New(eng, emptyRegistry(), tracker, Options{Enabled: true, AttemptTimeout: 5 * time.Second})

	var log eventLog
	state, err := orch.RunSpec(context.Background(), testSpec(t, "tester"), "go", log.sink)
	if err == nil {
		t.Fatal("expected a spawn error")
	}
	if state.ConversationID != "" {
		t.Errorf("conversation id = %q, want empty for a failed spawn", state.ConversationID)
	}
	if got := log.countKind(EventCompleted); got != 1 {
		t.Errorf("Completed events = %d, want 1", got)
	}
	if got := len(tracker.Observations()); got != 1 {
		t.Errorf("telemetry observations = %d, want 1", got)
	}
}

func TestRunSpecDefaultPromptOnBlank(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.Script{
		Events: []engine.Event{{Kind: engine.EventTaskComplete, Message: "ok"}},
	})
	orch := New(eng, emptyRegistry(), nil, Options{Enabled: true, AttemptTimeout: 5 * time.Second})

	if _, err := orch.RunSpec(context.Background(), testSpec(t, "tester"), "   ", nil); err != nil {
		t.Fatalf("RunSpec: %v", err)
	}
	prompts := eng.Prompts()
	if len(prompts) != 1 || prompts[0] != defaultPrompt {
		t.Errorf("prompts = %q, want the default prompt", prompts)
	}
}

func TestRunSpecCustomPromptPassedThrough(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.Script{
		Events: []engine.Event{{Kind: engine.EventTaskComplete, Message: "ok"}},
	})
	orch := New(eng, emptyRegistry(), nil, Options{Enabled: true, AttemptTimeout: 5 * time.Second})

	if _, err := orch.RunSpec(context.Background(), testSpec(t, "tester"), "Review this diff.", nil); err != nil {
		t.Fatalf("RunSpec: %v", err)
	}
	prompts := eng.Prompts()
	if len(prompts) != 1 || prompts[0] != "Review this diff." {
		t.Errorf("prompts = %q", prompts)
	}
}

func TestRunDisabled(t *testing.T) {
	eng := engine.NewScriptedEngine()
	orch := New(eng, emptyRegistry(), nil, Options{Enabled: false})

	var log eventLog
	_, err := orch.Run(context.Background(), "reviewer", "go", log.sink)
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
	if got := eng.Spawns(); got != 0 {
		t.Errorf("spawns = %d, want 0", got)
	}
	if len(log.events) != 0 {
		t.Errorf("events = %v, want none", log.kinds())
	}
}

func TestRunUnknownAgent(t *testing.T) {
	eng := engine.NewScriptedEngine()
	orch := New(eng, emptyRegistry(), nil, Options{Enabled: true})

	_, err := orch.Run(context.Background(), "ghost", "go", nil)
	if !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("err = %v, want ErrUnknownAgent", err)
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("error %q does not name the agent", err)
	}
	if got := eng.Spawns(); got != 0 {
		t.Errorf("spawns = %d, want 0", got)
	}
}

func TestRunResolvesRegisteredAgent(t *testing.T) {
	reg := registry.New(registry.Options{Builtins: true})
	reg.Reload()

	eng := engine.NewScriptedEngine(engine.Script{
		Events: []engine.Event{{Kind: engine.EventTaskComplete, Message: "lgtm"}},
	})
	orch := New(eng, reg, nil, Options{Enabled: true, AttemptTimeout: 5 * time.Second})

	state, err := orch.Run(context.Background(), "reviewer", "Review the change.", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.AgentName != "reviewer" {
		t.Errorf("agent name = %q", state.AgentName)
	}
	if state.Outcome != models.RunOutcomeSuccess {
		t.Errorf("outcome = %s, want success", state.Outcome)
	}
}

func TestRunSpecReportsResolvedModel(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.Script{
		ResolvedModel: "claude-opus-4-1",
		Events:        []engine.Event{{Kind: engine.EventTaskComplete, Message: "ok"}},
	})
	orch := New(eng, emptyRegistry(), nil, Options{Enabled: true, AttemptTimeout: 5 * time.Second})

	var log eventLog
	state, err := orch.RunSpec(context.Background(), testSpec(t, "tester"), "go", log.sink)
	if err != nil {
		t.Fatalf("RunSpec: %v", err)
	}
	if state.Model != "claude-opus-4-1" {
		t.Errorf("model = %q", state.Model)
	}
	if len(log.events) == 0 || log.events[0].Kind != EventStarted || log.events[0].Model != "claude-opus-4-1" {
		t.Error("Started event does not carry the resolved model")
	}
}

func TestOptionsDefaults(t *testing.T) {
	orch := New(engine.NewScriptedEngine(), emptyRegistry(), nil, Options{Enabled: true})
	if orch.opts.AttemptTimeout != DefaultAttemptTimeout {
		t.Errorf("attempt timeout = %v, want %v", orch.opts.AttemptTimeout, DefaultAttemptTimeout)
	}
	if orch.opts.MaxRetries != 0 {
		t.Errorf("max retries = %d, zero must mean no retries", orch.opts.MaxRetries)
	}

	orch = New(engine.NewScriptedEngine(), emptyRegistry(), nil, Options{Enabled: true, MaxRetries: -1})
	if orch.opts.MaxRetries != DefaultMaxRetries {
		t.Errorf("max retries = %d, want default %d", orch.opts.MaxRetries, DefaultMaxRetries)
	}
}

package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/antsh3k/codex-cv/internal/orchestrator"
	"github.com/antsh3k/codex-cv/pkg/models"
)

func TestTranscriptOverflowDiscardsOldest(t *testing.T) {
	tr := NewTranscript(3)

	for _, line := range []string{"one", "two", "three", "four", "five"} {
		tr.Append(line)
	}

	if tr.Count() != 3 {
		t.Fatalf("expected 3 lines, got %d", tr.Count())
	}

	lines := tr.Lines()
	want := []string{"three", "four", "five"}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d: expected %q, got %q", i, w, lines[i])
		}
	}
}

func TestTranscriptSplitsMultilineText(t *testing.T) {
	tr := NewTranscript(10)

	tr.Append("first line\nsecond line\n")

	lines := tr.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "first line" || lines[1] != "second line" {
		t.Errorf("unexpected lines %v", lines)
	}
}

func TestTranscriptTail(t *testing.T) {
	tr := NewTranscript(10)
	for _, line := range []string{"a", "b", "c", "d"} {
		tr.Append(line)
	}

	tail := tr.Tail(2)
	if len(tail) != 2 || tail[0] != "c" || tail[1] != "d" {
		t.Errorf("unexpected tail %v", tail)
	}

	// Asking for more than stored returns everything.
	if got := tr.Tail(100); len(got) != 4 {
		t.Errorf("expected 4 lines, got %d", len(got))
	}
}

func TestFollowAppHandlesRunEvents(t *testing.T) {
	app := NewFollowApp("code-reviewer")

	app.Update(RunEventMsg{Event: orchestrator.Event{
		Kind:           orchestrator.EventStarted,
		AgentName:      "code-reviewer",
		ConversationID: "conv-1",
		Model:          "claude-sonnet-4-5",
	}})
	app.Update(RunEventMsg{Event: orchestrator.Event{
		Kind:    orchestrator.EventMessage,
		Message: "Reviewing the diff\nNo blocking issues found",
	}})

	view := app.View()
	if !strings.Contains(view, "Following code-reviewer") {
		t.Errorf("expected header with agent name, got:\n%s", view)
	}
	if !strings.Contains(view, "claude-sonnet-4-5") {
		t.Errorf("expected resolved model in header, got:\n%s", view)
	}
	if !strings.Contains(view, "No blocking issues found") {
		t.Errorf("expected transcript line, got:\n%s", view)
	}
	if !strings.Contains(view, "Press q to detach") {
		t.Errorf("expected detach hint while running, got:\n%s", view)
	}
	if app.Done() {
		t.Error("expected run to still be in flight")
	}
}

func TestFollowAppCompletedEvent(t *testing.T) {
	app := NewFollowApp("doc-writer")

	app.Update(RunEventMsg{Event: orchestrator.Event{
		Kind: orchestrator.EventCompleted,
		State: models.RunState{
			AgentName: "doc-writer",
			Model:     "claude-sonnet-4-5",
			Outcome:   models.RunOutcomeSuccess,
			Duration:  2500 * time.Millisecond,
		},
	}})

	if !app.Done() {
		t.Fatal("expected run to be done")
	}

	view := app.View()
	if !strings.Contains(view, "Run succeeded in 2.5s") {
		t.Errorf("expected success status, got:\n%s", view)
	}
	if !strings.Contains(view, "Press q to exit") {
		t.Errorf("expected exit hint once done, got:\n%s", view)
	}
}

func TestFollowAppDoneWithError(t *testing.T) {
	app := NewFollowApp("test-runner")

	app.Update(RunDoneMsg{Err: errors.New("attempt timed out")})

	view := app.View()
	if !strings.Contains(view, "attempt timed out") {
		t.Errorf("expected error in status line, got:\n%s", view)
	}
}

func TestFollowAppFailedState(t *testing.T) {
	app := NewFollowApp("test-runner")

	app.Update(RunDoneMsg{State: &models.RunState{
		AgentName: "test-runner",
		Outcome:   models.RunOutcomeError,
		Error:     "turn aborted: interrupted",
	}})

	view := app.View()
	if !strings.Contains(view, "Run failed: turn aborted: interrupted") {
		t.Errorf("expected failure status, got:\n%s", view)
	}
}

func TestFollowAppQuitKey(t *testing.T) {
	app := NewFollowApp("code-reviewer")

	model, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}

	view := model.View()
	if view != "Detached from run.\n" {
		t.Errorf("unexpected quitting view %q", view)
	}
}

func TestNewEventSink(t *testing.T) {
	var captured []tea.Msg
	sink := NewEventSink(func(msg tea.Msg) {
		captured = append(captured, msg)
	})

	sink(orchestrator.Event{Kind: orchestrator.EventMessage, Message: "hello"})

	if len(captured) != 1 {
		t.Fatalf("expected 1 message, got %d", len(captured))
	}

	ev, ok := captured[0].(RunEventMsg)
	if !ok {
		t.Fatalf("expected RunEventMsg, got %T", captured[0])
	}
	if ev.Event.Message != "hello" {
		t.Errorf("expected forwarded message, got %q", ev.Event.Message)
	}
}

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/antsh3k/codex-cv/internal/orchestrator"
	"github.com/antsh3k/codex-cv/pkg/models"
)

// DefaultTranscriptSize is the default capacity of the transcript buffer.
const DefaultTranscriptSize = 2000

// Transcript provides fixed-size line storage for streamed assistant output.
// When the buffer is full, the oldest lines are discarded.
type Transcript struct {
	data  []string
	size  int
	head  int // Write position (next write goes here)
	tail  int // Read position (oldest line)
	count int // Number of lines currently stored
}

// NewTranscript creates a Transcript with the specified capacity.
func NewTranscript(capacity int) *Transcript {
	if capacity <= 0 {
		capacity = DefaultTranscriptSize
	}
	return &Transcript{
		data: make([]string, capacity),
		size: capacity,
	}
}

// Append splits text on newlines and stores each line. A trailing newline
// does not produce an empty final line.
func (t *Transcript) Append(text string) {
	text = strings.TrimRight(text, "\n")
	for _, line := range strings.Split(text, "\n") {
		t.push(line)
	}
}

// push stores one line, overwriting the oldest when full.
func (t *Transcript) push(line string) {
	t.data[t.head] = line
	t.head = (t.head + 1) % t.size

	if t.count < t.size {
		t.count++
	} else {
		t.tail = (t.tail + 1) % t.size
	}
}

// Lines returns all stored lines from oldest to newest.
func (t *Transcript) Lines() []string {
	if t.count == 0 {
		return nil
	}

	result := make([]string, t.count)
	for i := 0; i < t.count; i++ {
		result[i] = t.data[(t.tail+i)%t.size]
	}
	return result
}

// Tail returns the newest n lines, oldest first.
func (t *Transcript) Tail(n int) []string {
	lines := t.Lines()
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

// Count returns the number of lines currently stored.
func (t *Transcript) Count() int {
	return t.count
}

// RunEventMsg wraps an orchestrator event for the follow view.
type RunEventMsg struct {
	Event orchestrator.Event
}

// RunDoneMsg signals that the followed run has finished.
type RunDoneMsg struct {
	State *models.RunState
	Err   error
}

// FollowApp is the bubbletea model that tails a single subagent run.
type FollowApp struct {
	agentName  string
	model      string
	spin       spinner.Model
	transcript *Transcript
	width      int
	height     int
	done       bool
	state      *models.RunState
	err        error
	quitting   bool

	// Styles
	headerStyle  lipgloss.Style
	modelStyle   lipgloss.Style
	noticeStyle  lipgloss.Style
	successStyle lipgloss.Style
	errorStyle   lipgloss.Style
	footerStyle  lipgloss.Style
}

// NewFollowApp creates a follow view for the named subagent.
func NewFollowApp(agentName string) *FollowApp {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &FollowApp{
		agentName:  agentName,
		spin:       s,
		transcript: NewTranscript(DefaultTranscriptSize),

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")),

		modelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true),

		noticeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		successStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		footerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// Init implements tea.Model.
func (a *FollowApp) Init() tea.Cmd {
	return a.spin.Tick
}

// Update implements tea.Model.
func (a *FollowApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case RunEventMsg:
		a.handleEvent(msg.Event)

	case RunDoneMsg:
		a.done = true
		if msg.State != nil {
			a.state = msg.State
		}
		a.err = msg.Err
	}

	return a, nil
}

// handleEvent folds an orchestrator event into the view state.
func (a *FollowApp) handleEvent(ev orchestrator.Event) {
	switch ev.Kind {
	case orchestrator.EventStarted:
		a.model = ev.Model
		a.transcript.Append(fmt.Sprintf("· conversation %s started", ev.ConversationID))

	case orchestrator.EventMessage:
		if ev.Message != "" {
			a.transcript.Append(ev.Message)
		}

	case orchestrator.EventCompleted:
		state := ev.State
		a.state = &state
		a.done = true
		if a.model == "" {
			a.model = state.Model
		}
	}
}

// View implements tea.Model.
func (a *FollowApp) View() string {
	if a.quitting {
		return "Detached from run.\n"
	}

	var b strings.Builder

	// Header
	b.WriteString(a.headerStyle.Render(fmt.Sprintf("Following %s", a.agentName)))
	if a.model != "" {
		b.WriteString("  ")
		b.WriteString(a.modelStyle.Render(fmt.Sprintf("(%s)", a.model)))
	}
	b.WriteString("\n\n")

	// Transcript, trimmed to fit the terminal
	for _, line := range a.transcript.Tail(a.transcriptRows()) {
		if strings.HasPrefix(line, "· ") {
			b.WriteString(a.noticeStyle.Render(line))
		} else {
			b.WriteString(line)
		}
		b.WriteString("\n")
	}

	// Status line
	b.WriteString("\n")
	b.WriteString(a.statusLine())
	b.WriteString("\n")

	// Footer
	if a.done {
		b.WriteString(a.footerStyle.Render("Press q to exit"))
	} else {
		b.WriteString(a.footerStyle.Render("Press q to detach"))
	}
	b.WriteString("\n")

	return b.String()
}

// transcriptRows returns how many transcript lines fit above the chrome.
func (a *FollowApp) transcriptRows() int {
	if a.height == 0 {
		return 20
	}
	// Header, blank lines, status, and footer take six rows.
	rows := a.height - 6
	if rows < 1 {
		rows = 1
	}
	return rows
}

// statusLine renders the spinner while running and the outcome once done.
func (a *FollowApp) statusLine() string {
	if !a.done {
		return fmt.Sprintf("%s running...", a.spin.View())
	}

	if a.err != nil {
		return a.errorStyle.Render(fmt.Sprintf("✗ %v", a.err))
	}

	if a.state == nil {
		return a.errorStyle.Render("✗ run finished without a result")
	}

	if a.state.Success() {
		return a.successStyle.Render(fmt.Sprintf("✓ Run succeeded in %.1fs", a.state.Duration.Seconds()))
	}
	return a.errorStyle.Render(fmt.Sprintf("✗ Run failed: %s", a.state.Error))
}

// Done reports whether the followed run has finished.
func (a *FollowApp) Done() bool {
	return a.done
}

// State returns the terminal run state, if any.
func (a *FollowApp) State() *models.RunState {
	return a.state
}

// NewEventSink adapts a bubbletea send function into an orchestrator sink.
// The run command passes program.Send so events reach the follow view.
func NewEventSink(send func(tea.Msg)) orchestrator.Sink {
	return func(ev orchestrator.Event) {
		send(RunEventMsg{Event: ev})
	}
}

// NewFollowProgram creates a new Bubbletea program for following a run.
func NewFollowProgram(agentName string) (*tea.Program, *FollowApp) {
	app := NewFollowApp(agentName)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

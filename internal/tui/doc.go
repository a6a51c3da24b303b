// Package tui provides the terminal user interface for followed subagent runs.
//
// The package contains a read-only view that tails a single delegation in
// real time. It shows the subagent being run, the resolved model, a spinner
// while the run is in flight, the streamed assistant transcript, and the
// terminal outcome. It is used exclusively by the run command's --follow flag.
//
// The view is read-only and does not support interactive input. Users can
// only detach with 'q' or Ctrl+C; detaching does not cancel the run.
//
// Usage:
//
//	program, app := tui.NewFollowProgram("code-reviewer")
//	go program.Run()
//
//	// Forward orchestrator events into the view
//	sink := tui.NewEventSink(program.Send)
//	state, err := orch.Run(ctx, "code-reviewer", task, sink)
//
//	// Signal completion once the run returns
//	program.Send(tui.RunDoneMsg{State: state, Err: err})
//
// The transcript is held in a fixed-size buffer, so arbitrarily long runs
// display the most recent output without unbounded growth.
package tui

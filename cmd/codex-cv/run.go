package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/antsh3k/codex-cv/internal/config"
	"github.com/antsh3k/codex-cv/internal/history"
	"github.com/antsh3k/codex-cv/internal/orchestrator"
	"github.com/antsh3k/codex-cv/internal/registry"
	"github.com/antsh3k/codex-cv/internal/router"
	"github.com/antsh3k/codex-cv/internal/sandbox"
	"github.com/antsh3k/codex-cv/internal/tui"
	"github.com/antsh3k/codex-cv/pkg/models"
)

var (
	runPrompt string
	runFollow bool
)

var runCmd = &cobra.Command{
	Use:   "run [name]",
	Short: "Run a subagent",
	Long: `Run a named subagent, or route free-form prompt text to the best
keyword match when no name is given.

The run spawns an isolated sub-conversation, streams its events, and
records the outcome in the run ledger. Failures are reported distinctly:
a disabled subagent layer, an unknown subagent name, and an execution
failure each produce their own message and a non-zero exit.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun(args)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "", "task text to send to the subagent")
	runCmd.Flags().BoolVar(&runFollow, "follow", false, "attach a live view to the run")
}

func runRun(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.Subagents.Enabled {
		failDisabled()
	}

	reg := newRegistry(cfg)
	report := reg.Reload()
	renderReloadErrors(report.Errors)

	name, err := resolveAgentName(cfg, reg, args)
	if err != nil {
		return err
	}

	if _, ok := reg.Get(name); !ok {
		failUnknown(name)
	}

	policy, profileName, err := newSandboxPolicy(cfg)
	if err != nil {
		return err
	}
	profile, ok := policy.Profile(profileName)
	if !ok {
		return fmt.Errorf("unknown sandbox profile %q", profileName)
	}
	renderSandboxNotice(profile)

	eng, err := newEngine(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Subagent run failed: %v\n", err)
		os.Exit(1)
	}

	sink, closeSink := newTelemetrySink(cfg)
	if closeSink != nil {
		defer closeSink()
	}
	ledger := openLedger(cfg)
	if ledger != nil {
		defer ledger.Close()
	}

	orch := orchestrator.New(eng, reg, sink, orchestrator.Options{
		Enabled:        true,
		AttemptTimeout: cfg.Subagents.AttemptTimeout,
		MaxRetries:     cfg.Subagents.MaxRetries,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var run *history.Run
	if ledger != nil {
		run, err = ledger.Begin(name)
		if err != nil {
			fmt.Printf("Warning: could not record run: %v\n", err)
			run = nil
		}
	}

	var state models.RunState
	if runFollow {
		state, err = runFollowed(ctx, orch, name)
	} else {
		state, err = orch.Run(ctx, name, runPrompt, headlessSink())
	}

	if run != nil {
		if ferr := ledger.Finish(run, state); ferr != nil {
			fmt.Printf("Warning: could not record outcome: %v\n", ferr)
		}
	}

	switch {
	case errors.Is(err, orchestrator.ErrDisabled):
		failDisabled()
	case errors.Is(err, orchestrator.ErrUnknownAgent):
		failUnknown(name)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Subagent run failed: %v\n", err)
		os.Exit(1)
	case !state.Success():
		fmt.Fprintf(os.Stderr, "Subagent run failed: %s\n", state.Error)
		os.Exit(1)
	}

	fmt.Printf("%s Subagent %s completed in %.1fs\n",
		color.GreenString("✓"), name, state.Duration.Seconds())
	if state.LastMessage != "" {
		fmt.Println()
		fmt.Println(state.LastMessage)
	}
	return nil
}

// resolveAgentName picks the subagent to run: the positional name when
// given, otherwise keyword routing over the prompt text.
func resolveAgentName(cfg *config.Config, reg *registry.Registry, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if runPrompt == "" {
		return "", fmt.Errorf("provide a subagent name or --prompt text to route")
	}

	candidates := make([]router.Candidate, 0, reg.Count())
	for _, rec := range reg.List() {
		candidates = append(candidates, router.Candidate{
			Name:     rec.Spec.Name(),
			Keywords: rec.Spec.Keywords(),
		})
	}

	decision := router.Route(router.Intent{
		Text:       runPrompt,
		AutoRoute:  cfg.Subagents.AutoRoute,
		Candidates: candidates,
	})
	if !decision.Matched() {
		fmt.Fprintf(os.Stderr, "%s\n", color.RedString("No subagent matched: %s", decision.Reason))
		os.Exit(1)
	}
	fmt.Printf("Routing to %s (%s)\n", color.CyanString(decision.AgentName), decision.Reason)
	return decision.AgentName, nil
}

// runFollowed drives the run under the live view. Detaching from the view
// does not cancel the run; the command waits for the terminal state.
func runFollowed(ctx context.Context, orch *orchestrator.Orchestrator, name string) (models.RunState, error) {
	program, _ := tui.NewFollowProgram(name)
	sink := tui.NewEventSink(program.Send)

	type result struct {
		state models.RunState
		err   error
	}
	done := make(chan result, 1)
	go func() {
		state, err := orch.Run(ctx, name, runPrompt, sink)
		program.Send(tui.RunDoneMsg{State: &state, Err: err})
		done <- result{state: state, err: err}
	}()

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: live view failed: %v\n", err)
	}

	var res result
	select {
	case res = <-done:
	default:
		fmt.Println("Detached from the live view; waiting for the run to finish...")
		res = <-done
	}
	return res.state, res.err
}

// headlessSink prints run events as plain lines.
func headlessSink() orchestrator.Sink {
	return func(ev orchestrator.Event) {
		switch ev.Kind {
		case orchestrator.EventStarted:
			fmt.Printf("spawned subagent conversation %s\n", color.CyanString(ev.ConversationID))
		case orchestrator.EventMessage:
			if ev.Message != "" {
				fmt.Println(ev.Message)
			}
		}
	}
}

func renderSandboxNotice(profile sandbox.Profile) {
	notice := fmt.Sprintf("Sandbox profile: %s", profile.Name)
	if !profile.AllowCommands {
		notice += " (commands disabled)"
	}
	fmt.Println(notice)
}

func failDisabled() {
	fmt.Fprintln(os.Stderr, color.RedString("Subagents are disabled. Enable subagents.enabled=true or CODEX_SUBAGENTS_ENABLED=1"))
	os.Exit(1)
}

func failUnknown(name string) {
	fmt.Fprintln(os.Stderr, color.RedString("Unknown subagent `%s`", name))
	os.Exit(1)
}

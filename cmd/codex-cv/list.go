package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/antsh3k/codex-cv/internal/config"
	"github.com/antsh3k/codex-cv/internal/registry"
)

var listWatch bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered subagents",
	Long: `List all subagent definitions discovered from the project and user
definition directories plus the builtin set. Definitions that fail to
parse are reported without blocking the rest of the listing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList()
	},
}

func init() {
	listCmd.Flags().BoolVar(&listWatch, "watch", false, "keep watching the definition directories for changes")
}

func runList() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	reg := newRegistry(cfg)
	report := reg.Reload()
	renderRecords(reg.List())
	renderReloadErrors(report.Errors)

	if !listWatch {
		return nil
	}

	watcher, err := registry.NewWatcher(reg, func(report registry.ReloadReport) {
		if len(report.Loaded) == 0 && len(report.Removed) == 0 && len(report.Errors) == 0 {
			return
		}
		fmt.Println()
		renderRecords(reg.List())
		renderReloadErrors(report.Errors)
	})
	if err != nil {
		return fmt.Errorf("failed to watch definition directories: %w", err)
	}
	defer watcher.Close()

	fmt.Println("\nWatching for definition changes. Press Ctrl+C to stop.")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}

func renderRecords(records []*registry.Record) {
	if len(records) == 0 {
		fmt.Println("No subagents discovered. Add Markdown specs under .codex/agents.")
		return
	}

	fmt.Println("Available subagents:")
	fmt.Println()
	for _, rec := range records {
		var line strings.Builder
		fmt.Fprintf(&line, "- %s: %s", color.GreenString(rec.Spec.Name()), rec.Spec.Description())
		if model := rec.Spec.Model(); model != "" {
			fmt.Fprintf(&line, " (model: %s)", model)
		}
		fmt.Println(line.String())
		for _, warning := range rec.Warnings {
			fmt.Printf("  %s\n", color.YellowString(warning))
		}
	}
}

func renderReloadErrors(errs []registry.ReloadError) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr, "\nErrors:")
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", e.Path, color.RedString(e.Message))
	}
}

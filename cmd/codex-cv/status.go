package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/antsh3k/codex-cv/internal/config"
	"github.com/antsh3k/codex-cv/internal/history"
	"github.com/antsh3k/codex-cv/internal/telemetry"
	"github.com/antsh3k/codex-cv/pkg/models"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs and per-agent metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus()
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "maximum number of runs to show")
}

func runStatus() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if _, err := os.Stat(cfg.History.DBPath); os.IsNotExist(err) {
		fmt.Println("No runs recorded. Run 'codex-cv run <name>' to start.")
		return nil
	}

	ledger, err := history.Open(cfg.History.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open run ledger: %w", err)
	}
	defer ledger.Close()

	runs, err := ledger.Recent(statusLimit)
	if err != nil {
		return fmt.Errorf("failed to read run ledger: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded. Run 'codex-cv run <name>' to start.")
		return nil
	}

	fmt.Println("Recent runs:")
	fmt.Println()
	for _, run := range runs {
		fmt.Printf("  %s %-20s %-24s %s\n",
			statusGlyph(run.Status), run.AgentName, orDash(run.Model), runTiming(run))
	}

	renderAgentMetrics(cfg)
	return nil
}

func statusGlyph(status models.RunStatus) string {
	switch status {
	case models.RunStatusSucceeded:
		return color.GreenString("✓")
	case models.RunStatusFailed:
		return color.RedString("✗")
	case models.RunStatusStale:
		return color.YellowString("⚠")
	default:
		return color.CyanString("●")
	}
}

// runTiming renders the last column: elapsed time for finished rows, age for
// rows still marked running or left stale.
func runTiming(run history.Run) string {
	if run.FinishedAt.IsZero() {
		age := fmt.Sprintf("started %s ago", formatDuration(time.Since(run.StartedAt)))
		if run.Status == models.RunStatusStale {
			return color.YellowString("stale, %s", age)
		}
		return age
	}
	return formatDuration(run.FinishedAt.Sub(run.StartedAt))
}

func renderAgentMetrics(cfg *config.Config) {
	if !cfg.Telemetry.Enabled {
		return
	}
	if _, err := os.Stat(cfg.Telemetry.DBPath); err != nil {
		return
	}

	store, err := telemetry.OpenStore(cfg.Telemetry.DBPath)
	if err != nil {
		fmt.Printf("Warning: metrics store unavailable: %v\n", err)
		return
	}
	defer store.Close()

	summaries, err := store.AgentSummaries()
	if err != nil {
		fmt.Printf("Warning: could not read metrics: %v\n", err)
		return
	}
	if len(summaries) == 0 {
		return
	}

	fmt.Println("\nAgent metrics:")
	for _, s := range summaries {
		avg := time.Duration(s.AverageDurationMillis) * time.Millisecond
		fmt.Printf("  %s: %d runs, %.0f%% success, avg %s\n",
			s.AgentName, s.Executions, s.SuccessRate*100, formatDuration(avg))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	days := int(d.Hours() / 24)
	return fmt.Sprintf("%dd", days)
}

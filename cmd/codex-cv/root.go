package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "codex-cv",
	Short: "Subagent discovery, routing, and orchestration",
	Long: `codex-cv discovers, routes, and runs named subagents.

Subagents are Markdown specs with YAML front matter, discovered from
.codex/agents directories at the project and user level. Each run spawns
an isolated sub-conversation on the configured model backend, streams its
events, and records the terminal outcome in a local run ledger.

Core capabilities:
- Discovers project- and user-tier subagent definitions (project wins)
- Routes free-form task text to the best keyword match
- Runs delegations with retry, timeout, and conflict tracking
- Records per-run history and per-agent execution metrics`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

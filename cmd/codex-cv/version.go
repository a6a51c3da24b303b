package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/antsh3k/codex-cv/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the codex-cv version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("codex-cv version %s\n", version.Get())
	},
}

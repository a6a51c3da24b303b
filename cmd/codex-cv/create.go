package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/antsh3k/codex-cv/internal/config"
	"github.com/antsh3k/codex-cv/internal/subagent"
)

var (
	createDescription string
	createKeywords    []string
	createUser        bool
	createForce       bool
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Scaffold a new subagent definition",
	Long: `Create a Markdown definition for a new subagent in the project
definition directory, or the user directory with --user. The generated
file parses cleanly; fill in the instructions section before running it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreate(args[0])
	},
}

func init() {
	createCmd.Flags().StringVarP(&createDescription, "description", "d", "", "one-line description of the subagent")
	createCmd.Flags().StringSliceVarP(&createKeywords, "keyword", "k", nil, "routing keyword (repeatable)")
	createCmd.Flags().BoolVar(&createUser, "user", false, "create in the user directory instead of the project")
	createCmd.Flags().BoolVar(&createForce, "force", false, "overwrite an existing definition")
}

func runCreate(name string) error {
	if err := subagent.ValidateName(name); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dir := projectAgentsDir(cfg)
	if createUser {
		dir = cfg.Subagents.UserDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create definition directory: %w", err)
	}

	path := filepath.Join(dir, name+".md")
	if _, err := os.Stat(path); err == nil && !createForce {
		return fmt.Errorf("definition %s already exists (use --force to overwrite)", path)
	}

	doc := subagent.Template(name, createDescription, createKeywords)
	if _, err := subagent.ParseDocument(doc); err != nil {
		return fmt.Errorf("generated definition does not parse: %w", err)
	}

	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		return fmt.Errorf("failed to write definition: %w", err)
	}

	fmt.Printf("%s Created %s\n", color.GreenString("✓"), path)
	fmt.Println("Edit the instructions section, then run 'codex-cv list' to verify.")
	return nil
}

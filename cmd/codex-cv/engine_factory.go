package main

import (
	"fmt"
	"path/filepath"

	"github.com/antsh3k/codex-cv/internal/config"
	"github.com/antsh3k/codex-cv/internal/engine"
	"github.com/antsh3k/codex-cv/internal/history"
	"github.com/antsh3k/codex-cv/internal/registry"
	"github.com/antsh3k/codex-cv/internal/sandbox"
	"github.com/antsh3k/codex-cv/internal/telemetry"
)

// newEngine builds the production engine from configuration.
func newEngine(cfg *config.Config) (engine.Engine, error) {
	ecfg := engine.AnthropicConfig{
		Model:     cfg.Engine.Model,
		MaxTokens: cfg.Engine.MaxTokens,
	}

	if cfg.Engine.UseBedrock {
		ecfg.UseAWSBedrock = true
		ecfg.AWSRegion = cfg.Engine.AWSRegion
		ecfg.AWSProfile = cfg.Engine.AWSProfile
		return engine.NewAnthropicEngine(ecfg)
	}

	key, err := config.GetAPIKey(cfg)
	if err != nil {
		return nil, err
	}
	ecfg.APIKey = key
	return engine.NewAnthropicEngine(ecfg)
}

// newRegistry builds the subagent registry over both definition tiers plus
// the builtin pipeline specs.
func newRegistry(cfg *config.Config) *registry.Registry {
	return registry.New(registry.Options{
		UserDir:    cfg.Subagents.UserDir,
		ProjectDir: projectAgentsDir(cfg),
		Builtins:   true,
	})
}

// projectAgentsDir resolves the project-tier definition directory against
// the project root.
func projectAgentsDir(cfg *config.Config) string {
	dir := cfg.Subagents.ProjectDir
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(config.ProjectRoot(), dir)
}

// newTelemetrySink assembles the observation sinks. The returned closer
// releases the metrics store and may be nil.
func newTelemetrySink(cfg *config.Config) (telemetry.Sink, func() error) {
	if !cfg.Telemetry.Enabled {
		return nil, nil
	}

	sinks := telemetry.MultiSink{telemetry.LogSink{}}
	store, err := telemetry.OpenStore(cfg.Telemetry.DBPath)
	if err != nil {
		fmt.Printf("Warning: metrics store unavailable: %v\n", err)
		return sinks, nil
	}
	return append(sinks, store), store.Close
}

// openLedger opens the run ledger. History is optional; a failure degrades
// to a warning and a nil ledger.
func openLedger(cfg *config.Config) *history.Ledger {
	ledger, err := history.Open(cfg.History.DBPath)
	if err != nil {
		fmt.Printf("Warning: run ledger unavailable: %v\n", err)
		return nil
	}
	return ledger
}

// newSandboxPolicy loads the sandbox profiles and resolves the active
// profile name.
func newSandboxPolicy(cfg *config.Config) (*sandbox.Policy, string, error) {
	policy := sandbox.NewPolicy()
	if cfg.Sandbox.PolicyFile != "" {
		if err := policy.LoadFile(cfg.Sandbox.PolicyFile); err != nil {
			return nil, "", fmt.Errorf("load sandbox policy: %w", err)
		}
	}

	profile := cfg.Sandbox.Profile
	if profile == "" {
		profile = sandbox.DefaultProfileName()
	}
	return policy, profile, nil
}

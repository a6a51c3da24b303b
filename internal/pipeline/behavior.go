package pipeline

import (
	"context"
	"fmt"

	"github.com/antsh3k/codex-cv/internal/taskctx"
)

// Behavior is one stage of the builtin pipeline. A stage runs as three
// phases: Prepare loads its inputs from the task context and fails fast when
// a prerequisite artifact is missing, Execute produces the stage result, and
// Finalize publishes it back to the context. Implementations keep loaded
// inputs in struct fields between phases, so a Behavior value serves exactly
// one run.
type Behavior interface {
	// Name identifies the stage in diagnostics and scratchpad namespaces.
	Name() string

	Prepare(ctx context.Context, tc *taskctx.Context) error
	Execute(ctx context.Context, tc *taskctx.Context) error
	Finalize(ctx context.Context, tc *taskctx.Context) error
}

// scratchpadKey returns the namespace a stage publishes its summary under.
func scratchpadKey(name string) string {
	return "subagents." + name + ".output"
}

// RunStage drives one behavior through its three phases. The context is
// checked between phases so a cancelled run stops at a phase boundary rather
// than mid-write.
func RunStage(ctx context.Context, b Behavior, tc *taskctx.Context) error {
	name := b.Name()
	tc.Logf(taskctx.LevelInfo, "%s: starting", name)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := b.Prepare(ctx, tc); err != nil {
		tc.Logf(taskctx.LevelError, "%s: prepare failed: %v", name, err)
		return fmt.Errorf("%s prepare: %w", name, err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := b.Execute(ctx, tc); err != nil {
		tc.Logf(taskctx.LevelError, "%s: execute failed: %v", name, err)
		return fmt.Errorf("%s execute: %w", name, err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := b.Finalize(ctx, tc); err != nil {
		tc.Logf(taskctx.LevelError, "%s: finalize failed: %v", name, err)
		return fmt.Errorf("%s finalize: %w", name, err)
	}

	tc.Logf(taskctx.LevelInfo, "%s: finished", name)
	tc.DebugDump()
	return nil
}

// RunPipeline runs the given stages in order, stopping at the first failure.
func RunPipeline(ctx context.Context, tc *taskctx.Context, stages ...Behavior) error {
	for _, stage := range stages {
		if err := RunStage(ctx, stage, tc); err != nil {
			return err
		}
	}
	return nil
}

package tools

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// HoldNotifier is invoked when a pre-call tool exceeds its hold threshold,
// so the Engine can play a brief hold prompt while the lookup finishes.
type HoldNotifier func(toolName string)

// PreCallResult is the outcome of one pre-call tool execution.
type PreCallResult struct {
	ToolName string
	Outputs  map[string]string
	Err      error
}

// ExecutePreCall runs every tool in set concurrently, each bounded by its
// own TimeoutMs. A tool that times out or errors resolves every one of its
// declared OutputVariables to "". All outputs are merged into a single
// string-valued map with later-declared tools not overriding earlier ones
// unless explicitly re-declaring the same variable name, matching a plain
// map merge.
func ExecutePreCall(ctx context.Context, set []Definition, holdNotify HoldNotifier) map[string]string {
	results := make([]PreCallResult, len(set))
	var g errgroup.Group

	for i, def := range set {
		g.Go(func() error {
			results[i] = runPreCallTool(ctx, def, holdNotify)
			return nil
		})
	}
	// Every tool's own failure is carried in its PreCallResult, not
	// propagated here: one failing lookup must not cancel the others.
	_ = g.Wait()

	merged := make(map[string]string)
	for _, r := range results {
		if r.Err != nil {
			slog.Warn("pre-call tool failed", "tool", r.ToolName, "error", r.Err)
		}
		for k, v := range r.Outputs {
			merged[k] = TruncateOutput(v)
		}
	}
	return merged
}

func runPreCallTool(ctx context.Context, def Definition, holdNotify HoldNotifier) PreCallResult {
	timeout := time.Duration(def.timeoutOrDefault()) * time.Millisecond
	hold := time.Duration(def.holdThresholdOrDefault()) * time.Millisecond

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	holdTimer := time.AfterFunc(hold, func() {
		if holdNotify != nil {
			holdNotify(def.Name)
		}
	})
	defer holdTimer.Stop()

	raw, err := def.Handler(callCtx, "{}")
	if err != nil {
		return PreCallResult{ToolName: def.Name, Err: err, Outputs: emptyOutputs(def.OutputVariables)}
	}

	outputs, mapErr := mapToolOutputs(raw, def.OutputVariables)
	if mapErr != nil {
		return PreCallResult{ToolName: def.Name, Err: mapErr, Outputs: emptyOutputs(def.OutputVariables)}
	}
	return PreCallResult{ToolName: def.Name, Outputs: outputs}
}

func emptyOutputs(vars []string) map[string]string {
	out := make(map[string]string, len(vars))
	for _, v := range vars {
		out[v] = ""
	}
	return out
}

// Package tools implements the tool registry: phase-scoped tool
// definitions, parallel pre-call execution, in-call execution with a
// provider-deadline-aware timeout, and fire-and-forget post-call dispatch.
//
// Its registry design follows internal/mcp/mcphost: RegisterBuiltin's
// in-process handler pattern, the concurrent-safe map-backed registry, and
// the tiered-latency health tracking generalized here from budget tiers to
// call phases.
package tools

import (
	"context"

	"github.com/corvidlabs/voxcore/pkg/types"
)

// Phase identifies when a tool may run during a call.
type Phase string

const (
	PhasePreCall  Phase = "pre_call"
	PhaseInCall   Phase = "in_call"
	PhasePostCall Phase = "post_call"
)

// defaultOutputTruncateLen bounds pre-call output values injected as literal
// template substitutions, per the untrusted-data handling contract.
const defaultOutputTruncateLen = 512

// Handler executes a tool given its provider- or config-supplied JSON
// arguments and returns either a JSON payload (raw-JSON mode) or is left to
// the caller to map via OutputVariables.
type Handler func(ctx context.Context, args string) (string, error)

// Definition describes one registered tool: its LLM-facing shape plus the
// lifecycle metadata the registry needs to schedule and bound it.
type Definition struct {
	types.ToolDefinition

	// Phases lists every phase this tool may run in.
	Phases []Phase

	// IsGlobal marks a tool available to every context by default. A context
	// may opt out of a specific global tool by name.
	IsGlobal bool

	// TimeoutMs bounds a single execution. Default 2000 for pre-call tools;
	// in-call tools are additionally bounded by the provider's own deadline.
	TimeoutMs int

	// HoldThresholdMs is how long a pre-call tool may run before the Engine
	// is expected to play a hold prompt. Default 500.
	HoldThresholdMs int

	// OutputVariables lists the string-valued keys this tool's result
	// contributes to session.pre_call_results. Ignored for post-call tools.
	OutputVariables []string

	// Handler runs the tool in-process.
	Handler Handler
}

func (d Definition) timeoutOrDefault() int {
	if d.TimeoutMs > 0 {
		return d.TimeoutMs
	}
	return 2000
}

func (d Definition) holdThresholdOrDefault() int {
	if d.HoldThresholdMs > 0 {
		return d.HoldThresholdMs
	}
	return 500
}

func (d Definition) hasPhase(p Phase) bool {
	for _, ph := range d.Phases {
		if ph == p {
			return true
		}
	}
	return false
}

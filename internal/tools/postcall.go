package tools

import (
	"context"
	"log/slog"
)

// PostCallContext is handed to every post-call tool. The Engine generates no
// call summary, so Summary and SummaryJSON are left empty on dispatch.
type PostCallContext struct {
	CallID              string
	Direction           string
	CallerNumber        string
	CalledNumber        string
	DurationSeconds     float64
	Outcome             string
	ConversationHistory []map[string]any
	ToolCalls           []map[string]any
	PreCallResults      map[string]string
	ProviderName        string
	Summary             string
	SummaryJSON         string
}

// DispatchPostCall fires every tool in set without waiting for completion.
// Callers are responsible for the per-call idempotency guard (see
// session.CallSession.TryFirePostCall) — DispatchPostCall itself applies no
// retry, matching the "receiving systems own retry policy" contract.
func DispatchPostCall(ctx context.Context, set []Definition, pctx PostCallContext) {
	for _, def := range set {
		go runPostCallTool(ctx, def, pctx)
	}
}

func runPostCallTool(ctx context.Context, def Definition, pctx PostCallContext) {
	args := encodePostCallContext(pctx)
	if _, err := def.Handler(ctx, args); err != nil {
		slog.Warn("post-call tool failed", "tool", def.Name, "call_id", pctx.CallID, "error", err)
	}
}

package tools

import (
	"context"
	"fmt"
	"time"
)

// providerCallDeadline is the hard ceiling most Monolithic Agent providers
// impose on a function-call response before they fault the session.
const providerCallDeadline = 10 * time.Second

// ErrToolNotFound is returned when an in-call invocation names an unknown tool.
type ErrToolNotFound struct{ Name string }

func (e *ErrToolNotFound) Error() string { return fmt.Sprintf("tools: unknown tool %q", e.Name) }

// ExecuteInCall runs the named tool synchronously, bounded by whichever is
// tighter: the tool's own TimeoutMs or the provider's function-call
// deadline. The result must return before the deadline or the caller's
// provider session will fault regardless of what this call does.
func (r *Registry) ExecuteInCall(ctx context.Context, name, argsJSON string) (string, error) {
	def, ok := r.Lookup(name)
	if !ok {
		return "", &ErrToolNotFound{Name: name}
	}
	if !def.hasPhase(PhaseInCall) {
		return "", fmt.Errorf("tools: %q is not registered for in-call execution", name)
	}

	timeout := time.Duration(def.timeoutOrDefault()) * time.Millisecond
	if timeout > providerCallDeadline {
		timeout = providerCallDeadline
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return def.Handler(callCtx, argsJSON)
}

package tools_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/corvidlabs/voxcore/internal/tools"
	"github.com/corvidlabs/voxcore/pkg/types"
)

func fastTool(name string, outputs map[string]string) tools.Definition {
	vars := make([]string, 0, len(outputs))
	for k := range outputs {
		vars = append(vars, k)
	}
	return tools.Definition{
		ToolDefinition: toolDef(name),
		Phases:         []tools.Phase{tools.PhasePreCall},
		OutputVariables: vars,
		Handler: func(ctx context.Context, args string) (string, error) {
			b := "{"
			first := true
			for k, v := range outputs {
				if !first {
					b += ","
				}
				first = false
				b += fmt.Sprintf("%q:%q", k, v)
			}
			b += "}"
			return b, nil
		},
	}
}

func slowTool(name string, delay time.Duration) tools.Definition {
	return tools.Definition{
		ToolDefinition: toolDef(name),
		Phases:         []tools.Phase{tools.PhasePreCall},
		TimeoutMs:      20,
		OutputVariables: []string{"result"},
		Handler: func(ctx context.Context, args string) (string, error) {
			select {
			case <-time.After(delay):
				return `{"result":"done"}`, nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
}

func TestExecutePreCall_MergesOutputsFromMultipleTools(t *testing.T) {
	set := []tools.Definition{
		fastTool("balance_lookup", map[string]string{"balance": "42.00"}),
		fastTool("account_lookup", map[string]string{"account_name": "Alice"}),
	}
	merged := tools.ExecutePreCall(context.Background(), set, nil)
	if merged["balance"] != "42.00" || merged["account_name"] != "Alice" {
		t.Errorf("merged = %+v", merged)
	}
}

func TestExecutePreCall_TimeoutResolvesToEmptyString(t *testing.T) {
	set := []tools.Definition{slowTool("slow_lookup", 200 * time.Millisecond)}
	merged := tools.ExecutePreCall(context.Background(), set, nil)
	if v, ok := merged["result"]; !ok || v != "" {
		t.Errorf("result = %q, ok=%v, want empty string on timeout", v, ok)
	}
}

func TestExecutePreCall_HoldNotifierFiresOnSlowTool(t *testing.T) {
	def := tools.Definition{
		ToolDefinition:  toolDef("slow_with_hold"),
		Phases:          []tools.Phase{tools.PhasePreCall},
		TimeoutMs:       200,
		HoldThresholdMs: 10,
		Handler: func(ctx context.Context, args string) (string, error) {
			time.Sleep(50 * time.Millisecond)
			return "{}", nil
		},
	}

	fired := make(chan string, 1)
	tools.ExecutePreCall(context.Background(), []tools.Definition{def}, func(name string) {
		fired <- name
	})

	select {
	case name := <-fired:
		if name != "slow_with_hold" {
			t.Errorf("hold fired for %q", name)
		}
	case <-time.After(500 * time.Millisecond):
		t.Error("hold notifier never fired")
	}
}

func toolDef(name string) types.ToolDefinition {
	return types.ToolDefinition{Name: name}
}

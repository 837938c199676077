package tools_test

import (
	"context"
	"errors"
	"testing"

	"github.com/corvidlabs/voxcore/internal/tools"
	"github.com/corvidlabs/voxcore/pkg/types"
)

func TestRegistry_ExecuteInCall_Success(t *testing.T) {
	r := tools.NewRegistry()
	_ = r.Register(tools.Definition{
		ToolDefinition: types.ToolDefinition{Name: "lookup_order"},
		Phases:         []tools.Phase{tools.PhaseInCall},
		Handler: func(ctx context.Context, args string) (string, error) {
			return `{"status":"shipped"}`, nil
		},
	})

	out, err := r.ExecuteInCall(context.Background(), "lookup_order", "{}")
	if err != nil {
		t.Fatalf("ExecuteInCall: %v", err)
	}
	if out != `{"status":"shipped"}` {
		t.Errorf("out = %q", out)
	}
}

func TestRegistry_ExecuteInCall_UnknownTool(t *testing.T) {
	r := tools.NewRegistry()
	_, err := r.ExecuteInCall(context.Background(), "nonexistent", "{}")
	var notFound *tools.ErrToolNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want ErrToolNotFound", err)
	}
}

func TestRegistry_ExecuteInCall_WrongPhaseRejected(t *testing.T) {
	r := tools.NewRegistry()
	_ = r.Register(tools.Definition{
		ToolDefinition: types.ToolDefinition{Name: "pre_only"},
		Phases:         []tools.Phase{tools.PhasePreCall},
		Handler: func(ctx context.Context, args string) (string, error) {
			return "{}", nil
		},
	})

	_, err := r.ExecuteInCall(context.Background(), "pre_only", "{}")
	if err == nil {
		t.Fatal("expected error invoking a pre-call-only tool in-call")
	}
}

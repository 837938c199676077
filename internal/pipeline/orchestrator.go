// Package pipeline implements the Modular Pipeline Orchestrator: the
// STT-transcript -> LLM(+tools) -> TTS turn loop used by providers composed
// from separate STT/LLM/TTS adapters, as opposed to a monolithic
// bidirectional agent session.
//
// The tool-call loop and tool-calling-unsupported retry are grounded on the
// teacher's internal/agent turn-taking conventions and internal/resilience's
// fallback-on-sentinel-error pattern (circuitbreaker.go), generalized from
// provider failover to a within-turn capability downgrade.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/corvidlabs/voxcore/internal/tools"
	"github.com/corvidlabs/voxcore/pkg/provider/llm"
	"github.com/corvidlabs/voxcore/pkg/provider/tts"
	"github.com/corvidlabs/voxcore/pkg/types"
)

// Orchestrator drives one named pipeline's turn logic. It is stateless
// across turns; all per-call state is threaded through RunTurn's arguments
// and return value.
type Orchestrator struct {
	llm   llm.Provider
	tts   tts.Provider
	tools *tools.Registry
	cfg   Config
}

// New builds an Orchestrator. toolRegistry may be nil for a pipeline that
// never offers tools.
func New(llmProvider llm.Provider, ttsProvider tts.Provider, toolRegistry *tools.Registry, cfg Config) *Orchestrator {
	return &Orchestrator{
		llm:   llmProvider,
		tts:   ttsProvider,
		tools: toolRegistry,
		cfg:   cfg.withDefaults(),
	}
}

// ExecutedToolCall records one tool invocation made during a turn.
type ExecutedToolCall struct {
	Name   string
	Args   string
	Result string
	Err    error
}

// TurnResult is the outcome of one RunTurn call.
type TurnResult struct {
	// History is the full updated message list, including the new user
	// transcript, any tool round trips, and the final assistant message.
	History []types.Message

	// FinalText is the assistant's final, tool-free reply text.
	FinalText string

	// ToolCalls records every tool invocation made while reaching FinalText.
	ToolCalls []ExecutedToolCall

	// RanToolless is true if a "tool calling unsupported" error forced this
	// turn to retry without tool schemas.
	RanToolless bool

	// Audio streams synthesized speech frames for FinalText in the TTS
	// provider's native output format. Closed when synthesis completes.
	Audio <-chan []byte
}

// RunTurn appends transcript to history as a user message, then drives the
// LLM(+tools) loop until a tool-free final answer is produced, and finally
// starts TTS synthesis for that answer.
//
// toolDefs is the active tool schema set for this call; pass nil for a
// pipeline instance with no tools configured.
func (o *Orchestrator) RunTurn(ctx context.Context, history []types.Message, systemPrompt, transcript string, toolDefs []types.ToolDefinition, voice types.VoiceProfile) (*TurnResult, error) {
	messages := append(append([]types.Message{}, history...), types.Message{Role: "user", Content: transcript})

	toolsEnabled := len(toolDefs) > 0 && o.tools != nil
	retriedToolless := false
	var executed []ExecutedToolCall
	var finalText string

	for depth := 0; ; {
		req := llm.CompletionRequest{
			Messages:     messages,
			SystemPrompt: systemPrompt,
		}
		if toolsEnabled {
			req.Tools = toolDefs
		}

		resp, err := o.llm.Complete(ctx, req)
		if err != nil {
			if toolsEnabled && !retriedToolless && errors.Is(err, llm.ErrToolCallingUnsupported) {
				toolsEnabled = false
				retriedToolless = true
				continue
			}
			return nil, fmt.Errorf("pipeline: llm completion: %w", err)
		}

		if len(resp.ToolCalls) == 0 || depth >= o.cfg.MaxToolDepth {
			finalText = resp.Content
			messages = append(messages, types.Message{Role: "assistant", Content: resp.Content})
			break
		}

		depth++
		messages = append(messages, types.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, tc := range resp.ToolCalls {
			result, terr := o.executeTool(ctx, tc)
			executed = append(executed, ExecutedToolCall{Name: tc.Name, Args: tc.Arguments, Result: result, Err: terr})
			messages = append(messages, types.Message{Role: "tool", Content: result, ToolCallID: tc.ID})
		}
	}

	audio, err := o.synthesize(ctx, finalText, voice)
	if err != nil {
		return nil, fmt.Errorf("pipeline: tts synthesis: %w", err)
	}

	return &TurnResult{
		History:      messages,
		FinalText:    finalText,
		ToolCalls:    executed,
		RanToolless:  retriedToolless,
		Audio:        audio,
	}, nil
}

func (o *Orchestrator) executeTool(ctx context.Context, tc types.ToolCall) (string, error) {
	if o.tools == nil {
		return `{"error":"no tool registry configured"}`, fmt.Errorf("pipeline: tool call %q with no registry", tc.Name)
	}
	result, err := o.tools.ExecuteInCall(ctx, tc.Name, tc.Arguments)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error()), err
	}
	return result, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, text string, voice types.VoiceProfile) (<-chan []byte, error) {
	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)
	return o.tts.SynthesizeStream(ctx, textCh, voice)
}

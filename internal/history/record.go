package history

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/corvidlabs/voxcore/internal/session"
)

// RecordCall persists a completed call's immutable snapshot. It satisfies
// internal/engine.CallRecorder.
func (s *Store) RecordCall(record session.CallRecord) error {
	pipelineJSON, err := json.Marshal(record.PipelineComponents)
	if err != nil {
		return fmt.Errorf("history: marshal pipeline_components: %w", err)
	}
	historyJSON, err := json.Marshal(record.ConversationHistory)
	if err != nil {
		return fmt.Errorf("history: marshal conversation_history: %w", err)
	}
	toolCallsJSON, err := json.Marshal(record.ToolCalls)
	if err != nil {
		return fmt.Errorf("history: marshal tool_calls: %w", err)
	}
	preCallJSON, err := json.Marshal(record.PreCallResults)
	if err != nil {
		return fmt.Errorf("history: marshal pre_call_results: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO call_history (
			call_id, caller_number, called_number, context_name, direction,
			start_time, end_time, duration_seconds, provider_name,
			pipeline_components, conversation_history, tool_calls, pre_call_results,
			outcome, transfer_destination, error_message,
			avg_turn_latency_ms, max_turn_latency_ms, total_turns,
			caller_audio_format, barge_in_count, underflow_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(call_id) DO UPDATE SET
			end_time             = excluded.end_time,
			duration_seconds     = excluded.duration_seconds,
			conversation_history = excluded.conversation_history,
			tool_calls           = excluded.tool_calls,
			outcome              = excluded.outcome,
			transfer_destination = excluded.transfer_destination,
			error_message        = excluded.error_message,
			avg_turn_latency_ms  = excluded.avg_turn_latency_ms,
			max_turn_latency_ms  = excluded.max_turn_latency_ms,
			total_turns          = excluded.total_turns,
			barge_in_count       = excluded.barge_in_count,
			underflow_count      = excluded.underflow_count
	`,
		record.CallID, record.CallerNumber, record.CalledNumber, record.ContextName, string(record.Direction),
		record.StartTime.UTC().Format(time.RFC3339Nano), record.EndTime.UTC().Format(time.RFC3339Nano),
		record.DurationSeconds(), record.ProviderName,
		string(pipelineJSON), string(historyJSON), string(toolCallsJSON), string(preCallJSON),
		string(record.Outcome), record.TransferDestination, record.ErrorMessage,
		record.AvgTurnLatencyMs, record.MaxTurnLatencyMs, record.TotalTurns,
		record.CallerAudioFormat, record.BargeInCount, record.UnderflowCount,
	)
	if err != nil {
		return fmt.Errorf("history: record call %s: %w", record.CallID, err)
	}
	return nil
}

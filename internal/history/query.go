package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/corvidlabs/voxcore/internal/session"
)

// ErrNotFound is returned by GetDetail when no call matches the given id.
var ErrNotFound = errors.New("history: call not found")

// Summary is the projection returned by ListSummaries: every call_history
// column except the conversation_history, tool_calls and pre_call_results
// blobs.
type Summary struct {
	ID                  int64
	CallID              string
	CallerNumber        string
	CalledNumber        string
	ContextName         string
	Direction           string
	StartTime           time.Time
	EndTime             time.Time
	DurationSeconds     float64
	ProviderName        string
	PipelineComponents  []string
	Outcome             string
	TransferDestination string
	ErrorMessage        string
	AvgTurnLatencyMs    float64
	MaxTurnLatencyMs    float64
	TotalTurns          int
	CallerAudioFormat   string
	BargeInCount        int
	UnderflowCount      int
}

// Detail is a Summary plus the full conversation and tool-call records.
type Detail struct {
	Summary
	ConversationHistory []session.Turn
	ToolCalls           []session.ToolCallRecord
	PreCallResults      map[string]string
}

// Filter narrows ListSummaries to matching rows. Zero-value fields are not
// applied as predicates. Columns named here are exactly the ones the
// schema indexes.
type Filter struct {
	CallerNumber string
	CalledNumber string
	ContextName  string
	Outcome      string
	ProviderName string
	Direction    string
	Since        time.Time
	Until        time.Time

	Limit  int
	Offset int
	// SortAscending orders by start_time ascending instead of the default
	// most-recent-first.
	SortAscending bool
}

const defaultListLimit = 50

// ListSummaries returns a page of call summaries matching f, most recent
// first unless f.SortAscending is set.
func (s *Store) ListSummaries(ctx context.Context, f Filter) ([]Summary, error) {
	var where []string
	var args []any

	addEq := func(col, val string) {
		if val != "" {
			where = append(where, col+" = ?")
			args = append(args, val)
		}
	}
	addEq("caller_number", f.CallerNumber)
	addEq("called_number", f.CalledNumber)
	addEq("context_name", f.ContextName)
	addEq("outcome", f.Outcome)
	addEq("provider_name", f.ProviderName)
	addEq("direction", f.Direction)
	if !f.Since.IsZero() {
		where = append(where, "start_time >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	if !f.Until.IsZero() {
		where = append(where, "start_time <= ?")
		args = append(args, f.Until.UTC().Format(time.RFC3339Nano))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	order := "DESC"
	if f.SortAscending {
		order = "ASC"
	}

	query := `SELECT id, call_id, caller_number, called_number, context_name, direction,
		start_time, end_time, duration_seconds, provider_name, pipeline_components,
		outcome, transfer_destination, error_message,
		avg_turn_latency_ms, max_turn_latency_ms, total_turns,
		caller_audio_format, barge_in_count, underflow_count
		FROM call_history`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY start_time %s LIMIT ? OFFSET ?", order)
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list summaries: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var startStr, endStr, pipelineJSON string
		if err := rows.Scan(
			&sum.ID, &sum.CallID, &sum.CallerNumber, &sum.CalledNumber, &sum.ContextName, &sum.Direction,
			&startStr, &endStr, &sum.DurationSeconds, &sum.ProviderName, &pipelineJSON,
			&sum.Outcome, &sum.TransferDestination, &sum.ErrorMessage,
			&sum.AvgTurnLatencyMs, &sum.MaxTurnLatencyMs, &sum.TotalTurns,
			&sum.CallerAudioFormat, &sum.BargeInCount, &sum.UnderflowCount,
		); err != nil {
			return nil, fmt.Errorf("history: scan summary: %w", err)
		}
		sum.StartTime, err = time.Parse(time.RFC3339Nano, startStr)
		if err != nil {
			return nil, fmt.Errorf("history: parse start_time: %w", err)
		}
		sum.EndTime, err = time.Parse(time.RFC3339Nano, endStr)
		if err != nil {
			return nil, fmt.Errorf("history: parse end_time: %w", err)
		}
		if pipelineJSON != "" {
			if err := json.Unmarshal([]byte(pipelineJSON), &sum.PipelineComponents); err != nil {
				return nil, fmt.Errorf("history: unmarshal pipeline_components: %w", err)
			}
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list summaries rows: %w", err)
	}
	return out, nil
}

// GetDetail loads a single call's full record, including conversation
// history and tool calls. It returns ErrNotFound if id does not exist.
func (s *Store) GetDetail(ctx context.Context, id int64) (*Detail, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, call_id, caller_number, called_number, context_name, direction,
		start_time, end_time, duration_seconds, provider_name, pipeline_components,
		conversation_history, tool_calls, pre_call_results,
		outcome, transfer_destination, error_message,
		avg_turn_latency_ms, max_turn_latency_ms, total_turns,
		caller_audio_format, barge_in_count, underflow_count
		FROM call_history WHERE id = ?`, id)

	var d Detail
	var startStr, endStr, pipelineJSON, historyJSON, toolCallsJSON, preCallJSON string
	err := row.Scan(
		&d.ID, &d.CallID, &d.CallerNumber, &d.CalledNumber, &d.ContextName, &d.Direction,
		&startStr, &endStr, &d.DurationSeconds, &d.ProviderName, &pipelineJSON,
		&historyJSON, &toolCallsJSON, &preCallJSON,
		&d.Outcome, &d.TransferDestination, &d.ErrorMessage,
		&d.AvgTurnLatencyMs, &d.MaxTurnLatencyMs, &d.TotalTurns,
		&d.CallerAudioFormat, &d.BargeInCount, &d.UnderflowCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: get detail %d: %w", id, err)
	}

	d.StartTime, err = time.Parse(time.RFC3339Nano, startStr)
	if err != nil {
		return nil, fmt.Errorf("history: parse start_time: %w", err)
	}
	d.EndTime, err = time.Parse(time.RFC3339Nano, endStr)
	if err != nil {
		return nil, fmt.Errorf("history: parse end_time: %w", err)
	}
	if pipelineJSON != "" {
		if err := json.Unmarshal([]byte(pipelineJSON), &d.PipelineComponents); err != nil {
			return nil, fmt.Errorf("history: unmarshal pipeline_components: %w", err)
		}
	}
	if historyJSON != "" {
		if err := json.Unmarshal([]byte(historyJSON), &d.ConversationHistory); err != nil {
			return nil, fmt.Errorf("history: unmarshal conversation_history: %w", err)
		}
	}
	if toolCallsJSON != "" {
		if err := json.Unmarshal([]byte(toolCallsJSON), &d.ToolCalls); err != nil {
			return nil, fmt.Errorf("history: unmarshal tool_calls: %w", err)
		}
	}
	if preCallJSON != "" {
		if err := json.Unmarshal([]byte(preCallJSON), &d.PreCallResults); err != nil {
			return nil, fmt.Errorf("history: unmarshal pre_call_results: %w", err)
		}
	}
	return &d, nil
}

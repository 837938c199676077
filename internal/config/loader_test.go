package config_test

import (
	"strings"
	"testing"

	"github.com/corvidlabs/voxcore/internal/config"
)

func TestValidate_DuplicateContextNames(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
  tts:
    name: elevenlabs
contexts:
  - name: support
    provider_name: openai
  - name: support
    provider_name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate context names, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_DuplicateDID(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  s2s:
    name: openai-realtime
contexts:
  - name: sales
    provider_name: openai-realtime
    dids: ["+15551234567"]
  - name: support
    provider_name: openai-realtime
    dids: ["+15551234567"]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for DID routed to two contexts, got nil")
	}
	if !strings.Contains(err.Error(), "already routed") {
		t.Errorf("error should mention already routed, got: %v", err)
	}
}

func TestValidate_ContextMissingProviderName(t *testing.T) {
	t.Parallel()
	yaml := `
contexts:
  - name: support
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing provider_name, got nil")
	}
	if !strings.Contains(err.Error(), "provider_name") {
		t.Errorf("error should mention provider_name, got: %v", err)
	}
}

func TestValidate_CampaignUnknownContext(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  s2s:
    name: openai-realtime
contexts:
  - name: support
    provider_name: openai-realtime
campaigns:
  - name: winback
    context_name: nonexistent
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for campaign referencing unknown context, got nil")
	}
	if !strings.Contains(err.Error(), "context_name") {
		t.Errorf("error should mention context_name, got: %v", err)
	}
}

func TestValidate_CampaignNegativeMaxConcurrent(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  s2s:
    name: openai-realtime
contexts:
  - name: support
    provider_name: openai-realtime
campaigns:
  - name: winback
    context_name: support
    max_concurrent: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative max_concurrent, got nil")
	}
}

func TestValidate_ContextWithProviderIsValid(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  s2s:
    name: openai-realtime
contexts:
  - name: support
    provider_name: openai-realtime
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
contexts:
  - name: support
  - name: support
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_ToolMissingMethod(t *testing.T) {
	t.Parallel()
	yaml := `
tools:
  declarations:
    - name: crm_lookup
      phase: in_call
      url: https://crm.example.com/lookup
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for url without method, got nil")
	}
	if !strings.Contains(err.Error(), "method") {
		t.Errorf("error should mention method, got: %v", err)
	}
}

func TestValidate_ToolMCPServerURLRequiresToolName(t *testing.T) {
	t.Parallel()
	yaml := `
tools:
  declarations:
    - name: crm_lookup
      phase: in_call
      mcp_server_url: https://mcp.example.com
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for mcp_server_url without mcp_tool_name, got nil")
	}
	if !strings.Contains(err.Error(), "mcp_tool_name") {
		t.Errorf("error should mention mcp_tool_name, got: %v", err)
	}
}

func TestValidate_ToolMCPServerURLAndToolNamePairIsValid(t *testing.T) {
	t.Parallel()
	yaml := `
tools:
  declarations:
    - name: crm_lookup
      phase: in_call
      mcp_server_url: https://mcp.example.com
      mcp_tool_name: lookup_account
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ToolInvalidPhase(t *testing.T) {
	t.Parallel()
	yaml := `
tools:
  declarations:
    - name: crm_lookup
      phase: mid_call
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid phase, got nil")
	}
	if !strings.Contains(err.Error(), "phase") {
		t.Errorf("error should mention phase, got: %v", err)
	}
}

func TestValidate_DuplicateToolNames(t *testing.T) {
	t.Parallel()
	yaml := `
tools:
  declarations:
    - name: hangup_call
      phase: in_call
    - name: hangup_call
      phase: in_call
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate tool names, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_NegativeRetentionDays(t *testing.T) {
	t.Parallel()
	yaml := `
history:
  retention_days: -5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative retention_days, got nil")
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	// Sanity-check that the map is populated.
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	llmNames := config.ValidProviderNames["llm"]
	if len(llmNames) == 0 {
		t.Fatal("ValidProviderNames[\"llm\"] should not be empty")
	}
	found := false
	for _, n := range llmNames {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"llm\"] should contain \"openai\"")
	}
}

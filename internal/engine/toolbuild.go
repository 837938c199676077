package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/corvidlabs/voxcore/internal/config"
	"github.com/corvidlabs/voxcore/internal/tools"
)

// The tool names the registry provides an in-process handler for, regardless
// of whether config.ToolsConfig declares them.
const (
	toolBlindTransfer = "blind_transfer"
	toolHangupCall    = "hangup_call"
	toolHTTPLookup    = "http_lookup"
)

// BuildRegistry assembles a tools.Registry from the global tool
// declarations plus the three built-in handlers. Built-ins are registered
// under their fixed names whenever a declaration of that name exists in
// cfg.Tools.Declarations (the declaration supplies the LLM-facing schema;
// the engine supplies the handler). A declaration with no matching built-in
// name and an MCPServerURL becomes an MCP-backed tool; any other becomes an
// HTTP-backed tool (httpDeclarationHandler) that sends its own declared
// URL/method/headers/payload. No {placeholder} substitution is applied to
// those request fields, in any phase.
func BuildRegistry(ctx context.Context, toolsCfg config.ToolsConfig, transferClient tools.TransferClient, hangupGate tools.HangupGate, httpClient *http.Client) (*tools.Registry, error) {
	reg := tools.NewRegistry()

	for _, decl := range toolsCfg.Declarations {
		def := tools.Definition{
			Phases:          []tools.Phase{toPhase(decl.Phase)},
			IsGlobal:        decl.Global,
			TimeoutMs:       decl.TimeoutMs,
			OutputVariables: decl.OutputVariables,
		}
		def.Name = decl.Name
		def.Description = decl.Description
		def.Parameters = decl.Parameters

		switch {
		case decl.Name == toolBlindTransfer:
			if transferClient == nil {
				return nil, fmt.Errorf("engine: tool %q declared but no transfer client configured", decl.Name)
			}
			def.Handler = tools.NewBlindTransferHandler(transferClient)
		case decl.Name == toolHangupCall:
			if hangupGate == nil {
				return nil, fmt.Errorf("engine: tool %q declared but no hangup gate configured", decl.Name)
			}
			def.Handler = tools.NewHangupHandler(hangupGate)
		case decl.Name == toolHTTPLookup:
			def.Handler = tools.NewHTTPLookupHandler(httpClient)
		case decl.MCPServerURL != "":
			handler, err := tools.NewMCPToolHandler(ctx, decl.MCPServerURL, decl.MCPToolName)
			if err != nil {
				return nil, fmt.Errorf("engine: build mcp tool %q: %w", decl.Name, err)
			}
			def.Handler = handler
		default:
			def.Handler = httpDeclarationHandler(decl, httpClient)
		}

		if err := reg.Register(def); err != nil {
			return nil, fmt.Errorf("engine: register tool %q: %w", decl.Name, err)
		}
	}

	return reg, nil
}

// InCallSet resolves the collected in-call tool set for a context, mirroring
// tools.Registry's PreCallSet/PostCallSet global-union-explicit rule. The
// registry itself exposes no InCallSet method since only pre-call and
// post-call tools are dispatched by the registry's own batch-execution
// helpers; in-call tools are instead offered to the provider as a schema
// set and invoked one at a time via ExecuteInCall, so the engine resolves
// the applicable set itself.
func InCallSet(reg *tools.Registry, contextExplicit []string, optedOutGlobals map[string]bool) []tools.Definition {
	seen := make(map[string]bool)
	var out []tools.Definition

	for _, d := range reg.ByPhase(tools.PhaseInCall) {
		if d.IsGlobal && !optedOutGlobals[d.Name] && !seen[d.Name] {
			seen[d.Name] = true
			out = append(out, d)
		}
	}
	for _, name := range contextExplicit {
		if seen[name] {
			continue
		}
		d, ok := reg.Lookup(name)
		if !ok {
			continue
		}
		for _, p := range d.Phases {
			if p == tools.PhaseInCall {
				seen[name] = true
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// optedOutGlobalNames expands a context's blanket disable-global-<phase>
// flag into the per-tool-name opt-out map tools.Registry.PreCallSet/
// PostCallSet expect, since ContextConfig only carries one boolean per
// phase rather than a per-tool override list.
func optedOutGlobalNames(reg *tools.Registry, phase tools.Phase, disableAllGlobals bool) map[string]bool {
	out := make(map[string]bool)
	if !disableAllGlobals {
		return out
	}
	for _, def := range reg.ByPhase(phase) {
		if def.IsGlobal {
			out[def.Name] = true
		}
	}
	return out
}

func toPhase(p config.ToolPhase) tools.Phase {
	switch p {
	case config.ToolPhaseInCall:
		return tools.PhaseInCall
	case config.ToolPhasePostCall:
		return tools.PhasePostCall
	default:
		return tools.PhasePreCall
	}
}

// httpDeclarationHandler wraps tools.NewHTTPLookupHandler with the
// declaration's own fixed request shape: the handler ignores its incoming
// args and issues the configured URL/method/headers/payload exactly as
// declared, since a plain HTTP-backed tool (unlike http_lookup) does not
// take provider-supplied request parameters. No {placeholder} substitution
// is applied to the request fields.
func httpDeclarationHandler(decl config.ToolDeclaration, httpClient *http.Client) tools.Handler {
	lookup := tools.NewHTTPLookupHandler(httpClient)
	return func(ctx context.Context, args string) (string, error) {
		method := decl.Method
		if method == "" {
			method = http.MethodGet
		}
		var b strings.Builder
		b.WriteString(`{"url":`)
		b.WriteString(jsonString(decl.URL))
		b.WriteString(`,"method":`)
		b.WriteString(jsonString(method))
		b.WriteString(`,"headers":{`)
		first := true
		for k, v := range decl.Headers {
			if !first {
				b.WriteString(",")
			}
			first = false
			b.WriteString(jsonString(k))
			b.WriteString(":")
			b.WriteString(jsonString(v))
		}
		b.WriteString(`},"body":`)
		b.WriteString(jsonString(decl.Payload))
		b.WriteString(`}`)
		return lookup(ctx, b.String())
	}
}

func jsonString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

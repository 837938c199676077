package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// mcpClientImplementation identifies this process to every MCP server it
// connects to, per the SDK's handshake.
var mcpClientImplementation = &mcpsdk.Implementation{Name: "voxengine", Version: "1.0.0"}

// NewMCPToolHandler connects to the streamable-HTTP MCP server at serverURL
// and returns a Handler that invokes remoteToolName on it for every call.
// The connection is established once, up front, and reused for the
// handler's lifetime (the handler is built once per process, alongside the
// rest of the tool registry, not per call).
//
// Its shape follows internal/mcp/mcphost.Host.RegisterServer /
// executeMCPTool: the same client/transport/session shape, narrowed to a
// single server and a single tool since a tool declaration names exactly
// one remote tool rather than importing a server's whole catalogue.
func NewMCPToolHandler(ctx context.Context, serverURL, remoteToolName string) (Handler, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("tools: mcp tool %q requires a non-empty server URL", remoteToolName)
	}
	if remoteToolName == "" {
		return nil, fmt.Errorf("tools: mcp server %q requires a non-empty tool name", serverURL)
	}

	client := mcpsdk.NewClient(mcpClientImplementation, nil)
	transport := &mcpsdk.StreamableClientTransport{Endpoint: serverURL}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("tools: connect to mcp server %q: %w", serverURL, err)
	}

	return func(ctx context.Context, args string) (string, error) {
		var argsMap map[string]any
		if args != "" && args != "{}" {
			if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
				return "", fmt.Errorf("tools: invalid args for mcp tool %q: %w", remoteToolName, err)
			}
		}

		result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      remoteToolName,
			Arguments: argsMap,
		})
		if err != nil {
			return "", fmt.Errorf("tools: call mcp tool %q: %w", remoteToolName, err)
		}

		var sb strings.Builder
		for _, c := range result.Content {
			if tc, ok := c.(*mcpsdk.TextContent); ok {
				sb.WriteString(tc.Text)
			}
		}
		if result.IsError {
			return "", fmt.Errorf("tools: mcp tool %q returned an error: %s", remoteToolName, sb.String())
		}
		return sb.String(), nil
	}, nil
}

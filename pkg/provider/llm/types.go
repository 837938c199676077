package llm

import "github.com/corvidlabs/voxcore/pkg/types"

// Message, ToolCall, ToolDefinition, and ModelCapabilities are aliases of
// the shared pkg/types definitions, kept package-local so call sites read
// llm.Message while remaining interface-compatible with the types.Message
// used in Provider's method signatures.
type (
	Message           = types.Message
	ToolCall          = types.ToolCall
	ToolDefinition    = types.ToolDefinition
	ModelCapabilities = types.ModelCapabilities
)

package llm

import "errors"

// ErrToolCallingUnsupported is returned (or wrapped) by a Provider when a
// request including Tools fails for reasons specific to tool-calling mode —
// e.g. a Groq OpenAI-compatible endpoint 4xx-ing on tool_use while the same
// model would otherwise accept the request. Callers should retry once with
// Tools cleared rather than treating this as a terminal failure.
var ErrToolCallingUnsupported = errors.New("llm: tool calling unsupported for this request")

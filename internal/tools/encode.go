package tools

import "encoding/json"

// encodePostCallContext marshals a PostCallContext to JSON for handlers
// (e.g. an HTTP webhook built-in) that need the full payload shape.
// Marshal failure is treated as an empty object: a malformed payload should
// never abort fire-and-forget dispatch.
func encodePostCallContext(pctx PostCallContext) string {
	b, err := json.Marshal(pctx)
	if err != nil {
		return "{}"
	}
	return string(b)
}

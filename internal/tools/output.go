package tools

import "github.com/tidwall/gjson"

// mapToolOutputs extracts each declared output variable from a tool's raw
// JSON result by matching top-level keys, falling back to "" when the key
// is absent or the result isn't an object a variable name resolves in.
func mapToolOutputs(raw string, vars []string) (map[string]string, error) {
	out := make(map[string]string, len(vars))
	if len(vars) == 0 {
		return out, nil
	}
	parsed := gjson.Parse(raw)
	for _, name := range vars {
		v := parsed.Get(name)
		if !v.Exists() {
			out[name] = ""
			continue
		}
		out[name] = v.String()
	}
	return out, nil
}

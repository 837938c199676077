package tools

import "strings"

// Substitute replaces every `{name}` placeholder in s with vars[name] in a
// single left-to-right pass. An unknown placeholder is left literal rather
// than raising an error. Substituted values are inserted verbatim — a value
// itself containing `{...}` is never re-expanded, keeping the operation
// lossless and safe against injected control sequences in untrusted
// pre-call tool output.
func Substitute(s string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		open := strings.IndexByte(s[i:], '{')
		if open < 0 {
			b.WriteString(s[i:])
			break
		}
		b.WriteString(s[i : i+open])
		start := i + open

		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			b.WriteString(s[start:])
			break
		}
		name := s[start+1 : start+end]
		if val, ok := vars[name]; ok {
			b.WriteString(val)
		} else {
			b.WriteString(s[start : start+end+1])
		}
		i = start + end + 1
	}
	return b.String()
}

// TruncateOutput bounds an untrusted pre-call output value to
// defaultOutputTruncateLen bytes.
func TruncateOutput(s string) string {
	if len(s) <= defaultOutputTruncateLen {
		return s
	}
	return s[:defaultOutputTruncateLen]
}

package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	ContextsChanged bool
	ContextChanges  []ContextDiff // per-context diffs
	ToolsChanged    bool
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// ContextDiff describes what changed for a single context between two configs.
type ContextDiff struct {
	Name                string
	SystemPromptChanged bool
	VoiceChanged        bool
	ProviderChanged     bool
	Added               bool
	Removed             bool
}

// Diff compares old and new configs and returns what changed. Only tracks
// changes that are safe to apply to new calls without restarting the process;
// in-flight calls keep the snapshot they started with.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.ToolsChanged = !toolsEqual(old.Tools.Declarations, new.Tools.Declarations)

	oldCtx := make(map[string]*ContextConfig, len(old.Contexts))
	for i := range old.Contexts {
		oldCtx[old.Contexts[i].Name] = &old.Contexts[i]
	}
	newCtx := make(map[string]*ContextConfig, len(new.Contexts))
	for i := range new.Contexts {
		newCtx[new.Contexts[i].Name] = &new.Contexts[i]
	}

	for name, o := range oldCtx {
		n, exists := newCtx[name]
		if !exists {
			d.ContextChanges = append(d.ContextChanges, ContextDiff{Name: name, Removed: true})
			d.ContextsChanged = true
			continue
		}
		cd := diffContext(name, o, n)
		if cd.SystemPromptChanged || cd.VoiceChanged || cd.ProviderChanged {
			d.ContextChanges = append(d.ContextChanges, cd)
			d.ContextsChanged = true
		}
	}

	for name := range newCtx {
		if _, exists := oldCtx[name]; !exists {
			d.ContextChanges = append(d.ContextChanges, ContextDiff{Name: name, Added: true})
			d.ContextsChanged = true
		}
	}

	return d
}

// diffContext compares two context configs with the same name.
func diffContext(name string, old, new *ContextConfig) ContextDiff {
	cd := ContextDiff{Name: name}

	if old.SystemPrompt != new.SystemPrompt || old.GreetingTemplate != new.GreetingTemplate {
		cd.SystemPromptChanged = true
	}
	if old.Voice != new.Voice {
		cd.VoiceChanged = true
	}
	if old.ProviderName != new.ProviderName || old.AudioProfileName != new.AudioProfileName {
		cd.ProviderChanged = true
	}

	return cd
}

// toolsEqual reports whether two tool declaration lists are equal regardless
// of ordering, comparing by name.
func toolsEqual(old, new []ToolDeclaration) bool {
	if len(old) != len(new) {
		return false
	}
	byName := make(map[string]ToolDeclaration, len(old))
	for _, t := range old {
		byName[t.Name] = t
	}
	for _, t := range new {
		prev, ok := byName[t.Name]
		if !ok || !toolEqual(prev, t) {
			return false
		}
	}
	return true
}

// toolEqual compares the fields relevant to in-flight behaviour; map/slice
// fields are compared by length and pairwise content since ToolDeclaration is
// not comparable with ==.
func toolEqual(a, b ToolDeclaration) bool {
	if a.Name != b.Name || a.Phase != b.Phase || a.Description != b.Description ||
		a.URL != b.URL || a.Method != b.Method || a.Payload != b.Payload ||
		a.Idempotent != b.Idempotent || a.Global != b.Global ||
		a.GenerateSummary != b.GenerateSummary || a.SummaryMaxWords != b.SummaryMaxWords ||
		a.TimeoutMs != b.TimeoutMs {
		return false
	}
	if len(a.Headers) != len(b.Headers) {
		return false
	}
	for k, v := range a.Headers {
		if b.Headers[k] != v {
			return false
		}
	}
	if len(a.OutputVariables) != len(b.OutputVariables) {
		return false
	}
	for i, v := range a.OutputVariables {
		if b.OutputVariables[i] != v {
			return false
		}
	}
	return true
}

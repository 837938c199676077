package tools

import (
	"fmt"
	"sync"
)

// Registry holds every registered tool, keyed by name. Safe for concurrent
// use: registration typically happens once at startup or on config
// hot-reload, while lookups happen continuously per call.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Definition)}
}

// Register adds or replaces a tool definition.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tools: definition must have a non-empty name")
	}
	if def.Handler == nil {
		return fmt.Errorf("tools: %q must have a non-nil handler", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = def
	return nil
}

// Lookup returns the named tool and whether it was found.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// ByPhase returns every registered tool valid for the given phase.
func (r *Registry) ByPhase(phase Phase) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Definition
	for _, d := range r.tools {
		if d.hasPhase(phase) {
			out = append(out, d)
		}
	}
	return out
}

// PreCallSet resolves the collected pre-call tool set for a context:
// (global pre-call tools not opted out) union (the context's explicit list).
func (r *Registry) PreCallSet(contextExplicit []string, optedOutGlobals map[string]bool) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []Definition

	for _, d := range r.tools {
		if !d.hasPhase(PhasePreCall) {
			continue
		}
		if d.IsGlobal && !optedOutGlobals[d.Name] {
			if !seen[d.Name] {
				seen[d.Name] = true
				out = append(out, d)
			}
		}
	}
	for _, name := range contextExplicit {
		if d, ok := r.tools[name]; ok && d.hasPhase(PhasePreCall) && !seen[name] {
			seen[name] = true
			out = append(out, d)
		}
	}
	return out
}

// PostCallSet resolves the collected post-call tool set, mirroring
// PreCallSet's global-union-explicit rule.
func (r *Registry) PostCallSet(contextExplicit []string, optedOutGlobals map[string]bool) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []Definition

	for _, d := range r.tools {
		if !d.hasPhase(PhasePostCall) {
			continue
		}
		if d.IsGlobal && !optedOutGlobals[d.Name] {
			if !seen[d.Name] {
				seen[d.Name] = true
				out = append(out, d)
			}
		}
	}
	for _, name := range contextExplicit {
		if d, ok := r.tools[name]; ok && d.hasPhase(PhasePostCall) && !seen[name] {
			seen[name] = true
			out = append(out, d)
		}
	}
	return out
}

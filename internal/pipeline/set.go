package pipeline

import "sync/atomic"

// Set holds the current name->Orchestrator mapping behind an atomic
// pointer. A configuration reload builds a new map and calls Swap; in-flight
// calls that already captured a *Orchestrator via Get continue unaffected,
// and an unused former Orchestrator is simply garbage collected once its
// last caller finishes — lazy teardown, no explicit Close path needed since
// Orchestrator holds no resources of its own beyond provider references.
type Set struct {
	ptr atomic.Pointer[map[string]*Orchestrator]
}

// NewSet builds a Set from an initial name->Orchestrator mapping.
func NewSet(initial map[string]*Orchestrator) *Set {
	s := &Set{}
	m := make(map[string]*Orchestrator, len(initial))
	for k, v := range initial {
		m[k] = v
	}
	s.ptr.Store(&m)
	return s
}

// Get returns the named pipeline's Orchestrator as of this call. A call that
// captures the returned pointer keeps running against it even if Swap is
// called concurrently.
func (s *Set) Get(name string) (*Orchestrator, bool) {
	m := s.ptr.Load()
	if m == nil {
		return nil, false
	}
	o, ok := (*m)[name]
	return o, ok
}

// Swap atomically replaces the entire pipeline set.
func (s *Set) Swap(next map[string]*Orchestrator) {
	m := make(map[string]*Orchestrator, len(next))
	for k, v := range next {
		m[k] = v
	}
	s.ptr.Store(&m)
}

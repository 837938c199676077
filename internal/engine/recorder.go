// Package engine implements the Call Engine: the per-call lifecycle that
// answers or originates a channel, resolves its context, opens a media
// transport, negotiates a TransportPlan, runs pre-call tools, starts either
// provider variant, drives the conversation until hangup, and tears
// everything down.
//
// Its overall shape follows internal/agent/orchestrator.Orchestrator: one
// long-lived object wiring several subsystems together behind a small set
// of entrypoints, generalized from that single Discord-guild-scoped
// orchestrator to one instance managing many concurrent calls, each handled
// by its own goroutine and its own session.CallSession.
package engine

import "github.com/corvidlabs/voxcore/internal/session"

// CallRecorder persists a completed call's immutable record. internal/history's
// recorder satisfies this; the interface lives here so the Call Engine
// depends only on the narrow surface it needs, not on the storage package.
type CallRecorder interface {
	RecordCall(record session.CallRecord) error
}

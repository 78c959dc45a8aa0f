// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"supplier_dispute_backend/internal/disputes/report"
	"supplier_dispute_backend/platform/events"
	"supplier_dispute_backend/platform/logger"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Dispute Run Events
// =============================================================================

// RunCompleted is published when a dispute run has produced its report,
// including runs that were aborted.
type RunCompleted struct {
	BaseEvent
	Report *report.RunReport `json:"report"`
}

func (e RunCompleted) EventName() string { return "disputes.run.completed" }

// RunAborted is published as soon as a fatal error stops dispatching.
type RunAborted struct {
	BaseEvent
	RunID  string `json:"runId"`
	Reason string `json:"reason"`
}

func (e RunAborted) EventName() string { return "disputes.run.aborted" }

// Package events defines the domain events raised by the lead workflow.
// The bus itself lives in platform/events.
package events

import (
	platformevents "leadcrm_backend/platform/events"
	"leadcrm_backend/platform/logger"
)

type (
	Event       = platformevents.Event
	Bus         = platformevents.Bus
	Handler     = platformevents.Handler
	HandlerFunc = platformevents.HandlerFunc
	BaseEvent   = platformevents.BaseEvent
	InMemoryBus = platformevents.InMemoryBus
)

var NewBaseEvent = platformevents.NewBaseEvent

// NewInMemoryBus creates the process-local bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}

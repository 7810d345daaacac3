// Package events defines the charger activity broadcast on the in-process
// event bus. The MQTT publisher mirrors these events to the broker.
package events

import (
	"time"

	"github.com/kilianp07/dobi/core/model"
	"github.com/kilianp07/dobi/internal/eventbus"
)

// Kind classifies a ChargerEvent.
type Kind string

const (
	KindCreated Kind = "created"
	KindDeposit Kind = "deposit"
	KindAction  Kind = "action"
	KindStatus  Kind = "status"
)

// ChargerEvent is published after a change has been persisted.
type ChargerEvent struct {
	Kind      Kind          `json:"kind"`
	ChargerID string        `json:"charger_id"`
	Message   string        `json:"message,omitempty"`
	Status    model.Status  `json:"status,omitempty"`
	Totals    *model.Totals `json:"totals,omitempty"`
	Time      time.Time     `json:"time"`
}

// Bus carries ChargerEvents.
type Bus = eventbus.TypedBus[ChargerEvent]

// NewBus returns an empty bus.
func NewBus() *Bus { return eventbus.NewTyped[ChargerEvent]() }

// Publish is a nil-safe shorthand.
func Publish(b *Bus, ev ChargerEvent) {
	if b != nil {
		b.Publish(ev)
	}
}

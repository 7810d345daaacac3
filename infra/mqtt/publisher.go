package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/dobi/core/events"
	coremqtt "github.com/kilianp07/dobi/core/mqtt"
	"github.com/kilianp07/dobi/infra/logger"
)

// EventPublisher mirrors charger events to <prefix>/chargers/<id>/events.
type EventPublisher struct {
	pub    coremqtt.Publisher
	prefix string
	log    logger.Logger
}

// NewEventPublisher returns a publisher writing through pub.
func NewEventPublisher(pub coremqtt.Publisher, prefix string) *EventPublisher {
	return &EventPublisher{pub: pub, prefix: prefix, log: logger.New("mqtt_events")}
}

// Topic returns the topic an event is published on.
func (p *EventPublisher) Topic(ev events.ChargerEvent) string {
	return fmt.Sprintf("%s/chargers/%s/events", p.prefix, ev.ChargerID)
}

// Publish encodes ev as JSON and sends it.
func (p *EventPublisher) Publish(ev events.ChargerEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.pub.Publish(p.Topic(ev), payload)
}

// Run forwards events from bus until ctx is done or the bus is closed.
// Publish failures are logged and the event is dropped.
func (p *EventPublisher) Run(ctx context.Context, bus *events.Bus) {
	sub := bus.SubscribeBuffered(64)
	defer bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := p.Publish(ev); err != nil {
				p.log.Warnf("publish %s event for %s: %v", ev.Kind, ev.ChargerID, err)
			}
		}
	}
}

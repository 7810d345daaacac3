package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kilianp07/dobi/core/events"
	"github.com/kilianp07/dobi/core/model"
)

type message struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	fail bool
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker down")
	}
	f.msgs = append(f.msgs, message{topic, payload})
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestEventPublisherEncodesEvent(t *testing.T) {
	fp := &fakePublisher{}
	p := NewEventPublisher(fp, "dobi")
	ev := events.ChargerEvent{
		Kind:      events.KindStatus,
		ChargerID: "C1",
		Status:    model.StatusActive,
		Time:      time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
	}
	if err := p.Publish(ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fp.msgs) != 1 || fp.msgs[0].topic != "dobi/chargers/C1/events" {
		t.Fatalf("unexpected messages: %+v", fp.msgs)
	}
	var got events.ChargerEvent
	if err := json.Unmarshal(fp.msgs[0].payload, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != events.KindStatus || got.Status != model.StatusActive || !got.Time.Equal(ev.Time) {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestEventPublisherRunForwardsUntilCancelled(t *testing.T) {
	fp := &fakePublisher{}
	p := NewEventPublisher(fp, "dobi")
	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, bus)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for fp.count() < 2 && time.Now().Before(deadline) {
		bus.Publish(events.ChargerEvent{Kind: events.KindAction, ChargerID: "C1", Message: "Charger turned on"})
		time.Sleep(10 * time.Millisecond)
	}
	if fp.count() < 2 {
		t.Fatalf("events not forwarded")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop")
	}
}

func TestEventPublisherSurvivesFailures(t *testing.T) {
	fp := &fakePublisher{fail: true}
	p := NewEventPublisher(fp, "dobi")
	bus := events.NewBus()
	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), bus)
		close(done)
	}()
	bus.Publish(events.ChargerEvent{Kind: events.KindDeposit, ChargerID: "C1"})
	time.Sleep(20 * time.Millisecond)
	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop on bus close")
	}
}

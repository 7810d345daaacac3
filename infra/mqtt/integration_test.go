package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/dobi/core/events"
	"github.com/kilianp07/dobi/internal/testutil"
)

func TestEventPublisherWithMosquitto(t *testing.T) {
	if testing.Short() {
		t.Skip("container test skipped in short mode")
	}
	ctx := context.Background()
	broker, cleanup, err := testutil.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("mosquitto unavailable: %v", err)
	}
	defer cleanup()

	received := make(chan paho.Message, 4)
	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("observer"))
	if tok := sub.Connect(); tok.Wait() && tok.Error() != nil {
		t.Fatalf("observer connect: %v", tok.Error())
	}
	defer sub.Disconnect(100)
	if tok := sub.Subscribe("dobi/chargers/+/events", 1, func(_ paho.Client, m paho.Message) {
		received <- m
	}); tok.Wait() && tok.Error() != nil {
		t.Fatalf("subscribe: %v", tok.Error())
	}

	cfg := Config{Enabled: true, Broker: broker, QoS: 1}
	cfg.SetDefaults()
	cli, err := NewPahoClient(cfg)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer cli.Disconnect()

	pub := NewEventPublisher(cli, cfg.TopicPrefix)
	if err := pub.Publish(events.ChargerEvent{Kind: events.KindDeposit, ChargerID: "C7", Message: "completed deposit (simulated)"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case m := <-received:
		if m.Topic() != "dobi/chargers/C7/events" {
			t.Fatalf("unexpected topic %s", m.Topic())
		}
		var ev events.ChargerEvent
		if err := json.Unmarshal(m.Payload(), &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Message != "completed deposit (simulated)" {
			t.Fatalf("unexpected payload %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no message received")
	}
}

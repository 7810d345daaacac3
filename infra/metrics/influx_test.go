package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/shopspring/decimal"

	coremetrics "github.com/kilianp07/dobi/core/metrics"
)

func capture(t *testing.T) (*httptest.Server, *string) {
	t.Helper()
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, &body
}

func TestInfluxSink_RecordDeposit(t *testing.T) {
	srv, body := capture(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()

	err := sink.RecordDeposit(coremetrics.DepositEvent{
		ChargerID: "C1",
		Kind:      coremetrics.DepositManual,
		Amount:    decimal.RequireFromString("0.5"),
		Cost:      decimal.RequireFromString("0.2"),
		Balance:   decimal.RequireFromString("0.3"),
		TxRef:     "simulated",
		Time:      now,
	})
	if err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("deposit").
		AddTag("charger_id", "C1").
		AddTag("kind", "manual").
		AddTag("onchain", "false").
		AddField("amount_eth", 0.5).
		AddField("cost_eth", 0.2).
		AddField("balance_eth", 0.3).
		AddField("tx_ref", "simulated").
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if strings.TrimSpace(*body) != expected {
		t.Errorf("unexpected body: %s", *body)
	}
}

func TestInfluxSink_RecordFire(t *testing.T) {
	srv, body := capture(t)
	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()

	if err := sink.RecordFire(coremetrics.FireEvent{ChargerID: "C2", Outcome: "skipped", Reason: "daily cap reached", Time: now}); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("scheduler_fire").
		AddTag("charger_id", "C2").
		AddTag("outcome", "skipped").
		AddField("reason", "daily cap reached").
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if strings.TrimSpace(*body) != expected {
		t.Errorf("unexpected body: %s", *body)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}

package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/dobi/core/metrics"
	"github.com/kilianp07/dobi/infra/logger"
)

// InfluxSink writes charger activity to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordDeposit writes one "deposit" point.
func (s *InfluxSink) RecordDeposit(ev coremetrics.DepositEvent) error {
	p := write.NewPointWithMeasurement("deposit").
		AddTag("charger_id", ev.ChargerID).
		AddTag("kind", string(ev.Kind)).
		AddTag("onchain", strconv.FormatBool(ev.OnChain)).
		AddField("amount_eth", round6(ev.Amount.InexactFloat64())).
		AddField("cost_eth", round6(ev.Cost.InexactFloat64())).
		AddField("balance_eth", round6(ev.Balance.InexactFloat64())).
		AddField("tx_ref", ev.TxRef).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordFire writes one "scheduler_fire" point.
func (s *InfluxSink) RecordFire(ev coremetrics.FireEvent) error {
	p := write.NewPointWithMeasurement("scheduler_fire").
		AddTag("charger_id", ev.ChargerID).
		AddTag("outcome", ev.Outcome).
		AddField("reason", ev.Reason).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordAction writes one "charger_action" point.
func (s *InfluxSink) RecordAction(ev coremetrics.ActionEvent) error {
	p := write.NewPointWithMeasurement("charger_action").
		AddTag("charger_id", ev.ChargerID).
		AddTag("action", ev.Action).
		AddField("success", ev.Success).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordFleet writes one "fleet_snapshot" point.
func (s *InfluxSink) RecordFleet(ev coremetrics.FleetEvent) error {
	p := write.NewPointWithMeasurement("fleet_snapshot").
		AddField("total", ev.Total).
		AddField("active", ev.Active).
		AddField("planned", ev.Planned).
		SetTime(ev.Time)
	return s.write(p)
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}

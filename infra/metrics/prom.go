package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/dobi/core/metrics"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "dobi"

// PromSink exposes charger activity as Prometheus metrics.
type PromSink struct {
	deposits *prometheus.CounterVec
	volume   *prometheus.CounterVec
	balance  *prometheus.GaugeVec
	fires    *prometheus.CounterVec
	actions  *prometheus.CounterVec
	fleet    *prometheus.GaugeVec
}

// NewPromSink registers the charger metrics on the default registerer. The
// /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(DefaultNamespace, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(namespace string, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	s := &PromSink{
		deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposits_total",
			Help:      "Deposits applied to chargers",
		}, []string{"charger_id", "kind"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposit_eth_total",
			Help:      "ETH deposited, by deposit kind",
		}, []string{"kind"}),
		balance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "charger_balance_eth",
			Help:      "Booked balance of each charger after its latest deposit",
		}, []string{"charger_id"}),
		fires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_fires_total",
			Help:      "Scheduled fire attempts by outcome",
		}, []string{"outcome", "reason"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Charger actions by name and success",
		}, []string{"action", "success"}),
		fleet: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fleet_chargers",
			Help:      "Fleet size after the latest sweep or reset",
		}, []string{"state"}),
	}

	var err error
	if s.deposits, err = register(reg, s.deposits); err != nil {
		return nil, err
	}
	if s.volume, err = register(reg, s.volume); err != nil {
		return nil, err
	}
	if s.balance, err = register(reg, s.balance); err != nil {
		return nil, err
	}
	if s.fires, err = register(reg, s.fires); err != nil {
		return nil, err
	}
	if s.actions, err = register(reg, s.actions); err != nil {
		return nil, err
	}
	if s.fleet, err = register(reg, s.fleet); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when c was registered
// before, so several sinks can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(C), nil
		}
		return c, err
	}
	return c, nil
}

// RecordDeposit counts the deposit and updates the charger balance gauge.
func (s *PromSink) RecordDeposit(ev coremetrics.DepositEvent) error {
	s.deposits.WithLabelValues(ev.ChargerID, string(ev.Kind)).Inc()
	s.volume.WithLabelValues(string(ev.Kind)).Add(ev.Amount.InexactFloat64())
	s.balance.WithLabelValues(ev.ChargerID).Set(ev.Balance.InexactFloat64())
	return nil
}

// RecordFire counts a scheduler outcome.
func (s *PromSink) RecordFire(ev coremetrics.FireEvent) error {
	s.fires.WithLabelValues(ev.Outcome, ev.Reason).Inc()
	return nil
}

// RecordAction counts an executed action.
func (s *PromSink) RecordAction(ev coremetrics.ActionEvent) error {
	s.actions.WithLabelValues(ev.Action, strconv.FormatBool(ev.Success)).Inc()
	return nil
}

// RecordFleet sets the fleet gauges.
func (s *PromSink) RecordFleet(ev coremetrics.FleetEvent) error {
	s.fleet.WithLabelValues("total").Set(float64(ev.Total))
	s.fleet.WithLabelValues("active").Set(float64(ev.Active))
	s.fleet.WithLabelValues("planned").Set(float64(ev.Planned))
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kilianp07/dobi/api"
	"github.com/kilianp07/dobi/api/chargers"
	"github.com/kilianp07/dobi/config"
	"github.com/kilianp07/dobi/core/actions"
	corechain "github.com/kilianp07/dobi/core/chain"
	"github.com/kilianp07/dobi/core/clock"
	"github.com/kilianp07/dobi/core/economics"
	"github.com/kilianp07/dobi/core/events"
	coremetrics "github.com/kilianp07/dobi/core/metrics"
	"github.com/kilianp07/dobi/core/monitoring"
	"github.com/kilianp07/dobi/core/registry"
	"github.com/kilianp07/dobi/core/scheduler"
	infrachain "github.com/kilianp07/dobi/infra/chain"
	"github.com/kilianp07/dobi/infra/logger"
	"github.com/kilianp07/dobi/infra/metrics"
	inframon "github.com/kilianp07/dobi/infra/monitoring"
	"github.com/kilianp07/dobi/infra/mqtt"
	"github.com/kilianp07/dobi/infra/store"
	"github.com/kilianp07/dobi/internal/keylock"
)

// Service wires the ledger, the chain collaborator, the scheduler and the
// HTTP API.
type Service struct {
	cfg *config.Config

	Store     *store.SQLiteStore
	Chain     corechain.Chain
	Scheduler *scheduler.Scheduler
	Registry  *registry.Registry
	Actions   *actions.Executor

	handler  http.Handler
	bus      *events.Bus
	sink     coremetrics.MetricsSink
	mqtt     *mqtt.PahoClient
	closeRPC func()
	logFile  io.Closer
	log      logger.Logger
}

// New builds a Service from the configuration. ctx bounds the initial RPC
// dial only.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	if !logger.SetLevel(cfg.Logging.Level) {
		return nil, fmt.Errorf("unknown log level %q", cfg.Logging.Level)
	}
	logFile, err := logger.SetFile(logger.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}
	log := logger.New("service")

	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	monitoring.Init(mon)
	monitoring.SetLogger(logger.New("monitoring"))

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	svc := &Service{cfg: cfg, Store: st, sink: sink, bus: events.NewBus(), logFile: logFile, log: log}
	if err := svc.dialChain(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	clk := clock.Real{}
	locks := keylock.New()
	engine := economics.New(economics.Deps{
		Store:   st,
		Locks:   locks,
		Chain:   svc.Chain,
		OnChain: cfg.Chain.SendOnchain,
		Clock:   clk,
		Sink:    sink,
		Events:  svc.bus,
		Log:     logger.New("economics"),
	})
	sc := scheduler.Config{
		WindowStart:   cfg.Simulation.WindowStart,
		WindowEnd:     cfg.Simulation.WindowEnd,
		MaxDaily:      cfg.Simulation.MaxDailyCharges,
		MinTx:         cfg.Simulation.MinTx(),
		MaxTx:         cfg.Simulation.MaxTx(),
		FlipInterval:  cfg.Simulation.FlipInterval(),
		ResetInterval: cfg.Simulation.ResetInterval(),
	}
	if err := sc.Validate(); err != nil {
		svc.Close()
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	svc.Scheduler = scheduler.New(sc, scheduler.Deps{
		Store:  st,
		Engine: engine,
		Locks:  locks,
		Clock:  clk,
		Sink:   sink,
		Events: svc.bus,
		Log:    logger.New("scheduler"),
	})
	svc.Actions = actions.New(actions.Deps{
		Store:        st,
		Locks:        locks,
		Engine:       engine,
		Planner:      svc.Scheduler,
		Chain:        svc.Chain,
		OnChain:      cfg.Chain.SendOnchain,
		Operator:     cfg.Chain.OperatorAddress,
		GasBuffer:    cfg.Chain.GasBuffer(),
		RestartDelay: cfg.Simulation.RestartDelay(),
		Clock:        clk,
		Sink:         sink,
		Events:       svc.bus,
		Log:          logger.New("actions"),
	})
	svc.Registry = registry.New(st, svc.Chain, svc.Scheduler, svc.bus, clk, logger.New("registry"))

	h := &chargers.Handler{
		Store:        st,
		Registry:     svc.Registry,
		Actions:      svc.Actions,
		Schedule:     svc.Scheduler,
		Chain:        svc.Chain,
		OnChain:      cfg.Chain.SendOnchain,
		HistoryLimit: cfg.Chain.HistoryLimit,
		Clock:        clk,
		Log:          logger.New("api"),
	}
	svc.handler = api.NewRouter(h, api.Options{
		Token:       cfg.Server.APIToken,
		CORSOrigins: cfg.Server.CORSOrigins,
		Log:         logger.New("http"),
	})

	if cfg.MQTT.Enabled {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.mqtt = client
	}
	return svc, nil
}

// dialChain selects the JSON-RPC backend when an endpoint is configured and
// the in-process ledger otherwise.
func (s *Service) dialChain(ctx context.Context) error {
	cc := s.cfg.Chain
	if cc.RPCURL == "" {
		master := ""
		if cc.MasterPrivateKey != "" {
			key, err := infrachain.ParseKey(cc.MasterPrivateKey)
			if err != nil {
				return fmt.Errorf("master key: %w", err)
			}
			master = infrachain.AddressOf(key).Hex()
		}
		s.Chain = infrachain.NewOffline(master)
		s.log.Infof("no rpc_url configured, using the offline chain")
		return nil
	}
	ec, err := infrachain.Dial(ctx, infrachain.Options{
		RPCURL:         cc.RPCURL,
		MasterKey:      cc.MasterPrivateKey,
		ReceiptTimeout: cc.ReceiptTimeout(),
		HistoryBlocks:  cc.HistoryBlocks,
		Log:            logger.New("chain"),
	})
	if err != nil {
		return err
	}
	s.Chain = ec
	s.closeRPC = ec.Close
	return nil
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler { return s.handler }

// Seed registers the chargers listed in the configured seed file. Entries
// that fail are skipped and returned joined in the error.
func (s *Service) Seed(ctx context.Context) (int, error) {
	reqs, err := LoadSeed(s.cfg.Simulation.SeedFile)
	if err != nil {
		return 0, err
	}
	if len(reqs) == 0 {
		return 0, nil
	}
	n, err := s.Registry.Seed(ctx, reqs)
	s.log.Infof("seeded %d of %d chargers from %s", n, len(reqs), s.cfg.Simulation.SeedFile)
	return n, err
}

// Run seeds the ledger, starts the scheduler and serves the API until ctx
// is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.Seed(ctx); err != nil {
		s.log.Warnf("seed finished with failures: %v", err)
	}
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer s.Scheduler.Stop()

	if s.cfg.Metrics.Has("prometheus") && s.cfg.Metrics.PrometheusAddr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.mqtt != nil {
		pub := mqtt.NewEventPublisher(s.mqtt, s.cfg.MQTT.TopicPrefix)
		go pub.Run(ctx, s.bus)
	}

	srv := &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.closeRPC != nil {
		s.closeRPC()
	}
	monitoring.Flush(2 * time.Second)
	var err error
	if s.Store != nil {
		err = s.Store.Close()
	}
	if s.logFile != nil {
		err = errors.Join(err, s.logFile.Close())
	}
	return err
}

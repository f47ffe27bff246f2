// Command placer runs one predictive leader-placement cycle on
// the local etcd member. It exits after a migration attempt or
// when the tick cap is reached. A supervisor is expected to
// restart it.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrife/placement/cluster"
	"github.com/jrife/placement/config"
	"github.com/jrife/placement/controllers"
	"github.com/jrife/placement/cost"
	"github.com/jrife/placement/decisionlog"
	"github.com/jrife/placement/forecast"
	"github.com/jrife/placement/metrics"
	"github.com/jrife/placement/migration"
	"github.com/jrife/placement/projector"
	"github.com/jrife/placement/reload"
	"github.com/jrife/placement/storage/sink"
	"github.com/jrife/placement/storage/sink/plugins"
	"github.com/jrife/placement/topology"
	"github.com/jrife/placement/transport"
	"github.com/jrife/placement/utils/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()

	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())

		return 2
	}

	logger, err := newLogger(cfg.Debug)

	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())

		return 2
	}

	defer logger.Sync()

	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.Short()
	logger = logger.With(zap.String("run", runID))

	self := cfg.SelfAddress

	if self == "" {
		if self, err = config.DetectSelfAddress(); err != nil {
			logger.Error("could not determine local address", zap.Error(err))

			return 2
		}
	}

	topo, err := topology.Load(cfg.TopologyPath)

	if err != nil {
		logger.Error("could not load topology", zap.String("path", cfg.TopologyPath), zap.Error(err))

		return 2
	}

	decisionSink, err := openSink(cfg.Sink, cfg.DecisionLogPath)

	if err != nil {
		logger.Error("could not open decision log", zap.Error(err))

		return 2
	}

	defer decisionSink.Close()

	metricsSink, err := openSink(cfg.Sink, cfg.MetricsLogPath)

	if err != nil {
		logger.Error("could not open metrics log", zap.Error(err))

		return 2
	}

	defer metricsSink.Close()

	var recorder metrics.Recorder = metrics.NewNop()

	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		recorder = metrics.NewPrometheus(registry, "")
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics listener stopped", zap.Error(err))
			}
		}()

		defer server.Close()
	}

	artifacts := forecast.Artifacts{Model: cfg.ModelPath, Scaler: cfg.ScalerPath, Meta: cfg.MetaPath}
	build := func() (forecast.Forecaster, error) {
		return forecast.NewExecForecaster(forecast.ExecConfig{
			Logger:    logger,
			Command:   cfg.PredictorCommand,
			Artifacts: artifacts,
		})
	}

	holder := reload.NewHolder(nil)
	watcher := reload.NewWatcher(artifacts.Paths(), cfg.Fingerprint)
	reloader := reload.NewManager(reload.ManagerConfig{
		Logger:      logger,
		Holder:      holder,
		Build:       build,
		Fingerprint: watcher.Signature,
		Interval:    cfg.PollInterval,
		Debounce:    cfg.Debounce,
		Recorder:    recorder,
	})

	etcd := cluster.NewEtcdController(cluster.EtcdConfig{Logger: logger})
	executor := migration.New(migration.Config{
		Logger:             logger,
		Identities:         topo,
		Copier:             newCopier(cfg, logger),
		Controller:         etcd,
		ClientPort:         cfg.ClientPort,
		SnapshotPath:       cfg.SnapshotPath,
		RemoteSnapshotPath: cfg.RemoteSnapshotPath,
	})

	checkLeader(ctx, logger, etcd, topo, executor.Endpoint(self))

	controller := controllers.NewPlacementController(controllers.PlacementConfig{
		Logger:       logger,
		Self:         self,
		HistoryPath:  cfg.HistoryPath,
		HistoryRows:  cfg.HistoryRows,
		FixedStep:    cfg.FixedStep,
		TickInterval: cfg.TickInterval,
		MaxTicks:     cfg.MaxTicks,
		InitBackoff:  cfg.InitBackoff,
		Build:        build,
		Holder:       holder,
		Reloader:     reloader,
		Projector:    projector.New(projector.Config{Logger: logger, Resolver: topo}),
		Latencies:    topo.Latencies(),
		Scorer:       cost.New(cost.ModelConfig{Logger: logger, Variant: cfg.CostVariant}),
		Decisions:    decisionlog.New(decisionlog.Config{Logger: logger, Sink: decisionSink}),
		Executor:     executor,
		Metrics:      metrics.NewWriter(metrics.WriterConfig{Logger: logger, Sink: metricsSink}),
		Recorder:     recorder,
	})

	report := controller.Run(ctx)

	logger.Info("run finished",
		zap.Stringer("outcome", report.Outcome),
		zap.Int("rounds", report.Rounds),
		zap.Duration("active", report.Active),
		zap.String("target", report.Target),
	)

	if report.Outcome == controllers.OutcomeMigrationFailed {
		return 1
	}

	return 0
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}

func openSink(driver string, path string) (sink.Sink, error) {
	plugin := plugins.Plugin(driver)

	if plugin == nil {
		return nil, fmt.Errorf("no sink plugin named %s", driver)
	}

	return plugin.NewSink(sink.PluginOptions{"path": path})
}

func newCopier(cfg config.Config, logger *zap.Logger) transport.Copier {
	if cfg.Transport == "local" {
		return &transport.Local{Root: cfg.LocalRoot}
	}

	return transport.NewSCP(transport.SCPConfig{
		Logger:       logger,
		User:         cfg.SCPUser,
		Port:         cfg.SCPPort,
		IdentityFile: cfg.SCPKey,
	})
}

// checkLeader warns when the local member is not the leader.
// Transfers are issued against the local endpoint, so they
// only succeed while it leads.
func checkLeader(ctx context.Context, logger *zap.Logger, etcd *cluster.EtcdController, topo *topology.Topology, selfEndpoint string) {
	endpoints := topo.MemberEndpoints()

	if len(endpoints) == 0 {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	leader, err := etcd.LeaderEndpoint(probeCtx, endpoints)

	if err != nil {
		logger.Warn("could not determine the current leader", zap.Error(err))

		return
	}

	if leader != selfEndpoint {
		logger.Warn("local member is not the leader, migrations will fail", zap.String("leader", leader), zap.String("self", selfEndpoint))

		return
	}

	logger.Info("local member is the leader", zap.String("leader", leader))
}

package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/jrife/placement/decisionlog"
	"github.com/jrife/placement/forecast"
	"github.com/jrife/placement/metrics"
	"github.com/jrife/placement/reload"
	"github.com/jrife/placement/replica"
	"github.com/jrife/placement/utils/log"
	"go.uber.org/zap"
)

// PlacementConfig contains configuration
// for a PlacementController
type PlacementConfig struct {
	Logger *zap.Logger
	// Self is the address of the local replica, which is
	// assumed to hold leadership while the run lasts
	Self string
	// HistoryPath is the load history handed to the forecaster
	HistoryPath string
	HistoryRows int
	// FixedStep spaces forecast timestamps. 0 infers the step
	// from the history.
	FixedStep    time.Duration
	TickInterval time.Duration
	// MaxTicks ends the run after this many ticks without a
	// migration. 0 means no cap.
	MaxTicks    int
	InitBackoff time.Duration
	// Build constructs a forecaster from the current artifacts
	Build  forecast.Builder
	Holder *reload.Holder
	// Reloader is started once the first forecaster exists
	Reloader  Reloader
	Projector Projector
	Latencies replica.Latencies
	Scorer    Scorer
	Decisions DecisionLog
	Executor  Executor
	Metrics   MetricsWriter
	Recorder  metrics.Recorder
	// Now defaults to time.Now
	Now func() time.Time
}

// PlacementController runs the placement control loop
type PlacementController struct {
	config PlacementConfig
	logger *zap.Logger
}

// NewPlacementController creates a placement controller
func NewPlacementController(config PlacementConfig) *PlacementController {
	controller := &PlacementController{config: config, logger: config.Logger}

	if controller.logger == nil {
		controller.logger = zap.L()
	}

	if controller.config.Holder == nil {
		controller.config.Holder = reload.NewHolder(nil)
	}

	if controller.config.Recorder == nil {
		controller.config.Recorder = metrics.NewNop()
	}

	if controller.config.Now == nil {
		controller.config.Now = time.Now
	}

	controller.logger = controller.logger.With(zap.String("component", "controller"), zap.String("self", config.Self))

	return controller
}

// Run runs the loop until a migration is attempted, the tick
// cap is reached or ctx is cancelled. Buffered keep decisions
// are flushed before Run returns.
func (controller *PlacementController) Run(ctx context.Context) Report {
	logger := controller.logger
	report := Report{}

	if !controller.init(ctx, logger) {
		logger.Info("cancelled during init")

		return report
	}

	if controller.config.Reloader != nil {
		controller.config.Reloader.Start(ctx)
		defer controller.config.Reloader.Stop()
	}

	for tick := 1; ; tick++ {
		if ctx.Err() != nil {
			controller.flush(logger)
			logger.Info("cancelled", zap.Int("rounds", report.Rounds))

			return report
		}

		tickCtx := log.WithTick(ctx, tick)
		start := time.Now()
		decision := controller.evaluate(tickCtx)
		elapsed := time.Since(start)

		report.Rounds = tick
		report.Active += elapsed
		controller.config.Recorder.Tick(elapsed)
		controller.config.Recorder.Decision(decision.Migrate)

		tickLogger := log.WithContext(tickCtx, controller.logger)

		if !decision.Migrate {
			if err := controller.config.Decisions.Record(decision); err != nil {
				tickLogger.Warn("could not record decision", zap.Error(err))
			}

			tickLogger.Info("keep", zap.String("leader", decision.Leader), zap.Duration("active", elapsed))

			if controller.config.MaxTicks > 0 && tick >= controller.config.MaxTicks {
				controller.flush(tickLogger)
				tickLogger.Info("tick cap reached", zap.Int("max_ticks", controller.config.MaxTicks))
				report.Outcome = OutcomeTickCap

				return report
			}

			if !sleep(ctx, controller.config.TickInterval) {
				controller.flush(tickLogger)
				tickLogger.Info("cancelled", zap.Int("rounds", report.Rounds))

				return report
			}

			continue
		}

		report.Target = decision.Leader

		return controller.migrate(tickCtx, tickLogger, decision, report)
	}
}

// init builds the first forecaster, retrying after every
// failure until it succeeds. It returns false only if ctx is
// cancelled first.
func (controller *PlacementController) init(ctx context.Context, logger *zap.Logger) bool {
	if controller.config.Holder.Get() != nil {
		return true
	}

	for attempt := 1; ; attempt++ {
		forecaster, err := controller.config.Build()

		if err == nil && forecaster != nil {
			controller.config.Holder.Set(forecaster)
			logger.Info("forecaster ready", zap.Int("attempt", attempt))

			return true
		}

		if err == nil {
			err = fmt.Errorf("builder returned no forecaster")
		}

		logger.Warn("could not build forecaster, retrying", zap.Int("attempt", attempt), zap.Duration("backoff", controller.config.InitBackoff), zap.Error(err))

		if !sleep(ctx, controller.config.InitBackoff) {
			return false
		}
	}
}

// evaluate turns one tick into a decision. Every failure,
// including a panic, becomes a keep decision.
func (controller *PlacementController) evaluate(ctx context.Context) (decision decisionlog.Decision) {
	logger := log.WithContext(ctx, controller.logger)
	keep := decisionlog.Decision{Timestamp: controller.config.Now(), Leader: controller.config.Self}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("tick panicked, keeping leadership", zap.Any("panic", r))
			decision = keep
		}
	}()

	window, err := controller.config.Holder.Get().Predict(ctx, controller.config.HistoryPath, controller.config.HistoryRows, controller.config.FixedStep)

	if err == nil && window.Empty() {
		err = forecast.ErrEmptyForecast
	}

	if err != nil {
		controller.config.Recorder.ForecastFailure()
		logger.Warn("no usable forecast, keeping leadership", zap.Error(err))

		return keep
	}

	replicas := controller.config.Projector.Project(window)
	view := replica.NewClusterView(replicas, controller.config.Latencies)
	result, ok := controller.config.Scorer.Optimal(view)

	if !ok {
		logger.Info("no feasible leader, keeping leadership", zap.Int("replicas", len(replicas)), zap.Int("quorum", view.Quorum))

		return keep
	}

	logger.Debug("optimal leader", zap.String("leader", result.Leader.Address), zap.Float64("cost", result.Cost))

	if result.Leader.Address == controller.config.Self {
		return keep
	}

	if _, err := controller.config.Executor.Resolve(result.Leader.Address); err != nil {
		logger.Warn("optimal leader is unroutable, keeping leadership", zap.String("leader", result.Leader.Address), zap.Error(err))

		return keep
	}

	return decisionlog.Decision{Timestamp: keep.Timestamp, Leader: result.Leader.Address, Migrate: true}
}

func (controller *PlacementController) migrate(ctx context.Context, logger *zap.Logger, decision decisionlog.Decision, report Report) Report {
	if err := controller.config.Decisions.Record(decision); err != nil {
		logger.Error("could not flush decisions", zap.Error(err))
	}

	logger.Info("migrating leadership", zap.String("target", decision.Leader))

	result, err := controller.config.Executor.Migrate(ctx, controller.config.Self, decision.Leader)
	report.Migration = result
	controller.config.Recorder.Migration(result.Move, err == nil)

	if err != nil {
		report.Outcome = OutcomeMigrationFailed
		report.Err = err
		logger.Error("migration failed, not retrying", zap.String("target", decision.Leader), zap.Error(err))
	} else {
		report.Outcome = OutcomeMigrated
		logger.Info("migration succeeded", zap.String("target", decision.Leader), zap.Duration("move", result.Move))
	}

	if controller.config.Metrics != nil {
		record := metrics.Migration{
			Timestamp: controller.config.Now(),
			Rounds:    report.Rounds,
			Active:    report.Active,
			Move:      result.Move,
		}

		if err := controller.config.Metrics.Write(record); err != nil {
			logger.Warn("could not write migration metrics", zap.Error(err))
		}
	}

	return report
}

func (controller *PlacementController) flush(logger *zap.Logger) {
	if err := controller.config.Decisions.Flush(); err != nil {
		logger.Error("could not flush decisions", zap.Error(err))
	}
}

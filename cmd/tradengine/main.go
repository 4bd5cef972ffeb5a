// Command tradengine is the process entry point for the execution
// pipeline described in spec.md §2/§6: a minimal operational HTTP
// surface (health + manual trigger), optional cron scheduling of
// run(), and graceful shutdown — generalized from the teacher's
// cmd/server/main.go (flag parsing, signal handling, shutdown shape)
// into an fx application.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/alchemiser/tradengine/internal/broker/paper"
	"github.com/alchemiser/tradengine/internal/config"
	"github.com/alchemiser/tradengine/internal/events"
	"github.com/alchemiser/tradengine/internal/execution"
	"github.com/alchemiser/tradengine/internal/model"
	"github.com/alchemiser/tradengine/internal/pipeline"
	"github.com/alchemiser/tradengine/internal/planner"
	"github.com/alchemiser/tradengine/internal/ports"
	"github.com/alchemiser/tradengine/internal/signal"
	"github.com/alchemiser/tradengine/internal/strategy"
	"github.com/alchemiser/tradengine/internal/telemetry"
	"github.com/alchemiser/tradengine/internal/tracker"
	"github.com/alchemiser/tradengine/internal/tracker/store"
)

const (
	appName    = "tradengine"
	appVersion = "v1.0.0"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a directory containing config.yaml")
		version    = flag.Bool("version", false, "Show version information")
		health     = flag.Bool("health", false, "Perform a health check against a running instance")
		runOnce    = flag.Bool("run-once", false, "Execute a single run() and exit with its exit code")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s %s\n", appName, appVersion)
		return
	}
	if *health {
		performHealthCheck()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(3)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(3)
	}
	defer logger.Sync()

	pl, publisher, trk := buildPipeline(cfg, logger)
	defer publisher.Close()

	if err := trk.Load(context.Background()); err != nil {
		logger.Warn("failed to load existing tracker state; starting from empty", zap.Error(err))
	}

	if *runOnce {
		result := pl.Run(context.Background(), "")
		logRunResult(logger, result)
		os.Exit(result.ExitCode())
	}

	app := fx.New(
		fx.Supply(cfg, logger, pl),
		fx.Provide(newGinEngine),
		fx.Invoke(registerHTTPRoutes),
		fx.Invoke(startHTTPServer),
		fx.Invoke(startScheduler),
		fx.NopLogger,
	)
	app.Run()
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.DeploymentMode == "live" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// buildPipeline wires every collaborator the run() entry point needs.
// The Account Port / Market Data Port are explicitly out of scope as
// external collaborators (spec §1) — the in-repo paper broker is the
// deployable default; a real vendor client is swapped in behind the
// same two ports for a live deployment.
func buildPipeline(cfg *config.Config, logger *zap.Logger) (*pipeline.Pipeline, events.RunResultPublisher, *tracker.Tracker) {
	broker := paper.New(decimal.NewFromInt(100000), defaultPriceBook(cfg))
	marketData := ports.NewCachedMarketData(broker, ports.DefaultTTL)

	collector := telemetry.NewCollector(prometheus.DefaultRegisterer)
	eng := execution.NewEngine(broker, marketData, execution.NewDailyLimitBreaker(cfg.DailyTradeLimit()), cfg, logger, execution.WithTelemetry(collector))

	trackerStore := buildTrackerStore(cfg, logger)
	trk := tracker.New(trackerStore, model.StrategyID(cfg.DefaultStrategyID), logger)

	publisher := buildPublisher(cfg, logger)

	strategies := strategy.NewRegistry() // populated by the deployment; strategy internals are out of scope (spec §1).
	agg := signal.New(logger, model.Symbol(cfg.CashProxySymbol), decimal.NewFromFloat(cfg.Capital.MaxPositionWeight))
	rp := planner.New(cfg, logger)

	pl := pipeline.New(cfg, strategies, agg, rp, eng, trk, broker, marketData, publisher, logger)
	pl.SetTelemetry(collector)
	return pl, publisher, trk
}

func defaultPriceBook(cfg *config.Config) map[model.Symbol]decimal.Decimal {
	prices := make(map[model.Symbol]decimal.Decimal, len(cfg.Strategies)+1)
	prices[model.Symbol(cfg.CashProxySymbol)] = decimal.NewFromInt(100)
	return prices
}

func buildTrackerStore(cfg *config.Config, logger *zap.Logger) store.Store {
	if cfg.Persistence.Bucket == "" {
		logger.Warn("no persistence bucket configured; strategy tracker state will not survive a restart")
		return store.NewMemoryStore()
	}
	s3Store, err := store.NewS3Store(context.Background(), cfg.Persistence.Region, cfg.Persistence.Bucket, cfg.Persistence.Prefix)
	if err != nil {
		logger.Warn("failed to initialize S3 tracker store; falling back to in-memory", zap.Error(err))
		return store.NewMemoryStore()
	}
	return s3Store
}

func buildPublisher(cfg *config.Config, logger *zap.Logger) events.RunResultPublisher {
	if !cfg.Events.Enabled {
		return events.NoopPublisher{}
	}
	pub, err := events.NewNatsPublisher(cfg.Events.NatsURL, cfg.Events.Subject, logger)
	if err != nil {
		logger.Warn("failed to initialize NATS event publisher; events disabled for this run", zap.Error(err))
		return events.NoopPublisher{}
	}
	return pub
}

func newGinEngine(logger *zap.Logger) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// registerHTTPRoutes wires the engine's three operational routes: a
// liveness probe, the Prometheus /metrics endpoint, and a manual run()
// trigger, matching the teacher's cmd/server health-endpoint shape.
func registerHTTPRoutes(r *gin.Engine, pl *pipeline.Pipeline, logger *zap.Logger) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": appName, "version": appVersion})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/runs", func(c *gin.Context) {
		var body struct {
			CorrelationID string `json:"correlation_id"`
		}
		_ = c.ShouldBindJSON(&body)

		result := pl.Run(c.Request.Context(), body.CorrelationID)
		logRunResult(logger, result)

		status := http.StatusOK
		if !result.Success {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{
			"success":         result.Success,
			"correlation_id":  result.CorrelationID,
			"orders_executed": len(result.OrdersExecuted),
			"orders_canceled": result.OrdersCanceled,
			"warnings":        result.Warnings,
			"exit_code":       result.ExitCode(),
		})
	})
}

// startHTTPServer runs the gin engine behind an http.Server with
// graceful shutdown tied to the fx lifecycle, mirroring the teacher's
// cmd/server shutdown-timeout handling.
func startHTTPServer(lc fx.Lifecycle, cfg *config.Config, r *gin.Engine, logger *zap.Logger) {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info("starting HTTP server", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// startScheduler registers an optional cron job that invokes run() on
// cfg.Schedule, per spec §2's "typically once per market day" cadence.
// A blank schedule disables this entirely.
func startScheduler(lc fx.Lifecycle, cfg *config.Config, pl *pipeline.Pipeline, logger *zap.Logger) {
	if cfg.Schedule == "" {
		return
	}

	c := cron.New()
	_, err := c.AddFunc(cfg.Schedule, func() {
		result := pl.Run(context.Background(), "")
		logRunResult(logger, result)
	})
	if err != nil {
		logger.Error("invalid schedule expression; scheduled runs disabled", zap.String("schedule", cfg.Schedule), zap.Error(err))
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting scheduler", zap.String("schedule", cfg.Schedule))
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopCtx := c.Stop()
			select {
			case <-stopCtx.Done():
			case <-time.After(5 * time.Second):
			}
			return nil
		},
	})
}

func logRunResult(logger *zap.Logger, result model.TradeRunResult) {
	fields := []zap.Field{
		zap.String("correlation_id", result.CorrelationID),
		zap.Bool("success", result.Success),
		zap.Int("orders_executed", len(result.OrdersExecuted)),
		zap.Int("orders_canceled", result.OrdersCanceled),
		zap.Duration("duration", result.CompletedAt.Sub(result.StartedAt)),
	}
	if result.Error != nil {
		fields = append(fields, zap.String("error_code", string(result.Error.Code)), zap.String("error_message", result.Error.Message))
		logger.Error("run completed with failure", fields...)
		return
	}
	logger.Info("run completed", fields...)
}

func performHealthCheck() {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost:8080/healthz")
	if err != nil {
		fmt.Printf("health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("health check failed with status: %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("health check passed")
}

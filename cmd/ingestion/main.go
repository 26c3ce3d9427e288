// Command ingestion runs the vehicle catalog ingestion pipeline.
//
// It fetches the make list and every make's vehicle types from the upstream
// catalog API and upserts them into PostgreSQL (or memory, for dry runs).
// Runs are triggered once at start, on a cron schedule, or by messages on a
// Kafka topic. In the scheduled modes /metrics and /health/* are served on
// the metrics port.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml] [-mode auto|once|cron|trigger]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/ingestion/fetcher"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/ingestion/orchestrator"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/ingestion/scheduler"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/store"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/redis"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	mode := flag.String("mode", "auto", "trigger mode: auto, once, cron or trigger")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	runMode := resolveMode(*mode, cfg)
	if err := checkMode(runMode, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid mode: %v\n", err)
		os.Exit(1)
	}
	slog.Info("starting catalog ingestion",
		"mode", runMode,
		"store", cfg.Store.Driver,
		"max_makes", cfg.Ingestion.MaxMakes,
		"max_concurrent_fetches", cfg.Ingestion.MaxConcurrentFetches,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker()
	m := metrics.New(nil)

	st, closeStore, err := openStore(ctx, cfg, checker)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	var opts []scheduler.Option
	opts = append(opts, scheduler.WithMetrics(m))
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		checker.Register("redis", health.PingCheck(rdb.Ping))
		opts = append(opts, scheduler.WithLocker(rdb))
		slog.Info("distributed run lock enabled", "addr", cfg.Redis.Addr, "key", cfg.Schedule.LockKey)
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topics.RunReports != "" {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RunReports)
		defer producer.Close()
		opts = append(opts, scheduler.WithPublisher(publisher.New(producer)))
		slog.Info("run reports enabled", "topic", cfg.Kafka.Topics.RunReports)
	}

	httpFetcher := fetcher.NewHTTPFetcher(cfg.Ingestion, fetcher.WithMetrics(m))
	retrying := fetcher.NewRetryingFetcher(httpFetcher, cfg.Ingestion.Retry, m)
	orch := orchestrator.New(cfg.Ingestion, retrying, st, m)
	sched := scheduler.New(orch, cfg.Schedule, opts...)
	checker.Register("last_run", sched.Check)

	if runMode != "once" && cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port,
			metrics.Route{Pattern: "/health/live", Handler: checker.LiveHandler()},
			metrics.Route{Pattern: "/health/ready", Handler: checker.ReadyHandler()},
		)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	switch runMode {
	case "cron":
		if err := sched.RunCron(ctx, cfg.Schedule.Cron); err != nil {
			slog.Error("scheduler failed", "error", err)
			os.Exit(1)
		}
	case "trigger":
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.RunTriggers, sched.HandleTrigger)
		slog.Info("waiting for run triggers", "topic", cfg.Kafka.Topics.RunTriggers, "group", cfg.Kafka.ConsumerGroup)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("trigger consumer error", "error", err)
		}
	default:
		runOnce(ctx, sched, st)
	}
	slog.Info("catalog ingestion stopped")
}

// resolveMode maps "auto" onto the most specific configured trigger.
func resolveMode(mode string, cfg *config.Config) string {
	if mode != "auto" {
		return mode
	}
	switch {
	case len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topics.RunTriggers != "":
		return "trigger"
	case cfg.Schedule.Cron != "":
		return "cron"
	default:
		return "once"
	}
}

func checkMode(mode string, cfg *config.Config) error {
	switch mode {
	case "once":
		return nil
	case "cron":
		if cfg.Schedule.Cron == "" {
			return fmt.Errorf("cron mode needs INGEST_SCHEDULE")
		}
		return nil
	case "trigger":
		if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topics.RunTriggers == "" {
			return fmt.Errorf("trigger mode needs kafka brokers and a trigger topic")
		}
		return nil
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func openStore(ctx context.Context, cfg *config.Config, checker *health.Checker) (store.Store, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		slog.Warn("using in-memory store, nothing will be persisted across runs")
		return store.NewMemoryStore(), func() {}, nil
	default:
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		checker.Register("postgres", db.Check)
		slog.Info("connected to postgres")
		return store.NewPostgresStore(db), func() { db.Close() }, nil
	}
}

func runOnce(ctx context.Context, sched *scheduler.Scheduler, st store.Reader) {
	report, err := sched.RunOnce(ctx, "startup")
	if err != nil {
		slog.Warn("ingestion run did not complete", "error", err)
	}
	if report == nil {
		return
	}
	counts, err := st.Counts(context.WithoutCancel(ctx))
	if err != nil {
		slog.Warn("reading catalog totals failed", "error", err)
		return
	}
	slog.Info("catalog totals",
		"run_id", report.RunID,
		"status", report.Status,
		"makes", counts.Makes,
		"vehicle_types", counts.VehicleTypes,
	)
}

// Package main is the entry point for the powerwatch service.
//
// It loads configuration, connects to PostgreSQL, and runs the poll loop,
// the notification dispatcher, the digest scheduler, the schedule refresher
// and the query API in one errgroup until SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"powerwatch/internal/api"
	"powerwatch/internal/config"
	"powerwatch/internal/db"
	"powerwatch/internal/external"
	"powerwatch/internal/metrics"
	"powerwatch/internal/monitor"
	"powerwatch/internal/notify"
	"powerwatch/internal/report"
	"powerwatch/internal/schedule"
	"powerwatch/internal/scheduler"
	"powerwatch/internal/types"
)

// transitionBuffer is the capacity of the monitor-to-dispatcher channel.
const transitionBuffer = 16

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("powerwatch starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"timezone", cfg.Timezone,
		"device", cfg.Device.Provider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.OpenPool(ctx, db.PoolConfig{URL: cfg.Database.URL, MaxConns: int32(cfg.Database.MaxConns)})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}

	clock := types.RealClock{}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorders := metrics.Multi{metrics.NewPrometheus(reg)}

	var publisher notify.Publisher
	if cfg.AWS.CloudWatchEnabled || cfg.AWS.EventsQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading aws config: %w", err)
		}
		if cfg.AWS.CloudWatchEnabled {
			recorders = append(recorders, metrics.NewCloudWatch(cloudwatch.NewFromConfig(awsCfg), cfg.AWS.MetricNamespace, logger))
		}
		if cfg.AWS.EventsQueueURL != "" {
			publisher = notify.NewEventPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS.EventsQueueURL, clock, logger)
		}
		logger.Info("aws integrations enabled",
			"region", awsCfg.Region,
			"cloudwatch", cfg.AWS.CloudWatchEnabled,
			"events_queue", cfg.AWS.EventsQueueURL != "",
		)
	}

	device, closeDevice, err := newDevice(ctx, cfg, clock, logger)
	if err != nil {
		return err
	}
	defer closeDevice()

	cache := schedule.NewCache(schedule.CacheConfig{
		Fetcher: external.NewYasnoClient(external.NewYasnoBaseClient(cfg.Schedule.FetchTimeout), external.YasnoConfig{
			BaseURL: cfg.Schedule.BaseURL,
			Region:  cfg.Schedule.Region,
			DSO:     cfg.Schedule.DSO,
			Clock:   clock,
		}),
		Group:    cfg.Schedule.Group,
		Location: cfg.Location,
		Clock:    clock,
		Metrics:  recorders,
		Logger:   logger,
	})

	store := db.NewEventStore(pool, db.EventStoreConfig{
		Clock:    clock,
		Location: cfg.Location,
		Timeout:  cfg.Database.QueryTimeout,
	})

	tracker := monitor.NewTracker(device, clock)
	transitions := make(chan types.TransitionDetected, transitionBuffer)
	mon := monitor.New(monitor.Config{
		Tracker:      tracker,
		Schedule:     cache,
		Store:        store,
		Transitions:  transitions,
		Interval:     cfg.Monitor.PollInterval,
		PollTimeout:  cfg.Monitor.PollTimeout,
		FetchTimeout: cfg.Schedule.FetchTimeout,
		Metrics:      recorders,
		Logger:       logger.With("component", "monitor"),
	})

	quiet, err := notify.NewQuietHours(cfg.QuietHours.Enabled, cfg.QuietHours.Start, cfg.QuietHours.End, cfg.Location, clock)
	if err != nil {
		return fmt.Errorf("quiet hours: %w", err)
	}
	telegram := external.NewTelegramNotifier(external.NewTelegramBaseClient(cfg.Telegram.Timeout), external.TelegramConfig{
		APIURL: cfg.Telegram.APIURL,
		Token:  cfg.Telegram.Token,
		ChatID: cfg.Telegram.ChatID,
	})
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Notifier:    telegram,
		QuietHours:  quiet,
		Transitions: transitions,
		Publisher:   publisher,
		Location:    cfg.Location,
		SendTimeout: cfg.Telegram.Timeout,
		Metrics:     recorders,
		Logger:      logger.With("component", "dispatcher"),
	})

	reporter := report.NewReporter(store)
	triggers, err := newTriggers(cfg)
	if err != nil {
		return err
	}
	digests := scheduler.New(scheduler.Config{
		Triggers:     triggers,
		Schedule:     cache,
		Reporter:     reporter,
		Sink:         dispatcher,
		Locker:       db.NewDigestLockRepository(pool, clock),
		Runs:         db.NewDigestRunRepository(pool),
		Clock:        clock,
		Location:     cfg.Location,
		FetchTimeout: cfg.Schedule.FetchTimeout,
		Metrics:      recorders,
		Logger:       logger.With("component", "scheduler"),
	})

	srv, err := api.NewServer(api.Deps{
		Status:            tracker,
		Schedule:          cache,
		Events:            store,
		Reporter:          reporter,
		Gatherer:          reg,
		Clock:             clock,
		Location:          cfg.Location,
		Logger:            logger.With("component", "api"),
		HealthProbes:      []api.HealthProbe{databaseProbe(pool), api.TrackerProbe(tracker)},
		FetchTimeout:      cfg.Schedule.FetchTimeout,
		RecentEventsLimit: cfg.Monitor.RecentEventsLimit,
		StatsWindowDays:   cfg.Monitor.StatsWindowDays,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// A failed first fetch is not fatal: classification degrades to
	// emergency until the refresher succeeds.
	refreshCtx, cancel := context.WithTimeout(ctx, cfg.Schedule.FetchTimeout)
	if err := cache.Refresh(refreshCtx); err != nil {
		logger.Warn("initial schedule fetch failed", "group", cfg.Schedule.Group, "error", err)
	}
	cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return digests.Run(gctx) })
	g.Go(func() error { return cache.RunRefresher(gctx, cfg.Schedule.RefreshInterval, cfg.Schedule.FetchTimeout) })
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Server.Addr) })

	err = g.Wait()
	logger.Info("powerwatch stopped")
	return err
}

// newDevice builds the configured status provider. The returned func
// releases any connection it holds.
func newDevice(ctx context.Context, cfg *config.Config, clock types.Clock, logger *slog.Logger) (types.DeviceStatusProvider, func(), error) {
	switch cfg.Device.Provider {
	case "mqtt":
		dev := external.NewMQTTDevice(external.MQTTConfig{
			Broker:            cfg.Device.MQTTBroker,
			ClientID:          cfg.Device.MQTTClientID,
			StateTopic:        cfg.Device.MQTTStateTopic,
			AvailabilityTopic: cfg.Device.MQTTAvailabilityTopic,
			MaxAge:            cfg.Device.MQTTMaxAge,
			Clock:             clock,
			Logger:            logger.With("component", "mqtt"),
		})
		if err := dev.Connect(ctx); err != nil {
			return nil, nil, fmt.Errorf("connecting to mqtt broker: %w", err)
		}
		return dev, dev.Close, nil
	default:
		base := external.NewBaseClient(&http.Client{Timeout: cfg.Monitor.PollTimeout}, external.NoRetry(), "")
		return external.NewTuyaDevice(base, external.TuyaConfig{
			Endpoint:   cfg.Device.TuyaEndpoint,
			AccessID:   cfg.Device.TuyaAccessID,
			AccessKey:  cfg.Device.TuyaAccessKey,
			DeviceID:   cfg.Device.TuyaDeviceID,
			SwitchCode: cfg.Device.TuyaSwitchCode,
			Clock:      clock,
		}), func() {}, nil
	}
}

func newTriggers(cfg *config.Config) (map[types.DigestKind]scheduler.Trigger, error) {
	daily, err := scheduler.NewDailyTrigger(cfg.Digest.DailyAt, cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("daily digest trigger: %w", err)
	}
	weekly, err := scheduler.NewWeeklyTrigger(cfg.Digest.Weekday(), cfg.Digest.WeeklyAt, cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("weekly digest trigger: %w", err)
	}
	monthly, err := scheduler.NewMonthlyTrigger(cfg.Digest.MonthlyDay, cfg.Digest.MonthlyAt, cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("monthly digest trigger: %w", err)
	}
	return map[types.DigestKind]scheduler.Trigger{
		types.DigestDaily:   daily,
		types.DigestWeekly:  weekly,
		types.DigestMonthly: monthly,
	}, nil
}

func databaseProbe(pool *pgxpool.Pool) api.HealthProbe {
	return api.ProbeFunc{ProbeName: "database", Fn: pool.Ping}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// Package main is the entry point for the digest runner Lambda function.
//
// An EventBridge schedule invokes the function with a DigestPayload naming
// the digest kind. The handler generates that one digest and sends it
// straight to Telegram. Slot locks in PostgreSQL keep a retried or duplicated
// invocation from sending the same digest twice.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"powerwatch/internal/config"
	"powerwatch/internal/db"
	"powerwatch/internal/external"
	"powerwatch/internal/metrics"
	"powerwatch/internal/notify"
	"powerwatch/internal/report"
	"powerwatch/internal/schedule"
	"powerwatch/internal/scheduler"
	"powerwatch/internal/types"
)

// Firer delivers one digest.
type Firer interface {
	Fire(ctx context.Context, kind types.DigestKind) error
}

// Handler holds the dependencies of the Lambda handler. NewFirer is called
// per invocation so a payload's reference time can replace the clock.
type Handler struct {
	NewFirer func(clock types.Clock) Firer
	Clock    types.Clock
	Logger   *slog.Logger
}

type referenceClock struct{ t time.Time }

func (c referenceClock) Now() time.Time { return c.t }

// Handle fires the digest named by payload. Digest failures are reported in
// the result rather than returned, since the chat already received a failure
// notice and a Lambda retry would only hit the slot lock.
func (h *Handler) Handle(ctx context.Context, payload scheduler.DigestPayload) (scheduler.DigestResult, error) {
	result := scheduler.DigestResult{Kind: payload.Kind}
	if !payload.Kind.Valid() {
		return result, types.NewAppError(types.ErrCodeValidationInvalidInput, "unknown digest kind "+string(payload.Kind), nil)
	}

	clock := h.Clock
	if payload.ReferenceTime != nil {
		clock = referenceClock{t: *payload.ReferenceTime}
	}
	logger := h.Logger.With("digest", payload.Kind, "reference_time", clock.Now())

	err := h.NewFirer(clock).Fire(ctx, payload.Kind)
	switch {
	case errors.Is(err, scheduler.ErrAlreadyDelivered):
		result.Skipped = true
		logger.InfoContext(ctx, "digest skipped, already delivered")
	case err != nil:
		result.Error = err.Error()
		logger.ErrorContext(ctx, "digest failed", "error", err)
	default:
		result.Delivered = true
		logger.InfoContext(ctx, "digest delivered")
	}
	return result, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("digest runner initializing (cold start)")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.OpenPool(ctx, db.PoolConfig{URL: cfg.Database.URL, MaxConns: 2})
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}

	clock := types.RealClock{}
	var recorder metrics.Recorder = metrics.Nop{}
	if cfg.AWS.CloudWatchEnabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Error("failed to load aws config", "error", err)
			os.Exit(1)
		}
		recorder = metrics.NewCloudWatch(cloudwatch.NewFromConfig(awsCfg), cfg.AWS.MetricNamespace, logger)
	}

	quiet, err := notify.NewQuietHours(cfg.QuietHours.Enabled, cfg.QuietHours.Start, cfg.QuietHours.End, cfg.Location, clock)
	if err != nil {
		logger.Error("invalid quiet hours", "error", err)
		os.Exit(1)
	}
	sink := notify.NewDirectSink(
		external.NewTelegramNotifier(external.NewTelegramBaseClient(cfg.Telegram.Timeout), external.TelegramConfig{
			APIURL: cfg.Telegram.APIURL,
			Token:  cfg.Telegram.Token,
			ChatID: cfg.Telegram.ChatID,
		}),
		quiet, recorder, logger,
	)

	cache := schedule.NewCache(schedule.CacheConfig{
		Fetcher: external.NewYasnoClient(external.NewYasnoBaseClient(cfg.Schedule.FetchTimeout), external.YasnoConfig{
			BaseURL: cfg.Schedule.BaseURL,
			Region:  cfg.Schedule.Region,
			DSO:     cfg.Schedule.DSO,
		}),
		Group:    cfg.Schedule.Group,
		Location: cfg.Location,
		Metrics:  recorder,
		Logger:   logger,
	})
	store := db.NewEventStore(pool, db.EventStoreConfig{Location: cfg.Location, Timeout: cfg.Database.QueryTimeout})
	reporter := report.NewReporter(store)
	locks := db.NewDigestLockRepository(pool, clock)
	runs := db.NewDigestRunRepository(pool)

	handler := &Handler{
		NewFirer: func(c types.Clock) Firer {
			return scheduler.New(scheduler.Config{
				Schedule:     cache,
				Reporter:     reporter,
				Sink:         sink,
				Locker:       locks,
				Runs:         runs,
				Clock:        c,
				Location:     cfg.Location,
				FetchTimeout: cfg.Schedule.FetchTimeout,
				Metrics:      recorder,
				Logger:       logger,
			})
		},
		Clock:  clock,
		Logger: logger,
	}

	lambda.Start(handler.Handle)
}

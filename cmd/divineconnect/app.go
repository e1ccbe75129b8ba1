package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"divineconnect/internal/app/commands"
	availabilityapp "divineconnect/internal/app/handlers/availability"
	bookingapp "divineconnect/internal/app/handlers/booking"
	meapp "divineconnect/internal/app/handlers/me"
	reviewsapp "divineconnect/internal/app/handlers/reviews"
	"divineconnect/internal/app/middleware"
	appoutbox "divineconnect/internal/app/outbox"
	"divineconnect/internal/app/policies"
	"divineconnect/internal/app/queries"
	appschedule "divineconnect/internal/app/schedule"
	"divineconnect/internal/domain/allocation"
	"divineconnect/internal/domain/availability"
	"divineconnect/internal/domain/pricing"
	"divineconnect/internal/domain/slotlock"
	"divineconnect/internal/domain/slots"
	"divineconnect/internal/infra/broker/kafka"
	"divineconnect/internal/infra/config"
	ginserver "divineconnect/internal/infra/http/gin"
	"divineconnect/internal/infra/notify"
	"divineconnect/internal/infra/obs"
	"divineconnect/internal/infra/outbox"
	"divineconnect/internal/infra/payments"
	redislock "divineconnect/internal/infra/redis"
	"divineconnect/internal/infra/schedule"
	"divineconnect/internal/infra/schedule/asynqsched"
	"divineconnect/internal/infra/storage/memory"
	"divineconnect/internal/infra/storage/s3"
	"divineconnect/internal/infra/validation"
)

const paymentsConsumerGroup = "divineconnect-payments"

type application struct {
	handlers ginserver.Handlers
	health   obs.HealthHandlers

	commands commands.Bus
	queries  queries.Bus
	router   *appschedule.Router

	runners []func(ctx context.Context) error
	closers []func()
	logger  *slog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// buildApplication wires every backend chosen by cfg. Background loops are collected in
// runners and started by start.
func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{logger: logger, health: obs.HealthHandlers{Checks: map[string]obs.Check{}}}
	ok := false
	defer func() {
		if !ok {
			app.close()
		}
	}()

	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		p, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		producer = p
		app.closers = append(app.closers, func() { _ = p.Close() })
	}

	relay := &outbox.Worker{
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Backoff:     cfg.RetryBackoff,
		Logger:      logger,
	}
	if producer != nil {
		relay.Producer = producer
	}

	store, err := openStorage(ctx, cfg, logger, relay)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, store.close)
	for name, check := range store.checks {
		app.health.Checks[name] = check
	}
	if store.relayStore != nil {
		if producer != nil {
			relay.Store = store.relayStore
			app.runners = append(app.runners, relay.Run)
		} else {
			logger.Warn("outbox relay disabled: no kafka brokers configured")
		}
	}

	locker, err := openLocker(ctx, cfg, app)
	if err != nil {
		return nil, err
	}

	var sender notify.Sender = notify.LogSender{Logger: logger}
	if producer != nil && cfg.NotifyTopic != "" {
		sender = notify.TopicSender{Publisher: producer, Topic: cfg.NotifyTopic}
	}
	dispatcher := notify.NewDispatcher(sender, 1024, cfg.RetryBackoff, logger)
	app.runners = append(app.runners, dispatcher.Run)

	var gateway policies.PaymentsPort
	if cfg.PaymentsMode == "stripe" {
		gateway = payments.NewStripe(cfg.StripeKey, logger)
	} else {
		gateway = payments.NewEscrow()
	}

	archive, err := openArchive(cfg, app, logger)
	if err != nil {
		return nil, err
	}

	app.router = appschedule.NewRouter()
	scheduler, err := openScheduler(cfg, app)
	if err != nil {
		return nil, err
	}

	index := availability.NewIndex(store.bookings, store.providers, store.catalog)
	orchestrator := &bookingapp.Orchestrator{
		UoWFactory: store.factory,
		Index:      index,
		Resolver:   allocation.NewResolver(index, store.providers, cfg.AssignmentLead, slots.DefaultLocation),
		Pricing:    pricing.NewEngine(cfg.TaxPercent),
		Locker:     locker,
		Payments:   gateway,
		Notifier:   dispatcher,
		Scheduler:  scheduler,
		Archive:    archive,
		Outbox:     store.outbox,
		Encoder:    appoutbox.JSONEventEncoder{},
		Config: bookingapp.Config{
			DraftTTL:          cfg.DraftTTL,
			PendingPaymentTTL: cfg.PendingPaymentTTL,
			LockWait:          cfg.LockWait,
			Capture:           bookingapp.CaptureMode(cfg.PaymentCapture),
			Location:          slots.DefaultLocation,
		},
		Logger: logger,
		Clock:  time.Now,
	}

	v, err := validation.New()
	if err != nil {
		return nil, fmt.Errorf("validator: %w", err)
	}

	commandBus := commands.NewInMemoryBus()
	commands.RegisterHandler(commandBus, &bookingapp.CreateBookingHandler{Orchestrator: orchestrator})
	commands.RegisterHandler(commandBus, &bookingapp.TransitionBookingHandler{Orchestrator: orchestrator})
	commands.RegisterHandler(commandBus, &bookingapp.CancelBookingHandler{Orchestrator: orchestrator})
	commands.RegisterHandler(commandBus, &bookingapp.AssignProviderHandler{Orchestrator: orchestrator})
	commands.RegisterHandler(commandBus, &bookingapp.IssueCertificateHandler{Orchestrator: orchestrator})
	commands.RegisterHandler(commandBus, &bookingapp.ExpireBookingHandler{Orchestrator: orchestrator})
	commands.RegisterHandler(commandBus, &bookingapp.SweepExpiredHandler{Orchestrator: orchestrator})
	commands.RegisterHandler(commandBus, &bookingapp.NotifyAssignmentDueHandler{Orchestrator: orchestrator})
	commands.RegisterHandler(commandBus, &reviewsapp.SubmitReviewHandler{
		UoWFactory: store.factory,
		Outbox:     store.outbox,
		Encoder:    appoutbox.JSONEventEncoder{},
		Logger:     logger,
	})

	queryBus := queries.NewInMemoryBus()
	queries.RegisterHandler(queryBus, &bookingapp.GetBookingHandler{UoWFactory: store.factory})
	queries.RegisterHandler(queryBus, &bookingapp.QuoteHandler{Orchestrator: orchestrator})
	queries.RegisterHandler(queryBus, &meapp.ListMyBookingsHandler{UoWFactory: store.factory, Logger: logger})
	queries.RegisterHandler(queryBus, &reviewsapp.ListProviderReviewsHandler{UoWFactory: store.factory, Logger: logger})
	queries.RegisterHandler(queryBus, &availabilityapp.ListCandidatesHandler{UoWFactory: store.factory, Index: index})
	queries.RegisterHandler(queryBus, &availabilityapp.CheckSlotHandler{Index: index})

	logger.Debug("buses wired", "commands", commandBus.Keys(), "queries", queryBus.Keys())

	app.commands = middleware.ChainCommands(
		commandBus,
		middleware.Logging(logger),
		middleware.Authorization(middleware.RequireActor{}),
		middleware.Validation(v),
		middleware.Idempotency(store.idempotency, nil, logger),
		middleware.Transaction(store.factory, nil),
		middleware.OutboxFlush(store.outbox, logger),
	)
	app.queries = middleware.ChainQueries(
		queryBus,
		middleware.QueryAuthorization(middleware.RequireActor{}),
		middleware.QueryValidation(v),
	)

	bookingapp.RegisterTasks(app.router, app.commands)
	if err := startTaskRunner(cfg, app); err != nil {
		return nil, err
	}

	if producer != nil && cfg.PaymentsTopic != "" {
		handler := &kafka.PaymentEventHandler{Bus: app.commands, Inbox: store.inbox, Logger: logger}
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, paymentsConsumerGroup, nil, handler, logger)
		if err != nil {
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		app.closers = append(app.closers, func() { _ = consumer.Close() })
		topics := []string{cfg.PaymentsTopic}
		app.runners = append(app.runners, func(ctx context.Context) error { return consumer.Run(ctx, topics) })
	}

	app.handlers = ginserver.Handlers{
		Booking:        ginserver.BookingHandler{Commands: app.commands, Queries: app.queries, Logger: logger},
		Availability:   ginserver.AvailabilityHandler{Queries: app.queries, Logger: logger},
		Reviews:        ginserver.ReviewsHandler{Commands: app.commands, Queries: app.queries, Logger: logger},
		Me:             ginserver.MeHandler{Queries: app.queries, Logger: logger},
		AuthMiddleware: ginserver.HeaderAuth(),
	}
	ok = true
	return app, nil
}

func openLocker(ctx context.Context, cfg config.Config, app *application) (slotlock.Locker, error) {
	if cfg.LockMode != "redis" {
		return memory.NewSlotLocker(), nil
	}
	client, err := redislock.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	app.closers = append(app.closers, func() { _ = client.Close() })
	app.health.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return redislock.NewSlotLocker(client), nil
}

// openArchive returns nil when no object store is configured; certificates then carry no URL.
func openArchive(cfg config.Config, app *application, logger *slog.Logger) (policies.DocumentArchive, error) {
	if cfg.S3Endpoint == "" {
		return nil, nil
	}
	archive, err := s3.NewArchive(s3.Options{
		Endpoint:       cfg.S3Endpoint,
		PublicEndpoint: cfg.S3PublicEndpoint,
		AccessKey:      cfg.S3AccessKey,
		SecretKey:      cfg.S3SecretKey,
		Bucket:         cfg.S3Bucket,
		UseSSL:         cfg.S3UseSSL,
	}, logger)
	if err != nil {
		return nil, err
	}
	app.health.Checks["s3"] = archive.Ping
	return archive, nil
}

func redisOpt(cfg config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

func openScheduler(cfg config.Config, app *application) (appschedule.Scheduler, error) {
	if cfg.SchedulerMode == "asynq" {
		s := asynqsched.NewScheduler(redisOpt(cfg))
		app.closers = append(app.closers, func() { _ = s.Close() })
		return s, nil
	}
	timers := schedule.NewTimers(app.router, app.logger)
	app.closers = append(app.closers, timers.Close)
	return timers, nil
}

// startTaskRunner needs the router fully registered: the asynq worker snapshots its names.
func startTaskRunner(cfg config.Config, app *application) error {
	if cfg.SchedulerMode != "asynq" {
		sweeper := &schedule.Sweeper{Router: app.router, Interval: cfg.SweepInterval, Logger: app.logger}
		app.runners = append(app.runners, sweeper.Run)
		return nil
	}
	worker := asynqsched.NewWorker(redisOpt(cfg), app.router, 0, app.logger)
	periodic, err := asynqsched.PeriodicSweep(redisOpt(cfg), "@every "+cfg.SweepInterval.String())
	if err != nil {
		return fmt.Errorf("asynq periodic sweep: %w", err)
	}
	app.runners = append(app.runners, func(ctx context.Context) error {
		if err := worker.Start(); err != nil {
			return err
		}
		if err := periodic.Start(); err != nil {
			worker.Shutdown()
			return err
		}
		<-ctx.Done()
		periodic.Shutdown()
		worker.Shutdown()
		return nil
	})
	return nil
}

func (a *application) start(ctx context.Context) {
	for _, run := range a.runners {
		run := run
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := run(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("background runner stopped", "error", err)
			}
		}()
	}
}

func (a *application) wait() {
	a.wg.Wait()
}

// close releases resources in reverse order of acquisition. Safe to call twice.
func (a *application) close() {
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			a.closers[i]()
		}
	})
}

// Command server runs the document request API: the lifecycle endpoints, the
// notification inbox, the live event stream, and the outbox worker.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"civicdesk/internal/directory"
	"civicdesk/internal/events/outbox"
	"civicdesk/internal/events/publisher"
	"civicdesk/internal/events/worker"
	httpapi "civicdesk/internal/http"
	"civicdesk/internal/notification/adapters"
	"civicdesk/internal/notification/dispatcher"
	notifhandler "civicdesk/internal/notification/handler"
	notifmetrics "civicdesk/internal/notification/metrics"
	"civicdesk/internal/notification/ports"
	notifstore "civicdesk/internal/notification/store"
	"civicdesk/internal/notification/sse"
	"civicdesk/internal/platform/config"
	"civicdesk/internal/platform/httpserver"
	"civicdesk/internal/platform/logger"
	"civicdesk/internal/platform/middleware"
	platformredis "civicdesk/internal/platform/redis"
	reqhandler "civicdesk/internal/request/handler"
	reqmetrics "civicdesk/internal/request/metrics"
	reqservice "civicdesk/internal/request/service"
	reqstore "civicdesk/internal/request/store"
)

const outboxInterval = time.Second

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return err
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Stores.
	requestStore := reqstore.NewPostgres(db)
	outboxStore := outbox.NewPostgres(db)
	var notificationStore ports.Store = notifstore.NewPostgres(db)
	if redisClient != nil {
		notificationStore = adapters.NewCachedStore(notificationStore, redisClient.Client, log)
	}
	dir := directory.NewPostgres(db)

	// Push layer.
	nMetrics := notifmetrics.New()
	registry := sse.NewRegistry(sse.WithLogger(log), sse.WithMetrics(nMetrics))

	// Dispatcher.
	dispatchOpts := []dispatcher.Option{
		dispatcher.WithEmailSender(adapters.NewLogEmailSender(log)),
		dispatcher.WithSMSSender(adapters.NewLogSMSSender(log)),
		dispatcher.WithDedupWindow(cfg.DedupWindow),
		dispatcher.WithMetrics(nMetrics),
		dispatcher.WithLogger(log),
	}
	if redisClient != nil {
		dispatchOpts = append(dispatchOpts, dispatcher.WithDedupGuard(adapters.NewRedisDedupGuard(redisClient.Client)))
	}
	notifier, err := dispatcher.New(notificationStore, registry, dir, requestStore, dispatchOpts...)
	if err != nil {
		return err
	}

	// Lifecycle service.
	lifecycle, err := reqservice.New(requestStore,
		reqservice.WithNotifier(notifier),
		reqservice.WithOutbox(outboxStore),
		reqservice.WithMetrics(reqmetrics.New()),
		reqservice.WithLogger(log),
	)
	if err != nil {
		return err
	}

	// HTTP surface.
	auth := middleware.NewAuthenticator(cfg.JWTSigningKey, log)
	router := httpapi.NewRouter(httpapi.Deps{
		Auth:          auth,
		Requests:      reqhandler.New(lifecycle),
		Notifications: notifhandler.New(notificationStore),
		Stream:        sse.NewHandler(registry, cfg.HeartbeatInterval, log),
		Logger:        log,
	})
	srv := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := publisher.NewKafka(cfg.KafkaBrokers)
		if err != nil {
			return err
		}
		defer kafka.Close()

		outboxWorker := worker.New(outboxStore, kafka, outboxInterval, log)
		group.Go(func() error {
			log.Info("starting outbox worker", "brokers", cfg.KafkaBrokers)
			if err := outboxWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		log.Warn("kafka brokers not configured, transition events stay in the outbox")
	}

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

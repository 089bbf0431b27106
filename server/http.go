package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"io"
	"media-orchestrator/config"
	"media-orchestrator/constant"
	jobHandler "media-orchestrator/handler"
	"media-orchestrator/migration"
	"media-orchestrator/pkg/rabbitmq"
	"media-orchestrator/repository"
	"media-orchestrator/service"
	"media-orchestrator/storage"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type consumerSpec struct {
	queue   rabbitmq.QueueSpec
	handler rabbitmq.HandlerFunc[jobHandler.ServiceDependencies]
}

// Topology lists every queue of the onboarding flow. Work queues dead-letter
// into the DLQ of their channel.
func Topology(q config.Queues) []rabbitmq.QueueSpec {
	return []rabbitmq.QueueSpec{
		{Name: q.UploadDLQ},
		{Name: q.UnboxingCompletedDLQ},
		{Name: q.BeginUnboxing},
		{Name: q.UploadNotifications, DeadLetter: q.UploadDLQ},
		{Name: q.UploadRetry, DeadLetter: q.UploadDLQ},
		{Name: q.UnboxingCompleted, DeadLetter: q.UnboxingCompletedDLQ},
		{Name: q.UnboxingCompletedRetry, DeadLetter: q.UnboxingCompletedDLQ},
	}
}

func consumers(q config.Queues) []consumerSpec {
	return []consumerSpec{
		{queue: rabbitmq.QueueSpec{Name: q.UploadNotifications, DeadLetter: q.UploadDLQ}, handler: jobHandler.UploadHandler},
		{queue: rabbitmq.QueueSpec{Name: q.UploadRetry, DeadLetter: q.UploadDLQ}, handler: jobHandler.UploadHandler},
		{queue: rabbitmq.QueueSpec{Name: q.UploadDLQ}, handler: jobHandler.DeadLetterHandler},
		{queue: rabbitmq.QueueSpec{Name: q.UnboxingCompleted, DeadLetter: q.UnboxingCompletedDLQ}, handler: jobHandler.UnboxingCompletedHandler},
		{queue: rabbitmq.QueueSpec{Name: q.UnboxingCompletedRetry, DeadLetter: q.UnboxingCompletedDLQ}, handler: jobHandler.UnboxingCompletedHandler},
		{queue: rabbitmq.QueueSpec{Name: q.UnboxingCompletedDLQ}, handler: jobHandler.DeadLetterHandler},
	}
}

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := config.PingDatabase(ctx, cfg.DB); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("database unreachable")
		return
	}
	if cfg.Database.AutoMigrate {
		if err := migration.Up(ctx, cfg.DB); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("migration failed")
			return
		}
	}

	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
		return
	}
	if err := rabbitmq.DeclareTopology(conn, Topology(cfg.Queue.Queues)...); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to declare queues")
		closeBroker(ctx, conn)
		return
	}

	repo, err := repository.NewRepo(cfg.DB, constant.Environment(cfg.App.Environment))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRepo")
		closeBroker(ctx, conn)
		return
	}

	objectStorage := storage.NewMinioStorage(cfg.Storage, constant.RawBucket)
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("bucket", constant.RawBucket).Msg("failed to ensure upload bucket")
	}

	publisher := rabbitmq.NewPublisher(conn)
	mediaService := service.NewService(repo, publisher, cfg.Queue.Queues)
	uploadService := service.NewUploadService(objectStorage, cfg.Upload.URLValidity)

	serviceDeps := jobHandler.ServiceDependencies{
		MediaService: mediaService,
		Publisher:    publisher,
		Queues:       cfg.Queue.Queues,
	}

	wg := startConsumers(ctx, conn, cfg.Server.Workers, serviceDeps)

	handler := http.Server{
		Handler:           newRouter(mediaService, uploadService),
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer stop()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	drain(ctx, wg, conn)
	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

type waiter interface {
	Wait()
}

// drain waits for the consumers to finish their in-flight messages and only
// then closes the broker connection, so their acks and reroutes still go out.
func drain(ctx context.Context, consumers waiter, conn io.Closer) {
	consumers.Wait()
	closeBroker(ctx, conn)
}

func closeBroker(ctx context.Context, conn io.Closer) {
	if err := conn.Close(); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to close RabbitMQ connection")
		return
	}
	zerolog.Ctx(ctx).Info().Msg("RabbitMQ connection closed")
}

// startConsumers runs one consumer per queue until ctx is done. The returned
// group completes once every worker has drained.
func startConsumers(ctx context.Context, conn *amqp.Connection, workers int, deps jobHandler.ServiceDependencies) *sync.WaitGroup {
	var wg sync.WaitGroup
	for _, spec := range consumers(deps.Queues) {
		c := rabbitmq.NewConsumer(conn, spec.queue, workers, spec.handler)
		queue := spec.queue.Name
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Consume(ctx, deps); err != nil && !errors.Is(err, context.Canceled) {
				zerolog.Ctx(ctx).Error().Err(err).Str("queue", queue).Msg("consumer error")
			}
		}()
	}
	return &wg
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}

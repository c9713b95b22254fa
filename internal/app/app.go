package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/emmy19999/bingham-bites/internal/dal/postgres"
	"github.com/emmy19999/bingham-bites/internal/dal/rabbitmq"
	"github.com/emmy19999/bingham-bites/internal/dal/realtime"
	"github.com/emmy19999/bingham-bites/internal/otel"
	"github.com/emmy19999/bingham-bites/internal/service/dispatch"
	"github.com/emmy19999/bingham-bites/internal/service/identity"
	"github.com/emmy19999/bingham-bites/internal/service/payment"
	"github.com/emmy19999/bingham-bites/internal/service/services/destinationsvc"
	"github.com/emmy19999/bingham-bites/internal/service/services/ordersvc"
	"github.com/emmy19999/bingham-bites/internal/service/services/statussvc"
	"github.com/emmy19999/bingham-bites/internal/service/session"
	grpctransport "github.com/emmy19999/bingham-bites/internal/transport/grpc"
	httptransport "github.com/emmy19999/bingham-bites/internal/transport/http"
	outboxworker "github.com/emmy19999/bingham-bites/internal/worker/outbox"
	progressionworker "github.com/emmy19999/bingham-bites/internal/worker/progression"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	otel           *otel.OtelController
	postgresClient *postgres.Client
	rabbitClient   *rabbitmq.Client
	sessions       *session.Manager

	transport         *httptransport.HTTPTransport
	grpcTransport     *grpctransport.GRPCTransport
	outboxWorker      *outboxworker.Worker
	progressionWorker *progressionworker.Worker
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	otelController := otel.MustInitOtel()
	postgresClient := postgres.MustNewClient()
	rabbitClient := rabbitmq.MustNewClient()

	statusSvc := statussvc.MustNewStatusService(
		statussvc.WithPostgresClient(postgresClient),
		statussvc.WithExchange(rabbitmq.ExchangeName()),
	)
	destinationSvc := destinationsvc.MustNewDestinationService(
		destinationsvc.WithPostgresClient(postgresClient),
	)

	assigner := dispatch.NewSimulated()
	placeTimeout := time.Duration(viper.GetInt("orders.place_timeout_seconds")) * time.Second

	sessions := session.MustNewManager(
		session.WithOrderManagerFactory(func(idp *identity.Provider) session.OrderManager {
			return ordersvc.MustNewOrderService(
				ordersvc.WithPostgresClient(postgresClient),
				ordersvc.WithIdentity(idp),
				ordersvc.WithAssigner(assigner),
				ordersvc.WithPlaceTimeout(placeTimeout),
			)
		}),
		session.WithSubscriber(realtime.NewSubscriber(rabbitClient, rabbitmq.ExchangeName())),
		session.WithPayment(payment.NewSimulator(
			payment.WithDelay(time.Duration(viper.GetInt("payment.simulated_delay_ms"))*time.Millisecond),
		)),
		session.WithDestinations(destinationSvc),
		session.WithJustAddedFor(time.Duration(viper.GetInt("orders.just_added_ms"))*time.Millisecond),
		session.WithRetryDelay(time.Duration(viper.GetInt("orders.sync_retry_seconds"))*time.Second),
	)

	transport := httptransport.NewHTTPTransport(sessions, destinationSvc, statusSvc)
	transport.RegisterRoutes()

	grpcTransport := grpctransport.NewGRPCTransport(
		grpctransport.WithProbe("postgres", func(ctx context.Context) error {
			return postgresClient.Pool().Ping(ctx)
		}),
		grpctransport.WithProbe("rabbitmq", func(context.Context) error {
			if rabbitClient.Connection().IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}),
	)

	app := &App{
		otel:           otelController,
		postgresClient: postgresClient,
		rabbitClient:   rabbitClient,
		sessions:       sessions,
		transport:      transport,
		grpcTransport:  grpcTransport,
		outboxWorker:   outboxworker.NewWorker(postgresClient, rabbitClient),
	}
	if viper.GetBool("progression.enabled") {
		app.progressionWorker = progressionworker.NewWorker(statusSvc)
	}

	return app
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	// Create a channel to receive OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	workers.Add(1)
	go func() {
		defer workers.Done()
		a.outboxWorker.Start(workerCtx)
	}()

	if a.progressionWorker != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			a.progressionWorker.Start(workerCtx)
		}()
	}

	go func() {
		if err := a.transport.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		if err := a.grpcTransport.Run(); err != nil {
			slog.Error("gRPC server error", "error", err)
		}
	}()

	<-stop
	slog.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.transport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	if err := a.grpcTransport.Shutdown(ctx); err != nil {
		slog.Error("gRPC server shutdown error", "error", err)
	} else {
		slog.Info("gRPC server stopped gracefully")
	}

	a.sessions.CloseAll()
	slog.Info("Sessions closed")

	a.outboxWorker.Stop()
	if a.progressionWorker != nil {
		a.progressionWorker.Stop()
	}
	cancelWorkers()
	workers.Wait()
	slog.Info("Workers stopped")

	if err := a.rabbitClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	a.postgresClient.Close()
	slog.Info("Database connection closed gracefully")

	if err := a.otel.Shutdown(ctx); err != nil {
		slog.Error("Tracer provider shutdown error", "error", err)
	}

	slog.Info("Application shutdown complete")
}

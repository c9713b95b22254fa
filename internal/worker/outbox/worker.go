package outbox

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/emmy19999/bingham-bites/internal/dal/interfaces/ioutboxrepo"
	"github.com/emmy19999/bingham-bites/internal/dal/postgres"
	"github.com/emmy19999/bingham-bites/internal/dal/uow"
	"github.com/emmy19999/bingham-bites/internal/service/models/outbox"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const publishConcurrency = 8

type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OutboxRepository() ioutboxrepo.IOutboxRepository
}

type publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

// Worker processes messages from the outbox table.
type Worker struct {
	newUOW        func() unitOfWork
	publisher     publisher
	pollInterval  time.Duration
	batchSize     int
	retryInterval time.Duration
	now           func() time.Time
	stopCh        chan struct{}
}

// NewWorker creates a new outbox worker.
func NewWorker(pgClient *postgres.Client, pub publisher) *Worker {
	pollIntervalSeconds := viper.GetInt("rabbitmq.outbox.poll_interval_seconds")
	if pollIntervalSeconds == 0 {
		pollIntervalSeconds = 1
	}

	batchSize := viper.GetInt("rabbitmq.outbox.batch_size")
	if batchSize == 0 {
		batchSize = 100
	}

	retryIntervalSeconds := viper.GetInt("rabbitmq.outbox.retry_interval_seconds")
	if retryIntervalSeconds == 0 {
		retryIntervalSeconds = 30
	}

	return &Worker{
		newUOW: func() unitOfWork {
			return uow.NewUnitOfWork(pgClient.Pool())
		},
		publisher:     pub,
		pollInterval:  time.Duration(pollIntervalSeconds) * time.Second,
		batchSize:     batchSize,
		retryInterval: time.Duration(retryIntervalSeconds) * time.Second,
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
}

// Start begins processing messages from the outbox.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Outbox worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Outbox worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Outbox worker stopped")

			return
		case <-ticker.C:
			if err := w.processMessages(ctx); err != nil {
				slog.Error("Failed to process outbox batch", "error", err)
			}
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

// processMessages locks a batch of due messages, publishes them concurrently
// and records each outcome in the same transaction.
func (w *Worker) processMessages(ctx context.Context) error {
	ctx, span := otel.Tracer("worker").Start(ctx, "OutboxWorker.processMessages")
	defer span.End()

	work := w.newUOW()
	if err := work.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if err := work.Rollback(context.WithoutCancel(ctx)); err != nil {
			slog.Error("Failed to rollback outbox batch", "error", err)
		}
	}()

	messages, err := work.OutboxRepository().GetPendingMessages(ctx, w.batchSize)
	if err != nil {
		return err
	}

	if len(messages) == 0 {
		return nil
	}

	span.SetAttributes(attribute.Int("count", len(messages)))
	slog.Info("Processing outbox messages", "count", len(messages))

	results := w.publishAll(ctx, messages)

	for i, msg := range messages {
		if err := results[i]; err != nil {
			// Update retry count and schedule next retry with exponential backoff
			newRetryCount := msg.RetryCount + 1
			nextRetryAt := w.now().Add(w.backoff(newRetryCount))

			slog.Warn("Failed to publish message from outbox, will retry",
				"outbox_id", msg.ID,
				"order_id", msg.AggregateID,
				"retry_count", newRetryCount,
				"next_retry", nextRetryAt,
				"error", err,
			)
			if newRetryCount >= msg.MaxRetries {
				slog.Error("Outbox message exhausted its retries", "outbox_id", msg.ID, "order_id", msg.AggregateID)
			}

			if err := work.OutboxRepository().UpdateRetry(ctx, msg.ID, newRetryCount, err.Error(), nextRetryAt); err != nil {
				slog.Error("Failed to update retry information", "outbox_id", msg.ID, "error", err)
			}

			continue
		}

		// Successfully published, delete from outbox
		if err := work.OutboxRepository().Delete(ctx, msg.ID); err != nil {
			slog.Error("Failed to delete message from outbox after successful publish",
				"outbox_id", msg.ID,
				"error", err,
			)
		}
	}

	return work.Commit(ctx)
}

// publishAll returns one result per message, in order.
func (w *Worker) publishAll(ctx context.Context, messages []outbox.OutboxMessage) []error {
	results := make([]error, len(messages))

	var g errgroup.Group
	g.SetLimit(publishConcurrency)

	for i, msg := range messages {
		g.Go(func() error {
			results[i] = w.publisher.Publish(ctx, msg.ExchangeName, msg.RoutingKey, amqp.Publishing{
				ContentType:  msg.ContentType,
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.AggregateID.String(),
				Timestamp:    msg.CreatedAt,
				Body:         msg.Payload,
			})

			return nil
		})
	}
	_ = g.Wait()

	return results
}

// backoff is 2^n * retryInterval: 60s, 120s, 240s, ... for the default 30s.
func (w *Worker) backoff(retry int) time.Duration {
	return time.Duration(math.Pow(2, float64(retry))) * w.retryInterval
}

// Package progression moves live orders one step forward once they have sat
// in a status for the configured step, standing in for kitchen and rider
// updates until those exist.
package progression

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/emmy19999/bingham-bites/internal/service/services/statussvc"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
)

const (
	ChangedBy = "automation"

	defaultPollInterval = 2 * time.Second
	defaultStep         = 10 * time.Second
	defaultBatchSize    = 50
)

type statusService interface {
	StaleOrders(ctx context.Context, before time.Time, limit int) ([]order.Order, error)
	UpdateStatus(ctx context.Context, req statussvc.UpdateStatusRequest) (order.Order, error)
}

// Worker advances stale orders.
type Worker struct {
	svc          statusService
	pollInterval time.Duration
	step         time.Duration
	batchSize    int
	now          func() time.Time
	stopCh       chan struct{}
}

// NewWorker creates a progression worker configured from progression.*.
func NewWorker(svc statusService) *Worker {
	pollInterval := time.Duration(viper.GetInt("progression.poll_interval_seconds")) * time.Second
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	step := time.Duration(viper.GetInt("progression.step_seconds")) * time.Second
	if step <= 0 {
		step = defaultStep
	}

	batchSize := viper.GetInt("progression.batch_size")
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &Worker{
		svc:          svc,
		pollInterval: pollInterval,
		step:         step,
		batchSize:    batchSize,
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
}

// Start runs until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Progression worker started", "poll_interval", w.pollInterval, "step", w.step)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Progression worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Progression worker stopped")

			return
		case <-ticker.C:
			w.advance(ctx)
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
}

// advance returns the number of orders moved.
func (w *Worker) advance(ctx context.Context) int {
	ctx, span := otel.Tracer("worker").Start(ctx, "ProgressionWorker.advance")
	defer span.End()

	orders, err := w.svc.StaleOrders(ctx, w.now().Add(-w.step), w.batchSize)
	if err != nil {
		slog.Error("Failed to load orders to progress", "error", err)
		return 0
	}

	moved := 0
	for _, o := range orders {
		next, ok := o.Status.Next()
		if !ok {
			continue
		}

		_, err := w.svc.UpdateStatus(ctx, statussvc.UpdateStatusRequest{
			OrderID:   o.ID,
			Status:    next,
			ChangedBy: ChangedBy,
		})
		switch {
		case err == nil:
			moved++
		case errors.Is(err, apperrors.ErrIllegalTransition), errors.Is(err, apperrors.ErrNotFound):
			slog.Debug("Order changed before progression", "order_id", o.ID, "error", err)
		default:
			slog.Error("Failed to progress order", "order_id", o.ID, "status", next, "error", err)
		}
	}

	return moved
}

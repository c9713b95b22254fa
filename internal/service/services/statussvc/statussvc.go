// Package statussvc moves orders along their lifecycle on behalf of staff,
// riders and the progression worker, and queues the resulting update for the
// owner's realtime channel.
package statussvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emmy19999/bingham-bites/internal/dal/interfaces/iorderrepo"
	"github.com/emmy19999/bingham-bites/internal/dal/interfaces/ioutboxrepo"
	"github.com/emmy19999/bingham-bites/internal/dal/interfaces/istatuslogrepo"
	"github.com/emmy19999/bingham-bites/internal/dal/postgres"
	"github.com/emmy19999/bingham-bites/internal/dal/rabbitmq"
	"github.com/emmy19999/bingham-bites/internal/dal/uow"
	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/emmy19999/bingham-bites/internal/service/models/orderevent"
	"github.com/emmy19999/bingham-bites/internal/service/models/outbox"
	"github.com/emmy19999/bingham-bites/internal/service/models/statuslog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const contentTypeJSON = "application/json"

// StatusService applies validated status changes.
type StatusService struct {
	newUOW   func() unitOfWork
	exchange string
	now      func() time.Time
}

type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OrderRepository() iorderrepo.IOrderRepository
	StatusLogRepository() istatuslogrepo.IStatusLogRepository
	OutboxRepository() ioutboxrepo.IOutboxRepository
}

// UpdateStatusRequest describes one status change. A nil Rider keeps the
// current rider.
type UpdateStatusRequest struct {
	OrderID   uuid.UUID
	Status    order.Status
	Rider     *order.Rider
	ChangedBy string
	Note      *string
}

// option is a function that configures the StatusService.
type option func(*StatusService)

// MustNewStatusService creates a new StatusService.
func MustNewStatusService(opts ...option) *StatusService {
	s := &StatusService{
		exchange: rabbitmq.DefaultExchange,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.newUOW == nil {
		panic("statussvc: postgres client is required")
	}

	return s
}

// WithPostgresClient sets the Postgres client for the StatusService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *StatusService) {
		s.newUOW = func() unitOfWork {
			return uow.NewUnitOfWork(pgClient.Pool())
		}
	}
}

// WithExchange sets the exchange updates are published to.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithExchange(name string) option {
	return func(s *StatusService) {
		if name != "" {
			s.exchange = name
		}
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(s *StatusService) {
		s.now = now
	}
}

// UpdateStatus locks the order, checks the transition, writes the new status,
// a status log entry and an outbox message in one transaction.
func (s *StatusService) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "StatusService.UpdateStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("order_id", req.OrderID.String()),
		attribute.String("status", req.Status.String()),
	)

	if _, err := order.ParseStatus(req.Status.String()); err != nil {
		return order.Order{}, apperrors.Validation("%v: %q", err, req.Status)
	}
	if req.ChangedBy == "" {
		return order.Order{}, apperrors.Validation("changed_by is required")
	}
	if req.Rider != nil && (req.Rider.Name == "" || req.Rider.Phone == "") {
		return order.Order{}, apperrors.Validation("rider needs a name and a phone")
	}

	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return order.Order{}, fmt.Errorf("%w: %w", apperrors.ErrPersistence, err)
	}
	defer func() {
		if err := work.Rollback(context.WithoutCancel(ctx)); err != nil {
			slog.Error("Failed to rollback status update", "order_id", req.OrderID, "error", err)
		}
	}()

	o, err := work.OrderRepository().GetForUpdate(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return order.Order{}, err
		}

		return order.Order{}, fmt.Errorf("%w: %w", apperrors.ErrPersistence, err)
	}

	if !o.Status.CanTransitionTo(req.Status) {
		return order.Order{}, fmt.Errorf("%w: %s -> %s", apperrors.ErrIllegalTransition, o.Status, req.Status)
	}

	now := s.now().UTC()
	if err := work.OrderRepository().UpdateStatus(ctx, o.ID, req.Status, req.Rider, now); err != nil {
		return order.Order{}, fmt.Errorf("%w: %w", apperrors.ErrPersistence, err)
	}

	o.Status = req.Status
	o.UpdatedAt = now
	if req.Rider != nil {
		r := *req.Rider
		o.Rider = &r
	}

	err = work.StatusLogRepository().Insert(ctx, statuslog.StatusLog{
		OrderID:   o.ID,
		Status:    o.Status,
		ChangedBy: req.ChangedBy,
		Note:      req.Note,
		CreatedAt: now,
	})
	if err != nil {
		return order.Order{}, fmt.Errorf("%w: %w", apperrors.ErrPersistence, err)
	}

	msg, err := s.outboxMessage(o, req.ChangedBy, now)
	if err != nil {
		return order.Order{}, err
	}
	if err := work.OutboxRepository().Insert(ctx, msg); err != nil {
		return order.Order{}, fmt.Errorf("%w: %w", apperrors.ErrPersistence, err)
	}

	if err := work.Commit(ctx); err != nil {
		return order.Order{}, fmt.Errorf("%w: %w", apperrors.ErrPersistence, err)
	}

	slog.Info("Order status updated",
		"order_id", o.ID,
		"status", o.Status,
		"changed_by", req.ChangedBy,
	)

	return o, nil
}

func (s *StatusService) outboxMessage(o order.Order, changedBy string, now time.Time) (outbox.OutboxMessage, error) {
	payload, err := json.Marshal(orderevent.Updated{
		OrderID:   o.ID,
		UserID:    o.UserID,
		Status:    o.Status,
		Rider:     o.Rider,
		ChangedBy: changedBy,
		UpdatedAt: now,
	})
	if err != nil {
		return outbox.OutboxMessage{}, fmt.Errorf("failed to marshal order event: %w", err)
	}

	return outbox.OutboxMessage{
		AggregateID:  o.ID,
		ExchangeName: s.exchange,
		RoutingKey:   orderevent.RoutingKey(o.UserID),
		Payload:      payload,
		ContentType:  contentTypeJSON,
		MaxRetries:   outbox.DefaultMaxRetries,
		CreatedAt:    now,
		UpdatedAt:    now,
		NextRetryAt:  now,
	}, nil
}

// StaleOrders returns non-terminal orders whose status has not changed since before.
func (s *StatusService) StaleOrders(ctx context.Context, before time.Time, limit int) ([]order.Order, error) {
	orders, err := s.newUOW().OrderRepository().Query(ctx, &order.QueryOrdersModel{
		Statuses: []order.Status{
			order.StatusPending,
			order.StatusConfirmed,
			order.StatusPreparing,
			order.StatusRiderAssigned,
			order.StatusOnTheWay,
		},
		UpdatedBefore: before,
		Limit:         limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrPersistence, err)
	}

	return orders, nil
}

// ListOrders returns order headers for the cafeteria board, most recent first.
func (s *StatusService) ListOrders(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	orders, err := s.newUOW().OrderRepository().Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrPersistence, err)
	}

	return orders, nil
}

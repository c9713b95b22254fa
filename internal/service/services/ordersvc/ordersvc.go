package ordersvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/emmy19999/bingham-bites/internal/dal/interfaces/iorderitemrepo"
	"github.com/emmy19999/bingham-bites/internal/dal/interfaces/iorderrepo"
	"github.com/emmy19999/bingham-bites/internal/dal/interfaces/istatuslogrepo"
	"github.com/emmy19999/bingham-bites/internal/dal/postgres"
	"github.com/emmy19999/bingham-bites/internal/dal/uow"
	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/cart"
	"github.com/emmy19999/bingham-bites/internal/service/dispatch"
	"github.com/emmy19999/bingham-bites/internal/service/models/money"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/emmy19999/bingham-bites/internal/service/models/orderevent"
	"github.com/emmy19999/bingham-bites/internal/service/models/orderitem"
	"github.com/emmy19999/bingham-bites/internal/service/models/statuslog"
	"github.com/emmy19999/bingham-bites/internal/service/models/user"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultPlaceTimeout bounds the whole placement round trip.
	DefaultPlaceTimeout = 15 * time.Second

	rollbackTimeout = 5 * time.Second
	placedBy        = "system"
	placedNote      = "Order placed"
)

// OrderService owns one user's order collection and places new orders.
type OrderService struct {
	newUOW       func() unitOfWork
	identity     identityProvider
	assigner     dispatch.Assigner
	placeTimeout time.Duration
	now          func() time.Time

	mu      sync.RWMutex
	orders  []order.Order // most recent first
	current uuid.UUID
}

type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OrderRepository() iorderrepo.IOrderRepository
	OrderItemRepository() iorderitemrepo.IOrderItemRepository
	StatusLogRepository() istatuslogrepo.IStatusLogRepository
}

type identityProvider interface {
	CurrentUser() (user.User, bool)
}

// PlaceOrderRequest is a checkout ready to be persisted.
type PlaceOrderRequest struct {
	Lines                   []cart.Line
	Subtotal                money.Amount
	DeliveryFee             money.Amount
	DestinationName         string
	DestinationExtraMinutes int
	PaymentMethod           order.PaymentMethod
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{
		placeTimeout: DefaultPlaceTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.newUOW == nil {
		panic("ordersvc: postgres client is required")
	}
	if s.identity == nil {
		panic("ordersvc: identity provider is required")
	}
	if s.assigner == nil {
		s.assigner = dispatch.NewSimulated()
	}

	return s
}

// WithPostgresClient sets the Postgres client for the OrderService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *OrderService) {
		s.newUOW = func() unitOfWork {
			return uow.NewUnitOfWork(pgClient.Pool())
		}
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithIdentity(identity identityProvider) option {
	return func(s *OrderService) {
		s.identity = identity
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithAssigner(assigner dispatch.Assigner) option {
	return func(s *OrderService) {
		s.assigner = assigner
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithPlaceTimeout(d time.Duration) option {
	return func(s *OrderService) {
		if d > 0 {
			s.placeTimeout = d
		}
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(s *OrderService) {
		s.now = now
	}
}

// PlaceOrder persists the header and every line in one transaction. On
// success the order becomes current and is prepended to the collection.
// The cart is left to the caller.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.PlaceOrder")
	defer span.End()

	u, ok := s.identity.CurrentUser()
	if !ok {
		return order.Order{}, apperrors.ErrAuthenticationRequired
	}

	if err := validatePlaceOrder(req); err != nil {
		return order.Order{}, err
	}

	placeCtx, cancel := context.WithTimeout(ctx, s.placeTimeout)
	defer cancel()

	placed, err := s.place(placeCtx, u, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "place order failed")

		var partial *apperrors.PartialCommitError
		if !errors.As(err, &partial) &&
			errors.Is(placeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return order.Order{}, fmt.Errorf("%w after %s: %w", apperrors.ErrPlacementTimeout, s.placeTimeout, err)
		}

		return order.Order{}, err
	}

	span.SetAttributes(attribute.String("order_id", placed.ID.String()))

	s.mu.Lock()
	s.orders = slices.Insert(s.orders, 0, placed)
	s.current = placed.ID
	s.mu.Unlock()

	slog.Info("Order placed",
		"order_id", placed.ID,
		"user_id", u.ID,
		"total", placed.Total.String(),
		"items", len(placed.OrderItems),
	)

	return placed.Clone(), nil
}

func (s *OrderService) place(ctx context.Context, u user.User, req PlaceOrderRequest) (order.Order, error) {
	assignment, err := s.assigner.Assign(ctx, req.DestinationExtraMinutes)
	if err != nil {
		return order.Order{}, fmt.Errorf("%w: failed to assign rider: %w", apperrors.ErrPersistence, err)
	}

	now := s.now().UTC()
	rider := assignment.Rider
	header := order.Order{
		UserID:            u.ID,
		CafeteriaID:       req.Lines[0].CafeteriaID,
		CafeteriaName:     req.Lines[0].CafeteriaName,
		Subtotal:          req.Subtotal,
		DeliveryFee:       req.DeliveryFee,
		Total:             req.Subtotal.Add(req.DeliveryFee),
		Destination:       req.DestinationName,
		PaymentMethod:     req.PaymentMethod,
		Status:            order.StatusConfirmed,
		EstimatedDelivery: assignment.EstimatedMinutes,
		Rider:             &rider,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return order.Order{}, fmt.Errorf("%w: %w", apperrors.ErrPersistence, err)
	}

	header, err = work.OrderRepository().Insert(ctx, header)
	if err != nil {
		s.rollback(ctx, work, uuid.Nil)
		return order.Order{}, fmt.Errorf("%w: failed to insert order: %w", apperrors.ErrPersistence, err)
	}

	items := make([]orderitem.OrderItem, len(req.Lines))
	for i, l := range req.Lines {
		items[i] = orderitem.OrderItem{
			OrderID:    header.ID,
			MenuItemID: l.Item.ID,
			Name:       l.Item.Name,
			Price:      l.Item.Price,
			Quantity:   l.Quantity,
			CreatedAt:  now,
		}
		if l.SpecialInstructions != "" {
			text := l.SpecialInstructions
			items[i].SpecialInstructions = &text
		}
	}

	items, err = work.OrderItemRepository().BulkInsert(ctx, items)
	if err != nil {
		return order.Order{}, s.abandon(ctx, work, header.ID, fmt.Errorf("failed to insert order items: %w", err))
	}

	note := placedNote
	err = work.StatusLogRepository().Insert(ctx, statuslog.StatusLog{
		OrderID:   header.ID,
		Status:    header.Status,
		ChangedBy: placedBy,
		Note:      &note,
		CreatedAt: now,
	})
	if err != nil {
		return order.Order{}, s.abandon(ctx, work, header.ID, fmt.Errorf("failed to insert status log: %w", err))
	}

	if err := work.Commit(ctx); err != nil {
		s.rollback(ctx, work, header.ID)
		return order.Order{}, fmt.Errorf("%w: %w", apperrors.ErrPersistence, err)
	}

	header.OrderItems = items

	return header, nil
}

// abandon rolls back after the header was written. If the rollback fails the
// header may survive without its lines.
func (s *OrderService) abandon(ctx context.Context, work unitOfWork, orderID uuid.UUID, cause error) error {
	if rbErr := s.rollback(ctx, work, orderID); rbErr != nil {
		slog.Error("Order may be partially committed",
			"order_id", orderID,
			"error", cause,
			"rollback_error", rbErr,
		)

		return &apperrors.PartialCommitError{OrderID: orderID, Cause: cause, RollbackErr: rbErr}
	}

	return fmt.Errorf("%w: %w", apperrors.ErrPersistence, cause)
}

// rollback runs even when ctx has expired.
func (s *OrderService) rollback(ctx context.Context, work unitOfWork, orderID uuid.UUID) error {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if err := work.Rollback(rbCtx); err != nil {
		slog.Error("Failed to rollback order placement", "order_id", orderID, "error", err)
		return err
	}

	return nil
}

func validatePlaceOrder(req PlaceOrderRequest) error {
	if len(req.Lines) == 0 {
		return apperrors.Validation("cart is empty")
	}
	if req.DestinationName == "" {
		return apperrors.Validation("destination is required")
	}
	if _, err := order.ParsePaymentMethod(req.PaymentMethod.String()); err != nil {
		return apperrors.Validation("%v: %q", err, req.PaymentMethod)
	}
	if !req.DeliveryFee.InRange() {
		return apperrors.Validation("delivery fee %s is out of range", req.DeliveryFee)
	}
	if req.Subtotal.IsNegative() {
		return apperrors.Validation("subtotal is negative")
	}

	cafeteriaID := req.Lines[0].CafeteriaID
	for _, l := range req.Lines {
		if l.CafeteriaID != cafeteriaID {
			return cart.ErrMixedCafeteria
		}
		if l.Quantity <= 0 || l.Quantity > cart.MaxQuantity {
			return apperrors.Validation("item %s has quantity %d", l.Item.ID, l.Quantity)
		}
		if !l.Item.Price.InRange() {
			return apperrors.Validation("item %s has an out of range price", l.Item.ID)
		}
	}

	if sum := cart.Subtotal(req.Lines); sum != req.Subtotal {
		return apperrors.Validation("declared subtotal %s does not match items %s", req.Subtotal, sum)
	}

	return nil
}

// FetchOrders reloads every order of the current user with its items and
// replaces the cached collection. Orders placed while the query was in
// flight are kept ahead of the fetched ones. Without a user it returns
// nothing.
func (s *OrderService) FetchOrders(ctx context.Context) ([]order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.FetchOrders")
	defer span.End()

	u, ok := s.identity.CurrentUser()
	if !ok {
		return []order.Order{}, nil
	}

	s.mu.RLock()
	known := make(map[uuid.UUID]struct{}, len(s.orders))
	for _, o := range s.orders {
		known[o.ID] = struct{}{}
	}
	s.mu.RUnlock()

	orders, err := s.GetOrders(ctx, &order.QueryOrdersModel{UserIds: []uuid.UUID{u.ID}})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	fetched := make(map[uuid.UUID]struct{}, len(orders))
	for _, o := range orders {
		fetched[o.ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var placedMeanwhile []order.Order
	for _, o := range s.orders {
		_, wasKnown := known[o.ID]
		_, wasFetched := fetched[o.ID]
		if !wasKnown && !wasFetched {
			placedMeanwhile = append(placedMeanwhile, o)
		}
	}
	s.orders = append(placedMeanwhile, orders...)

	return cloneAll(s.orders), nil
}

// GetOrders retrieves orders with their items, most recent first.
func (s *OrderService) GetOrders(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	work := s.newUOW()

	orders, err := work.OrderRepository().Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrPersistence, err)
	}

	if len(orders) == 0 {
		return []order.Order{}, nil
	}

	orderItemQuery := &orderitem.QueryOrderItemsModel{}
	for _, o := range orders {
		orderItemQuery.OrderIds = append(orderItemQuery.OrderIds, o.ID)
	}
	orderItems, err := work.OrderItemRepository().Query(ctx, orderItemQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrPersistence, err)
	}

	byOrder := make(map[uuid.UUID][]orderitem.OrderItem, len(orders))
	for _, item := range orderItems {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	for i := range orders {
		orders[i].OrderItems = byOrder[orders[i].ID]
	}

	slices.SortStableFunc(orders, func(a, b order.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return orders, nil
}

// StatusHistory returns the status log of one of the user's orders.
func (s *OrderService) StatusHistory(ctx context.Context, orderID uuid.UUID) ([]statuslog.StatusLog, error) {
	if _, ok := s.identity.CurrentUser(); !ok {
		return nil, apperrors.ErrAuthenticationRequired
	}
	if _, ok := s.Order(orderID); !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, apperrors.ErrNotFound)
	}

	logs, err := s.newUOW().StatusLogRepository().ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrPersistence, err)
	}

	return logs, nil
}

// Orders returns a copy of the cached collection, most recent first.
func (s *OrderService) Orders() []order.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneAll(s.orders)
}

// CurrentOrder is the order placed most recently in this session.
func (s *OrderService) CurrentOrder() (order.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == uuid.Nil {
		return order.Order{}, false
	}
	i := s.indexLocked(s.current)
	if i < 0 {
		return order.Order{}, false
	}

	return s.orders[i].Clone(), true
}

func (s *OrderService) Order(id uuid.UUID) (order.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexLocked(id)
	if i < 0 {
		return order.Order{}, false
	}

	return s.orders[i].Clone(), true
}

// ApplyUpdate patches status, rider and updated_at of a cached order. It
// returns the previous status and whether anything changed. Unknown orders,
// foreign owners and statuses outside the lifecycle are ignored. An event
// without a rider keeps the one already assigned.
func (s *OrderService) ApplyUpdate(ev orderevent.Updated) (order.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(ev.OrderID)
	if i < 0 {
		return "", false
	}

	o := &s.orders[i]
	prev := o.Status
	if ev.UserID != uuid.Nil && ev.UserID != o.UserID {
		return prev, false
	}
	if _, err := order.ParseStatus(ev.Status.String()); err != nil {
		return prev, false
	}

	changed := false
	if ev.Status != o.Status {
		o.Status = ev.Status
		changed = true
	}
	if ev.Rider != nil && (o.Rider == nil || *o.Rider != *ev.Rider) {
		r := *ev.Rider
		o.Rider = &r
		changed = true
	}
	if !ev.UpdatedAt.IsZero() && !ev.UpdatedAt.Equal(o.UpdatedAt) {
		o.UpdatedAt = ev.UpdatedAt
		changed = true
	}

	return prev, changed
}

// Reset forgets every cached order.
func (s *OrderService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = nil
	s.current = uuid.Nil
}

func (s *OrderService) indexLocked(id uuid.UUID) int {
	return slices.IndexFunc(s.orders, func(o order.Order) bool {
		return o.ID == id
	})
}

func cloneAll(orders []order.Order) []order.Order {
	out := make([]order.Order, len(orders))
	for i, o := range orders {
		out[i] = o.Clone()
	}

	return out
}

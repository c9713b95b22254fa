// Package session ties one signed-in student's cart, orders and realtime
// subscription together for the lifetime of their login.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emmy19999/bingham-bites/internal/dal/realtime"
	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/cart"
	"github.com/emmy19999/bingham-bites/internal/service/identity"
	"github.com/emmy19999/bingham-bites/internal/service/models/destination"
	"github.com/emmy19999/bingham-bites/internal/service/models/money"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/emmy19999/bingham-bites/internal/service/models/orderevent"
	"github.com/emmy19999/bingham-bites/internal/service/models/statuslog"
	"github.com/emmy19999/bingham-bites/internal/service/models/user"
	"github.com/emmy19999/bingham-bites/internal/service/payment"
	"github.com/emmy19999/bingham-bites/internal/service/pricing"
	"github.com/emmy19999/bingham-bites/internal/service/services/ordersvc"
	"github.com/emmy19999/bingham-bites/internal/service/statussync"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

// OrderManager is the per-session order collection.
type OrderManager interface {
	PlaceOrder(ctx context.Context, req ordersvc.PlaceOrderRequest) (order.Order, error)
	FetchOrders(ctx context.Context) ([]order.Order, error)
	StatusHistory(ctx context.Context, orderID uuid.UUID) ([]statuslog.StatusLog, error)
	Orders() []order.Order
	CurrentOrder() (order.Order, bool)
	Order(id uuid.UUID) (order.Order, bool)
	ApplyUpdate(ev orderevent.Updated) (order.Status, bool)
	Reset()
}

// OrderManagerFactory builds the order collection bound to a session's identity.
type OrderManagerFactory func(idp *identity.Provider) OrderManager

type subscriber interface {
	Subscribe(ctx context.Context, userID uuid.UUID) (realtime.Subscription, error)
}

type payer interface {
	Charge(ctx context.Context, method order.PaymentMethod, amount money.Amount) (payment.Receipt, error)
	Refund(ctx context.Context, receipt payment.Receipt) error
}

type destinations interface {
	Get(ctx context.Context, id uuid.UUID) (destination.Destination, error)
}

// Session is one login. Its methods are safe for concurrent use.
type Session struct {
	user         user.User
	identity     *identity.Provider
	cart         *cart.Cart
	orders       OrderManager
	payment      payer
	destinations destinations

	checkoutMu sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
}

func (s *Session) User() user.User {
	return s.user
}

func (s *Session) Cart() *cart.Cart {
	return s.cart
}

func (s *Session) Orders() OrderManager {
	return s.orders
}

// Quote prices the current cart for a destination. A zero id yields a quote
// that is not ready.
func (s *Session) Quote(ctx context.Context, destinationID uuid.UUID) (pricing.Quote, error) {
	if destinationID == uuid.Nil {
		return pricing.Resolve(s.cart.Subtotal(), nil), nil
	}

	dest, err := s.destinations.Get(ctx, destinationID)
	if err != nil {
		return pricing.Quote{}, err
	}

	return pricing.Resolve(s.cart.Subtotal(), &dest), nil
}

// CheckoutResult is a placed order with its payment receipt.
type CheckoutResult struct {
	Order   order.Order     `json:"order"`
	Receipt payment.Receipt `json:"receipt"`
}

// Checkout prices the cart, simulates payment and places the order. Only
// the lines that were ordered leave the cart, and only when placement
// succeeds. A failed placement refunds the charge.
func (s *Session) Checkout(
	ctx context.Context,
	destinationID uuid.UUID,
	method order.PaymentMethod,
) (CheckoutResult, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "Session.Checkout")
	defer span.End()

	s.checkoutMu.Lock()
	defer s.checkoutMu.Unlock()

	lines := s.cart.Lines()
	if len(lines) == 0 {
		return CheckoutResult{}, apperrors.Validation("cart is empty")
	}
	if _, err := order.ParsePaymentMethod(method.String()); err != nil {
		return CheckoutResult{}, apperrors.Validation("%v: %q", err, method)
	}

	dest, err := s.destinations.Get(ctx, destinationID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return CheckoutResult{}, apperrors.Validation("destination %s is not available", destinationID)
		}

		return CheckoutResult{}, err
	}

	quote := pricing.Resolve(cart.Subtotal(lines), &dest)
	if !quote.Ready {
		return CheckoutResult{}, apperrors.Validation("destination %s is not available", destinationID)
	}

	receipt, err := s.payment.Charge(ctx, method, quote.Total)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("payment failed: %w", err)
	}

	placed, err := s.orders.PlaceOrder(ctx, ordersvc.PlaceOrderRequest{
		Lines:                   lines,
		Subtotal:                quote.Subtotal,
		DeliveryFee:             quote.DeliveryFee,
		DestinationName:         dest.Name,
		DestinationExtraMinutes: dest.ExtraMinutes,
		PaymentMethod:           method,
	})
	if err != nil {
		if refundErr := s.payment.Refund(context.WithoutCancel(ctx), receipt); refundErr != nil {
			slog.Error("Failed to refund payment",
				"user_id", s.user.ID,
				"reference", receipt.Reference,
				"amount", receipt.Amount.String(),
				"error", refundErr,
			)
		}

		return CheckoutResult{}, err
	}

	s.cart.Deduct(lines)

	return CheckoutResult{Order: placed, Receipt: receipt}, nil
}

// Close logs the identity out, waits for the synchronizer to release its
// subscription and drops cached state.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.identity.Logout()
		s.cancel()

		select {
		case <-s.done:
		case <-time.After(10 * time.Second):
			slog.Warn("Session synchronizer did not stop in time", "user_id", s.user.ID)
		}

		s.orders.Reset()
		s.cart.Clear()
		s.cart.Close()
	})
}

// Manager holds the open sessions keyed by user id.
type Manager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	ctx      context.Context
	cancel   context.CancelFunc

	newOrders    OrderManagerFactory
	subscriber   subscriber
	payment      payer
	destinations destinations
	justAddedFor time.Duration
	retryDelay   time.Duration
}

// option is a function that configures the Manager.
type option func(*Manager)

//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderManagerFactory(f OrderManagerFactory) option {
	return func(m *Manager) {
		m.newOrders = f
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithSubscriber(sub subscriber) option {
	return func(m *Manager) {
		m.subscriber = sub
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithPayment(p payer) option {
	return func(m *Manager) {
		m.payment = p
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithDestinations(d destinations) option {
	return func(m *Manager) {
		m.destinations = d
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithJustAddedFor(d time.Duration) option {
	return func(m *Manager) {
		m.justAddedFor = d
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithRetryDelay(d time.Duration) option {
	return func(m *Manager) {
		m.retryDelay = d
	}
}

// MustNewManager creates a new Manager.
func MustNewManager(opts ...option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sessions:     make(map[uuid.UUID]*Session),
		ctx:          ctx,
		cancel:       cancel,
		justAddedFor: cart.DefaultJustAddedFor,
		retryDelay:   statussync.DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.newOrders == nil || m.subscriber == nil || m.payment == nil || m.destinations == nil {
		panic("session: orders, subscriber, payment and destinations are required")
	}

	return m
}

// Open returns the user's session, creating it and loading their orders if
// needed. A failed initial load is logged; the session stays usable.
func (m *Manager) Open(ctx context.Context, u user.User) (*Session, error) {
	if u.ID == uuid.Nil {
		return nil, apperrors.ErrAuthenticationRequired
	}

	m.mu.Lock()
	if s, ok := m.sessions[u.ID]; ok {
		m.mu.Unlock()
		return s, nil
	}

	idp := identity.NewProvider()
	orders := m.newOrders(idp)
	synchronizer := statussync.MustNewSynchronizer(
		statussync.WithIdentity(idp),
		statussync.WithSubscriber(m.subscriber),
		statussync.WithOrders(orders),
		statussync.WithRetryDelay(m.retryDelay),
	)

	runCtx, cancel := context.WithCancel(m.ctx)
	s := &Session{
		user:         u,
		identity:     idp,
		cart:         cart.New(cart.WithJustAddedFor(m.justAddedFor)),
		orders:       orders,
		payment:      m.payment,
		destinations: m.destinations,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	s.cart.Subscribe(func(snap cart.Snapshot) {
		slog.Debug("Cart changed",
			"user_id", u.ID,
			"total_items", snap.TotalItems,
			"subtotal", snap.Subtotal.String(),
		)
	})

	go func() {
		defer close(s.done)
		if err := synchronizer.Run(runCtx); err != nil {
			slog.Error("Status synchronizer stopped", "user_id", u.ID, "error", err)
		}
	}()

	idp.Login(u)
	m.sessions[u.ID] = s
	m.mu.Unlock()

	if _, err := orders.FetchOrders(ctx); err != nil {
		slog.Warn("Failed to load orders for new session", "user_id", u.ID, "error", err)
	}

	slog.Info("Session opened", "user_id", u.ID, "role", u.Role)

	return s, nil
}

func (m *Manager) Get(userID uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]

	return s, ok
}

// Close ends the user's session; false when there was none.
func (m *Manager) Close(userID uuid.UUID) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		return false
	}

	s.Close()
	slog.Info("Session closed", "user_id", userID)

	return true
}

// CloseAll ends every session for shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[uuid.UUID]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	m.cancel()
}

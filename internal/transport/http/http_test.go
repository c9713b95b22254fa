package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/emmy19999/bingham-bites/internal/dal/realtime"
	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/cart"
	"github.com/emmy19999/bingham-bites/internal/service/identity"
	"github.com/emmy19999/bingham-bites/internal/service/models/destination"
	"github.com/emmy19999/bingham-bites/internal/service/models/money"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/emmy19999/bingham-bites/internal/service/models/orderevent"
	"github.com/emmy19999/bingham-bites/internal/service/models/orderitem"
	"github.com/emmy19999/bingham-bites/internal/service/models/statuslog"
	"github.com/emmy19999/bingham-bites/internal/service/payment"
	"github.com/emmy19999/bingham-bites/internal/service/pricing"
	"github.com/emmy19999/bingham-bites/internal/service/services/ordersvc"
	"github.com/emmy19999/bingham-bites/internal/service/services/statussvc"
	"github.com/emmy19999/bingham-bites/internal/service/session"
	"github.com/emmy19999/bingham-bites/internal/transport/http/httpx"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memOrders keeps one session's orders in memory.
type memOrders struct {
	mu     sync.Mutex
	idp    *identity.Provider
	orders []order.Order
}

func (m *memOrders) PlaceOrder(_ context.Context, req ordersvc.PlaceOrderRequest) (order.Order, error) {
	u, ok := m.idp.CurrentUser()
	if !ok {
		return order.Order{}, apperrors.ErrAuthenticationRequired
	}

	o := order.Order{
		ID:            uuid.New(),
		UserID:        u.ID,
		CafeteriaID:   req.Lines[0].CafeteriaID,
		CafeteriaName: req.Lines[0].CafeteriaName,
		Subtotal:      req.Subtotal,
		DeliveryFee:   req.DeliveryFee,
		Total:         req.Subtotal.Add(req.DeliveryFee),
		Destination:   req.DestinationName,
		PaymentMethod: req.PaymentMethod,
		Status:        order.StatusConfirmed,
	}
	for _, l := range req.Lines {
		o.OrderItems = append(o.OrderItems, orderitem.OrderItem{
			ID:         uuid.New(),
			OrderID:    o.ID,
			MenuItemID: l.Item.ID,
			Name:       l.Item.Name,
			Price:      l.Item.Price,
			Quantity:   l.Quantity,
		})
	}

	m.mu.Lock()
	m.orders = append([]order.Order{o}, m.orders...)
	m.mu.Unlock()

	return o, nil
}

func (m *memOrders) FetchOrders(context.Context) ([]order.Order, error) {
	return m.Orders(), nil
}

func (m *memOrders) StatusHistory(_ context.Context, id uuid.UUID) ([]statuslog.StatusLog, error) {
	o, ok := m.Order(id)
	if !ok {
		return nil, apperrors.ErrNotFound
	}

	return []statuslog.StatusLog{{ID: uuid.New(), OrderID: o.ID, Status: o.Status, ChangedBy: "student"}}, nil
}

func (m *memOrders) Orders() []order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]order.Order{}, m.orders...)
}

func (m *memOrders) CurrentOrder() (order.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.orders) == 0 {
		return order.Order{}, false
	}

	return m.orders[0], true
}

func (m *memOrders) Order(id uuid.UUID) (order.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.ID == id {
			return o, true
		}
	}

	return order.Order{}, false
}

func (m *memOrders) ApplyUpdate(orderevent.Updated) (order.Status, bool) {
	return "", false
}

func (m *memOrders) Reset() {
	m.mu.Lock()
	m.orders = nil
	m.mu.Unlock()
}

type idleSubscription struct {
	events chan orderevent.Updated
	once   sync.Once
}

func (s *idleSubscription) Events() <-chan orderevent.Updated {
	return s.events
}

func (s *idleSubscription) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

type idleSubscriber struct{}

func (idleSubscriber) Subscribe(context.Context, uuid.UUID) (realtime.Subscription, error) {
	return &idleSubscription{events: make(chan orderevent.Updated)}, nil
}

type fakeDestinations []destination.Destination

func (f fakeDestinations) Get(_ context.Context, id uuid.UUID) (destination.Destination, error) {
	for _, d := range f {
		if d.ID == id {
			return d, nil
		}
	}

	return destination.Destination{}, apperrors.ErrNotFound
}

func (f fakeDestinations) List(context.Context) ([]destination.Destination, error) {
	return f, nil
}

type fakeStatuses struct {
	mu      sync.Mutex
	updates []statussvc.UpdateStatusRequest
	err     error
}

func (f *fakeStatuses) UpdateStatus(_ context.Context, req statussvc.UpdateStatusRequest) (order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return order.Order{}, f.err
	}
	f.updates = append(f.updates, req)

	return order.Order{ID: req.OrderID, Status: req.Status, Rider: req.Rider}, nil
}

func (f *fakeStatuses) ListOrders(_ context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	out := []order.Order{}
	for _, s := range filter.Statuses {
		out = append(out, order.Order{ID: uuid.New(), Status: s})
	}

	return out, nil
}

var (
	newBoys = destination.Destination{
		ID:           uuid.New(),
		Name:         "New Boys Hostel",
		DeliveryFee:  money.Naira(250),
		ExtraMinutes: 7,
		IsActive:     true,
	}
	cafeteriaID = uuid.New()
)

type fixture struct {
	handler  http.Handler
	statuses *fakeStatuses
	manager  *session.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	manager := session.MustNewManager(
		session.WithOrderManagerFactory(func(idp *identity.Provider) session.OrderManager {
			return &memOrders{idp: idp}
		}),
		session.WithSubscriber(idleSubscriber{}),
		session.WithPayment(payment.NewSimulator(payment.WithDelay(0))),
		session.WithDestinations(fakeDestinations{newBoys}),
		session.WithJustAddedFor(0),
		session.WithRetryDelay(time.Second),
	)
	t.Cleanup(manager.CloseAll)

	statuses := &fakeStatuses{}
	transport := NewHTTPTransport(manager, fakeDestinations{newBoys}, statuses)
	transport.RegisterRoutes()

	return &fixture{handler: transport.Handler(), statuses: statuses, manager: manager}
}

type caller struct {
	id   uuid.UUID
	role string
}

func student() caller {
	return caller{id: uuid.New(), role: "student"}
}

func (f *fixture) do(t *testing.T, c caller, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.id != uuid.Nil {
		req.Header.Set(httpx.HeaderUserID, c.id.String())
		req.Header.Set(httpx.HeaderUserRole, c.role)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())

	return v
}

func addItemBody(id uuid.UUID, name, price string, cafID uuid.UUID) map[string]any {
	return map[string]any{
		"item":          map[string]any{"id": id, "name": name, "price": price},
		"cafeteriaId":   cafID,
		"cafeteriaName": "Main Cafeteria",
	}
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, caller{}, http.MethodGet, "/api/cart", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decode[httpx.ErrorResponse](t, rec).Code)

	rec = f.do(t, caller{id: uuid.New(), role: "janitor"}, http.MethodPost, "/api/session", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// headers alone are not a session
	rec = f.do(t, student(), http.MethodGet, "/api/cart", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutFlow(t *testing.T) {
	f := newFixture(t)
	me := student()

	rec := f.do(t, me, http.MethodPost, "/api/session", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rice, chicken := uuid.New(), uuid.New()
	rec = f.do(t, me, http.MethodPost, "/api/cart/items", addItemBody(rice, "Jollof Rice", "1500", cafeteriaID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, me, http.MethodPost, "/api/cart/items", addItemBody(rice, "Jollof Rice", "1500", cafeteriaID))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, me, http.MethodPost, "/api/cart/items", addItemBody(chicken, "Fried Chicken", "800.00", cafeteriaID))
	require.Equal(t, http.StatusOK, rec.Code)

	snap := decode[cart.Snapshot](t, rec)
	assert.Equal(t, 3, snap.TotalItems)
	assert.Equal(t, money.Naira(3800), snap.Subtotal)
	require.Len(t, snap.Lines, 2)

	rec = f.do(t, me, http.MethodGet, "/api/checkout/quote?destinationId="+newBoys.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decode[pricing.Quote](t, rec)
	assert.True(t, quote.Ready)
	assert.Equal(t, money.Naira(4050), quote.Total)
	assert.Equal(t, 7, quote.ExtraMinutes)

	rec = f.do(t, me, http.MethodPost, "/api/checkout", map[string]any{
		"destinationId": newBoys.ID,
		"paymentMethod": "card",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[session.CheckoutResult](t, rec)
	assert.Equal(t, money.Naira(4050), result.Order.Total)
	assert.Equal(t, money.Naira(4050), result.Receipt.Amount)
	assert.Equal(t, order.StatusConfirmed, result.Order.Status)
	assert.Equal(t, "New Boys Hostel", result.Order.Destination)

	rec = f.do(t, me, http.MethodGet, "/api/cart", nil)
	assert.Zero(t, decode[cart.Snapshot](t, rec).TotalItems)

	rec = f.do(t, me, http.MethodGet, "/api/orders/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, result.Order.ID, decode[order.Order](t, rec).ID)

	rec = f.do(t, me, http.MethodGet, "/api/orders?refresh=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]order.Order](t, rec), 1)

	rec = f.do(t, me, http.MethodGet, fmt.Sprintf("/api/orders/%s/history", result.Order.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]statuslog.StatusLog](t, rec), 1)

	rec = f.do(t, me, http.MethodDelete, "/api/session", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, me, http.MethodGet, "/api/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCartErrors(t *testing.T) {
	f := newFixture(t)
	me := student()
	require.Equal(t, http.StatusCreated, f.do(t, me, http.MethodPost, "/api/session", nil).Code)

	itemID := uuid.New()
	rec := f.do(t, me, http.MethodPost, "/api/cart/items", addItemBody(itemID, "Amala", "1200", cafeteriaID))
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("second cafeteria refused", func(t *testing.T) {
		rec := f.do(t, me, http.MethodPost, "/api/cart/items", addItemBody(uuid.New(), "Suya", "900", uuid.New()))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("fractional kobo refused", func(t *testing.T) {
		rec := f.do(t, me, http.MethodPost, "/api/cart/items", addItemBody(uuid.New(), "Suya", "9.001", cafeteriaID))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("price beyond maximum refused", func(t *testing.T) {
		rec := f.do(t, me, http.MethodPost, "/api/cart/items", addItemBody(uuid.New(), "Suya", "46116860184273879.29", cafeteriaID))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = f.do(t, me, http.MethodPost, "/api/cart/items", addItemBody(uuid.New(), "Suya", "1e30", cafeteriaID))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("quantity over cap refused", func(t *testing.T) {
		rec := f.do(t, me, http.MethodPatch, "/api/cart/items/"+itemID.String(), map[string]any{"quantity": 100})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = f.do(t, me, http.MethodGet, "/api/cart", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		snap := decode[cart.Snapshot](t, rec)
		require.Len(t, snap.Lines, 1)
		assert.Equal(t, 1, snap.Lines[0].Quantity)
	})

	t.Run("update unknown line", func(t *testing.T) {
		rec := f.do(t, me, http.MethodPatch, "/api/cart/items/"+uuid.NewString(), map[string]any{"quantity": 2})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("update needs a field", func(t *testing.T) {
		rec := f.do(t, me, http.MethodPatch, "/api/cart/items/"+itemID.String(), map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("instructions then zero quantity removes", func(t *testing.T) {
		rec := f.do(t, me, http.MethodPatch, "/api/cart/items/"+itemID.String(), map[string]any{"specialInstructions": "no pepper"})
		require.Equal(t, http.StatusOK, rec.Code)
		snap := decode[cart.Snapshot](t, rec)
		require.Len(t, snap.Lines, 1)
		assert.Equal(t, "no pepper", snap.Lines[0].SpecialInstructions)

		rec = f.do(t, me, http.MethodPatch, "/api/cart/items/"+itemID.String(), map[string]any{"quantity": 0})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[cart.Snapshot](t, rec).Lines)
	})

	t.Run("checkout of empty cart", func(t *testing.T) {
		rec := f.do(t, me, http.MethodPost, "/api/checkout", map[string]any{
			"destinationId": newBoys.ID,
			"paymentMethod": "cash",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown payment method", func(t *testing.T) {
		rec := f.do(t, me, http.MethodPost, "/api/checkout", map[string]any{
			"destinationId": newBoys.ID,
			"paymentMethod": "crypto",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no current order", func(t *testing.T) {
		rec := f.do(t, me, http.MethodGet, "/api/orders/current", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("quote without destination is not ready", func(t *testing.T) {
		rec := f.do(t, me, http.MethodGet, "/api/checkout/quote", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		q := decode[pricing.Quote](t, rec)
		assert.False(t, q.Ready)
		assert.Zero(t, q.DeliveryFee)
	})
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t)
	orderID := uuid.New()
	path := "/api/admin/orders/" + orderID.String() + "/status"

	rec := f.do(t, student(), http.MethodPatch, path, map[string]any{"status": "preparing"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := caller{id: uuid.New(), role: "cafeteria_admin"}
	rec = f.do(t, admin, http.MethodPatch, path, map[string]any{
		"status": "rider_assigned",
		"rider":  map[string]any{"name": "Tunde A.", "phone": "08012345678"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, f.statuses.updates, 1)
	assert.Equal(t, order.StatusRiderAssigned, f.statuses.updates[0].Status)
	assert.Equal(t, "cafeteria_admin:"+admin.id.String(), f.statuses.updates[0].ChangedBy)
	require.NotNil(t, f.statuses.updates[0].Rider)

	rec = f.do(t, admin, http.MethodPatch, path, map[string]any{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.statuses.err = fmt.Errorf("%w: delivered -> preparing", apperrors.ErrIllegalTransition)
	rec = f.do(t, admin, http.MethodPatch, path, map[string]any{"status": "preparing"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, caller{id: uuid.New(), role: "super_admin"}, http.MethodGet, "/api/admin/orders?statuses=preparing&statuses=on_the_way", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[[]order.Order](t, rec), 2)

	rec = f.do(t, admin, http.MethodGet, "/api/admin/orders?statuses=lost", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDestinationsAndDocs(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, student(), http.MethodGet, "/api/destinations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dests := decode[[]destination.Destination](t, rec)
	require.Len(t, dests, 1)
	assert.Equal(t, "New Boys Hostel", dests[0].Name)

	rec = f.do(t, caller{}, http.MethodGet, "/swagger/doc.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[map[string]any](t, rec)
	assert.Equal(t, "3.0.3", doc["openapi"])
}

package statussvc

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/emmy19999/bingham-bites/internal/dal/interfaces/iorderrepo"
	"github.com/emmy19999/bingham-bites/internal/dal/interfaces/ioutboxrepo"
	"github.com/emmy19999/bingham-bites/internal/dal/interfaces/istatuslogrepo"
	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/emmy19999/bingham-bites/internal/service/models/orderevent"
	"github.com/emmy19999/bingham-bites/internal/service/models/outbox"
	"github.com/emmy19999/bingham-bites/internal/service/models/statuslog"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	orders    map[uuid.UUID]order.Order
	logs      []statuslog.StatusLog
	outbox    []outbox.OutboxMessage
	committed int

	updateErr error
	outboxErr error
	lastQuery *order.QueryOrdersModel
}

type fakeUOW struct {
	db        *fakeDB
	committed bool
	// staged writes, applied on commit
	orders map[uuid.UUID]order.Order
	logs   []statuslog.StatusLog
	outbox []outbox.OutboxMessage
}

func (db *fakeDB) newUOW() unitOfWork {
	return &fakeUOW{db: db, orders: map[uuid.UUID]order.Order{}}
}

func (u *fakeUOW) Begin(context.Context) error { return nil }

func (u *fakeUOW) Commit(context.Context) error {
	for id, o := range u.orders {
		u.db.orders[id] = o
	}
	u.db.logs = append(u.db.logs, u.logs...)
	u.db.outbox = append(u.db.outbox, u.outbox...)
	u.db.committed++
	u.committed = true

	return nil
}

func (u *fakeUOW) Rollback(context.Context) error { return nil }

func (u *fakeUOW) OrderRepository() iorderrepo.IOrderRepository { return (*fakeOrders)(u) }

func (u *fakeUOW) StatusLogRepository() istatuslogrepo.IStatusLogRepository { return (*fakeLogs)(u) }

func (u *fakeUOW) OutboxRepository() ioutboxrepo.IOutboxRepository { return (*fakeOutbox)(u) }

type fakeOrders fakeUOW

func (r *fakeOrders) Insert(context.Context, order.Order) (order.Order, error) {
	return order.Order{}, errors.New("not implemented")
}

func (r *fakeOrders) Query(_ context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	r.db.lastQuery = filter
	var out []order.Order
	for _, o := range r.db.orders {
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, o.Status) {
			continue
		}
		if !filter.UpdatedBefore.IsZero() && !o.UpdatedAt.Before(filter.UpdatedBefore) {
			continue
		}
		out = append(out, o)
	}

	return out, nil
}

func (r *fakeOrders) GetForUpdate(_ context.Context, id uuid.UUID) (order.Order, error) {
	o, ok := r.db.orders[id]
	if !ok {
		return order.Order{}, apperrors.ErrNotFound
	}

	return o, nil
}

func (r *fakeOrders) UpdateStatus(_ context.Context, id uuid.UUID, status order.Status, rider *order.Rider, at time.Time) error {
	if r.db.updateErr != nil {
		return r.db.updateErr
	}
	o := r.db.orders[id]
	o.Status = status
	o.UpdatedAt = at
	if rider != nil {
		o.Rider = rider
	}
	r.orders[id] = o

	return nil
}

type fakeLogs fakeUOW

func (r *fakeLogs) Insert(_ context.Context, l statuslog.StatusLog) error {
	r.logs = append(r.logs, l)
	return nil
}

func (r *fakeLogs) ListByOrder(context.Context, uuid.UUID) ([]statuslog.StatusLog, error) {
	return r.db.logs, nil
}

type fakeOutbox fakeUOW

func (r *fakeOutbox) Insert(_ context.Context, msg outbox.OutboxMessage) error {
	if r.db.outboxErr != nil {
		return r.db.outboxErr
	}
	r.outbox = append(r.outbox, msg)

	return nil
}

func (r *fakeOutbox) GetPendingMessages(context.Context, int) ([]outbox.OutboxMessage, error) {
	return nil, nil
}

func (r *fakeOutbox) Delete(context.Context, int64) error { return nil }

func (r *fakeOutbox) UpdateRetry(context.Context, int64, int, string, time.Time) error { return nil }

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestService(db *fakeDB) *StatusService {
	return MustNewStatusService(
		func(s *StatusService) { s.newUOW = db.newUOW },
		WithExchange("orders.test"),
		WithClock(func() time.Time { return now }),
	)
}

func seed(status order.Status) (*fakeDB, order.Order) {
	o := order.Order{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Status:    status,
		Rider:     &order.Rider{Name: "Adamu M.", Phone: "08011111111"},
		UpdatedAt: now.Add(-time.Hour),
	}

	return &fakeDB{orders: map[uuid.UUID]order.Order{o.ID: o}}, o
}

func TestUpdateStatus(t *testing.T) {
	db, o := seed(order.StatusConfirmed)
	svc := newTestService(db)

	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID:   o.ID,
		Status:    order.StatusPreparing,
		ChangedBy: "cafeteria_admin:1",
	})
	require.NoError(t, err)

	assert.Equal(t, order.StatusPreparing, updated.Status)
	assert.Equal(t, now, updated.UpdatedAt)
	assert.Equal(t, o.Rider, updated.Rider)
	assert.Equal(t, 1, db.committed)
	assert.Equal(t, order.StatusPreparing, db.orders[o.ID].Status)

	require.Len(t, db.logs, 1)
	assert.Equal(t, "cafeteria_admin:1", db.logs[0].ChangedBy)

	require.Len(t, db.outbox, 1)
	msg := db.outbox[0]
	assert.Equal(t, "orders.test", msg.ExchangeName)
	assert.Equal(t, orderevent.RoutingKey(o.UserID), msg.RoutingKey)
	assert.Equal(t, o.ID, msg.AggregateID)

	var ev orderevent.Updated
	require.NoError(t, json.Unmarshal(msg.Payload, &ev))
	assert.Equal(t, o.ID, ev.OrderID)
	assert.Equal(t, o.UserID, ev.UserID)
	assert.Equal(t, order.StatusPreparing, ev.Status)
	require.NotNil(t, ev.Rider)
	assert.Equal(t, "Adamu M.", ev.Rider.Name)
}

func TestUpdateStatus_ReplacesRider(t *testing.T) {
	db, o := seed(order.StatusPreparing)
	svc := newTestService(db)
	rider := &order.Rider{Name: "Emeka N.", Phone: "08099999999"}

	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID:   o.ID,
		Status:    order.StatusRiderAssigned,
		Rider:     rider,
		ChangedBy: "automation",
	})
	require.NoError(t, err)

	assert.Equal(t, *rider, *updated.Rider)
	assert.Equal(t, *rider, *db.orders[o.ID].Rider)
}

func TestUpdateStatus_Illegal(t *testing.T) {
	tests := []struct {
		from, to order.Status
	}{
		{order.StatusConfirmed, order.StatusDelivered},
		{order.StatusDelivered, order.StatusCancelled},
		{order.StatusOnTheWay, order.StatusPreparing},
		{order.StatusCancelled, order.StatusConfirmed},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			db, o := seed(tt.from)
			svc := newTestService(db)

			_, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
				OrderID: o.ID, Status: tt.to, ChangedBy: "admin",
			})

			require.ErrorIs(t, err, apperrors.ErrIllegalTransition)
			assert.Zero(t, db.committed)
			assert.Empty(t, db.outbox)
		})
	}
}

func TestUpdateStatus_Cancel(t *testing.T) {
	db, o := seed(order.StatusPreparing)
	svc := newTestService(db)

	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: o.ID, Status: order.StatusCancelled, ChangedBy: "admin",
	})

	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, updated.Status)
}

func TestUpdateStatus_Errors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		db, _ := seed(order.StatusConfirmed)
		_, err := newTestService(db).UpdateStatus(context.Background(), UpdateStatusRequest{
			OrderID: uuid.New(), Status: order.StatusPreparing, ChangedBy: "admin",
		})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("invalid status", func(t *testing.T) {
		db, o := seed(order.StatusConfirmed)
		_, err := newTestService(db).UpdateStatus(context.Background(), UpdateStatusRequest{
			OrderID: o.ID, Status: "lost", ChangedBy: "admin",
		})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("missing actor", func(t *testing.T) {
		db, o := seed(order.StatusConfirmed)
		_, err := newTestService(db).UpdateStatus(context.Background(), UpdateStatusRequest{
			OrderID: o.ID, Status: order.StatusPreparing,
		})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("update fails", func(t *testing.T) {
		db, o := seed(order.StatusConfirmed)
		db.updateErr = errors.New("boom")
		_, err := newTestService(db).UpdateStatus(context.Background(), UpdateStatusRequest{
			OrderID: o.ID, Status: order.StatusPreparing, ChangedBy: "admin",
		})
		assert.ErrorIs(t, err, apperrors.ErrPersistence)
		assert.Equal(t, order.StatusConfirmed, db.orders[o.ID].Status)
	})

	t.Run("outbox fails", func(t *testing.T) {
		db, o := seed(order.StatusConfirmed)
		db.outboxErr = errors.New("boom")
		_, err := newTestService(db).UpdateStatus(context.Background(), UpdateStatusRequest{
			OrderID: o.ID, Status: order.StatusPreparing, ChangedBy: "admin",
		})
		assert.ErrorIs(t, err, apperrors.ErrPersistence)
		assert.Zero(t, db.committed)
		assert.Empty(t, db.logs)
	})
}

func TestStaleOrders(t *testing.T) {
	db, o := seed(order.StatusConfirmed)
	svc := newTestService(db)

	orders, err := svc.StaleOrders(context.Background(), now, 10)
	require.NoError(t, err)

	require.Len(t, orders, 1)
	assert.Equal(t, o.ID, orders[0].ID)
	require.NotNil(t, db.lastQuery)
	assert.Equal(t, 10, db.lastQuery.Limit)
	assert.NotContains(t, db.lastQuery.Statuses, order.StatusDelivered)
	assert.NotContains(t, db.lastQuery.Statuses, order.StatusCancelled)
}

func TestListOrders(t *testing.T) {
	db, o := seed(order.StatusPreparing)
	svc := newTestService(db)

	orders, err := svc.ListOrders(context.Background(), &order.QueryOrdersModel{
		Statuses: []order.Status{order.StatusPreparing},
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, o.ID, orders[0].ID)

	orders, err = svc.ListOrders(context.Background(), &order.QueryOrdersModel{
		Statuses: []order.Status{order.StatusDelivered},
	})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

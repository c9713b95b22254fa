//go:build integration

package uow_test

import (
	"context"
	"testing"
	"time"

	"github.com/emmy19999/bingham-bites/internal/dal/postgres"
	"github.com/emmy19999/bingham-bites/internal/dal/uow"
	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/cart"
	"github.com/emmy19999/bingham-bites/internal/service/dispatch"
	"github.com/emmy19999/bingham-bites/internal/service/identity"
	"github.com/emmy19999/bingham-bites/internal/service/models/menuitem"
	"github.com/emmy19999/bingham-bites/internal/service/models/money"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/emmy19999/bingham-bites/internal/service/models/user"
	"github.com/emmy19999/bingham-bites/internal/service/services/destinationsvc"
	"github.com/emmy19999/bingham-bites/internal/service/services/ordersvc"
	"github.com/emmy19999/bingham-bites/internal/service/services/statussvc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("bingham_bites"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := postgres.NewClient(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	require.NoError(t, client.Migrate(""))

	return client
}

func TestPostgres_OrderLifecycle(t *testing.T) {
	client := startPostgres(t)
	ctx := context.Background()

	destinations := destinationsvc.MustNewDestinationService(destinationsvc.WithPostgresClient(client))
	hostels, err := destinations.List(ctx)
	require.NoError(t, err)
	require.Len(t, hostels, 8)

	var newBoys *int
	for i, h := range hostels {
		if h.Name == "New Boys Hostel" {
			newBoys = &i
		}
	}
	require.NotNil(t, newBoys)
	hostel := hostels[*newBoys]
	assert.Equal(t, money.Naira(250), hostel.DeliveryFee)
	assert.Equal(t, 7, hostel.ExtraMinutes)

	idp := identity.NewProvider()
	student := user.User{ID: uuid.New(), Role: user.RoleStudent}
	idp.Login(student)

	orders := ordersvc.MustNewOrderService(
		ordersvc.WithPostgresClient(client),
		ordersvc.WithIdentity(idp),
		ordersvc.WithAssigner(dispatch.NewSimulated(dispatch.WithSeed(1, 2))),
	)

	cafeteriaID := uuid.New()
	lines := []cart.Line{
		{Item: menuitem.MenuItem{ID: uuid.New(), Name: "Jollof Rice", Price: money.Naira(1500)}, Quantity: 2, CafeteriaID: cafeteriaID, CafeteriaName: "Main"},
		{Item: menuitem.MenuItem{ID: uuid.New(), Name: "Fried Chicken", Price: money.Naira(800)}, Quantity: 1, SpecialInstructions: "extra pepper", CafeteriaID: cafeteriaID, CafeteriaName: "Main"},
	}

	placed, err := orders.PlaceOrder(ctx, ordersvc.PlaceOrderRequest{
		Lines:                   lines,
		Subtotal:                cart.Subtotal(lines),
		DeliveryFee:             hostel.DeliveryFee,
		DestinationName:         hostel.Name,
		DestinationExtraMinutes: hostel.ExtraMinutes,
		PaymentMethod:           order.PaymentTransfer,
	})
	require.NoError(t, err)
	assert.Equal(t, money.Naira(4050), placed.Total)
	assert.Equal(t, order.StatusConfirmed, placed.Status)
	require.Len(t, placed.OrderItems, 2)

	fetched, err := orders.FetchOrders(ctx)
	require.NoError(t, err)
	require.Len(t, fetched, 1)
	assert.Equal(t, placed.ID, fetched[0].ID)
	assert.Len(t, fetched[0].OrderItems, 2)

	statuses := statussvc.MustNewStatusService(
		statussvc.WithPostgresClient(client),
		statussvc.WithExchange("orders.updates"),
	)

	_, err = statuses.UpdateStatus(ctx, statussvc.UpdateStatusRequest{
		OrderID:   placed.ID,
		Status:    order.StatusDelivered,
		ChangedBy: "automation",
	})
	require.ErrorIs(t, err, apperrors.ErrIllegalTransition)

	updated, err := statuses.UpdateStatus(ctx, statussvc.UpdateStatusRequest{
		OrderID:   placed.ID,
		Status:    order.StatusPreparing,
		ChangedBy: "automation",
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPreparing, updated.Status)

	history, err := orders.StatusHistory(ctx, placed.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, order.StatusConfirmed, history[0].Status)
	assert.Equal(t, order.StatusPreparing, history[1].Status)

	work := uow.NewUnitOfWork(client.Pool())
	require.NoError(t, work.Begin(ctx))
	pending, err := work.OutboxRepository().GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, work.Rollback(ctx))
	require.Len(t, pending, 1)
	assert.Equal(t, placed.ID, pending[0].AggregateID)
}

func TestUnitOfWork_RollbackDiscardsWrites(t *testing.T) {
	client := startPostgres(t)
	ctx := context.Background()

	work := uow.NewUnitOfWork(client.Pool())
	require.NoError(t, work.Begin(ctx))

	o, err := work.OrderRepository().Insert(ctx, order.Order{
		UserID:        uuid.New(),
		CafeteriaID:   uuid.New(),
		CafeteriaName: "Main",
		Subtotal:      money.Naira(1000),
		DeliveryFee:   money.Naira(200),
		Total:         money.Naira(1200),
		Destination:   "Old Boys Hostel",
		PaymentMethod: order.PaymentCash,
		Status:        order.StatusConfirmed,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, o.ID)

	require.NoError(t, work.Rollback(ctx))
	// a second rollback is a no-op
	require.NoError(t, work.Rollback(ctx))

	found, err := uow.NewUnitOfWork(client.Pool()).OrderRepository().Query(ctx, &order.QueryOrdersModel{
		Ids: []uuid.UUID{o.ID},
	})
	require.NoError(t, err)
	assert.Empty(t, found)
}

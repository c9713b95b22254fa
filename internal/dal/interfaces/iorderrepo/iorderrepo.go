package iorderrepo

import (
	"context"
	"time"

	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/google/uuid"
)

// IOrderRepository is an interface for order postgres repository.
type IOrderRepository interface {
	Insert(ctx context.Context, o order.Order) (order.Order, error)
	Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (order.Order, error)
	UpdateStatus(
		ctx context.Context,
		id uuid.UUID,
		status order.Status,
		rider *order.Rider,
		updatedAt time.Time,
	) error
}

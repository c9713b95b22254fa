package statuslog

import (
	"time"

	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/google/uuid"
)

// StatusLog is an audit entry for an order status change.
type StatusLog struct {
	ID        uuid.UUID    `json:"id"`
	OrderID   uuid.UUID    `json:"orderId"`
	Status    order.Status `json:"status"`
	ChangedBy string       `json:"changedBy"`
	Note      *string      `json:"note,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

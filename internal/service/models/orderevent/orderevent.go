package orderevent

import (
	"time"

	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/google/uuid"
)

// Updated carries the new mutable fields of an order after a status change.
// Producers publish the full values, not a diff.
type Updated struct {
	OrderID   uuid.UUID    `json:"orderId"`
	UserID    uuid.UUID    `json:"userId"`
	Status    order.Status `json:"status"`
	Rider     *order.Rider `json:"rider,omitempty"`
	ChangedBy string       `json:"changedBy"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// RoutingKey is the per-user topic an update is published under.
func RoutingKey(userID uuid.UUID) string {
	return "orders." + userID.String() + ".updated"
}

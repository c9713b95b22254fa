package order

import (
	"time"

	"github.com/emmy19999/bingham-bites/internal/service/models/money"
	"github.com/emmy19999/bingham-bites/internal/service/models/orderitem"
	"github.com/google/uuid"
)

// Rider is the courier assigned to an order.
type Rider struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Order is the durable record of a checkout.
type Order struct {
	ID                uuid.UUID             `json:"id"`
	UserID            uuid.UUID             `json:"userId"`
	CafeteriaID       uuid.UUID             `json:"cafeteriaId"`
	CafeteriaName     string                `json:"cafeteriaName"`
	Subtotal          money.Amount          `json:"subtotalKobo"`
	DeliveryFee       money.Amount          `json:"deliveryFeeKobo"`
	Total             money.Amount          `json:"totalKobo"`
	Destination       string                `json:"destination"`
	PaymentMethod     PaymentMethod         `json:"paymentMethod"`
	Status            Status                `json:"status"`
	EstimatedDelivery int                   `json:"estimatedDeliveryMinutes"`
	Rider             *Rider                `json:"rider,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
	OrderItems        []orderitem.OrderItem `json:"orderItems"`
}

// Clone returns a deep copy so callers cannot reach shared state.
func (o Order) Clone() Order {
	c := o
	if o.Rider != nil {
		r := *o.Rider
		c.Rider = &r
	}
	if o.OrderItems != nil {
		c.OrderItems = make([]orderitem.OrderItem, len(o.OrderItems))
		for i, item := range o.OrderItems {
			c.OrderItems[i] = item.Clone()
		}
	}

	return c
}

package orderitem

import (
	"time"

	"github.com/emmy19999/bingham-bites/internal/service/models/money"
	"github.com/google/uuid"
)

// OrderItem is a line frozen into an order at placement time.
type OrderItem struct {
	ID                  uuid.UUID    `json:"id"`
	OrderID             uuid.UUID    `json:"orderId"`
	MenuItemID          uuid.UUID    `json:"menuItemId"`
	Name                string       `json:"name"`
	Price               money.Amount `json:"priceKobo"`
	Quantity            int          `json:"quantity"`
	SpecialInstructions *string      `json:"specialInstructions,omitempty"`
	CreatedAt           time.Time    `json:"createdAt"`
}

// LineTotal is price times quantity.
func (oi OrderItem) LineTotal() money.Amount {
	return oi.Price.Mul(oi.Quantity)
}

func (oi OrderItem) Clone() OrderItem {
	c := oi
	if oi.SpecialInstructions != nil {
		s := *oi.SpecialInstructions
		c.SpecialInstructions = &s
	}

	return c
}

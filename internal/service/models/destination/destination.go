package destination

import (
	"github.com/emmy19999/bingham-bites/internal/service/models/money"
	"github.com/google/uuid"
)

// Destination is a hostel orders can be delivered to.
type Destination struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	DeliveryFee  money.Amount `json:"deliveryFeeKobo"`
	ExtraMinutes int          `json:"extraMinutes"`
	IsActive     bool         `json:"isActive"`
}

// Valid reports whether the destination can be priced and delivered to.
func (d *Destination) Valid() bool {
	return d != nil &&
		d.Name != "" &&
		d.IsActive &&
		!d.DeliveryFee.IsNegative() &&
		d.ExtraMinutes >= 0
}

// Package pricing turns a cart subtotal and a chosen hostel into a quote.
package pricing

import (
	"github.com/emmy19999/bingham-bites/internal/service/models/destination"
	"github.com/emmy19999/bingham-bites/internal/service/models/money"
)

// Quote is the price breakdown shown before checkout.
type Quote struct {
	Subtotal     money.Amount             `json:"subtotalKobo"`
	DeliveryFee  money.Amount             `json:"deliveryFeeKobo"`
	Total        money.Amount             `json:"totalKobo"`
	Destination  *destination.Destination `json:"destination,omitempty"`
	ExtraMinutes int                      `json:"extraMinutes"`
	// Ready is false until a valid destination is chosen; checkout refuses
	// a quote that is not ready.
	Ready bool `json:"ready"`
}

// Resolve prices subtotal for dest. A nil or invalid destination yields a zero
// fee and a quote that is not ready.
func Resolve(subtotal money.Amount, dest *destination.Destination) Quote {
	if !dest.Valid() {
		return Quote{
			Subtotal: subtotal,
			Total:    subtotal,
		}
	}

	d := *dest

	return Quote{
		Subtotal:     subtotal,
		DeliveryFee:  d.DeliveryFee,
		Total:        subtotal.Add(d.DeliveryFee),
		Destination:  &d,
		ExtraMinutes: d.ExtraMinutes,
		Ready:        true,
	}
}

package menuitem

import (
	"github.com/emmy19999/bingham-bites/internal/service/models/money"
	"github.com/google/uuid"
)

// MenuItem is a snapshot of a catalog item taken when it enters the cart.
// Catalog price changes never reach an existing snapshot.
type MenuItem struct {
	ID              uuid.UUID    `json:"id"`
	Name            string       `json:"name"`
	Description     *string      `json:"description,omitempty"`
	Price           money.Amount `json:"priceKobo"`
	PreparationTime *int         `json:"preparationTime,omitempty"`
}

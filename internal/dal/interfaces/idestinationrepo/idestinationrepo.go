package idestinationrepo

import (
	"context"

	"github.com/emmy19999/bingham-bites/internal/service/models/destination"
	"github.com/google/uuid"
)

// IDestinationRepository reads hostel reference data.
type IDestinationRepository interface {
	Get(ctx context.Context, id uuid.UUID) (destination.Destination, error)
	// List returns active destinations ordered by name.
	List(ctx context.Context) ([]destination.Destination, error)
}

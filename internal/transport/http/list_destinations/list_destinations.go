package listdestinations

import (
	"context"
	"net/http"

	"github.com/emmy19999/bingham-bites/internal/service/models/destination"
	"github.com/emmy19999/bingham-bites/internal/transport/http/httpx"
)

type service interface {
	List(ctx context.Context) ([]destination.Destination, error)
}

// ListDestinations returns the hostels currently accepting deliveries.
func ListDestinations(w http.ResponseWriter, r *http.Request, service service) {
	destinations, err := service.List(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, destinations)
}

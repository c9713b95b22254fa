package updatestatus

import (
	"context"
	"net/http"

	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/emmy19999/bingham-bites/internal/service/services/statussvc"
	"github.com/emmy19999/bingham-bites/internal/transport/http/httpx"
)

type service interface {
	UpdateStatus(ctx context.Context, req statussvc.UpdateStatusRequest) (order.Order, error)
}

type riderRequest struct {
	Name  string `json:"name"  validate:"required"`
	Phone string `json:"phone" validate:"required,numeric,min=10,max=14"`
}

type updateStatusRequest struct {
	Status string        `json:"status" validate:"required"`
	Rider  *riderRequest `json:"rider"`
	Note   *string       `json:"note"   validate:"omitempty,max=500"`
}

// UpdateStatus moves an order along its lifecycle on behalf of cafeteria
// staff. Illegal transitions are refused with 409.
func UpdateStatus(w http.ResponseWriter, r *http.Request, service service) {
	u, ok := httpx.UserFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, apperrors.ErrAuthenticationRequired)
		return
	}

	orderID, err := httpx.PathUUID(r, "orderID")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	req := updateStatusRequest{}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	status, err := order.ParseStatus(req.Status)
	if err != nil {
		httpx.WriteError(w, r, apperrors.Validation("%v: %q", err, req.Status))
		return
	}

	var rider *order.Rider
	if req.Rider != nil {
		rider = &order.Rider{Name: req.Rider.Name, Phone: req.Rider.Phone}
	}

	updated, err := service.UpdateStatus(r.Context(), statussvc.UpdateStatusRequest{
		OrderID:   orderID,
		Status:    status,
		Rider:     rider,
		ChangedBy: string(u.Role) + ":" + u.ID.String(),
		Note:      req.Note,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, updated)
}

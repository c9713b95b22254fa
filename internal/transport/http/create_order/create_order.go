package createorder

import (
	"net/http"

	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/emmy19999/bingham-bites/internal/transport/http/httpx"
	"github.com/google/uuid"
)

// createOrderRequest represents a checkout of the session cart.
type createOrderRequest struct {
	DestinationID uuid.UUID `json:"destinationId" validate:"required"`
	PaymentMethod string    `json:"paymentMethod" validate:"required,oneof=card transfer cash"`
}

type quoteRequest struct {
	DestinationID uuid.UUID `schema:"destinationId"`
}

// CreateOrder pays for and places the session cart. The cart is cleared only
// when the order is stored.
func CreateOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := httpx.SessionFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, apperrors.ErrAuthenticationRequired)
		return
	}

	req := createOrderRequest{}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	method, err := order.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		httpx.WriteError(w, r, apperrors.Validation("%v", err))
		return
	}

	result, err := s.Checkout(r.Context(), req.DestinationID, method)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, result)
}

// Quote prices the session cart for a destination. Without a destination the
// quote is returned with ready=false.
func Quote(w http.ResponseWriter, r *http.Request) {
	s, ok := httpx.SessionFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, apperrors.ErrAuthenticationRequired)
		return
	}

	req := quoteRequest{}
	if err := httpx.DecodeQuery(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	quote, err := s.Quote(r.Context(), req.DestinationID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, quote)
}

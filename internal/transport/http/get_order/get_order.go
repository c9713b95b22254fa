package getorder

import (
	"net/http"

	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/transport/http/httpx"
)

// CurrentOrder returns the order being tracked by the session.
func CurrentOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := httpx.SessionFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, apperrors.ErrAuthenticationRequired)
		return
	}

	o, ok := s.Orders().CurrentOrder()
	if !ok {
		httpx.WriteError(w, r, apperrors.ErrNotFound)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, o)
}

func GetOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := httpx.SessionFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, apperrors.ErrAuthenticationRequired)
		return
	}

	orderID, err := httpx.PathUUID(r, "orderID")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	o, ok := s.Orders().Order(orderID)
	if !ok {
		httpx.WriteError(w, r, apperrors.ErrNotFound)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, o)
}

// History returns the status log of one of the session's orders.
func History(w http.ResponseWriter, r *http.Request) {
	s, ok := httpx.SessionFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, apperrors.ErrAuthenticationRequired)
		return
	}

	orderID, err := httpx.PathUUID(r, "orderID")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	logs, err := s.Orders().StatusHistory(r.Context(), orderID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, logs)
}

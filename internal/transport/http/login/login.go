package login

import (
	"context"
	"net/http"

	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/cart"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/emmy19999/bingham-bites/internal/service/models/user"
	"github.com/emmy19999/bingham-bites/internal/service/session"
	"github.com/emmy19999/bingham-bites/internal/transport/http/httpx"
	"github.com/google/uuid"
)

type sessions interface {
	Open(ctx context.Context, u user.User) (*session.Session, error)
	Close(userID uuid.UUID) bool
}

type sessionResponse struct {
	User   user.User     `json:"user"`
	Cart   cart.Snapshot `json:"cart"`
	Orders []order.Order `json:"orders"`
}

// Login opens (or resumes) the caller's session and returns its state.
func Login(w http.ResponseWriter, r *http.Request, sessions sessions) {
	u, ok := httpx.UserFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, apperrors.ErrAuthenticationRequired)
		return
	}

	s, err := sessions.Open(r.Context(), u)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, sessionResponse{
		User:   s.User(),
		Cart:   s.Cart().Snapshot(),
		Orders: s.Orders().Orders(),
	})
}

// Logout tears the caller's session down.
func Logout(w http.ResponseWriter, r *http.Request, sessions sessions) {
	u, ok := httpx.UserFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, apperrors.ErrAuthenticationRequired)
		return
	}

	if !sessions.Close(u.ID) {
		httpx.WriteError(w, r, apperrors.ErrAuthenticationRequired)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

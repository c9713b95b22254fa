package listorders

import (
	"context"
	"net/http"

	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/emmy19999/bingham-bites/internal/transport/http/httpx"
	"github.com/google/uuid"
)

type adminService interface {
	ListOrders(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)
}

type listOrdersRequest struct {
	Refresh bool `schema:"refresh"`
}

type queryOrdersRequest struct {
	Ids      []uuid.UUID `schema:"ids"`
	UserIds  []uuid.UUID `schema:"userIds"`
	Statuses []string    `schema:"statuses" validate:"dive,oneof=pending confirmed preparing rider_assigned on_the_way delivered cancelled"`
	Limit    int         `schema:"limit"    validate:"gte=0,lte=200"`
	Offset   int         `schema:"offset"   validate:"gte=0"`
}

func (q *queryOrdersRequest) ToModel() *order.QueryOrdersModel {
	statuses := make([]order.Status, 0, len(q.Statuses))
	for _, s := range q.Statuses {
		statuses = append(statuses, order.Status(s))
	}
	limit := q.Limit
	if limit == 0 {
		limit = 50
	}

	return &order.QueryOrdersModel{
		Ids:      q.Ids,
		UserIds:  q.UserIds,
		Statuses: statuses,
		Limit:    limit,
		Offset:   q.Offset,
	}
}

// ListOrders returns the session's orders, most recent first. With
// refresh=true they are reloaded from storage first.
func ListOrders(w http.ResponseWriter, r *http.Request) {
	s, ok := httpx.SessionFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, apperrors.ErrAuthenticationRequired)
		return
	}

	query := listOrdersRequest{}
	if err := httpx.DecodeQuery(r, &query); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	if query.Refresh {
		orders, err := s.Orders().FetchOrders(r.Context())
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, orders)

		return
	}

	httpx.WriteJSON(w, http.StatusOK, s.Orders().Orders())
}

// ListAllOrders is the cafeteria board: order headers across all students.
func ListAllOrders(w http.ResponseWriter, r *http.Request, service adminService) {
	query := queryOrdersRequest{}
	if err := httpx.DecodeQuery(r, &query); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	orders, err := service.ListOrders(r.Context(), query.ToModel())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orders)
}

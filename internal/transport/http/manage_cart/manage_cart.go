package managecart

import (
	"net/http"
	"slices"

	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/cart"
	"github.com/emmy19999/bingham-bites/internal/service/models/menuitem"
	"github.com/emmy19999/bingham-bites/internal/service/models/money"
	"github.com/emmy19999/bingham-bites/internal/transport/http/httpx"
	"github.com/google/uuid"
)

// menuItemRequest is a catalog item as the menu screen sends it. Price is in
// naira, e.g. "1500" or "1500.50".
type menuItemRequest struct {
	ID              uuid.UUID `json:"id"              validate:"required"`
	Name            string    `json:"name"            validate:"required"`
	Description     *string   `json:"description"`
	Price           string    `json:"price"           validate:"required"`
	PreparationTime *int      `json:"preparationTime" validate:"omitempty,gte=0"`
}

func (m *menuItemRequest) toModel() (menuitem.MenuItem, error) {
	price, err := money.Parse(m.Price)
	if err != nil {
		return menuitem.MenuItem{}, apperrors.Validation("invalid price: %v", err)
	}

	return menuitem.MenuItem{
		ID:              m.ID,
		Name:            m.Name,
		Description:     m.Description,
		Price:           price,
		PreparationTime: m.PreparationTime,
	}, nil
}

type addItemRequest struct {
	Item          menuItemRequest `json:"item"          validate:"required"`
	CafeteriaID   uuid.UUID       `json:"cafeteriaId"   validate:"required"`
	CafeteriaName string          `json:"cafeteriaName" validate:"required"`
}

type updateItemRequest struct {
	Quantity            *int    `json:"quantity"            validate:"omitempty,lte=99"`
	SpecialInstructions *string `json:"specialInstructions" validate:"omitempty,max=500"`
}

func GetCart(w http.ResponseWriter, r *http.Request) {
	c, ok := sessionCart(w, r)
	if !ok {
		return
	}

	httpx.WriteJSON(w, http.StatusOK, c.Snapshot())
}

func AddItem(w http.ResponseWriter, r *http.Request) {
	c, ok := sessionCart(w, r)
	if !ok {
		return
	}

	req := addItemRequest{}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	item, err := req.Item.toModel()
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	if err := c.AddItem(item, req.CafeteriaID, req.CafeteriaName); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, c.Snapshot())
}

// UpdateItem changes quantity and/or instructions of a line. A quantity of
// zero or less removes the line.
func UpdateItem(w http.ResponseWriter, r *http.Request) {
	c, ok := sessionCart(w, r)
	if !ok {
		return
	}

	itemID, err := httpx.PathUUID(r, "itemID")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	req := updateItemRequest{}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if req.Quantity == nil && req.SpecialInstructions == nil {
		httpx.WriteError(w, r, apperrors.Validation("quantity or specialInstructions is required"))
		return
	}

	if !slices.ContainsFunc(c.Lines(), func(l cart.Line) bool { return l.Item.ID == itemID }) {
		httpx.WriteError(w, r, apperrors.ErrNotFound)
		return
	}

	if req.SpecialInstructions != nil {
		c.UpdateInstructions(itemID, *req.SpecialInstructions)
	}
	if req.Quantity != nil {
		c.UpdateQuantity(itemID, *req.Quantity)
	}

	httpx.WriteJSON(w, http.StatusOK, c.Snapshot())
}

func RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, ok := sessionCart(w, r)
	if !ok {
		return
	}

	itemID, err := httpx.PathUUID(r, "itemID")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	c.RemoveItem(itemID)
	httpx.WriteJSON(w, http.StatusOK, c.Snapshot())
}

func ClearCart(w http.ResponseWriter, r *http.Request) {
	c, ok := sessionCart(w, r)
	if !ok {
		return
	}

	c.Clear()
	httpx.WriteJSON(w, http.StatusOK, c.Snapshot())
}

func sessionCart(w http.ResponseWriter, r *http.Request) (*cart.Cart, bool) {
	s, ok := httpx.SessionFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, apperrors.ErrAuthenticationRequired)
		return nil, false
	}

	return s.Cart(), true
}

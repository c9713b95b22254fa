// Package cart holds the student's in-progress selection before checkout.
package cart

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/models/menuitem"
	"github.com/emmy19999/bingham-bites/internal/service/models/money"
	"github.com/google/uuid"
)

// DefaultJustAddedFor is how long an item stays flagged after AddItem.
const DefaultJustAddedFor = 800 * time.Millisecond

// MaxQuantity caps a single line; UpdateQuantity clamps to it.
const MaxQuantity = 99

var (
	// ErrMixedCafeteria is returned when an item from a second cafeteria is added.
	ErrMixedCafeteria = fmt.Errorf("%w: cart already holds items from another cafeteria", apperrors.ErrValidation)
	ErrQuantityLimit  = fmt.Errorf("%w: line quantity is capped at %d", apperrors.ErrValidation, MaxQuantity)
	ErrPriceRange     = fmt.Errorf("%w: item price is out of range", apperrors.ErrValidation)
)

// Line is one distinct menu item in the cart.
type Line struct {
	Item                menuitem.MenuItem `json:"item"`
	Quantity            int               `json:"quantity"`
	SpecialInstructions string            `json:"specialInstructions,omitempty"`
	CafeteriaID         uuid.UUID         `json:"cafeteriaId"`
	CafeteriaName       string            `json:"cafeteriaName"`
}

// LineTotal is unit price times quantity.
func (l Line) LineTotal() money.Amount {
	return l.Item.Price.Mul(l.Quantity)
}

// Snapshot is an immutable view of the cart.
type Snapshot struct {
	Lines      []Line       `json:"lines"`
	TotalItems int          `json:"totalItems"`
	Subtotal   money.Amount `json:"subtotalKobo"`
	JustAdded  *uuid.UUID   `json:"justAdded,omitempty"`
}

// Subtotal sums price times quantity over lines.
func Subtotal(lines []Line) money.Amount {
	var total money.Amount
	for _, l := range lines {
		total = total.Add(l.LineTotal())
	}

	return total
}

// TotalItems sums quantities over lines.
func TotalItems(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}

	return n
}

// Cart is safe for concurrent use. Mutations and the observer notifications
// they trigger are serialized, so observers see changes in call order.
// Observers must not mutate the cart.
type Cart struct {
	opMu sync.Mutex // serializes mutation + notification
	mu   sync.RWMutex

	lines []Line

	justAdded    *uuid.UUID
	justAddedGen uint64
	justAddedFor time.Duration
	timer        *time.Timer

	observers  map[int]func(Snapshot)
	observerID int
}

// option is a function that configures the Cart.
type option func(*Cart)

// WithJustAddedFor overrides the just-added flag lifetime.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithJustAddedFor(d time.Duration) option {
	return func(c *Cart) {
		c.justAddedFor = d
	}
}

// New creates an empty cart.
func New(opts ...option) *Cart {
	c := &Cart{
		justAddedFor: DefaultJustAddedFor,
		observers:    make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// AddItem increments the line for item.ID or appends a new line.
func (c *Cart) AddItem(item menuitem.MenuItem, cafeteriaID uuid.UUID, cafeteriaName string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !item.Price.InRange() {
		return ErrPriceRange
	}

	c.mu.Lock()
	if len(c.lines) > 0 && c.lines[0].CafeteriaID != cafeteriaID {
		c.mu.Unlock()
		return ErrMixedCafeteria
	}

	if i := c.indexOf(item.ID); i >= 0 {
		if c.lines[i].Quantity >= MaxQuantity {
			c.mu.Unlock()
			return ErrQuantityLimit
		}
		c.lines[i].Quantity++
	} else {
		c.lines = append(c.lines, Line{
			Item:          item,
			Quantity:      1,
			CafeteriaID:   cafeteriaID,
			CafeteriaName: cafeteriaName,
		})
	}
	c.markJustAdded(item.ID)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)

	return nil
}

// RemoveItem drops the line for itemID if present.
func (c *Cart) RemoveItem(itemID uuid.UUID) {
	c.mutate(func() bool {
		i := c.indexOf(itemID)
		if i < 0 {
			return false
		}
		c.lines = slices.Delete(c.lines, i, i+1)

		return true
	})
}

// UpdateQuantity sets the absolute quantity, clamped to MaxQuantity; zero or
// less removes the line.
func (c *Cart) UpdateQuantity(itemID uuid.UUID, quantity int) {
	if quantity <= 0 {
		c.RemoveItem(itemID)
		return
	}
	quantity = min(quantity, MaxQuantity)

	c.mutate(func() bool {
		i := c.indexOf(itemID)
		if i < 0 {
			return false
		}
		c.lines[i].Quantity = quantity

		return true
	})
}

// UpdateInstructions sets free-text instructions on a line if present.
func (c *Cart) UpdateInstructions(itemID uuid.UUID, text string) {
	c.mutate(func() bool {
		i := c.indexOf(itemID)
		if i < 0 {
			return false
		}
		c.lines[i].SpecialInstructions = text

		return true
	})
}

// Deduct takes ordered lines out of the cart: each matching line loses the
// ordered quantity and is dropped when nothing is left. Units added after
// the lines were read stay in the cart.
func (c *Cart) Deduct(ordered []Line) {
	c.mutate(func() bool {
		changed := false
		for _, o := range ordered {
			i := c.indexOf(o.Item.ID)
			if i < 0 {
				continue
			}
			changed = true
			if c.lines[i].Quantity > o.Quantity {
				c.lines[i].Quantity -= o.Quantity
				continue
			}
			c.lines = slices.Delete(c.lines, i, i+1)
		}

		return changed
	})
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mutate(func() bool {
		c.lines = nil
		return true
	})
}

// Lines returns a copy of the current lines in insertion order.
func (c *Cart) Lines() []Line {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.lines)
}

func (c *Cart) TotalItems() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return TotalItems(c.lines)
}

func (c *Cart) Subtotal() money.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Subtotal(c.lines)
}

// JustAdded returns the item flagged by the latest AddItem, if still fresh.
func (c *Cart) JustAdded() (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.justAdded == nil {
		return uuid.Nil, false
	}

	return *c.justAdded, true
}

func (c *Cart) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.snapshotLocked()
}

// Subscribe registers fn for every change and returns its cancel func.
func (c *Cart) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.observerID
	c.observerID++
	c.observers[id] = fn
	c.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

// Close stops the just-added timer.
func (c *Cart) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// mutate applies fn under the locks and notifies observers if it changed anything.
func (c *Cart) mutate(fn func() bool) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	changed := fn()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if changed {
		c.notify(snap)
	}
}

func (c *Cart) notify(snap Snapshot) {
	c.mu.RLock()
	observers := make([]func(Snapshot), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.RUnlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func (c *Cart) indexOf(itemID uuid.UUID) int {
	return slices.IndexFunc(c.lines, func(l Line) bool {
		return l.Item.ID == itemID
	})
}

// markJustAdded must be called with mu held.
func (c *Cart) markJustAdded(itemID uuid.UUID) {
	if c.justAddedFor <= 0 {
		return
	}

	id := itemID
	c.justAdded = &id
	c.justAddedGen++
	gen := c.justAddedGen

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.justAddedFor, func() {
		c.opMu.Lock()
		defer c.opMu.Unlock()

		c.mu.Lock()
		if c.justAddedGen != gen {
			c.mu.Unlock()
			return
		}
		c.justAdded = nil
		snap := c.snapshotLocked()
		c.mu.Unlock()

		c.notify(snap)
	})
}

func (c *Cart) snapshotLocked() Snapshot {
	snap := Snapshot{
		Lines:      slices.Clone(c.lines),
		TotalItems: TotalItems(c.lines),
		Subtotal:   Subtotal(c.lines),
	}
	if c.justAdded != nil {
		id := *c.justAdded
		snap.JustAdded = &id
	}

	return snap
}

// Package statussync keeps a session's order collection in step with status
// changes pushed by the backend.
package statussync

import (
	"context"
	"log/slog"
	"time"

	"github.com/emmy19999/bingham-bites/internal/dal/realtime"
	"github.com/emmy19999/bingham-bites/internal/service/identity"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/emmy19999/bingham-bites/internal/service/models/orderevent"
	"github.com/google/uuid"
)

const DefaultRetryDelay = 5 * time.Second

type identityWatcher interface {
	Watch() (<-chan identity.Change, func())
}

type subscriber interface {
	Subscribe(ctx context.Context, userID uuid.UUID) (realtime.Subscription, error)
}

type orderUpdater interface {
	ApplyUpdate(ev orderevent.Updated) (order.Status, bool)
}

// Synchronizer subscribes on login, applies every delivered update and
// releases the subscription on logout or when Run returns.
type Synchronizer struct {
	identity   identityWatcher
	subscriber subscriber
	orders     orderUpdater
	retryDelay time.Duration
}

// option is a function that configures the Synchronizer.
type option func(*Synchronizer)

//goland:noinspection GoExportedFuncWithUnexportedType
func WithIdentity(w identityWatcher) option {
	return func(s *Synchronizer) {
		s.identity = w
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithSubscriber(sub subscriber) option {
	return func(s *Synchronizer) {
		s.subscriber = sub
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrders(o orderUpdater) option {
	return func(s *Synchronizer) {
		s.orders = o
	}
}

// WithRetryDelay sets the wait before resubscribing after a failure.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithRetryDelay(d time.Duration) option {
	return func(s *Synchronizer) {
		s.retryDelay = d
	}
}

// MustNewSynchronizer creates a new Synchronizer.
func MustNewSynchronizer(opts ...option) *Synchronizer {
	s := &Synchronizer{
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.identity == nil || s.subscriber == nil || s.orders == nil {
		panic("statussync: identity, subscriber and orders are required")
	}

	return s
}

// Run blocks until ctx is done or the identity watch ends.
func (s *Synchronizer) Run(ctx context.Context) error {
	changes, stopWatch := s.identity.Watch()
	defer stopWatch()

	l := &loop{Synchronizer: s}
	defer l.release()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c, ok := <-changes:
			if !ok {
				return nil
			}
			l.onIdentity(ctx, c)

		case ev, ok := <-l.events:
			if !ok {
				slog.Warn("Realtime subscription ended unexpectedly", "user_id", l.userID)
				user := l.userID
				l.release()
				l.scheduleRetry(user)

				continue
			}
			s.apply(ev)

		case <-l.retry:
			l.retry = nil
			if l.sub == nil && l.pending != uuid.Nil {
				l.subscribe(ctx, l.pending)
			}
		}
	}
}

func (s *Synchronizer) apply(ev orderevent.Updated) {
	prev, applied := s.orders.ApplyUpdate(ev)
	if !applied {
		slog.Debug("Ignored order update", "order_id", ev.OrderID, "status", ev.Status)
		return
	}
	if prev == ev.Status {
		slog.Info("Order details synced", "order_id", ev.OrderID, "status", ev.Status)
		return
	}

	if !prev.CanTransitionTo(ev.Status) {
		slog.Warn("Applied out-of-sequence order status",
			"order_id", ev.OrderID,
			"from", prev,
			"to", ev.Status,
			"illegal_transition", true,
		)

		return
	}

	slog.Info("Order status synced", "order_id", ev.OrderID, "from", prev, "to", ev.Status)
}

// loop holds the state owned by Run's goroutine.
type loop struct {
	*Synchronizer

	sub     realtime.Subscription
	events  <-chan orderevent.Updated
	userID  uuid.UUID
	pending uuid.UUID
	retry   <-chan time.Time
}

func (l *loop) onIdentity(ctx context.Context, c identity.Change) {
	if !c.LoggedIn {
		l.pending = uuid.Nil
		l.retry = nil
		l.release()

		return
	}

	if l.sub != nil && l.userID == c.User.ID {
		return
	}

	l.release()
	l.subscribe(ctx, c.User.ID)
}

func (l *loop) subscribe(ctx context.Context, userID uuid.UUID) {
	sub, err := l.subscriber.Subscribe(ctx, userID)
	if err != nil {
		slog.Error("Failed to subscribe to order updates", "user_id", userID, "error", err)
		l.scheduleRetry(userID)

		return
	}

	l.sub = sub
	l.events = sub.Events()
	l.userID = userID
	l.pending = uuid.Nil
}

func (l *loop) scheduleRetry(userID uuid.UUID) {
	l.pending = userID
	l.retry = time.After(l.retryDelay)
}

// release closes the current subscription once.
func (l *loop) release() {
	if l.sub == nil {
		return
	}

	if err := l.sub.Close(); err != nil {
		slog.Warn("Failed to close order updates subscription", "user_id", l.userID, "error", err)
	}

	l.sub = nil
	l.events = nil
	l.userID = uuid.Nil
}

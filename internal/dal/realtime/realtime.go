// Package realtime subscribes a session to the order updates of one user.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/emmy19999/bingham-bites/internal/dal/rabbitmq"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/emmy19999/bingham-bites/internal/service/models/orderevent"
	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const eventBuffer = 16

var errForeignEvent = errors.New("event belongs to another user")

// Subscription delivers order updates until Close is called. Events is
// closed once the listener has stopped.
type Subscription interface {
	Events() <-chan orderevent.Updated
	Close() error
}

type channelOpener interface {
	OpenChannel() (*amqp.Channel, error)
}

// Subscriber binds an exclusive queue per subscription to the updates exchange.
type Subscriber struct {
	client   channelOpener
	exchange string
}

func NewSubscriber(client *rabbitmq.Client, exchange string) *Subscriber {
	return &Subscriber{
		client:   client,
		exchange: exchange,
	}
}

// Subscribe opens a channel, binds a server-named queue to the user's routing
// key and starts a listener goroutine.
func (s *Subscriber) Subscribe(ctx context.Context, userID uuid.UUID) (Subscription, error) {
	_, span := otel.Tracer("realtime").Start(ctx, "Subscriber.Subscribe")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID.String()))

	ch, err := s.client.OpenChannel()
	if err != nil {
		return nil, err
	}

	queue, err := rabbitmq.DeclareQueue(ch, rabbitmq.DeclareQueueConfig{
		AutoDelete: true,
		Exclusive:  true,
	})
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	routingKey := orderevent.RoutingKey(userID)
	if err := ch.QueueBind(queue.Name, routingKey, s.exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	tag := "session-" + uuid.NewString()
	deliveries, err := rabbitmq.Consume(ch, rabbitmq.ConsumeConfig{
		Queue:     queue.Name,
		Consumer:  tag,
		Exclusive: true,
	})
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to consume: %w", err)
	}

	sub := &amqpSubscription{
		ch:     ch,
		tag:    tag,
		userID: userID,
		events: make(chan orderevent.Updated, eventBuffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go sub.listen(deliveries)

	slog.Info("Realtime subscription opened", "user_id", userID, "queue", queue.Name, "routing_key", routingKey)

	return sub, nil
}

type amqpSubscription struct {
	ch     *amqp.Channel
	tag    string
	userID uuid.UUID
	events chan orderevent.Updated
	stop   chan struct{}
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func (s *amqpSubscription) Events() <-chan orderevent.Updated {
	return s.events
}

// Close stops the listener and releases the channel. Safe to call twice.
func (s *amqpSubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		if err := s.ch.Cancel(s.tag, false); err != nil {
			slog.Warn("Failed to cancel realtime consumer", "user_id", s.userID, "error", err)
		}
		<-s.done
		s.closeErr = s.ch.Close()

		slog.Info("Realtime subscription closed", "user_id", s.userID)
	})

	return s.closeErr
}

func (s *amqpSubscription) listen(deliveries <-chan amqp.Delivery) {
	defer close(s.done)
	defer close(s.events)

	for {
		select {
		case <-s.stop:
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if !s.forward(d) {
				return
			}
		}
	}
}

// forward decodes one delivery and hands it to the consumer; false means stop.
func (s *amqpSubscription) forward(d amqp.Delivery) bool {
	_, span := otel.Tracer("realtime").Start(context.Background(), "Subscription.forward")
	defer span.End()

	ev, err := decode(d.Body, s.userID)
	if err != nil {
		slog.Warn("Dropping realtime event", "user_id", s.userID, "delivery_tag", d.DeliveryTag, "error", err)
		if err := d.Nack(false, false); err != nil {
			slog.Error("Failed to nack message", "error", err)
		}

		return true
	}
	span.SetAttributes(
		attribute.String("order_id", ev.OrderID.String()),
		attribute.String("status", ev.Status.String()),
	)

	select {
	case s.events <- ev:
		if err := d.Ack(false); err != nil {
			slog.Error("Failed to ack message", "error", err)
		}

		return true
	case <-s.stop:
		if err := d.Nack(false, true); err != nil {
			slog.Error("Failed to nack message", "error", err)
		}

		return false
	}
}

func decode(body []byte, userID uuid.UUID) (orderevent.Updated, error) {
	var ev orderevent.Updated
	if err := json.Unmarshal(body, &ev); err != nil {
		return orderevent.Updated{}, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	if ev.OrderID == uuid.Nil {
		return orderevent.Updated{}, errors.New("order event without order id")
	}
	if _, err := order.ParseStatus(ev.Status.String()); err != nil {
		return orderevent.Updated{}, fmt.Errorf("order event status %q: %w", ev.Status, err)
	}
	if ev.UserID != userID {
		return orderevent.Updated{}, errForeignEvent
	}

	return ev, nil
}

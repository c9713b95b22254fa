package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/viper"
	"github.com/streadway/amqp"
)

// DefaultExchange carries per-user order updates.
const DefaultExchange = "orders.updates"

// Client represents a RabbitMQ client. The shared channel is used for
// publishing; subscribers open their own channels.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	pubMu   sync.Mutex
}

// Connection returns the underlying AMQP connection.
func (r *Client) Connection() *amqp.Connection {
	return r.conn
}

// OpenChannel opens a dedicated channel on the shared connection.
func (r *Client) OpenChannel() (*amqp.Channel, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return ch, nil
}

// Close closes the channel and connection for graceful shutdown.
func (r *Client) Close() error {
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			return err
		}
	}
	if r.conn != nil {
		return r.conn.Close()
	}

	return nil
}

// ExchangeName returns the configured updates exchange.
func ExchangeName() string {
	if name := viper.GetString("rabbitmq.exchange"); name != "" {
		return name
	}

	return DefaultExchange
}

// MustNewClient creates a new RabbitMQ client and declares the updates exchange.
func MustNewClient() *Client {
	host := viper.GetString("rabbitmq.host")
	port := viper.GetInt("rabbitmq.port")
	user := viper.GetString("rabbitmq.user")
	password := viper.GetString("rabbitmq.password")

	if host == "" {
		host = "rabbitmq"
	}
	if port == 0 {
		port = 5672
	}

	connStr := fmt.Sprintf(
		"amqp://%s:%s@%s:%d/",
		user,
		password,
		host,
		port,
	)

	conn, err := amqp.Dial(connStr)
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to RabbitMQ: %v", err))
	}

	channel, err := conn.Channel()
	if err != nil {
		if err := conn.Close(); err != nil {
			panic(fmt.Sprintf("Failed to close a connection: %v", err))
		}
		panic(fmt.Sprintf("Failed to open a channel: %v", err))
	}

	client := &Client{
		conn:    conn,
		channel: channel,
	}

	if err := client.DeclareExchange(ExchangeName()); err != nil {
		_ = client.Close()
		panic(fmt.Sprintf("Failed to declare exchange: %v", err))
	}

	slog.Info("RabbitMQ connected", "host", host, "port", port, "exchange", ExchangeName())

	return client
}

// DeclareExchange declares a durable topic exchange.
func (r *Client) DeclareExchange(name string) error {
	return r.channel.ExchangeDeclare(
		name,
		amqp.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	)
}

type DeclareQueueConfig struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	NoWait     bool
	Args       amqp.Table
}

// DeclareQueue declares a queue with the given configuration on ch.
func DeclareQueue(ch *amqp.Channel, cfg DeclareQueueConfig) (amqp.Queue, error) {
	return ch.QueueDeclare(
		cfg.Name,
		cfg.Durable,
		cfg.AutoDelete,
		cfg.Exclusive,
		cfg.NoWait,
		cfg.Args,
	)
}

type ConsumeConfig struct {
	Queue     string
	Consumer  string
	AutoAck   bool
	Exclusive bool
	NoLocal   bool
	NoWait    bool
	Args      amqp.Table
}

// Consume starts consuming messages from the queue on ch.
func Consume(ch *amqp.Channel, cfg ConsumeConfig) (<-chan amqp.Delivery, error) {
	return ch.Consume(
		cfg.Queue,
		cfg.Consumer,
		cfg.AutoAck,
		cfg.Exclusive,
		cfg.NoLocal,
		cfg.NoWait,
		cfg.Args,
	)
}

// Publish sends msg on the shared channel. streadway channels are not safe
// for concurrent publishes, so calls are serialized.
func (r *Client) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	if err := r.channel.Publish(exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to %s/%s: %w", exchange, routingKey, err)
	}

	return nil
}

package outbox

import (
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries bounds publishing attempts for a single message.
const DefaultMaxRetries = 8

// OutboxMessage is an order event stored in the same transaction as the
// change it describes and published to RabbitMQ later.
type OutboxMessage struct {
	ID           int64
	AggregateID  uuid.UUID
	ExchangeName string
	RoutingKey   string
	Payload      []byte
	ContentType  string
	RetryCount   int
	MaxRetries   int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	NextRetryAt  time.Time
}

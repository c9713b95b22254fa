package istatuslogrepo

import (
	"context"

	"github.com/emmy19999/bingham-bites/internal/service/models/statuslog"
	"github.com/google/uuid"
)

// IStatusLogRepository records the audit trail of order status changes.
type IStatusLogRepository interface {
	Insert(ctx context.Context, log statuslog.StatusLog) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]statuslog.StatusLog, error)
}

package postgresrepo

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/emmy19999/bingham-bites/internal/dal/postgres"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/emmy19999/bingham-bites/internal/service/models/statuslog"
	"github.com/google/uuid"
)

// PostgresStatusLogRepository writes order_status_logs.
type PostgresStatusLogRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

func NewPostgresStatusLogRepository(conn postgres.GenericConn) *PostgresStatusLogRepository {
	return &PostgresStatusLogRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *PostgresStatusLogRepository) Insert(ctx context.Context, log statuslog.StatusLog) error {
	createdAt := log.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	sql, args, err := r.sb.
		Insert("order_status_logs").
		Columns("order_id", "status", "changed_by", "note", "created_at").
		Values(log.OrderID, log.Status.String(), log.ChangedBy, log.Note, createdAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to insert status log: %w", err)
	}

	return nil
}

// ListByOrder returns the order's history, oldest first.
func (r *PostgresStatusLogRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]statuslog.StatusLog, error) {
	sql, args, err := r.sb.
		Select("id", "order_id", "status", "changed_by", "note", "created_at").
		From("order_status_logs").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query status logs: %w", err)
	}
	defer rows.Close()

	var result []statuslog.StatusLog
	for rows.Next() {
		var (
			l      statuslog.StatusLog
			status string
		)
		if err := rows.Scan(&l.ID, &l.OrderID, &status, &l.ChangedBy, &l.Note, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status log: %w", err)
		}
		if l.Status, err = order.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("status log %s: %w", l.ID, err)
		}
		result = append(result, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/emmy19999/bingham-bites/internal/dal/postgres"
	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/models/money"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/emmy19999/bingham-bites/internal/service/models/orderitem"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var orderColumns = []string{
	"id",
	"user_id",
	"cafeteria_id",
	"cafeteria_name",
	"subtotal",
	"delivery_fee",
	"total",
	"hostel",
	"payment_method",
	"status",
	"rider_name",
	"rider_phone",
	"estimated_delivery",
	"created_at",
	"updated_at",
}

// OrderDal represents order data access layer model.
type OrderDal struct {
	Id                uuid.UUID `db:"id"`
	UserId            uuid.UUID `db:"user_id"`
	CafeteriaId       uuid.UUID `db:"cafeteria_id"`
	CafeteriaName     string    `db:"cafeteria_name"`
	Subtotal          int64     `db:"subtotal"`
	DeliveryFee       int64     `db:"delivery_fee"`
	Total             int64     `db:"total"`
	Hostel            string    `db:"hostel"`
	PaymentMethod     string    `db:"payment_method"`
	Status            string    `db:"status"`
	RiderName         *string   `db:"rider_name"`
	RiderPhone        *string   `db:"rider_phone"`
	EstimatedDelivery int       `db:"estimated_delivery"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// ToModel converts OrderDal to service layer Order model.
func (o *OrderDal) ToModel() (order.Order, error) {
	status, err := order.ParseStatus(o.Status)
	if err != nil {
		return order.Order{}, fmt.Errorf("order %s: %w", o.Id, err)
	}
	method, err := order.ParsePaymentMethod(o.PaymentMethod)
	if err != nil {
		return order.Order{}, fmt.Errorf("order %s: %w", o.Id, err)
	}

	m := order.Order{
		ID:                o.Id,
		UserID:            o.UserId,
		CafeteriaID:       o.CafeteriaId,
		CafeteriaName:     o.CafeteriaName,
		Subtotal:          money.Amount(o.Subtotal),
		DeliveryFee:       money.Amount(o.DeliveryFee),
		Total:             money.Amount(o.Total),
		Destination:       o.Hostel,
		PaymentMethod:     method,
		Status:            status,
		EstimatedDelivery: o.EstimatedDelivery,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
		OrderItems:        []orderitem.OrderItem{}, // Will be populated separately
	}
	if o.RiderName != nil {
		m.Rider = &order.Rider{Name: *o.RiderName}
		if o.RiderPhone != nil {
			m.Rider.Phone = *o.RiderPhone
		}
	}

	return m, nil
}

// OrderDalFromModel converts service layer Order model to OrderDal.
func OrderDalFromModel(o *order.Order) *OrderDal {
	dal := &OrderDal{
		Id:                o.ID,
		UserId:            o.UserID,
		CafeteriaId:       o.CafeteriaID,
		CafeteriaName:     o.CafeteriaName,
		Subtotal:          o.Subtotal.Kobo(),
		DeliveryFee:       o.DeliveryFee.Kobo(),
		Total:             o.Total.Kobo(),
		Hostel:            o.Destination,
		PaymentMethod:     o.PaymentMethod.String(),
		Status:            o.Status.String(),
		EstimatedDelivery: o.EstimatedDelivery,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	if o.Rider != nil {
		dal.RiderName = &o.Rider.Name
		dal.RiderPhone = &o.Rider.Phone
	}

	return dal
}

func (o *OrderDal) scanTargets() []any {
	return []any{
		&o.Id,
		&o.UserId,
		&o.CafeteriaId,
		&o.CafeteriaName,
		&o.Subtotal,
		&o.DeliveryFee,
		&o.Total,
		&o.Hostel,
		&o.PaymentMethod,
		&o.Status,
		&o.RiderName,
		&o.RiderPhone,
		&o.EstimatedDelivery,
		&o.CreatedAt,
		&o.UpdatedAt,
	}
}

// PostgresOrderRepository represents a Postgres order repository.
type PostgresOrderRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

// NewPostgresOrderRepository creates a new Postgres order repository.
func NewPostgresOrderRepository(conn postgres.GenericConn) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Insert writes the order header and returns it with the generated id and timestamps.
// Line items are not written here.
func (r *PostgresOrderRepository) Insert(ctx context.Context, o order.Order) (order.Order, error) {
	dal := OrderDalFromModel(&o)

	query := r.sb.
		Insert("orders").
		Columns(orderColumns[1:]...).
		Values(
			dal.UserId,
			dal.CafeteriaId,
			dal.CafeteriaName,
			dal.Subtotal,
			dal.DeliveryFee,
			dal.Total,
			dal.Hostel,
			dal.PaymentMethod,
			dal.Status,
			dal.RiderName,
			dal.RiderPhone,
			dal.EstimatedDelivery,
			dal.CreatedAt,
			dal.UpdatedAt,
		).
		Suffix("RETURNING id, created_at, updated_at")

	sql, args, err := query.ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	if err := r.conn.QueryRow(ctx, sql, args...).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return order.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}

	return o, nil
}

// Query retrieves orders based on filter criteria, most recent first.
func (r *PostgresOrderRepository) Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	query := r.sb.
		Select(orderColumns...).
		From("orders").
		OrderBy("created_at DESC", "id")

	if filter != nil {
		if len(filter.Ids) > 0 {
			query = query.Where(sq.Eq{"id": filter.Ids})
		}

		if len(filter.UserIds) > 0 {
			query = query.Where(sq.Eq{"user_id": filter.UserIds})
		}

		if len(filter.Statuses) > 0 {
			statuses := make([]string, len(filter.Statuses))
			for i, s := range filter.Statuses {
				statuses[i] = s.String()
			}
			query = query.Where(sq.Eq{"status": statuses})
		}

		if !filter.UpdatedBefore.IsZero() {
			query = query.Where(sq.Lt{"updated_at": filter.UpdatedBefore})
		}

		if filter.Limit > 0 {
			query = query.Limit(uint64(filter.Limit))
		}

		if filter.Offset > 0 {
			query = query.Offset(uint64(filter.Offset))
		}
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		var dal OrderDal
		if err := rows.Scan(dal.scanTargets()...); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert order dal to model: %w", err)
		}
		result = append(result, model)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// GetForUpdate loads one order and locks its row.
func (r *PostgresOrderRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (order.Order, error) {
	sql, args, err := r.sb.
		Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": id}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build select query: %w", err)
	}

	var dal OrderDal
	if err := r.conn.QueryRow(ctx, sql, args...).Scan(dal.scanTargets()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.Order{}, fmt.Errorf("order %s: %w", id, apperrors.ErrNotFound)
		}

		return order.Order{}, fmt.Errorf("failed to get order: %w", err)
	}

	return dal.ToModel()
}

// UpdateStatus sets status, rider and updated_at. A nil rider leaves the rider columns untouched.
func (r *PostgresOrderRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status order.Status,
	rider *order.Rider,
	updatedAt time.Time,
) error {
	query := r.sb.
		Update("orders").
		Set("status", status.String()).
		Set("updated_at", updatedAt).
		Where(sq.Eq{"id": id})

	if rider != nil {
		query = query.
			Set("rider_name", rider.Name).
			Set("rider_phone", rider.Phone)
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

package postgresrepo

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/emmy19999/bingham-bites/internal/dal/postgres"
	"github.com/emmy19999/bingham-bites/internal/service/models/money"
	"github.com/emmy19999/bingham-bites/internal/service/models/orderitem"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

var orderItemColumns = []string{
	"id",
	"order_id",
	"menu_item_id",
	"item_name",
	"item_price",
	"quantity",
	"special_instructions",
	"created_at",
}

// OrderItemDal represents order item data access layer model.
type OrderItemDal struct {
	Id                  uuid.UUID `db:"id"`
	OrderId             uuid.UUID `db:"order_id"`
	MenuItemId          uuid.UUID `db:"menu_item_id"`
	ItemName            string    `db:"item_name"`
	ItemPrice           int64     `db:"item_price"`
	Quantity            int       `db:"quantity"`
	SpecialInstructions *string   `db:"special_instructions"`
	CreatedAt           time.Time `db:"created_at"`
}

// ToModel converts OrderItemDal to service layer OrderItem model.
func (oi *OrderItemDal) ToModel() orderitem.OrderItem {
	return orderitem.OrderItem{
		ID:                  oi.Id,
		OrderID:             oi.OrderId,
		MenuItemID:          oi.MenuItemId,
		Name:                oi.ItemName,
		Price:               money.Amount(oi.ItemPrice),
		Quantity:            oi.Quantity,
		SpecialInstructions: oi.SpecialInstructions,
		CreatedAt:           oi.CreatedAt,
	}
}

// OrderItemDalFromModel converts service layer OrderItem model to OrderItemDal.
func OrderItemDalFromModel(oi *orderitem.OrderItem) *OrderItemDal {
	return &OrderItemDal{
		Id:                  oi.ID,
		OrderId:             oi.OrderID,
		MenuItemId:          oi.MenuItemID,
		ItemName:            oi.Name,
		ItemPrice:           oi.Price.Kobo(),
		Quantity:            oi.Quantity,
		SpecialInstructions: oi.SpecialInstructions,
		CreatedAt:           oi.CreatedAt,
	}
}

// PostgresOrderItemRepository represents a Postgres order item repository.
type PostgresOrderItemRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

// NewPostgresOrderItemRepository creates a new Postgres order item repository.
func NewPostgresOrderItemRepository(conn postgres.GenericConn) *PostgresOrderItemRepository {
	return &PostgresOrderItemRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// BulkInsert writes all items in one statement and returns them with ids,
// in input order.
func (r *PostgresOrderItemRepository) BulkInsert(
	ctx context.Context,
	orderItems []orderitem.OrderItem,
) ([]orderitem.OrderItem, error) {
	if len(orderItems) == 0 {
		return []orderitem.OrderItem{}, nil
	}

	query := r.sb.
		Insert("order_items").
		Columns(orderItemColumns[1:]...).
		Suffix("RETURNING " + strings.Join(orderItemColumns, ", "))

	for _, oi := range orderItems {
		dal := OrderItemDalFromModel(&oi)
		query = query.Values(
			dal.OrderId,
			dal.MenuItemId,
			dal.ItemName,
			dal.ItemPrice,
			dal.Quantity,
			dal.SpecialInstructions,
			pgtype.Timestamptz{Time: dal.CreatedAt, Valid: true},
		)
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert query: %w", err)
	}

	result, err := r.queryItems(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("failed to bulk insert order items: %w", err)
	}
	if len(result) != len(orderItems) {
		return nil, fmt.Errorf("inserted %d of %d order items", len(result), len(orderItems))
	}

	return result, nil
}

// Query retrieves order items based on filter criteria.
func (r *PostgresOrderItemRepository) Query(
	ctx context.Context,
	filter *orderitem.QueryOrderItemsModel,
) ([]orderitem.OrderItem, error) {
	query := r.sb.
		Select(orderItemColumns...).
		From("order_items").
		OrderBy("created_at", "id")

	if filter != nil {
		if len(filter.Ids) > 0 {
			query = query.Where(sq.Eq{"id": filter.Ids})
		}

		if len(filter.OrderIds) > 0 {
			query = query.Where(sq.Eq{"order_id": filter.OrderIds})
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

	result, err := r.queryItems(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}

	return result, nil
}

func (r *PostgresOrderItemRepository) queryItems(ctx context.Context, sql string, args []any) ([]orderitem.OrderItem, error) {
	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []orderitem.OrderItem
	for rows.Next() {
		var dal OrderItemDal
		var createdAt pgtype.Timestamptz

		err := rows.Scan(
			&dal.Id,
			&dal.OrderId,
			&dal.MenuItemId,
			&dal.ItemName,
			&dal.ItemPrice,
			&dal.Quantity,
			&dal.SpecialInstructions,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}

		dal.CreatedAt = createdAt.Time

		result = append(result, dal.ToModel())
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

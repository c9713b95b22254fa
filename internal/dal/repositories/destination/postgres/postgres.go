package postgresrepo

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/emmy19999/bingham-bites/internal/dal/postgres"
	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/models/destination"
	"github.com/emmy19999/bingham-bites/internal/service/models/money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// HostelDal represents a hostels row.
type HostelDal struct {
	Id           uuid.UUID `db:"id"`
	Name         string    `db:"name"`
	DeliveryFee  int64     `db:"delivery_fee"`
	ExtraMinutes int       `db:"extra_minutes"`
	IsActive     bool      `db:"is_active"`
}

func (h *HostelDal) ToModel() destination.Destination {
	return destination.Destination{
		ID:           h.Id,
		Name:         h.Name,
		DeliveryFee:  money.Amount(h.DeliveryFee),
		ExtraMinutes: h.ExtraMinutes,
		IsActive:     h.IsActive,
	}
}

// PostgresDestinationRepository reads hostels.
type PostgresDestinationRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

func NewPostgresDestinationRepository(conn postgres.GenericConn) *PostgresDestinationRepository {
	return &PostgresDestinationRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *PostgresDestinationRepository) selectHostels() sq.SelectBuilder {
	return r.sb.
		Select("id", "name", "delivery_fee", "extra_minutes", "is_active").
		From("hostels")
}

// Get returns the hostel with id, active or not.
func (r *PostgresDestinationRepository) Get(ctx context.Context, id uuid.UUID) (destination.Destination, error) {
	sql, args, err := r.selectHostels().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return destination.Destination{}, fmt.Errorf("failed to build select query: %w", err)
	}

	var dal HostelDal
	err = r.conn.QueryRow(ctx, sql, args...).
		Scan(&dal.Id, &dal.Name, &dal.DeliveryFee, &dal.ExtraMinutes, &dal.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return destination.Destination{}, fmt.Errorf("destination %s: %w", id, apperrors.ErrNotFound)
		}

		return destination.Destination{}, fmt.Errorf("failed to get destination: %w", err)
	}

	return dal.ToModel(), nil
}

// List returns active hostels ordered by name.
func (r *PostgresDestinationRepository) List(ctx context.Context) ([]destination.Destination, error) {
	sql, args, err := r.selectHostels().
		Where(sq.Eq{"is_active": true}).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query destinations: %w", err)
	}
	defer rows.Close()

	var result []destination.Destination
	for rows.Next() {
		var dal HostelDal
		if err := rows.Scan(&dal.Id, &dal.Name, &dal.DeliveryFee, &dal.ExtraMinutes, &dal.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan destination: %w", err)
		}
		result = append(result, dal.ToModel())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

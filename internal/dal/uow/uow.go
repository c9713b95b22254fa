package uow

import (
	"context"
	"errors"
	"fmt"

	"github.com/emmy19999/bingham-bites/internal/dal/interfaces/idestinationrepo"
	"github.com/emmy19999/bingham-bites/internal/dal/interfaces/iorderitemrepo"
	"github.com/emmy19999/bingham-bites/internal/dal/interfaces/iorderrepo"
	"github.com/emmy19999/bingham-bites/internal/dal/interfaces/ioutboxrepo"
	"github.com/emmy19999/bingham-bites/internal/dal/interfaces/istatuslogrepo"
	"github.com/emmy19999/bingham-bites/internal/dal/postgres"
	destinationrepo "github.com/emmy19999/bingham-bites/internal/dal/repositories/destination/postgres"
	orderrepo "github.com/emmy19999/bingham-bites/internal/dal/repositories/order/postgres"
	orderitemrepo "github.com/emmy19999/bingham-bites/internal/dal/repositories/orderitem/postgres"
	outboxrepo "github.com/emmy19999/bingham-bites/internal/dal/repositories/outbox/postgres"
	statuslogrepo "github.com/emmy19999/bingham-bites/internal/dal/repositories/statuslog/postgres"
	"github.com/jackc/pgx/v5"
)

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	postgres.GenericConn
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UnitOfWork groups repository calls into one transaction. Before Begin the
// repositories run directly on the pool.
type UnitOfWork struct {
	db              TxBeginner
	tx              pgx.Tx
	orderRepo       iorderrepo.IOrderRepository
	orderItemRepo   iorderitemrepo.IOrderItemRepository
	destinationRepo idestinationrepo.IDestinationRepository
	statusLogRepo   istatuslogrepo.IStatusLogRepository
	outboxRepo      ioutboxrepo.IOutboxRepository
}

func NewUnitOfWork(db TxBeginner) *UnitOfWork {
	u := &UnitOfWork{db: db}
	u.bind(db)

	return u
}

func (u *UnitOfWork) bind(conn postgres.GenericConn) {
	u.orderRepo = orderrepo.NewPostgresOrderRepository(conn)
	u.orderItemRepo = orderitemrepo.NewPostgresOrderItemRepository(conn)
	u.destinationRepo = destinationrepo.NewPostgresDestinationRepository(conn)
	u.statusLogRepo = statuslogrepo.NewPostgresStatusLogRepository(conn)
	u.outboxRepo = outboxrepo.NewOutboxRepository(conn)
}

func (u *UnitOfWork) OrderRepository() iorderrepo.IOrderRepository {
	return u.orderRepo
}

func (u *UnitOfWork) OrderItemRepository() iorderitemrepo.IOrderItemRepository {
	return u.orderItemRepo
}

func (u *UnitOfWork) DestinationRepository() idestinationrepo.IDestinationRepository {
	return u.destinationRepo
}

func (u *UnitOfWork) StatusLogRepository() istatuslogrepo.IStatusLogRepository {
	return u.statusLogRepo
}

func (u *UnitOfWork) OutboxRepository() ioutboxrepo.IOutboxRepository {
	return u.outboxRepo
}

// Begin opens a transaction and rebinds every repository to it.
func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return errors.New("unit of work already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.bind(tx)

	return nil
}

func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Rollback is a no-op after a successful Commit, so it can be deferred.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

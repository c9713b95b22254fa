package destinationsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/emmy19999/bingham-bites/internal/dal/interfaces/idestinationrepo"
	"github.com/emmy19999/bingham-bites/internal/dal/postgres"
	"github.com/emmy19999/bingham-bites/internal/dal/uow"
	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/models/destination"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

// DestinationService serves hostel reference data.
type DestinationService struct {
	repo idestinationrepo.IDestinationRepository
}

// option is a function that configures the DestinationService.
type option func(*DestinationService)

// MustNewDestinationService creates a new DestinationService.
func MustNewDestinationService(opts ...option) *DestinationService {
	s := &DestinationService{}
	for _, opt := range opts {
		opt(s)
	}

	if s.repo == nil {
		panic("destinationsvc: repository is required")
	}

	return s
}

// WithPostgresClient sets the Postgres client for the DestinationService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *DestinationService) {
		s.repo = uow.NewUnitOfWork(pgClient.Pool()).DestinationRepository()
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithRepository(repo idestinationrepo.IDestinationRepository) option {
	return func(s *DestinationService) {
		s.repo = repo
	}
}

// Get returns an active destination.
func (s *DestinationService) Get(ctx context.Context, id uuid.UUID) (destination.Destination, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "DestinationService.Get")
	defer span.End()

	d, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return destination.Destination{}, err
		}

		return destination.Destination{}, fmt.Errorf("%w: %w", apperrors.ErrPersistence, err)
	}
	if !d.IsActive {
		return destination.Destination{}, fmt.Errorf("destination %s: %w", id, apperrors.ErrNotFound)
	}

	return d, nil
}

// List returns the active destinations.
func (s *DestinationService) List(ctx context.Context) ([]destination.Destination, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "DestinationService.List")
	defer span.End()

	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrPersistence, err)
	}
	if list == nil {
		list = []destination.Destination{}
	}

	return list, nil
}

package destinationsvc

import (
	"context"
	"errors"
	"testing"

	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/models/destination"
	"github.com/emmy19999/bingham-bites/internal/service/models/money"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	items map[uuid.UUID]destination.Destination
	err   error
}

func (r *fakeRepo) Get(_ context.Context, id uuid.UUID) (destination.Destination, error) {
	if r.err != nil {
		return destination.Destination{}, r.err
	}
	d, ok := r.items[id]
	if !ok {
		return destination.Destination{}, apperrors.ErrNotFound
	}

	return d, nil
}

func (r *fakeRepo) List(context.Context) ([]destination.Destination, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []destination.Destination
	for _, d := range r.items {
		if d.IsActive {
			out = append(out, d)
		}
	}

	return out, nil
}

func TestDestinationService(t *testing.T) {
	active := destination.Destination{ID: uuid.New(), Name: "Old Boys Hostel", DeliveryFee: money.Naira(200), IsActive: true}
	closed := destination.Destination{ID: uuid.New(), Name: "Annex", DeliveryFee: money.Naira(500)}
	repo := &fakeRepo{items: map[uuid.UUID]destination.Destination{active.ID: active, closed.ID: closed}}
	svc := MustNewDestinationService(WithRepository(repo))

	got, err := svc.Get(context.Background(), active.ID)
	require.NoError(t, err)
	assert.Equal(t, active, got)

	_, err = svc.Get(context.Background(), closed.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []destination.Destination{active}, list)
}

func TestDestinationService_RepositoryFailure(t *testing.T) {
	svc := MustNewDestinationService(WithRepository(&fakeRepo{err: errors.New("down")}))

	_, err := svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrPersistence)

	_, err = svc.List(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
}

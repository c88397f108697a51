package repository

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/concesionaria/internal/apperr"
	"github.com/erazemk/concesionaria/internal/model"
)

func serials(vs []model.Vehicle) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Serial
	}
	return out
}

func TestRefreshMirrorsRemote(t *testing.T) {
	remote := newFakeRemote(car(1, "A", 2), car(2, "B", 0), car(3, "C", 5))
	repos, cache := newRepos(t, remote)
	ctx := context.Background()

	state, err := repos.Vehicles.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, state.Source)
	assert.Equal(t, remote.vehicles, state.Vehicles)
	assert.Equal(t, state, repos.Vehicles.Current())

	first := cache.LoadVehicles(ctx)
	assert.Equal(t, []string{"A", "B", "C"}, serials(first))

	_, err = repos.Vehicles.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, cache.LoadVehicles(ctx), "refreshing the same data leaves the cache unchanged")
}

func TestRefreshRemoteWinsOverLocal(t *testing.T) {
	remote := newFakeRemote(car(1, "A", 9))
	repos, cache := newRepos(t, remote)
	ctx := context.Background()

	stale := car(1, "A", 1)
	stale.Color = "red"
	cache.SaveVehicles(ctx, []model.Vehicle{stale, car(4, "LOCAL", 1)})

	_, err := repos.Vehicles.Refresh(ctx)
	require.NoError(t, err)

	got, ok := cache.FindByID(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, 9, got.Stock)
	assert.Empty(t, got.Color)

	_, ok = cache.FindByID(ctx, 4)
	assert.True(t, ok, "entries the backend did not mention stay cached")
}

func TestRefreshFallsBackToLocal(t *testing.T) {
	remote := newFakeRemote()
	remote.listVehicles = func(context.Context) ([]model.Vehicle, error) { return nil, timeout }
	repos, cache := newRepos(t, remote)
	ctx := context.Background()

	cache.SaveVehicles(ctx, []model.Vehicle{car(1, "A", 1), car(2, "B", 1), car(3, "C", 1)})

	state, err := repos.Vehicles.Refresh(ctx)
	require.NoError(t, err, "read failures are not surfaced while the cache has data")
	assert.Equal(t, SourceLocal, state.Source)
	assert.Len(t, state.Vehicles, 3)
	assert.Nil(t, state.Err)
	assert.Len(t, repos.Vehicles.Current().Vehicles, 3)
}

func TestRefreshErrorKeepsPreviousSnapshot(t *testing.T) {
	remote := newFakeRemote(car(1, "A", 1), car(2, "B", 1))
	repos, cache := newRepos(t, remote)
	ctx := context.Background()

	_, err := repos.Vehicles.Refresh(ctx)
	require.NoError(t, err)

	cache.SaveVehicles(ctx, nil)
	remote.listVehicles = func(context.Context) ([]model.Vehicle, error) { return nil, timeout }

	state, err := repos.Vehicles.Refresh(ctx)
	require.Error(t, err)
	assert.True(t, apperr.IsConnection(err))
	assert.Equal(t, err, state.Err)
	assert.Equal(t, []string{"A", "B"}, serials(state.Vehicles))
	assert.Equal(t, uint64(2), state.Generation)
}

func TestStaleRefreshIsSuperseded(t *testing.T) {
	remote := newFakeRemote()
	started := make(chan struct{})
	var calls atomic.Int32
	remote.listVehicles = func(ctx context.Context) ([]model.Vehicle, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			return []model.Vehicle{car(9, "OLD", 1)}, nil
		}
		return []model.Vehicle{car(1, "NEW", 1)}, nil
	}
	repos, cache := newRepos(t, remote)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := repos.Vehicles.Refresh(ctx)
		errc <- err
	}()
	<-started

	state, err := repos.Vehicles.Refresh(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, <-errc, ErrSuperseded)

	assert.Equal(t, []string{"NEW"}, serials(state.Vehicles))
	assert.Equal(t, []string{"NEW"}, serials(repos.Vehicles.Current().Vehicles))
	_, stale := cache.FindBySerial(ctx, "OLD")
	assert.False(t, stale, "a superseded response is not mirrored")
}

func TestRefreshPublishesToSubscribers(t *testing.T) {
	remote := newFakeRemote(car(1, "A", 1))
	repos, _ := newRepos(t, remote)

	ch, cancel := repos.Vehicles.Subscribe()
	defer cancel()
	initial := <-ch
	assert.Empty(t, initial.Vehicles)
	assert.Equal(t, SourceNone, initial.Source)

	_, err := repos.Vehicles.Refresh(context.Background())
	require.NoError(t, err)

	got := <-ch
	assert.Equal(t, []string{"A"}, serials(got.Vehicles))
	assert.Equal(t, "remote", got.Source.String())
}

func TestSaveCreatesAndMirrors(t *testing.T) {
	remote := newFakeRemote()
	repos, cache := newRepos(t, remote)
	ctx := context.Background()

	draft := cache.Upsert(ctx, car(0, "NEW", 3))
	require.True(t, draft.Provisional())

	saved, err := repos.Vehicles.Save(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, int64(101), saved.ID)
	assert.Equal(t, 1, remote.count("CreateVehicle"))

	cached := cache.LoadVehicles(ctx)
	require.Len(t, cached, 1, "the provisional entry is replaced")
	assert.Equal(t, int64(101), cached[0].ID)
	assert.Equal(t, []string{"NEW"}, serials(repos.Vehicles.Current().Vehicles))
}

func TestSaveUpdatesExisting(t *testing.T) {
	remote := newFakeRemote(car(1, "A", 1))
	repos, cache := newRepos(t, remote)
	ctx := context.Background()
	_, err := repos.Vehicles.Refresh(ctx)
	require.NoError(t, err)

	v := car(1, "A", 4)
	v.Color = "blue"
	_, err = repos.Vehicles.Save(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, 1, remote.count("UpdateVehicle"))

	got, _ := cache.FindByID(ctx, 1)
	assert.Equal(t, "blue", got.Color)
	assert.Equal(t, 4, repos.Vehicles.Current().Vehicles[0].Stock)
}

func TestSaveRejectsInvalidWithoutCall(t *testing.T) {
	remote := newFakeRemote()
	repos, cache := newRepos(t, remote)

	_, err := repos.Vehicles.Save(context.Background(), car(0, "  ", 1))
	assert.True(t, apperr.IsValidation(err))
	assert.Zero(t, remote.count("CreateVehicle"))
	assert.Empty(t, cache.LoadVehicles(context.Background()))
}

func TestSaveFailureLeavesLocalState(t *testing.T) {
	remote := newFakeRemote()
	repos, cache := newRepos(t, remote)
	ctx := context.Background()

	_, err := repos.Vehicles.Save(ctx, car(5, "GHOST", 1))
	assert.Equal(t, 404, apperr.StatusCode(err))
	assert.Empty(t, cache.LoadVehicles(ctx))
	assert.Empty(t, repos.Vehicles.Current().Vehicles)
}

func TestSetAvailability(t *testing.T) {
	remote := newFakeRemote(car(1, "A", 2), car(2, "EMPTY", 0))
	repos, _ := newRepos(t, remote)
	ctx := context.Background()
	_, err := repos.Vehicles.Refresh(ctx)
	require.NoError(t, err)

	v, err := repos.Vehicles.SetAvailability(ctx, 1, false)
	require.NoError(t, err)
	assert.False(t, v.Available)

	_, err = repos.Vehicles.SetAvailability(ctx, 2, true)
	assert.True(t, apperr.IsValidation(err), "no stock, cannot be offered")

	_, err = repos.Vehicles.SetAvailability(ctx, 99, true)
	assert.True(t, apperr.IsValidation(err))
	assert.Equal(t, 1, remote.count("UpdateVehicle"))
}

func TestSetAvailabilityRejectsProvisional(t *testing.T) {
	remote := newFakeRemote()
	repos, cache := newRepos(t, remote)
	ctx := context.Background()

	local := cache.Upsert(ctx, car(0, "LOCAL", 1))
	require.True(t, local.Provisional())

	_, err := repos.Vehicles.SetAvailability(ctx, local.ID, false)
	assert.True(t, apperr.IsValidation(err))
	assert.Zero(t, remote.count("CreateVehicle"))
	assert.Zero(t, remote.count("UpdateVehicle"))
}

package repository

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/erazemk/concesionaria/internal/apperr"
	"github.com/erazemk/concesionaria/internal/model"
)

// ErrSuperseded is returned by a refresh that a newer refresh replaced
// before it finished. Its result was discarded.
var ErrSuperseded = errors.New("refresh superseded by a newer one")

// Source tells where a vehicle snapshot came from.
type Source int

const (
	SourceNone Source = iota
	SourceRemote
	SourceLocal
)

func (s Source) String() string {
	switch s {
	case SourceRemote:
		return "remote"
	case SourceLocal:
		return "local"
	default:
		return "none"
	}
}

// VehicleState is one published vehicle snapshot. Vehicles must not be
// modified by readers. Err is set only when neither the backend nor the
// local cache could supply a list; Vehicles then still holds the previous
// snapshot.
type VehicleState struct {
	Vehicles   []model.Vehicle
	Source     Source
	Err        error
	Generation uint64
}

// Vehicles is the vehicle repository.
type Vehicles struct {
	remote VehicleRemote
	cache  VehicleCache
	log    *slog.Logger
	feed   *Feed[VehicleState]

	// mu serializes snapshot replacement and guards gen and cancel.
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewVehicles returns a vehicle repository with an empty snapshot.
func NewVehicles(remote VehicleRemote, cache VehicleCache, opts ...Option) *Vehicles {
	o := buildOptions(opts)
	return &Vehicles{
		remote: remote,
		cache:  cache,
		log:    o.log.With("component", "vehicles"),
		feed:   NewFeed(VehicleState{Vehicles: []model.Vehicle{}}),
	}
}

// Current returns the latest snapshot.
func (r *Vehicles) Current() VehicleState {
	return r.feed.Current()
}

// Subscribe returns a channel of snapshots, starting with the current one.
func (r *Vehicles) Subscribe() (<-chan VehicleState, func()) {
	return r.feed.Subscribe()
}

// Refresh reloads the vehicle list from the backend and mirrors it into the
// local cache. When the backend fails the cached list is published instead.
// Only when the cache is empty too does Refresh return an error, and the
// previous vehicles stay in the snapshot.
//
// Starting a refresh cancels the one in flight; the older call returns
// ErrSuperseded and publishes nothing.
func (r *Vehicles) Refresh(ctx context.Context) (VehicleState, error) {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.gen++
	gen := r.gen
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	remote, err := r.remote.ListVehicles(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen {
		r.log.Debug("discarding stale refresh", "generation", gen, "latest", r.gen)
		return r.feed.Current(), ErrSuperseded
	}
	r.cancel = nil

	// The mirror and fallback reads must finish even if the caller gives up.
	local := context.WithoutCancel(ctx)

	if err == nil {
		r.cache.UpsertAll(local, remote)
		state := VehicleState{Vehicles: slices.Clone(remote), Source: SourceRemote, Generation: gen}
		if state.Vehicles == nil {
			state.Vehicles = []model.Vehicle{}
		}
		r.feed.Publish(state)
		return state, nil
	}

	r.log.Warn("vehicle refresh failed, using local cache", "error", err)

	cached := r.cache.LoadVehicles(local)
	if len(cached) > 0 {
		state := VehicleState{Vehicles: cached, Source: SourceLocal, Generation: gen}
		r.feed.Publish(state)
		return state, nil
	}

	prev := r.feed.Current()
	state := VehicleState{Vehicles: prev.Vehicles, Source: prev.Source, Err: err, Generation: gen}
	r.feed.Publish(state)
	return state, err
}

// Save creates the vehicle when it has no server ID yet and updates it
// otherwise. The local cache and the snapshot change only after the backend
// confirms the write.
func (r *Vehicles) Save(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	v.Serial = strings.TrimSpace(v.Serial)
	v.Normalize()
	if err := v.Validate(); err != nil {
		return model.Vehicle{}, &apperr.ValidationError{Message: err.Error()}
	}

	var (
		saved model.Vehicle
		err   error
	)
	if v.Persisted() {
		saved, err = r.remote.UpdateVehicle(ctx, v.ID, v)
	} else {
		v.ID = 0
		saved, err = r.remote.CreateVehicle(ctx, v)
	}
	if err != nil {
		return model.Vehicle{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Upsert(context.WithoutCancel(ctx), saved)
	r.publishVehicle(saved)
	return saved, nil
}

// SetAvailability marks a vehicle as for sale or not. Vehicles are never
// deleted through the repository. A vehicle without stock cannot be made
// available, and one the server has not confirmed yet cannot be changed.
func (r *Vehicles) SetAvailability(ctx context.Context, id int64, available bool) (model.Vehicle, error) {
	v, ok := r.FindByID(ctx, id)
	if !ok {
		return model.Vehicle{}, apperr.Validation("id", "vehicle %d not found", id)
	}
	if !v.Persisted() {
		return model.Vehicle{}, apperr.Validation("id", "vehicle %s is not saved on the server yet", v.Serial)
	}
	if available && v.Stock == 0 {
		return model.Vehicle{}, apperr.Validation("disponible", "vehicle %s has no stock", v.Serial)
	}
	v.Available = available
	return r.Save(ctx, v)
}

// FindByID looks in the snapshot first, then in the local cache.
func (r *Vehicles) FindByID(ctx context.Context, id int64) (model.Vehicle, bool) {
	for _, v := range r.Current().Vehicles {
		if v.ID == id {
			return v, true
		}
	}
	return r.cache.FindByID(ctx, id)
}

// FindBySerial looks in the snapshot first, then in the local cache.
func (r *Vehicles) FindBySerial(ctx context.Context, serial string) (model.Vehicle, bool) {
	for _, v := range r.Current().Vehicles {
		if v.Serial == serial {
			return v, true
		}
	}
	return r.cache.FindBySerial(ctx, serial)
}

// publishVehicle puts v into a copy of the snapshot. Callers hold r.mu.
func (r *Vehicles) publishVehicle(v model.Vehicle) {
	prev := r.feed.Current()
	next := make([]model.Vehicle, 0, len(prev.Vehicles)+1)
	replaced := false
	for _, existing := range prev.Vehicles {
		switch {
		case existing.ID == v.ID:
			next = append(next, v)
			replaced = true
		case existing.Provisional() && existing.Serial == v.Serial:
		default:
			next = append(next, existing)
		}
	}
	if !replaced {
		next = append(next, v)
	}
	r.feed.Publish(VehicleState{Vehicles: next, Source: prev.Source, Generation: prev.Generation})
}

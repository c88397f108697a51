// Package repository is the single source of truth the client reads from.
// Reads go to the backend first and fall back to the local cache; writes go
// to the backend and are mirrored locally only once confirmed. Snapshots are
// published through Feeds.
package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/erazemk/concesionaria/internal/model"
)

// VehicleRemote is the part of the backend client the vehicle repository uses.
type VehicleRemote interface {
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)
	CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error)
	UpdateVehicle(ctx context.Context, id int64, v model.Vehicle) (model.Vehicle, error)
}

// VehicleCache is the local vehicle mirror.
type VehicleCache interface {
	LoadVehicles(ctx context.Context) []model.Vehicle
	FindByID(ctx context.Context, id int64) (model.Vehicle, bool)
	FindBySerial(ctx context.Context, serial string) (model.Vehicle, bool)
	Upsert(ctx context.Context, v model.Vehicle) model.Vehicle
	UpsertAll(ctx context.Context, vs []model.Vehicle) []model.Vehicle
}

// SaleRemote is the part of the backend client the sales repository uses.
type SaleRemote interface {
	ListSales(ctx context.Context) ([]model.Sale, error)
	ListSalesByStatus(ctx context.Context, status model.SaleStatus) ([]model.Sale, error)
	ListSalesByDateRange(ctx context.Context, start, end time.Time, status *model.SaleStatus) ([]model.Sale, error)
	GetSale(ctx context.Context, id int64) (model.Sale, error)
	CreateSale(ctx context.Context, s model.Sale) (model.Sale, error)
	UpdateSaleStatus(ctx context.Context, id int64, status model.SaleStatus) (model.Sale, error)
	DeleteSale(ctx context.Context, id int64) error
	CountSales(ctx context.Context) (model.SaleCount, error)
}

// AuthRemote is the part of the backend client the session repository uses.
type AuthRemote interface {
	Register(ctx context.Context, u model.User) (model.User, error)
	Login(ctx context.Context, email, password string) (model.Session, error)
	Logout(ctx context.Context) error
	SetToken(token string)
}

// SessionCache keeps the logged-in user between runs.
type SessionCache interface {
	SaveUserSession(ctx context.Context, s model.Session)
	LoadUserSession(ctx context.Context) *model.Session
	ClearUserSession(ctx context.Context)
}

// Remote is everything the repositories need from the backend.
type Remote interface {
	VehicleRemote
	SaleRemote
	AuthRemote
}

// Cache is everything the repositories need from the local store.
type Cache interface {
	VehicleCache
	SessionCache
}

// Repositories bundles the three repositories over one backend and cache.
type Repositories struct {
	Vehicles *Vehicles
	Sales    *Sales
	Session  *Session
}

// New wires the repositories together.
func New(remote Remote, cache Cache, opts ...Option) *Repositories {
	vehicles := NewVehicles(remote, cache, opts...)
	return &Repositories{
		Vehicles: vehicles,
		Sales:    NewSales(remote, vehicles, opts...),
		Session:  NewSession(remote, cache, opts...),
	}
}

type options struct {
	log *slog.Logger
}

// Option configures a repository.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(opts []Option) options {
	o := options{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

package repository

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/concesionaria/internal/apperr"
	"github.com/erazemk/concesionaria/internal/db"
	"github.com/erazemk/concesionaria/internal/localstore"
	"github.com/erazemk/concesionaria/internal/model"
)

// fakeRemote is an in-memory backend. Hooks override single calls.
type fakeRemote struct {
	mu       sync.Mutex
	vehicles []model.Vehicle
	sales    map[int64]model.Sale
	nextID   int64
	token    string
	calls    map[string]int

	listVehicles func(ctx context.Context) ([]model.Vehicle, error)
	updateStatus func(ctx context.Context, id int64, st model.SaleStatus) (model.Sale, error)
	listSales    func(ctx context.Context) ([]model.Sale, error)
	login        func(ctx context.Context, email, password string) (model.Session, error)
	logout       func(ctx context.Context) error
}

func newFakeRemote(vehicles ...model.Vehicle) *fakeRemote {
	return &fakeRemote{
		vehicles: vehicles,
		sales:    make(map[int64]model.Sale),
		nextID:   100,
		calls:    make(map[string]int),
	}
}

func (f *fakeRemote) called(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeRemote) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRemote) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	f.called("ListVehicles")
	if f.listVehicles != nil {
		return f.listVehicles(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Vehicle(nil), f.vehicles...), nil
}

func (f *fakeRemote) CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	f.called("CreateVehicle")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	v.ID = f.nextID
	f.vehicles = append(f.vehicles, v)
	return v, nil
}

func (f *fakeRemote) UpdateVehicle(ctx context.Context, id int64, v model.Vehicle) (model.Vehicle, error) {
	f.called("UpdateVehicle")
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.vehicles {
		if f.vehicles[i].ID == id {
			f.vehicles[i] = v
			return v, nil
		}
	}
	return model.Vehicle{}, &apperr.ServerError{Code: 404, Message: "vehicle not found"}
}

func (f *fakeRemote) ListSales(ctx context.Context) ([]model.Sale, error) {
	f.called("ListSales")
	if f.listSales != nil {
		return f.listSales(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Sale
	for _, s := range f.sales {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeRemote) ListSalesByStatus(ctx context.Context, status model.SaleStatus) ([]model.Sale, error) {
	f.called("ListSalesByStatus")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Sale
	for _, s := range f.sales {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRemote) ListSalesByDateRange(ctx context.Context, start, end time.Time, status *model.SaleStatus) ([]model.Sale, error) {
	f.called("ListSalesByDateRange")
	f.mu.Lock()
	defer f.mu.Unlock()
	// Ignores the filters, like some older backends.
	var out []model.Sale
	for _, s := range f.sales {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeRemote) GetSale(ctx context.Context, id int64) (model.Sale, error) {
	f.called("GetSale")
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sales[id]
	if !ok {
		return model.Sale{}, &apperr.ServerError{Code: 404, Message: "sale not found"}
	}
	return s, nil
}

func (f *fakeRemote) CreateSale(ctx context.Context, s model.Sale) (model.Sale, error) {
	f.called("CreateSale")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = f.nextID
	s.Status = model.StatusPending
	f.sales[s.ID] = s
	for i := range f.vehicles {
		if f.vehicles[i].Serial == s.Serial {
			f.vehicles[i].Stock -= s.Quantity
		}
	}
	return s, nil
}

func (f *fakeRemote) UpdateSaleStatus(ctx context.Context, id int64, st model.SaleStatus) (model.Sale, error) {
	f.called("UpdateSaleStatus")
	if f.updateStatus != nil {
		return f.updateStatus(ctx, id, st)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sales[id]
	if !ok {
		return model.Sale{}, &apperr.ServerError{Code: 404, Message: "sale not found"}
	}
	if st == model.StatusCancelled {
		for i := range f.vehicles {
			if f.vehicles[i].Serial == s.Serial {
				f.vehicles[i].Stock += s.Quantity
			}
		}
	}
	s.Status = st
	f.sales[id] = s
	return s, nil
}

func (f *fakeRemote) DeleteSale(ctx context.Context, id int64) error {
	f.called("DeleteSale")
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sales[id]
	if !ok {
		return &apperr.ServerError{Code: 404, Message: "sale not found"}
	}
	if s.Status != model.StatusCancelled {
		for i := range f.vehicles {
			if f.vehicles[i].Serial == s.Serial {
				f.vehicles[i].Stock += s.Quantity
			}
		}
	}
	delete(f.sales, id)
	return nil
}

func (f *fakeRemote) CountSales(ctx context.Context) (model.SaleCount, error) {
	f.called("CountSales")
	f.mu.Lock()
	defer f.mu.Unlock()
	var c model.SaleCount
	for _, s := range f.sales {
		c.Add(s.Status)
	}
	return c, nil
}

func (f *fakeRemote) Register(ctx context.Context, u model.User) (model.User, error) {
	f.called("Register")
	u.ID = 7
	u.Password = ""
	u.Role = model.RoleSeller
	return u, nil
}

func (f *fakeRemote) Login(ctx context.Context, email, password string) (model.Session, error) {
	f.called("Login")
	if f.login != nil {
		return f.login(ctx, email, password)
	}
	s := model.Session{User: model.User{ID: 7, Name: "Ana", Email: email, Role: model.RoleSeller}, Token: "tok-1"}
	f.SetToken(s.Token)
	return s, nil
}

func (f *fakeRemote) Logout(ctx context.Context) error {
	f.called("Logout")
	defer f.SetToken("")
	if f.logout != nil {
		return f.logout(ctx)
	}
	return nil
}

func (f *fakeRemote) SetToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func (f *fakeRemote) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func newCache(t *testing.T) *localstore.Store {
	t.Helper()
	return localstore.New(db.NewLocalTestDB(t), slog.New(slog.DiscardHandler))
}

func newRepos(t *testing.T, remote *fakeRemote) (*Repositories, *localstore.Store) {
	t.Helper()
	cache := newCache(t)
	return New(remote, cache, WithLogger(slog.New(slog.DiscardHandler))), cache
}

func car(id int64, serial string, stock int) model.Vehicle {
	return model.Vehicle{
		ID:        id,
		Serial:    serial,
		Model:     "Corolla",
		Year:      2022,
		Price:     decimal.RequireFromString("15000.00"),
		Stock:     stock,
		Available: stock > 0,
	}
}

var timeout = apperr.Connection("GET /auto", context.DeadlineExceeded)

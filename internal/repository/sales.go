package repository

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/concesionaria/internal/apperr"
	"github.com/erazemk/concesionaria/internal/model"
	"github.com/erazemk/concesionaria/internal/report"
)

// Query selects which sales Load fetches. A zero Query means all sales.
// From and To are whole days and must be given together.
type Query struct {
	Status *model.SaleStatus
	From   time.Time
	To     time.Time
}

func (q Query) byDate() bool {
	return !q.From.IsZero() || !q.To.IsZero()
}

// SalesState is one published sales list.
type SalesState struct {
	Sales  []model.Sale
	Query  Query
	Err    error
	Loaded bool
}

// Sales is the sales repository. Sales are not cached locally; reads that
// fail are reported to the caller.
type Sales struct {
	remote   SaleRemote
	vehicles *Vehicles
	log      *slog.Logger

	current *Feed[*model.Sale]
	list    *Feed[SalesState]

	// mu serializes snapshot replacement.
	mu sync.Mutex
}

// NewSales returns a sales repository. vehicles is refreshed after every
// write, since the backend adjusts stock when a sale changes.
func NewSales(remote SaleRemote, vehicles *Vehicles, opts ...Option) *Sales {
	o := buildOptions(opts)
	return &Sales{
		remote:   remote,
		vehicles: vehicles,
		log:      o.log.With("component", "sales"),
		current:  NewFeed[*model.Sale](nil),
		list:     NewFeed(SalesState{Sales: []model.Sale{}}),
	}
}

// Current returns the sale most recently created, read or changed, or nil.
func (r *Sales) Current() *model.Sale {
	return r.current.Current()
}

// SubscribeCurrent follows the current sale.
func (r *Sales) SubscribeCurrent() (<-chan *model.Sale, func()) {
	return r.current.Subscribe()
}

// List returns the latest loaded sales list.
func (r *Sales) List() SalesState {
	return r.list.Current()
}

// SubscribeList follows the loaded sales list.
func (r *Sales) SubscribeList() (<-chan SalesState, func()) {
	return r.list.Subscribe()
}

// Register records a new sale. Everything the client can check is checked
// before the backend is contacted: quantity, price, that the vehicle exists,
// that it is for sale and that it has enough stock.
func (r *Sales) Register(ctx context.Context, serial string, quantity int, price decimal.Decimal) (model.Sale, error) {
	serial = strings.TrimSpace(serial)
	switch {
	case serial == "":
		return model.Sale{}, apperr.Validation("numero_serie", "vehicle serial number is required")
	case quantity <= 0:
		return model.Sale{}, apperr.Validation("cantidad", "quantity must be greater than zero")
	case !price.IsPositive():
		return model.Sale{}, apperr.Validation("precio", "price must be greater than zero")
	}

	v, ok := r.vehicles.FindBySerial(ctx, serial)
	switch {
	case !ok:
		return model.Sale{}, apperr.Validation("numero_serie", "vehicle %s not found", serial)
	case !v.Available:
		return model.Sale{}, apperr.Validation("numero_serie", "vehicle %s is not available for sale", serial)
	case v.Stock < quantity:
		return model.Sale{}, &apperr.ValidationError{Message: "insufficient stock"}
	}

	sale, err := r.remote.CreateSale(ctx, model.NewSale(serial, quantity, price))
	if err != nil {
		return model.Sale{}, err
	}
	r.afterWrite(ctx, &sale)
	return sale, nil
}

// UpdateStatus moves a sale to status. When the sale is already known
// locally an impossible transition is rejected without a request.
func (r *Sales) UpdateStatus(ctx context.Context, id int64, status model.SaleStatus) (model.Sale, error) {
	next, ok := model.LookupStatus(string(status))
	if !ok {
		return model.Sale{}, apperr.Validation("estatus", "unknown status %q", status)
	}
	return r.changeStatus(ctx, id, next, func(s model.Sale) (model.Sale, error) {
		return model.Transition(s, next)
	})
}

// Cancel moves a sale to CANCELLED. The backend returns its units to stock.
func (r *Sales) Cancel(ctx context.Context, id int64) (model.Sale, error) {
	return r.changeStatus(ctx, id, model.StatusCancelled, model.Cancel)
}

func (r *Sales) changeStatus(ctx context.Context, id int64, next model.SaleStatus, check func(model.Sale) (model.Sale, error)) (model.Sale, error) {
	if id <= 0 {
		return model.Sale{}, apperr.Validation("id", "sale id must be a positive integer")
	}
	if known := r.known(id); known != nil {
		if _, err := check(*known); err != nil {
			return model.Sale{}, transitionError(err)
		}
	}

	sale, err := r.remote.UpdateSaleStatus(ctx, id, next)
	if err != nil {
		return model.Sale{}, err
	}
	r.afterWrite(ctx, &sale)
	return sale, nil
}

// Delete removes a sale.
func (r *Sales) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperr.Validation("id", "sale id must be a positive integer")
	}
	if err := r.remote.DeleteSale(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	if cur := r.current.Current(); cur != nil && cur.ID == id {
		r.current.Publish(nil)
	}
	r.mu.Unlock()

	r.afterWrite(ctx, nil)
	return nil
}

// Get fetches one sale and makes it the current sale.
func (r *Sales) Get(ctx context.Context, id int64) (model.Sale, error) {
	sale, err := r.remote.GetSale(ctx, id)
	if err != nil {
		return model.Sale{}, err
	}
	r.mu.Lock()
	r.current.Publish(&sale)
	r.mu.Unlock()
	return sale, nil
}

// Load fetches the sales matching q and publishes them. On failure the
// previous list stays published alongside the error.
func (r *Sales) Load(ctx context.Context, q Query) ([]model.Sale, error) {
	sales, err := r.fetch(ctx, q)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		prev := r.list.Current()
		r.list.Publish(SalesState{Sales: prev.Sales, Query: prev.Query, Err: err, Loaded: prev.Loaded})
		return nil, err
	}
	if sales == nil {
		sales = []model.Sale{}
	}
	r.list.Publish(SalesState{Sales: sales, Query: q, Loaded: true})
	return sales, nil
}

func (r *Sales) fetch(ctx context.Context, q Query) ([]model.Sale, error) {
	if q.Status != nil {
		st, ok := model.LookupStatus(string(*q.Status))
		if !ok {
			return nil, apperr.Validation("estatus", "unknown status %q", *q.Status)
		}
		q.Status = &st
	}

	switch {
	case q.byDate():
		if q.From.IsZero() || q.To.IsZero() {
			return nil, apperr.Validation("fecha", "both start and end dates are required")
		}
		return r.remote.ListSalesByDateRange(ctx, q.From, q.To, q.Status)
	case q.Status != nil:
		return r.remote.ListSalesByStatus(ctx, *q.Status)
	default:
		return r.remote.ListSales(ctx)
	}
}

// Count returns sale totals per status.
func (r *Sales) Count(ctx context.Context) (model.SaleCount, error) {
	return r.remote.CountSales(ctx)
}

// ForReport returns the sales a report over req covers, filtered and in
// chronological order.
func (r *Sales) ForReport(ctx context.Context, req report.Request) ([]model.Sale, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	sales, err := r.remote.ListSalesByDateRange(ctx, req.From, req.To, req.Status)
	if err != nil {
		return nil, err
	}
	// Older backends ignore some filters.
	return report.Select(sales, req), nil
}

// known returns the sale with id if it is the current sale or in the loaded list.
func (r *Sales) known(id int64) *model.Sale {
	if cur := r.current.Current(); cur != nil && cur.ID == id {
		return cur
	}
	for _, s := range r.list.Current().Sales {
		if s.ID == id {
			return &s
		}
	}
	return nil
}

// afterWrite publishes the changed sale and brings stock figures and the
// loaded list up to date. Follow-up failures are logged only; the write
// itself already succeeded.
func (r *Sales) afterWrite(ctx context.Context, sale *model.Sale) {
	if sale != nil {
		r.mu.Lock()
		r.current.Publish(sale)
		r.mu.Unlock()
	}

	if _, err := r.vehicles.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		r.log.Warn("refreshing vehicles after sale change", "error", err)
	}

	if state := r.list.Current(); state.Loaded {
		if _, err := r.Load(ctx, state.Query); err != nil {
			r.log.Warn("reloading sales after sale change", "error", err)
		}
	}
}

func transitionError(err error) error {
	if errors.Is(err, model.ErrAlreadyCancelled) {
		return apperr.Validation("estatus", "sale is already cancelled")
	}
	return apperr.Validation("estatus", "%v", err)
}

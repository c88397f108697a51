package api

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/concesionaria/internal/model"
	"github.com/erazemk/concesionaria/internal/store"
)

// SalesHandler handles the /ventas endpoints.
type SalesHandler struct {
	DB *sql.DB
}

type createSaleRequest struct {
	Serial   string          `json:"numero_serie" validate:"required"`
	Quantity int             `json:"cantidad" validate:"required,gt=0"`
	Price    decimal.Decimal `json:"precio"`
}

type statusRequest struct {
	Status string `json:"estatus" validate:"required"`
}

const queryDate = "2006-01-02"

func parseStatus(s string) (model.SaleStatus, error) {
	status, ok := model.LookupStatus(s)
	if !ok {
		names := make([]string, len(model.Statuses))
		for i, st := range model.Statuses {
			names[i] = string(st)
		}
		return "", fmt.Errorf("invalid status %q (valid: %s)", s, strings.Join(names, ", "))
	}
	return status, nil
}

// writeSaleError maps sale business errors to 4xx replies.
func writeSaleError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, store.ErrSaleNotFound), errors.Is(err, store.ErrVehicleNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrVehicleUnavailable),
		errors.Is(err, model.ErrInvalidTransition):
		jsonError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("failed to "+action, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

func (h *SalesHandler) list(w http.ResponseWriter, r *http.Request, f store.SaleFilter) {
	sales, err := store.ListSales(r.Context(), h.DB, f)
	if err != nil {
		slog.Error("failed to list sales", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list sales")
		return
	}
	if sales == nil {
		sales = []model.Sale{}
	}
	jsonResponse(w, http.StatusOK, sales)
}

// List handles GET /ventas.
func (h *SalesHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, store.SaleFilter{})
}

// ListByStatus handles GET /ventas/estatus/{estatus}.
func (h *SalesHandler) ListByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := parseStatus(r.PathValue("estatus"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.list(w, r, store.SaleFilter{Status: status})
}

// Filter handles GET /ventas/filtro?fechaInicio=&fechaFin=&estatus=.
// Both dates are inclusive.
func (h *SalesHandler) Filter(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.SaleFilter
	var err error

	if s := q.Get("fechaInicio"); s != "" {
		if f.From, err = time.Parse(queryDate, s); err != nil {
			jsonError(w, http.StatusBadRequest, "fechaInicio must be YYYY-MM-DD")
			return
		}
	}
	if s := q.Get("fechaFin"); s != "" {
		if f.To, err = time.Parse(queryDate, s); err != nil {
			jsonError(w, http.StatusBadRequest, "fechaFin must be YYYY-MM-DD")
			return
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		jsonError(w, http.StatusBadRequest, "fechaFin is before fechaInicio")
		return
	}
	if s := q.Get("estatus"); s != "" {
		if f.Status, err = parseStatus(s); err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	h.list(w, r, f)
}

// Get handles GET /ventas/{id}.
func (h *SalesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid sale id")
		return
	}

	sale, err := store.GetSale(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get sale", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get sale")
		return
	}
	if sale == nil {
		jsonError(w, http.StatusNotFound, "sale not found")
		return
	}
	jsonResponse(w, http.StatusOK, sale)
}

// Create handles POST /ventas. Every new sale starts PENDING.
func (h *SalesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Price.IsPositive() {
		jsonError(w, http.StatusBadRequest, "precio must be positive")
		return
	}

	claims := GetClaims(r.Context())
	sale, err := store.CreateSale(r.Context(), h.DB, strings.TrimSpace(req.Serial), req.Quantity, req.Price, &claims.UserID)
	if err != nil {
		writeSaleError(w, err, "create sale")
		return
	}

	slog.Info("sale registered", "user", claims.Email, "sale", sale.ID, "serial", sale.Serial, "quantity", sale.Quantity)
	jsonResponse(w, http.StatusCreated, sale)
}

// UpdateStatus handles PUT /ventas/{id}/estatus.
func (h *SalesHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid sale id")
		return
	}

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := parseStatus(req.Status)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	sale, err := store.UpdateSaleStatus(r.Context(), h.DB, id, status)
	if err != nil {
		writeSaleError(w, err, "update sale status")
		return
	}

	slog.Info("sale status updated", "user", GetClaims(r.Context()).Email, "sale", id, "status", sale.Status)
	jsonResponse(w, http.StatusOK, sale)
}

// Delete handles DELETE /ventas/{id}.
func (h *SalesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid sale id")
		return
	}

	if err := store.DeleteSale(r.Context(), h.DB, id); err != nil {
		writeSaleError(w, err, "delete sale")
		return
	}

	slog.Info("sale deleted", "user", GetClaims(r.Context()).Email, "sale", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "sale deleted"})
}

// Count handles GET /ventas/contar.
func (h *SalesHandler) Count(w http.ResponseWriter, r *http.Request) {
	count, err := store.CountSales(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to count sales", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to count sales")
		return
	}
	jsonResponse(w, http.StatusOK, count)
}

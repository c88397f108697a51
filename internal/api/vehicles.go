package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/erazemk/concesionaria/internal/imaging"
	"github.com/erazemk/concesionaria/internal/model"
	"github.com/erazemk/concesionaria/internal/store"
)

// VehiclesHandler handles the /auto endpoints.
type VehiclesHandler struct {
	DB *sql.DB
}

type vehicleRequest struct {
	Serial      string          `json:"numero_serie" validate:"required,max=64"`
	SKU         string          `json:"sku" validate:"max=64"`
	BrandID     int64           `json:"marca_id" validate:"gte=0"`
	Model       string          `json:"modelo" validate:"max=100"`
	Year        int             `json:"anio" validate:"gte=0"`
	Color       string          `json:"color" validate:"max=50"`
	Price       decimal.Decimal `json:"precio"`
	Stock       int             `json:"stock" validate:"gte=0"`
	Description string          `json:"descripcion" validate:"max=2000"`
	Available   *bool           `json:"disponible"`
}

func (req vehicleRequest) vehicle() model.Vehicle {
	v := model.Vehicle{
		Serial:      req.Serial,
		SKU:         req.SKU,
		BrandID:     req.BrandID,
		Model:       req.Model,
		Year:        req.Year,
		Color:       req.Color,
		Price:       req.Price,
		Stock:       req.Stock,
		Description: req.Description,
		Available:   req.Stock > 0,
	}
	if req.Available != nil {
		v.Available = *req.Available
	}
	v.Normalize()
	return v
}

// List handles GET /auto. ?disponible=1 limits the list to vehicles on sale.
func (h *VehiclesHandler) List(w http.ResponseWriter, r *http.Request) {
	onlyAvailable := r.URL.Query().Get("disponible") == "1" || r.URL.Query().Get("disponible") == "true"
	vehicles, err := store.ListVehicles(r.Context(), h.DB, onlyAvailable)
	if err != nil {
		slog.Error("failed to list vehicles", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list vehicles")
		return
	}
	if vehicles == nil {
		vehicles = []model.Vehicle{}
	}
	jsonResponse(w, http.StatusOK, vehicles)
}

// Get handles GET /auto/{id}.
func (h *VehiclesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid vehicle id")
		return
	}

	v, err := store.GetVehicle(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get vehicle", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get vehicle")
		return
	}
	if v == nil {
		jsonError(w, http.StatusNotFound, "vehicle not found")
		return
	}
	jsonResponse(w, http.StatusOK, v)
}

// Create handles POST /auto.
func (h *VehiclesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req vehicleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	v := req.vehicle()
	if err := v.Validate(); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := store.CreateVehicle(r.Context(), h.DB, v)
	if errors.Is(err, store.ErrDuplicateSerial) {
		jsonError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to create vehicle", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create vehicle")
		return
	}

	slog.Info("vehicle created", "user", GetClaims(r.Context()).Email, "serial", created.Serial)
	jsonResponse(w, http.StatusCreated, created)
}

// Update handles PUT /auto/{id}.
func (h *VehiclesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid vehicle id")
		return
	}

	var req vehicleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	v := req.vehicle()
	if err := v.Validate(); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = store.UpdateVehicle(r.Context(), h.DB, id, v)
	switch {
	case errors.Is(err, store.ErrVehicleNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, store.ErrDuplicateSerial):
		jsonError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		slog.Error("failed to update vehicle", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update vehicle")
		return
	}

	updated, _ := store.GetVehicle(r.Context(), h.DB, id)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /auto/{id}. Sales reference vehicles, so the vehicle
// is retired rather than removed.
func (h *VehiclesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid vehicle id")
		return
	}

	err = store.SetVehicleAvailability(r.Context(), h.DB, id, false)
	if errors.Is(err, store.ErrVehicleNotFound) {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to retire vehicle", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete vehicle")
		return
	}

	slog.Info("vehicle retired", "user", GetClaims(r.Context()).Email, "id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "vehicle retired"})
}

// UploadImage handles PUT /auto/{id}/imagen.
func (h *VehiclesHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid vehicle id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadSize); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("imagen")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := imaging.NormalizePhoto(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = store.SetVehicleImage(r.Context(), h.DB, id, photo.Data, photo.MIME)
	if errors.Is(err, store.ErrVehicleNotFound) {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to save vehicle image", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "image uploaded",
		"ancho":   photo.Width,
		"alto":    photo.Height,
	})
}

// GetImage handles GET /auto/{id}/imagen.
func (h *VehiclesHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid vehicle id")
		return
	}

	data, mime, err := store.GetVehicleImage(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get vehicle image", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

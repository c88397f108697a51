package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Vehicle is an inventory record. ID is assigned by the server; 0 means the
// vehicle was never saved and a negative ID is a local placeholder that has
// not been confirmed by the server yet.
type Vehicle struct {
	ID           int64           `json:"id"`
	Serial       string          `json:"numero_serie"`
	SKU          string          `json:"sku,omitempty"`
	BrandID      int64           `json:"marca_id,omitempty"`
	Model        string          `json:"modelo"`
	Year         int             `json:"anio"`
	Color        string          `json:"color,omitempty"`
	Price        decimal.Decimal `json:"precio"`
	Stock        int             `json:"stock"`
	Description  string          `json:"descripcion,omitempty"`
	Available    bool            `json:"disponible"`
	ImageMime    string          `json:"imagen_mime,omitempty"`
	RegisteredAt time.Time       `json:"fecha_registro"`
	UpdatedAt    time.Time       `json:"fecha_actualizacion"`
}

// Persisted reports whether the server has assigned an ID.
func (v Vehicle) Persisted() bool {
	return v.ID > 0
}

// Provisional reports whether the ID is a local placeholder.
func (v Vehicle) Provisional() bool {
	return v.ID < 0
}

// CanSell reports whether quantity units can be sold right now.
func (v Vehicle) CanSell(quantity int) bool {
	return v.Available && quantity > 0 && v.Stock >= quantity
}

// Validate checks the fields every stored vehicle must have.
func (v Vehicle) Validate() error {
	if v.Serial == "" {
		return fmt.Errorf("serial number required")
	}
	if v.Stock < 0 {
		return fmt.Errorf("stock cannot be negative")
	}
	if v.Price.IsNegative() {
		return fmt.Errorf("price cannot be negative")
	}
	if v.Year != 0 && (v.Year < 1886 || v.Year > time.Now().Year()+2) {
		return fmt.Errorf("invalid model year %d", v.Year)
	}
	return nil
}

// Normalize clears availability when nothing is in stock. It never sets
// availability on; that stays a manual decision.
func (v *Vehicle) Normalize() {
	if v.Stock == 0 {
		v.Available = false
	}
}

package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SaleStatus is the lifecycle state of a sale.
type SaleStatus string

// Sale statuses.
const (
	StatusPending   SaleStatus = "PENDING"
	StatusCompleted SaleStatus = "COMPLETED"
	StatusDelivered SaleStatus = "DELIVERED"
	StatusCancelled SaleStatus = "CANCELLED"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []SaleStatus{StatusPending, StatusCompleted, StatusDelivered, StatusCancelled}

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyCancelled  = fmt.Errorf("%w: sale is already cancelled", ErrInvalidTransition)
)

// successors maps each status to the statuses it may move to.
var successors = map[SaleStatus][]SaleStatus{
	StatusPending:   {StatusCompleted, StatusDelivered, StatusCancelled},
	StatusCompleted: {StatusDelivered, StatusCancelled},
	StatusDelivered: {StatusCancelled},
	StatusCancelled: nil,
}

// Older backends report statuses in Spanish.
var statusAliases = map[string]SaleStatus{
	"PENDIENTE":  StatusPending,
	"COMPLETADA": StatusCompleted,
	"COMPLETADO": StatusCompleted,
	"ENTREGADA":  StatusDelivered,
	"ENTREGADO":  StatusDelivered,
	"CANCELADA":  StatusCancelled,
	"CANCELADO":  StatusCancelled,
	"CANCELED":   StatusCancelled,
}

// ParseStatus maps s to a status. Unknown values fall back to PENDING.
func ParseStatus(s string) SaleStatus {
	status, _ := LookupStatus(s)
	return status
}

// LookupStatus is ParseStatus that also reports whether s was recognised.
func LookupStatus(s string) (SaleStatus, bool) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if st := SaleStatus(key); st.Valid() {
		return st, true
	}
	if st, ok := statusAliases[key]; ok {
		return st, true
	}
	return StatusPending, false
}

// Valid reports whether s is one of the known statuses.
func (s SaleStatus) Valid() bool {
	_, ok := successors[s]
	return ok
}

// CanTransitionTo reports whether s may move to next.
func (s SaleStatus) CanTransitionTo(next SaleStatus) bool {
	for _, st := range successors[s] {
		if st == next {
			return true
		}
	}
	return false
}

// Successors returns the statuses reachable from s in one step.
func (s SaleStatus) Successors() []SaleStatus {
	return append([]SaleStatus(nil), successors[s]...)
}

// Sale is a vehicle sale.
type Sale struct {
	ID       int64           `json:"id"`
	Serial   string          `json:"numero_serie"`
	Quantity int             `json:"cantidad"`
	Price    decimal.Decimal `json:"precio"`
	Status   SaleStatus      `json:"estatus"`
	SoldAt   time.Time       `json:"fecha_venta"`
}

// NewSale returns an unsaved sale. New sales always start as PENDING.
func NewSale(serial string, quantity int, price decimal.Decimal) Sale {
	return Sale{
		Serial:   serial,
		Quantity: quantity,
		Price:    price,
		Status:   StatusPending,
		SoldAt:   time.Now(),
	}
}

// Total is quantity times unit price.
func (s Sale) Total() decimal.Decimal {
	return s.Price.Mul(decimal.NewFromInt(int64(s.Quantity)))
}

// Validate checks the fields a sale needs before it is sent anywhere.
func (s Sale) Validate() error {
	if strings.TrimSpace(s.Serial) == "" {
		return fmt.Errorf("vehicle serial number required")
	}
	if s.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if !s.Price.IsPositive() {
		return fmt.Errorf("price must be positive")
	}
	return nil
}

// Transition moves the sale to next.
func Transition(s Sale, next SaleStatus) (Sale, error) {
	if s.Status == StatusCancelled {
		return s, ErrAlreadyCancelled
	}
	if !s.Status.CanTransitionTo(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}
	s.Status = next
	return s, nil
}

// Cancel moves the sale to CANCELLED.
func Cancel(s Sale) (Sale, error) {
	if s.Status == StatusCancelled {
		return s, ErrAlreadyCancelled
	}
	s.Status = StatusCancelled
	return s, nil
}

// SaleCount summarizes sales per status.
type SaleCount struct {
	Total     int `json:"total"`
	Pending   int `json:"pendientes"`
	Completed int `json:"completadas"`
	Delivered int `json:"entregadas"`
	Cancelled int `json:"canceladas"`
}

// Add counts one sale with the given status.
func (c *SaleCount) Add(status SaleStatus) {
	c.Total++
	switch status {
	case StatusPending:
		c.Pending++
	case StatusCompleted:
		c.Completed++
	case StatusDelivered:
		c.Delivered++
	case StatusCancelled:
		c.Cancelled++
	}
}

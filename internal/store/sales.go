package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/concesionaria/internal/model"
)

// ErrSaleNotFound is returned when a sale ID does not exist.
var ErrSaleNotFound = errors.New("sale not found")

// SaleFilter narrows ListSales. Zero values mean "no filter".
type SaleFilter struct {
	Status model.SaleStatus
	From   time.Time
	To     time.Time
}

const saleColumns = `id, numero_serie, cantidad, precio, estatus, fecha_venta`

// sqlTime formats t the way CURRENT_TIMESTAMP does, so date() works on it.
func sqlTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

func scanSale(s scanner) (*model.Sale, error) {
	sale := &model.Sale{}
	var status string
	if err := s.Scan(&sale.ID, &sale.Serial, &sale.Quantity, &sale.Price, &status, &sale.SoldAt); err != nil {
		return nil, err
	}
	sale.Status = model.SaleStatus(status)
	return sale, nil
}

// CreateSale records a PENDING sale and takes the sold units out of stock in
// a single transaction. A vehicle whose stock reaches zero stops being available.
func CreateSale(ctx context.Context, db *sql.DB, serial string, quantity int, price decimal.Decimal, soldBy *int64) (*model.Sale, error) {
	sale := model.NewSale(serial, quantity, price)
	if err := sale.Validate(); err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var stock int
	var available bool
	err = tx.QueryRowContext(ctx,
		`SELECT stock, disponible FROM autos WHERE numero_serie = ?`, serial,
	).Scan(&stock, &available)
	if err == sql.ErrNoRows {
		return nil, ErrVehicleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking vehicle: %w", err)
	}
	if !available {
		return nil, ErrVehicleUnavailable
	}
	if stock < quantity {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientStock, stock, quantity)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE autos SET stock = stock - ?,
		        disponible = CASE WHEN stock - ? = 0 THEN 0 ELSE disponible END,
		        fecha_actualizacion = CURRENT_TIMESTAMP
		 WHERE numero_serie = ?`,
		quantity, quantity, serial,
	)
	if err != nil {
		return nil, fmt.Errorf("updating stock: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO ventas (numero_serie, cantidad, precio, estatus, fecha_venta, vendido_por)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		serial, quantity, price, string(model.StatusPending), sqlTime(sale.SoldAt), soldBy,
	)
	if err != nil {
		return nil, fmt.Errorf("recording sale: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing sale: %w", err)
	}

	id, _ := result.LastInsertId()
	return GetSale(ctx, db, id)
}

// GetSale returns a sale by ID.
func GetSale(ctx context.Context, db *sql.DB, id int64) (*model.Sale, error) {
	sale, err := scanSale(db.QueryRowContext(ctx,
		`SELECT `+saleColumns+` FROM ventas WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting sale: %w", err)
	}
	return sale, nil
}

// ListSales returns sales matching the filter, oldest first.
func ListSales(ctx context.Context, db *sql.DB, f SaleFilter) ([]model.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM ventas WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += ` AND estatus = ?`
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		query += ` AND date(fecha_venta) >= ?`
		args = append(args, f.From.Format("2006-01-02"))
	}
	if !f.To.IsZero() {
		query += ` AND date(fecha_venta) <= ?`
		args = append(args, f.To.Format("2006-01-02"))
	}

	query += ` ORDER BY fecha_venta, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sales: %w", err)
	}
	defer rows.Close()

	var sales []model.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sale: %w", err)
		}
		sales = append(sales, *s)
	}
	return sales, rows.Err()
}

// UpdateSaleStatus moves a sale to next, enforcing the status machine.
// Cancelling a sale puts its units back in stock.
func UpdateSaleStatus(ctx context.Context, db *sql.DB, id int64, next model.SaleStatus) (*model.Sale, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanSale(tx.QueryRowContext(ctx,
		`SELECT `+saleColumns+` FROM ventas WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, ErrSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting sale: %w", err)
	}

	updated, err := model.Transition(*current, next)
	if err != nil {
		return nil, err
	}

	if updated.Status == model.StatusCancelled {
		if err := restoreStock(ctx, tx, current.Serial, current.Quantity); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE ventas SET estatus = ? WHERE id = ?`, string(updated.Status), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating sale status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing status update: %w", err)
	}
	return &updated, nil
}

// DeleteSale removes a sale. Units of a sale that was not cancelled go back
// in stock.
func DeleteSale(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanSale(tx.QueryRowContext(ctx,
		`SELECT `+saleColumns+` FROM ventas WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return ErrSaleNotFound
	}
	if err != nil {
		return fmt.Errorf("getting sale: %w", err)
	}

	if current.Status != model.StatusCancelled {
		if err := restoreStock(ctx, tx, current.Serial, current.Quantity); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM ventas WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting sale: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing sale deletion: %w", err)
	}
	return nil
}

// CountSales returns the number of sales per status.
func CountSales(ctx context.Context, db *sql.DB) (model.SaleCount, error) {
	var count model.SaleCount

	rows, err := db.QueryContext(ctx,
		`SELECT estatus, COUNT(*) FROM ventas GROUP BY estatus`,
	)
	if err != nil {
		return count, fmt.Errorf("counting sales: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return count, fmt.Errorf("scanning sale count: %w", err)
		}
		for i := 0; i < n; i++ {
			count.Add(model.SaleStatus(status))
		}
	}
	return count, rows.Err()
}

// restoreStock puts quantity units back. A vehicle that was only unavailable
// because it had run out becomes available again.
func restoreStock(ctx context.Context, tx *sql.Tx, serial string, quantity int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE autos SET disponible = CASE WHEN stock = 0 THEN 1 ELSE disponible END,
		        stock = stock + ?,
		        fecha_actualizacion = CURRENT_TIMESTAMP
		 WHERE numero_serie = ?`,
		quantity, serial,
	)
	if err != nil {
		return fmt.Errorf("restoring stock: %w", err)
	}
	return nil
}

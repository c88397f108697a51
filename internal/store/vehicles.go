package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/erazemk/concesionaria/internal/model"
)

// Vehicle errors reported to API clients as 4xx.
var (
	ErrVehicleNotFound    = errors.New("vehicle not found")
	ErrVehicleUnavailable = errors.New("vehicle is not available for sale")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrDuplicateSerial    = errors.New("a vehicle with this serial number already exists")
)

const vehicleColumns = `id, numero_serie, sku, marca_id, modelo, anio, color, precio, stock,
	descripcion, disponible, imagen_mime, fecha_registro, fecha_actualizacion`

type scanner interface {
	Scan(dest ...any) error
}

func scanVehicle(s scanner) (*model.Vehicle, error) {
	v := &model.Vehicle{}
	var imageMime sql.NullString
	err := s.Scan(&v.ID, &v.Serial, &v.SKU, &v.BrandID, &v.Model, &v.Year, &v.Color, &v.Price, &v.Stock,
		&v.Description, &v.Available, &imageMime, &v.RegisteredAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.ImageMime = imageMime.String
	return v, nil
}

// CreateVehicle inserts a new vehicle and returns it with its assigned ID.
func CreateVehicle(ctx context.Context, db *sql.DB, v model.Vehicle) (*model.Vehicle, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO autos (numero_serie, sku, marca_id, modelo, anio, color, precio, stock, descripcion, disponible)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.Serial, v.SKU, v.BrandID, v.Model, v.Year, v.Color, v.Price, v.Stock, v.Description, v.Available,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSerial
		}
		return nil, fmt.Errorf("creating vehicle: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting vehicle id: %w", err)
	}

	return GetVehicle(ctx, db, id)
}

// GetVehicle returns a vehicle by ID.
func GetVehicle(ctx context.Context, db *sql.DB, id int64) (*model.Vehicle, error) {
	v, err := scanVehicle(db.QueryRowContext(ctx,
		`SELECT `+vehicleColumns+` FROM autos WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting vehicle: %w", err)
	}
	return v, nil
}

// GetVehicleBySerial returns a vehicle by serial number.
func GetVehicleBySerial(ctx context.Context, db *sql.DB, serial string) (*model.Vehicle, error) {
	v, err := scanVehicle(db.QueryRowContext(ctx,
		`SELECT `+vehicleColumns+` FROM autos WHERE numero_serie = ?`, serial,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting vehicle by serial: %w", err)
	}
	return v, nil
}

// ListVehicles returns all vehicles, optionally only the available ones.
func ListVehicles(ctx context.Context, db *sql.DB, onlyAvailable bool) ([]model.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM autos`
	if onlyAvailable {
		query += ` WHERE disponible = 1`
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []model.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning vehicle: %w", err)
		}
		vehicles = append(vehicles, *v)
	}
	return vehicles, rows.Err()
}

// UpdateVehicle replaces a vehicle's editable fields.
func UpdateVehicle(ctx context.Context, db *sql.DB, id int64, v model.Vehicle) error {
	result, err := db.ExecContext(ctx,
		`UPDATE autos SET numero_serie = ?, sku = ?, marca_id = ?, modelo = ?, anio = ?, color = ?,
		        precio = ?, stock = ?, descripcion = ?, disponible = ?, fecha_actualizacion = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		v.Serial, v.SKU, v.BrandID, v.Model, v.Year, v.Color, v.Price, v.Stock, v.Description, v.Available, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSerial
		}
		return fmt.Errorf("updating vehicle: %w", err)
	}
	return requireAffected(result, ErrVehicleNotFound)
}

// SetVehicleAvailability toggles whether a vehicle can be sold. Vehicles are
// never removed, only retired.
func SetVehicleAvailability(ctx context.Context, db *sql.DB, id int64, available bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE autos SET disponible = ?, fecha_actualizacion = CURRENT_TIMESTAMP WHERE id = ?`,
		available, id,
	)
	if err != nil {
		return fmt.Errorf("setting vehicle availability: %w", err)
	}
	return requireAffected(result, ErrVehicleNotFound)
}

// SetVehicleImage sets a vehicle's photo.
func SetVehicleImage(ctx context.Context, db *sql.DB, id int64, image []byte, mime string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE autos SET imagen = ?, imagen_mime = ?, fecha_actualizacion = CURRENT_TIMESTAMP WHERE id = ?`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting vehicle image: %w", err)
	}
	return requireAffected(result, ErrVehicleNotFound)
}

// GetVehicleImage returns a vehicle's photo and MIME type.
func GetVehicleImage(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT imagen, imagen_mime FROM autos WHERE id = ?`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting vehicle image: %w", err)
	}
	return image, mime.String, nil
}

func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/erazemk/concesionaria/internal/apperr"
	"github.com/erazemk/concesionaria/internal/model"
)

func vehiclePayload(v model.Vehicle) map[string]any {
	return map[string]any{
		"numero_serie": v.Serial,
		"sku":          v.SKU,
		"marca_id":     v.BrandID,
		"modelo":       v.Model,
		"anio":         v.Year,
		"color":        v.Color,
		"precio":       json.Number(v.Price.String()),
		"stock":        v.Stock,
		"descripcion":  v.Description,
		"disponible":   v.Available,
	}
}

// ListVehicles returns every vehicle. One undecodable element fails the whole list.
func (c *Client) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	items, err := c.getList(ctx, "vehicle list", c.paths.Vehicles, nil)
	if err != nil {
		return nil, err
	}
	vehicles := make([]model.Vehicle, 0, len(items))
	for _, f := range items {
		v, err := decodeVehicle(f)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

// GetVehicle returns one vehicle.
func (c *Client) GetVehicle(ctx context.Context, id int64) (model.Vehicle, error) {
	if err := requireID(id, "vehicle"); err != nil {
		return model.Vehicle{}, err
	}
	f, err := c.object(ctx, "vehicle", request{method: http.MethodGet, path: expand(c.paths.Vehicle, id, "")})
	if err != nil {
		return model.Vehicle{}, err
	}
	return decodeVehicle(f)
}

// CreateVehicle stores a new vehicle and returns it with its server ID.
func (c *Client) CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	if err := v.Validate(); err != nil {
		return model.Vehicle{}, apperr.Validation("vehicle", "%v", err)
	}
	req, err := jsonRequest(http.MethodPost, c.paths.Vehicles, vehiclePayload(v))
	if err != nil {
		return model.Vehicle{}, err
	}
	f, err := c.object(ctx, "vehicle", req)
	if err != nil {
		return model.Vehicle{}, err
	}
	return decodeVehicle(f)
}

// UpdateVehicle replaces a vehicle's fields.
func (c *Client) UpdateVehicle(ctx context.Context, id int64, v model.Vehicle) (model.Vehicle, error) {
	if err := requireID(id, "vehicle"); err != nil {
		return model.Vehicle{}, err
	}
	if err := v.Validate(); err != nil {
		return model.Vehicle{}, apperr.Validation("vehicle", "%v", err)
	}
	req, err := jsonRequest(http.MethodPut, expand(c.paths.Vehicle, id, ""), vehiclePayload(v))
	if err != nil {
		return model.Vehicle{}, err
	}
	f, err := c.object(ctx, "vehicle", req)
	if err != nil {
		return model.Vehicle{}, err
	}
	return decodeVehicle(f)
}

// DeleteVehicle asks the backend to delete (or retire) a vehicle.
func (c *Client) DeleteVehicle(ctx context.Context, id int64) error {
	if err := requireID(id, "vehicle"); err != nil {
		return err
	}
	_, err := c.do(ctx, request{method: http.MethodDelete, path: expand(c.paths.Vehicle, id, "")})
	return err
}

// UploadVehicleImage sends a photo as multipart form field "imagen".
func (c *Client) UploadVehicleImage(ctx context.Context, id int64, filename string, r io.Reader) error {
	if err := requireID(id, "vehicle"); err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("imagen", filename)
	if err != nil {
		return fmt.Errorf("building upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("building upload: %w", err)
	}

	_, err = c.do(ctx, request{
		method:      http.MethodPut,
		path:        expand(c.paths.VehicleImage, id, ""),
		body:        &body,
		contentType: mw.FormDataContentType(),
	})
	return err
}

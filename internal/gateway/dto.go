package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/erazemk/concesionaria/internal/apperr"
	"github.com/erazemk/concesionaria/internal/model"
)

// Servers disagree on key spelling (numero_serie, numeroSerie, serial...).
// Keys are compared after lowercasing and dropping '_' and '-', and each
// field has a list of accepted aliases.
var (
	keyID          = []string{"id", "idauto", "idventa", "idusuario"}
	keySerial      = []string{"numeroserie", "serial", "serialnumber", "numserie", "vin"}
	keySKU         = []string{"sku"}
	keyBrandID     = []string{"marcaid", "idmarca", "brandid", "marca"}
	keyModel       = []string{"modelo", "model"}
	keyYear        = []string{"anio", "ano", "year"}
	keyColor       = []string{"color"}
	keyPrice       = []string{"precio", "price", "preciounitario", "unitprice"}
	keyStock       = []string{"stock", "existencias", "inventario"}
	keyDescription = []string{"descripcion", "description"}
	keyAvailable   = []string{"disponible", "available", "disponibilidad"}
	keyImageMime   = []string{"imagenmime", "imagemime"}
	keyRegistered  = []string{"fecharegistro", "registeredat", "createdat", "fechacreacion"}
	keyUpdated     = []string{"fechaactualizacion", "updatedat"}
	keyQuantity    = []string{"cantidad", "quantity", "qty"}
	keyStatus      = []string{"estatus", "status", "estado"}
	keySoldAt      = []string{"fechaventa", "fecha", "soldat", "saledate", "date"}
	keyName        = []string{"nombre", "name", "firstname"}
	keySurname     = []string{"apellido", "apellidos", "surname", "lastname"}
	keyEmail       = []string{"email", "correo", "mail"}
	keyRole        = []string{"rol", "role"}
	keyToken       = []string{"token", "accesstoken", "jwt"}
	keyTotal       = []string{"total", "totalventas", "count"}
	keyPending     = []string{"pendientes", "pending", "pendiente"}
	keyCompleted   = []string{"completadas", "completed", "completada"}
	keyDelivered   = []string{"entregadas", "delivered", "entregada"}
	keyCancelled   = []string{"canceladas", "cancelled", "canceled", "cancelada"}
)

// Envelope keys that may wrap the payload.
var (
	listEnvelopes   = []string{"data", "datos", "items", "result", "resultado", "results", "autos", "vehiculos", "ventas", "content"}
	objectEnvelopes = []string{"data", "datos", "result", "resultado", "auto", "vehiculo", "venta"}
	userEnvelopes   = []string{"usuario", "user"}
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func normalizeKey(k string) string {
	k = strings.ToLower(k)
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(k)
}

// fields is a JSON object with normalized keys.
type fields map[string]any

func newFields(m map[string]any) fields {
	f := make(fields, len(m))
	for k, v := range m {
		f[normalizeKey(k)] = v
	}
	return f
}

func (f fields) lookup(keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (f fields) has(keys []string) bool {
	_, ok := f.lookup(keys)
	return ok
}

func (f fields) str(keys []string) string {
	v, ok := f.lookup(keys)
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

func (f fields) integer(keys []string) (int64, bool, error) {
	v, ok := f.lookup(keys)
	if !ok {
		return 0, false, nil
	}
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true, nil
		}
		fl, err := x.Float64()
		if err != nil || fl != float64(int64(fl)) {
			return 0, true, fmt.Errorf("%s is not an integer", x)
		}
		return int64(fl), true, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, true, fmt.Errorf("%q is not an integer", x)
		}
		return n, true, nil
	}
	return 0, true, fmt.Errorf("unexpected %T for integer", v)
}

func (f fields) decimal(keys []string) (decimal.Decimal, bool, error) {
	v, ok := f.lookup(keys)
	if !ok {
		return decimal.Zero, false, nil
	}
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(strings.ReplaceAll(x, ",", ""))
		s = strings.TrimPrefix(s, "$")
		if s == "" {
			return decimal.Zero, false, nil
		}
	default:
		return decimal.Zero, true, fmt.Errorf("unexpected %T for amount", v)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, true, fmt.Errorf("%q is not an amount", s)
	}
	return d, true, nil
}

func (f fields) boolean(keys []string) (bool, bool, error) {
	v, ok := f.lookup(keys)
	if !ok {
		return false, false, nil
	}
	switch x := v.(type) {
	case bool:
		return x, true, nil
	case json.Number:
		return x.String() != "0", true, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "t", "si", "sí", "yes", "y":
			return true, true, nil
		case "0", "false", "f", "no", "n", "":
			return false, true, nil
		}
		return false, true, fmt.Errorf("%q is not a boolean", x)
	}
	return false, true, fmt.Errorf("unexpected %T for boolean", v)
}

// timestamp reads a date through ParseTimestamp. Absent dates come back zero.
func (f fields) timestamp(keys []string) (time.Time, TimestampFormat, bool) {
	v, ok := f.lookup(keys)
	if !ok {
		return time.Time{}, FormatFallback, false
	}
	if n, isNum := v.(json.Number); isNum {
		if i, err := n.Int64(); err == nil {
			return epochTime(i), FormatEpoch, true
		}
	}
	s, _ := v.(string)
	t, format := ParseTimestamp(s)
	return t, format, true
}

// decodeBody parses a reply body with numbers kept as json.Number.
func decodeBody(what string, body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &apperr.ParseError{What: what, Err: err}
	}
	return v, nil
}

// unwrapList finds the array in a bare or enveloped list reply.
func unwrapList(what string, v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case map[string]any:
		f := newFields(x)
		for _, k := range listEnvelopes {
			if inner, ok := f[k]; ok {
				if list, ok := inner.([]any); ok {
					return list, nil
				}
				if m, ok := inner.(map[string]any); ok {
					return unwrapList(what, m)
				}
			}
		}
	}
	return nil, &apperr.ParseError{What: what, Err: fmt.Errorf("expected a list")}
}

// unwrapObject finds the entity in a bare or enveloped object reply. An
// object that already carries an id is taken as is.
func unwrapObject(what string, v any) (fields, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &apperr.ParseError{What: what, Err: fmt.Errorf("expected an object")}
	}
	f := newFields(m)
	if f.has(keyID) {
		return f, nil
	}
	for _, k := range objectEnvelopes {
		if inner, ok := f[k].(map[string]any); ok {
			return newFields(inner), nil
		}
	}
	return f, nil
}

type vehicleDTO struct {
	ID          int64  `validate:"gt=0"`
	Serial      string `validate:"required"`
	SKU         string
	BrandID     int64 `validate:"gte=0"`
	Model       string
	Year        int64 `validate:"gte=0"`
	Color       string
	Price       decimal.Decimal
	Stock       int64 `validate:"gte=0"`
	Description string
	Available   bool
	ImageMime   string
	Registered  time.Time
	Updated     time.Time
}

// brandID reads the brand reference, flat or as a nested brand object.
func brandID(f fields) (int64, error) {
	if v, ok := f.lookup(keyBrandID); ok {
		if m, ok := v.(map[string]any); ok {
			id, _, err := newFields(m).integer(keyID)
			return id, err
		}
	}
	id, _, err := f.integer(keyBrandID)
	return id, err
}

func decodeVehicle(f fields) (model.Vehicle, error) {
	var dto vehicleDTO
	var errs []string
	note := func(name string, err error) {
		if err != nil {
			errs = append(errs, name+": "+err.Error())
		}
	}

	var hasStock, hasPrice, hasAvailable bool
	var err error
	dto.ID, _, err = f.integer(keyID)
	note("id", err)
	dto.BrandID, err = brandID(f)
	note("marca_id", err)
	dto.Year, _, err = f.integer(keyYear)
	note("anio", err)
	dto.Stock, hasStock, err = f.integer(keyStock)
	note("stock", err)
	dto.Price, hasPrice, err = f.decimal(keyPrice)
	note("precio", err)
	dto.Available, hasAvailable, err = f.boolean(keyAvailable)
	note("disponible", err)

	dto.Serial = f.str(keySerial)
	dto.SKU = f.str(keySKU)
	dto.Model = f.str(keyModel)
	dto.Color = f.str(keyColor)
	dto.Description = f.str(keyDescription)
	dto.ImageMime = f.str(keyImageMime)
	dto.Registered, _, _ = f.timestamp(keyRegistered)
	dto.Updated, _, _ = f.timestamp(keyUpdated)

	if !hasStock {
		errs = append(errs, "stock: missing")
	}
	if !hasPrice {
		errs = append(errs, "precio: missing")
	} else if dto.Price.IsNegative() {
		errs = append(errs, "precio: negative")
	}
	if len(errs) > 0 {
		return model.Vehicle{}, &apperr.ParseError{What: "vehicle", Err: fmt.Errorf("%s", strings.Join(errs, "; "))}
	}
	if err := validate.Struct(dto); err != nil {
		return model.Vehicle{}, &apperr.ParseError{What: "vehicle", Err: err}
	}
	if !hasAvailable {
		dto.Available = dto.Stock > 0
	}

	return model.Vehicle{
		ID:           dto.ID,
		Serial:       dto.Serial,
		SKU:          dto.SKU,
		BrandID:      dto.BrandID,
		Model:        dto.Model,
		Year:         int(dto.Year),
		Color:        dto.Color,
		Price:        dto.Price,
		Stock:        int(dto.Stock),
		Description:  dto.Description,
		Available:    dto.Available,
		ImageMime:    dto.ImageMime,
		RegisteredAt: dto.Registered,
		UpdatedAt:    dto.Updated,
	}, nil
}

type saleDTO struct {
	ID       int64  `validate:"gt=0"`
	Serial   string `validate:"required"`
	Quantity int64  `validate:"gt=0"`
	Price    decimal.Decimal
	Status   model.SaleStatus
	SoldAt   time.Time
}

// decodeSale fails closed on everything except the date, which falls back
// to now, and the status, which falls back to PENDING.
func decodeSale(f fields) (model.Sale, error) {
	var dto saleDTO
	var errs []string
	var hasPrice bool
	var err error

	if dto.ID, _, err = f.integer(keyID); err != nil {
		errs = append(errs, "id: "+err.Error())
	}
	if dto.Quantity, _, err = f.integer(keyQuantity); err != nil {
		errs = append(errs, "cantidad: "+err.Error())
	}
	if dto.Price, hasPrice, err = f.decimal(keyPrice); err != nil {
		errs = append(errs, "precio: "+err.Error())
	} else if !hasPrice || !dto.Price.IsPositive() {
		errs = append(errs, "precio: must be present and positive")
	}
	if len(errs) > 0 {
		return model.Sale{}, &apperr.ParseError{What: "sale", Err: fmt.Errorf("%s", strings.Join(errs, "; "))}
	}

	dto.Serial = f.str(keySerial)
	if dto.Serial == "" {
		// Some backends nest the vehicle instead of flattening its serial.
		if inner, ok := f.lookup([]string{"auto", "vehiculo", "vehicle"}); ok {
			if m, ok := inner.(map[string]any); ok {
				dto.Serial = newFields(m).str(keySerial)
			}
		}
	}
	dto.Status = model.ParseStatus(f.str(keyStatus))
	dto.SoldAt, _, _ = f.timestamp(keySoldAt)
	if dto.SoldAt.IsZero() {
		dto.SoldAt = now()
	}

	if err := validate.Struct(dto); err != nil {
		return model.Sale{}, &apperr.ParseError{What: "sale", Err: err}
	}

	return model.Sale{
		ID:       dto.ID,
		Serial:   dto.Serial,
		Quantity: int(dto.Quantity),
		Price:    dto.Price,
		Status:   dto.Status,
		SoldAt:   dto.SoldAt,
	}, nil
}

type userDTO struct {
	ID         int64  `validate:"gt=0"`
	Name       string
	Surname    string
	Email      string `validate:"required"`
	Role       string
	Registered time.Time
}

func decodeUser(f fields) (model.User, error) {
	var dto userDTO
	id, _, err := f.integer(keyID)
	if err != nil {
		return model.User{}, &apperr.ParseError{What: "user", Err: err}
	}
	dto.ID = id
	dto.Name = f.str(keyName)
	dto.Surname = f.str(keySurname)
	dto.Email = f.str(keyEmail)
	dto.Role = strings.ToLower(f.str(keyRole))
	dto.Registered, _, _ = f.timestamp(keyRegistered)

	if err := validate.Struct(dto); err != nil {
		return model.User{}, &apperr.ParseError{What: "user", Err: err}
	}

	return model.User{
		ID:           dto.ID,
		Name:         dto.Name,
		Surname:      dto.Surname,
		Email:        dto.Email,
		Role:         dto.Role,
		RegisteredAt: dto.Registered,
	}, nil
}

// decodeCount reads a count reply. A missing total is derived from the
// per-status figures; a reply with neither is rejected.
func decodeCount(f fields) (model.SaleCount, error) {
	var c model.SaleCount
	read := func(keys []string, dst *int) (bool, error) {
		n, ok, err := f.integer(keys)
		if err != nil || !ok {
			return ok, err
		}
		if n < 0 {
			return true, fmt.Errorf("negative count %d", n)
		}
		*dst = int(n)
		return true, nil
	}

	hasTotal, err := read(keyTotal, &c.Total)
	if err != nil {
		return c, &apperr.ParseError{What: "sale count", Err: err}
	}
	seen := false
	for _, p := range []struct {
		keys []string
		dst  *int
	}{
		{keyPending, &c.Pending},
		{keyCompleted, &c.Completed},
		{keyDelivered, &c.Delivered},
		{keyCancelled, &c.Cancelled},
	} {
		ok, err := read(p.keys, p.dst)
		if err != nil {
			return model.SaleCount{}, &apperr.ParseError{What: "sale count", Err: err}
		}
		seen = seen || ok
	}

	if !hasTotal {
		if !seen {
			return model.SaleCount{}, &apperr.ParseError{What: "sale count", Err: fmt.Errorf("no counts in reply")}
		}
		c.Total = c.Pending + c.Completed + c.Delivered + c.Cancelled
	}
	return c, nil
}

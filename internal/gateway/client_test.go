package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/concesionaria/internal/apperr"
	"github.com/erazemk/concesionaria/internal/model"
)

// newTestClient serves handler and returns a client pointed at it.
func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, opts...)
}

func TestListVehiclesLooseShapes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auto", r.URL.Path)
		io.WriteString(w, `{"data": [
			{"id": 1, "numero_serie": "SER1", "precio": 15000.5, "stock": 2, "disponible": true, "fecha_registro": "2024-05-01 10:00:00"},
			{"idAuto": "2", "numeroSerie": "SER2", "price": "9,500.00", "Stock": "0", "disponible": 0, "anio": "2022"},
			{"id": 3, "serial": "SER3", "precio": "12000", "stock": 4, "marca_id": 7},
			{"id": 4, "numero_serie": "SER4", "precio": 100, "stock": 1, "marca": {"id": 3, "nombre": "Ford"}}
		]}`)
	})

	vehicles, err := c.ListVehicles(context.Background())
	require.NoError(t, err)
	require.Len(t, vehicles, 4)

	assert.Equal(t, int64(1), vehicles[0].ID)
	assert.True(t, vehicles[0].Price.Equal(decimal.RequireFromString("15000.5")))
	assert.True(t, vehicles[0].Available)
	assert.Equal(t, 2024, vehicles[0].RegisteredAt.Year())

	assert.Equal(t, int64(2), vehicles[1].ID)
	assert.Equal(t, "SER2", vehicles[1].Serial)
	assert.True(t, vehicles[1].Price.Equal(decimal.NewFromInt(9500)))
	assert.False(t, vehicles[1].Available)
	assert.Equal(t, 2022, vehicles[1].Year)

	assert.True(t, vehicles[2].Available, "availability defaults to stock > 0")
	assert.Equal(t, int64(7), vehicles[2].BrandID)

	assert.Equal(t, int64(3), vehicles[3].BrandID, "brand nested as an object")
}

func TestListVehiclesFailsClosed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id": 1, "numero_serie": "SER1", "precio": 1, "stock": 1}, {"id": 2, "precio": 1, "stock": 1}]`)
	})

	_, err := c.ListVehicles(context.Background())
	var pe *apperr.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "vehicle", pe.What)
}

func TestMalformedJSONIsParseError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id": 1,`)
	})

	_, err := c.ListSales(context.Background())
	var pe *apperr.ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestTimeoutIsConnectionError(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(50*time.Millisecond))
	defer close(release)

	_, err := c.ListVehicles(context.Background())
	var ce *apperr.ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "the server took too long to respond", apperr.UserMessage(err))
}

func TestUnreachableIsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := New(srv.URL).ListVehicles(context.Background())
	assert.True(t, apperr.IsConnection(err))
}

func TestNonPositiveIDNeverHitsServer(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	ctx := context.Background()

	_, err := c.GetVehicle(ctx, 0)
	assert.True(t, apperr.IsValidation(err))
	_, err = c.UpdateVehicle(ctx, -1, model.Vehicle{Serial: "X"})
	assert.True(t, apperr.IsValidation(err))
	assert.True(t, apperr.IsValidation(c.DeleteVehicle(ctx, 0)))
	_, err = c.GetSale(ctx, 0)
	assert.True(t, apperr.IsValidation(err))
	_, err = c.UpdateSaleStatus(ctx, 0, model.StatusCancelled)
	assert.True(t, apperr.IsValidation(err))
	assert.True(t, apperr.IsValidation(c.DeleteSale(ctx, -5)))

	assert.Zero(t, calls.Load())
}

func TestServerErrorExtraction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `<html><body>org.postgresql.util.PSQLException: ERROR: new row for relation "ventas" violates check constraint "ventas_estatus_check"</body></html>`)
	})

	_, err := c.UpdateSaleStatus(context.Background(), 7, model.StatusDelivered)
	var se *apperr.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.Code)
	assert.Equal(t, StatusGuidance, se.Message)
	assert.Equal(t, StatusGuidance, apperr.UserMessage(err))
}

func TestHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, err := uuid.Parse(r.Header.Get("X-Request-ID"))
		assert.NoError(t, err, "request id should be a uuid")
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		io.WriteString(w, `[]`)
	})
	c.SetToken("tok")

	sales, err := c.ListSales(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestCreateSaleAlwaysPending(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "PENDING", body["estatus"])
		assert.Equal(t, "SER123", body["numero_serie"])
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"venta": {"id": 10, "numero_serie": "SER123", "cantidad": 1, "precio": "15000.00", "estatus": "pendiente", "fecha_venta": "2024-05-01 10:00:00"}}`)
	})

	sale, err := c.CreateSale(context.Background(), model.Sale{
		Serial: "SER123", Quantity: 1, Price: decimal.NewFromInt(15000), Status: model.StatusDelivered,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), sale.ID)
	assert.Equal(t, model.StatusPending, sale.Status)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), sale.SoldAt)
}

func TestSaleDefaults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id": 4, "numero_serie": "S", "cantidad": 2, "precio": 10, "estatus": "SHIPPED", "fecha_venta": "yesterday"}`)
	})

	before := time.Now()
	sale, err := c.GetSale(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, sale.Status)
	assert.False(t, sale.SoldAt.Before(before), "unparseable date falls back to now")
}

func TestSaleMissingQuantityFails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id": 4, "numero_serie": "S", "precio": 10}`)
	})

	_, err := c.GetSale(context.Background(), 4)
	var pe *apperr.ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestListSalesByDateRangeQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ventas/filtro", r.URL.Path)
		assert.Equal(t, "2024-05-01", r.URL.Query().Get("fechaInicio"))
		assert.Equal(t, "2024-05-31", r.URL.Query().Get("fechaFin"))
		assert.Equal(t, "PENDING", r.URL.Query().Get("estatus"))
		io.WriteString(w, `[]`)
	})

	bogus := model.SaleStatus("whatever")
	_, err := c.ListSalesByDateRange(context.Background(),
		time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC), time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), &bogus)
	require.NoError(t, err)

	_, err = c.ListSalesByDateRange(context.Background(), time.Now(), time.Now().AddDate(0, 0, -1), nil)
	assert.True(t, apperr.IsValidation(err))
}

func TestListSalesByStatusPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ventas/estatus/CANCELLED", r.URL.Path)
		io.WriteString(w, `[]`)
	})
	_, err := c.ListSalesByStatus(context.Background(), "cancelada")
	require.NoError(t, err)
}

func TestUpdateStatusAcknowledgementReadsBack(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			assert.Equal(t, "/ventas/3/estatus", r.URL.Path)
			io.WriteString(w, `{"message": "ok"}`)
		case http.MethodGet:
			io.WriteString(w, `{"id": 3, "numero_serie": "S", "cantidad": 1, "precio": 5, "estatus": "DELIVERED"}`)
		}
	})

	sale, err := c.UpdateSaleStatus(context.Background(), 3, model.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, sale.Status)
}

func TestUpdateStatusPartialAcknowledgementReadsBack(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			io.WriteString(w, `{"id": 5, "estatus": "DELIVERED", "mensaje": "Estatus actualizado"}`)
		case http.MethodGet:
			assert.Equal(t, "/ventas/5", r.URL.Path)
			io.WriteString(w, `{"id": 5, "numero_serie": "S", "cantidad": 2, "precio": 5, "estatus": "DELIVERED"}`)
		}
	})

	sale, err := c.UpdateSaleStatus(context.Background(), 5, model.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, int64(5), sale.ID)
	assert.Equal(t, 2, sale.Quantity)
	assert.Equal(t, model.StatusDelivered, sale.Status)
}

func TestCountSales(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"pendientes": "2", "entregadas": 1, "canceladas": 3}`)
	})

	count, err := c.CountSales(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SaleCount{Total: 6, Pending: 2, Delivered: 1, Cancelled: 3}, count)
}

func TestLoginKeepsToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/usuario/login":
			io.WriteString(w, `{"token": "abc", "usuario": {"id": 5, "nombre": "Ana", "email": "ana@example.com", "rol": "SELLER"}}`)
		case "/usuario/logout":
			assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		}
	})

	session, err := c.Login(context.Background(), "ana@example.com", "secreto123")
	require.NoError(t, err)
	assert.Equal(t, "abc", session.Token)
	assert.Equal(t, int64(5), session.User.ID)
	assert.Equal(t, "seller", session.User.Role)
	assert.Equal(t, "abc", c.Token())

	require.NoError(t, c.Logout(context.Background()))
	assert.Empty(t, c.Token())
}

func TestRegisterValidatesFirst(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := c.Register(context.Background(), model.User{Name: "Ana", Email: "ana@example.com", Password: "short"})
	assert.True(t, apperr.IsValidation(err))
	assert.Zero(t, calls.Load())
}

func TestUploadVehicleImage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auto/9/imagen", r.URL.Path)
		file, header, err := r.FormFile("imagen")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "car.jpg", header.Filename)
		assert.Equal(t, "jpeg bytes", string(data))
	})

	err := c.UploadVehicleImage(context.Background(), 9, "car.jpg", strings.NewReader("jpeg bytes"))
	require.NoError(t, err)
}

func TestWithPathsOverridesOnlySetFields(t *testing.T) {
	c := New("http://example.invalid", WithPaths(Paths{Vehicles: "/api/v2/autos"}))
	assert.Equal(t, "/api/v2/autos", c.paths.Vehicles)
	assert.Equal(t, DefaultPaths().Sales, c.paths.Sales)
}

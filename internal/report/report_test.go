package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/concesionaria/internal/apperr"
	"github.com/erazemk/concesionaria/internal/model"
)

func date(d string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", d)
	if err != nil {
		panic(err)
	}
	return t
}

func sale(id int64, soldAt string, qty int, price string, status model.SaleStatus) model.Sale {
	return model.Sale{
		ID:       id,
		Serial:   "SER" + string(rune('A'+id)),
		Quantity: qty,
		Price:    decimal.RequireFromString(price),
		Status:   status,
		SoldAt:   date(soldAt),
	}
}

func may() Request {
	return Request{From: date("2024-05-01 00:00"), To: date("2024-05-31 00:00")}
}

func ids(sales []model.Sale) []int64 {
	out := make([]int64, len(sales))
	for i, s := range sales {
		out[i] = s.ID
	}
	return out
}

func TestSelectFiltersAndSorts(t *testing.T) {
	sales := []model.Sale{
		sale(1, "2024-05-20 10:00", 1, "100", model.StatusPending),
		sale(2, "2024-04-30 23:59", 1, "100", model.StatusPending),
		sale(3, "2024-05-01 00:00", 1, "100", model.StatusCompleted),
		sale(4, "2024-05-31 23:59", 1, "100", model.StatusCancelled),
		sale(5, "2024-06-01 00:00", 1, "100", model.StatusPending),
		sale(6, "2024-05-20 10:00", 1, "100", model.StatusDelivered),
	}

	assert.Equal(t, []int64{3, 1, 6, 4}, ids(Select(sales, may())), "window is inclusive by day")

	req := may()
	pending := model.StatusPending
	req.Status = &pending
	assert.Equal(t, []int64{1}, ids(Select(sales, req)))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, may().Validate())

	backwards := Request{From: date("2024-05-31 00:00"), To: date("2024-05-01 00:00")}
	assert.True(t, apperr.IsValidation(backwards.Validate()))

	sameDay := Request{From: date("2024-05-01 18:00"), To: date("2024-05-01 09:00")}
	assert.NoError(t, sameDay.Validate())

	assert.Error(t, Request{To: date("2024-05-01 00:00")}.Validate())

	bogus := model.SaleStatus("SHIPPED")
	req := may()
	req.Status = &bogus
	assert.Error(t, req.Validate())
}

func TestBuildTotalsAndPages(t *testing.T) {
	sales := []model.Sale{
		sale(1, "2024-05-02 10:00", 2, "15000.50", model.StatusPending),
		sale(2, "2024-05-03 10:00", 1, "20000", model.StatusCompleted),
		sale(3, "2024-05-04 10:00", 1, "9999.99", model.StatusCancelled),
		sale(4, "2024-05-05 10:00", 1, "1000", model.StatusDelivered),
		sale(5, "2024-05-06 10:00", 3, "500", model.StatusPending),
	}

	doc := Build(sales, may(), Options{PageSize: 2})

	require.Len(t, doc.Pages, 3)
	assert.Equal(t, []int64{1, 2}, ids(doc.Pages[0].Sales))
	assert.Equal(t, []int64{5}, ids(doc.Pages[2].Sales))
	assert.Equal(t, 3, doc.Pages[2].Number)
	assert.True(t, doc.Pages[0].Subtotal.Equal(decimal.RequireFromString("50001")))
	assert.Equal(t, 5, doc.Count)

	require.Len(t, doc.Totals, len(model.Statuses))
	assert.Equal(t, model.StatusPending, doc.Totals[0].Status)
	assert.Equal(t, 2, doc.Totals[0].Count)
	assert.True(t, doc.Totals[0].Amount.Equal(decimal.RequireFromString("31501")))
	assert.Equal(t, 1, doc.Totals[3].Count)

	assert.True(t, doc.GrandTotal.Equal(decimal.RequireFromString("52501")), "cancelled sales are left out, got %s", doc.GrandTotal)
}

func TestBuildEmpty(t *testing.T) {
	doc := Build(nil, may(), Options{})
	require.Len(t, doc.Pages, 1)
	assert.Empty(t, doc.Pages[0].Sales)
	assert.True(t, doc.GrandTotal.IsZero())

	var buf bytes.Buffer
	_, err := doc.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No sales in this period.")
	assert.Contains(t, buf.String(), "Page 1 of 1")
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "$45,001.50", Money(decimal.RequireFromString("45001.5")))
	assert.Equal(t, "$1,234,567.89", Money(decimal.RequireFromString("1234567.891")))
	assert.Equal(t, "$0.00", Money(decimal.Zero))
}

func TestWriteTo(t *testing.T) {
	sales := []model.Sale{
		sale(1, "2024-05-02 10:00", 3, "15000.50", model.StatusPending),
		sale(2, "2024-05-03 10:00", 1, "20000", model.StatusCancelled),
	}
	now := func() time.Time { return date("2024-06-01 09:30") }
	doc := Build(sales, may(), Options{PageSize: 1, Title: "Ventas de mayo", Now: now})

	var buf bytes.Buffer
	n, err := doc.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	out := buf.String()
	pages := strings.Split(out, "\f")
	require.Len(t, pages, 2)

	assert.Contains(t, pages[0], "Ventas de mayo")
	assert.Contains(t, pages[0], "Period: 2024-05-01 to 2024-05-31   Status: all")
	assert.Contains(t, pages[0], "Generated: 2024-06-01 09:30")
	assert.Contains(t, pages[0], "$45,001.50")
	assert.Contains(t, pages[0], "Page 1 of 2")
	assert.NotContains(t, pages[0], "Grand total")

	assert.Contains(t, pages[1], "Summary (2 sales)")
	assert.Contains(t, pages[1], "Grand total (excluding cancelled): $45,001.50")
	assert.Contains(t, pages[1], "Page 2 of 2")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ventas.txt")
	doc := Build([]model.Sale{sale(1, "2024-05-02 10:00", 1, "100", model.StatusPending)}, may(), Options{})

	require.NoError(t, WriteFile(path, doc))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "$100.00")

	err = WriteFile(filepath.Join(t.TempDir(), "missing", "ventas.txt"), doc)
	assert.ErrorContains(t, err, "creating report")
}

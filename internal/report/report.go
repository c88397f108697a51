// Package report builds paginated sales reports and renders them as text.
package report

import (
	"bytes"
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/erazemk/concesionaria/internal/apperr"
	"github.com/erazemk/concesionaria/internal/model"
)

// DefaultPageSize is the number of sales per page when Options leaves it unset.
const DefaultPageSize = 25

const dayLayout = "2006-01-02"

// Request is the window and status a report covers. From and To are whole
// days, both inclusive. A nil Status means every status.
type Request struct {
	From   time.Time
	To     time.Time
	Status *model.SaleStatus
}

// Validate rejects a window that ends before it starts.
func (r Request) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return apperr.Validation("fecha", "both start and end dates are required")
	}
	if day(r.To).Before(day(r.From)) {
		return apperr.Validation("fecha", "end date %s is before start date %s",
			r.To.Format(dayLayout), r.From.Format(dayLayout))
	}
	if r.Status != nil && !r.Status.Valid() {
		return apperr.Validation("estatus", "unknown status %q", *r.Status)
	}
	return nil
}

// Contains reports whether s falls inside the request.
func (r Request) Contains(s model.Sale) bool {
	if r.Status != nil && s.Status != *r.Status {
		return false
	}
	if !r.From.IsZero() && s.SoldAt.Before(day(r.From)) {
		return false
	}
	if !r.To.IsZero() && !s.SoldAt.Before(day(r.To).AddDate(0, 0, 1)) {
		return false
	}
	return true
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Select returns the sales inside req, oldest first.
func Select(sales []model.Sale, req Request) []model.Sale {
	out := make([]model.Sale, 0, len(sales))
	for _, s := range sales {
		if req.Contains(s) {
			out = append(out, s)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Sale) int {
		if c := a.SoldAt.Compare(b.SoldAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Options control layout.
type Options struct {
	PageSize int
	Title    string
	Now      func() time.Time
}

// Page is one page of a report.
type Page struct {
	Number   int
	Sales    []model.Sale
	Subtotal decimal.Decimal
}

// StatusTotal sums the sales in one status.
type StatusTotal struct {
	Status model.SaleStatus
	Count  int
	Amount decimal.Decimal
}

// Document is a built report.
type Document struct {
	Title       string
	Request     Request
	GeneratedAt time.Time
	Pages       []Page
	Totals      []StatusTotal
	Count       int

	// GrandTotal leaves out cancelled sales.
	GrandTotal decimal.Decimal
}

// Build filters sales to req, sorts them by date and lays them out in pages.
// A report with no sales has a single empty page.
func Build(sales []model.Sale, req Request, opts Options) *Document {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Title == "" {
		opts.Title = "Sales report"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	selected := Select(sales, req)
	doc := &Document{
		Title:       opts.Title,
		Request:     req,
		GeneratedAt: opts.Now(),
		Count:       len(selected),
		GrandTotal:  decimal.Zero,
	}

	totals := make(map[model.SaleStatus]*StatusTotal, len(model.Statuses))
	for _, st := range model.Statuses {
		totals[st] = &StatusTotal{Status: st, Amount: decimal.Zero}
	}
	for _, s := range selected {
		t, ok := totals[s.Status]
		if !ok {
			continue
		}
		t.Count++
		t.Amount = t.Amount.Add(s.Total())
		if s.Status != model.StatusCancelled {
			doc.GrandTotal = doc.GrandTotal.Add(s.Total())
		}
	}
	for _, st := range model.Statuses {
		doc.Totals = append(doc.Totals, *totals[st])
	}

	for chunk := range slices.Chunk(selected, opts.PageSize) {
		page := Page{Number: len(doc.Pages) + 1, Sales: chunk, Subtotal: decimal.Zero}
		for _, s := range chunk {
			page.Subtotal = page.Subtotal.Add(s.Total())
		}
		doc.Pages = append(doc.Pages, page)
	}
	if len(doc.Pages) == 0 {
		doc.Pages = []Page{{Number: 1, Subtotal: decimal.Zero}}
	}
	return doc
}

// Money formats an amount with thousands separators and two decimals.
func Money(d decimal.Decimal) string {
	return "$" + humanize.FormatFloat("#,###.##", d.Round(2).InexactFloat64())
}

// WriteTo renders the report as plain text, pages separated by form feeds.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer

	status := "all"
	if d.Request.Status != nil {
		status = string(*d.Request.Status)
	}

	for i, p := range d.Pages {
		if i > 0 {
			buf.WriteString("\f")
		}
		fmt.Fprintf(&buf, "%s\n", d.Title)
		fmt.Fprintf(&buf, "Period: %s to %s   Status: %s\n",
			d.Request.From.Format(dayLayout), d.Request.To.Format(dayLayout), status)
		fmt.Fprintf(&buf, "Generated: %s\n\n", d.GeneratedAt.Format("2006-01-02 15:04"))

		if len(p.Sales) == 0 {
			buf.WriteString("No sales in this period.\n")
		} else {
			tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "ID\tDate\tSerial\tQty\tUnit price\tTotal\tStatus\t")
			for _, s := range p.Sales {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
					s.ID, s.SoldAt.Format(dayLayout), s.Serial, humanize.Comma(int64(s.Quantity)),
					Money(s.Price), Money(s.Total()), s.Status)
			}
			tw.Flush()
			fmt.Fprintf(&buf, "\nPage subtotal: %s\n", Money(p.Subtotal))
		}

		if i == len(d.Pages)-1 {
			d.writeSummary(&buf)
		}
		fmt.Fprintf(&buf, "\n%s\n", centered(fmt.Sprintf("Page %d of %d", p.Number, len(d.Pages)), 60))
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

func (d *Document) writeSummary(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "\nSummary (%s sales)\n", humanize.Comma(int64(d.Count)))
	tw := tabwriter.NewWriter(buf, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, t := range d.Totals {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", t.Status, humanize.Comma(int64(t.Count)), Money(t.Amount))
	}
	tw.Flush()
	fmt.Fprintf(buf, "Grand total (excluding cancelled): %s\n", Money(d.GrandTotal))
}

func centered(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", (width-len(s))/2) + s
}

// WriteFile renders doc to path, replacing any existing file.
func WriteFile(path string, doc *Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if _, err := doc.WriteTo(f); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("writing report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing report: %w", err)
	}
	return nil
}

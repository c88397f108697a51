package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/concesionaria/internal/apperr"
	"github.com/erazemk/concesionaria/internal/model"
	"github.com/erazemk/concesionaria/internal/report"
	"github.com/erazemk/concesionaria/internal/repository"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"login":           cmdLogin,
	"logout":          cmdLogout,
	"whoami":          cmdWhoami,
	"register":        cmdRegister,
	"autos":           cmdVehicles,
	"auto-save":       cmdSaveVehicle,
	"auto-imagen":     cmdVehicleImage,
	"auto-disponible": cmdVehicleAvailability,
	"ventas":          cmdSales,
	"venta":           cmdSale,
	"venta-nueva":     cmdNewSale,
	"venta-estatus":   cmdSaleStatus,
	"venta-cancelar":  cmdCancelSale,
	"venta-borrar":    cmdDeleteSale,
	"conteo":          cmdCount,
	"reporte":         cmdReport,
}

const dayLayout = "2006-01-02"

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (a *app) requireSession() error {
	if a.repos.Session.Current() == nil {
		return &apperr.ValidationError{Message: "not logged in, run: concesionaria login"}
	}
	return nil
}

// positionalID parses the single numeric argument most sale commands take.
func positionalID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, apperr.Validation("id", "expected exactly one sale id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("id", "invalid id %q", args[0])
	}
	return id, nil
}

func parseDay(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dayLayout, s, time.Local)
	if err != nil {
		return time.Time{}, apperr.Validation(field, "dates use the format YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

func parseStatus(s string) (*model.SaleStatus, error) {
	if s == "" {
		return nil, nil
	}
	st, ok := model.LookupStatus(s)
	if !ok {
		return nil, apperr.Validation("estatus", "unknown status %q, use one of PENDING, COMPLETED, DELIVERED, CANCELLED", s)
	}
	return &st, nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := a.flags("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *password == "" {
		p, err := a.readPassword("Password: ")
		if err != nil {
			return err
		}
		*password = p
	}

	s, err := a.repos.Session.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Logged in as %s (%s)\n", s.User.FullName(), s.User.Role)
	return nil
}

func cmdLogout(ctx context.Context, a *app, args []string) error {
	if a.repos.Session.Current() == nil {
		fmt.Fprintln(a.stdout, "Not logged in.")
		return nil
	}
	a.repos.Session.Logout(ctx)
	fmt.Fprintln(a.stdout, "Logged out.")
	return nil
}

func cmdWhoami(ctx context.Context, a *app, args []string) error {
	s := a.repos.Session.Current()
	if s == nil {
		fmt.Fprintln(a.stdout, "Not logged in.")
		return nil
	}
	fmt.Fprintf(a.stdout, "%s <%s>\nrole: %s\n", s.User.FullName(), s.User.Email, s.User.Role)
	if !s.User.RegisteredAt.IsZero() {
		fmt.Fprintf(a.stdout, "since: %s\n", s.User.RegisteredAt.Local().Format(dayLayout))
	}
	return nil
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	fs := a.flags("register")
	var u model.User
	fs.StringVar(&u.Name, "nombre", "", "first name")
	fs.StringVar(&u.Surname, "apellido", "", "surname")
	fs.StringVar(&u.Email, "email", "", "email")
	fs.StringVar(&u.Password, "password", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if u.Password == "" {
		p, err := a.readPassword("Password: ")
		if err != nil {
			return err
		}
		u.Password = p
	}

	created, err := a.repos.Session.Register(ctx, u)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Account %d created for %s. Log in to continue.\n", created.ID, created.Email)
	return nil
}

func (a *app) printVehicles(vehicles []model.Vehicle) {
	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSERIAL\tMODEL\tYEAR\tPRICE\tSTOCK\tFOR SALE")
	for _, v := range vehicles {
		forSale := "no"
		if v.Available {
			forSale = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%d\t%s\n",
			v.ID, v.Serial, v.Model, v.Year, report.Money(v.Price), v.Stock, forSale)
	}
	tw.Flush()
}

func cmdVehicles(ctx context.Context, a *app, args []string) error {
	fs := a.flags("autos")
	onlyAvailable := fs.Bool("disponibles", false, "only vehicles for sale")
	if err := fs.Parse(args); err != nil {
		return err
	}

	state, err := a.repos.Vehicles.Refresh(ctx)
	if err != nil {
		return err
	}

	vehicles := state.Vehicles
	if *onlyAvailable {
		vehicles = nil
		for _, v := range state.Vehicles {
			if v.Available {
				vehicles = append(vehicles, v)
			}
		}
	}

	a.printVehicles(vehicles)
	if state.Source == repository.SourceLocal {
		fmt.Fprintln(a.stdout, "\nBackend unreachable, showing the last saved list.")
	}
	return nil
}

func cmdSaveVehicle(ctx context.Context, a *app, args []string) error {
	fs := a.flags("auto-save")
	id := fs.Int64("id", 0, "vehicle id to update; omit to create")
	serial := fs.String("serie", "", "serial number")
	sku := fs.String("sku", "", "SKU")
	brand := fs.Int64("marca", 0, "brand id")
	modelName := fs.String("modelo", "", "model")
	year := fs.Int("anio", 0, "model year")
	color := fs.String("color", "", "color")
	price := fs.String("precio", "", "price")
	stock := fs.Int("stock", 0, "units in stock")
	description := fs.String("descripcion", "", "description")
	available := fs.Bool("disponible", true, "for sale")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(); err != nil {
		return err
	}

	var v model.Vehicle
	if *id > 0 {
		existing, ok := a.repos.Vehicles.FindByID(ctx, *id)
		if !ok {
			if _, err := a.repos.Vehicles.Refresh(ctx); err != nil {
				return err
			}
			if existing, ok = a.repos.Vehicles.FindByID(ctx, *id); !ok {
				return apperr.Validation("id", "vehicle %d not found", *id)
			}
		}
		v = existing
	} else {
		v.Available = true
	}

	var priceErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "serie":
			v.Serial = *serial
		case "sku":
			v.SKU = *sku
		case "marca":
			v.BrandID = *brand
		case "modelo":
			v.Model = *modelName
		case "anio":
			v.Year = *year
		case "color":
			v.Color = *color
		case "precio":
			p, err := decimal.NewFromString(*price)
			if err != nil {
				priceErr = apperr.Validation("precio", "invalid price %q", *price)
				return
			}
			v.Price = p
		case "stock":
			v.Stock = *stock
		case "descripcion":
			v.Description = *description
		case "disponible":
			v.Available = *available
		}
	})
	if priceErr != nil {
		return priceErr
	}

	saved, err := a.repos.Vehicles.Save(ctx, v)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Vehicle %d saved (%s).\n", saved.ID, saved.Serial)
	return nil
}

func cmdVehicleImage(ctx context.Context, a *app, args []string) error {
	fs := a.flags("auto-imagen")
	id := fs.Int64("id", 0, "vehicle id")
	path := fs.String("archivo", "", "JPEG or PNG file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(); err != nil {
		return err
	}
	if *path == "" {
		return apperr.Validation("archivo", "image file is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	if err := a.client.UploadVehicleImage(ctx, *id, filepath.Base(*path), f); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Photo uploaded for vehicle %d.\n", *id)
	return nil
}

func cmdVehicleAvailability(ctx context.Context, a *app, args []string) error {
	fs := a.flags("auto-disponible")
	id := fs.Int64("id", 0, "vehicle id")
	available := fs.Bool("disponible", true, "for sale")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(); err != nil {
		return err
	}

	if _, err := a.repos.Vehicles.Refresh(ctx); err != nil {
		return err
	}
	v, err := a.repos.Vehicles.SetAvailability(ctx, *id, *available)
	if err != nil {
		return err
	}
	state := "no longer for sale"
	if v.Available {
		state = "for sale"
	}
	fmt.Fprintf(a.stdout, "Vehicle %d (%s) is %s.\n", v.ID, v.Serial, state)
	return nil
}

func (a *app) printSales(sales []model.Sale) {
	if len(sales) == 0 {
		fmt.Fprintln(a.stdout, "No sales.")
		return
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tSERIAL\tQTY\tPRICE\tTOTAL\tSTATUS")
	for _, s := range sales {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
			s.ID, s.SoldAt.Local().Format("2006-01-02 15:04"), s.Serial, s.Quantity,
			report.Money(s.Price), report.Money(s.Total()), s.Status)
	}
	tw.Flush()
}

func cmdSales(ctx context.Context, a *app, args []string) error {
	fs := a.flags("ventas")
	status := fs.String("estatus", "", "only this status")
	from := fs.String("desde", "", "first day, YYYY-MM-DD")
	to := fs.String("hasta", "", "last day, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(); err != nil {
		return err
	}

	var q repository.Query
	var err error
	if q.Status, err = parseStatus(*status); err != nil {
		return err
	}
	if q.From, err = parseDay("desde", *from); err != nil {
		return err
	}
	if q.To, err = parseDay("hasta", *to); err != nil {
		return err
	}

	sales, err := a.repos.Sales.Load(ctx, q)
	if err != nil {
		return err
	}
	a.printSales(sales)
	return nil
}

func (a *app) printSale(s model.Sale) {
	fmt.Fprintf(a.stdout, "Sale %d\n", s.ID)
	fmt.Fprintf(a.stdout, "  vehicle:  %s\n", s.Serial)
	fmt.Fprintf(a.stdout, "  quantity: %d\n", s.Quantity)
	fmt.Fprintf(a.stdout, "  price:    %s\n", report.Money(s.Price))
	fmt.Fprintf(a.stdout, "  total:    %s\n", report.Money(s.Total()))
	fmt.Fprintf(a.stdout, "  status:   %s\n", s.Status)
	fmt.Fprintf(a.stdout, "  date:     %s\n", s.SoldAt.Local().Format("2006-01-02 15:04"))
	if next := s.Status.Successors(); len(next) > 0 {
		names := make([]string, len(next))
		for i, st := range next {
			names[i] = string(st)
		}
		fmt.Fprintf(a.stdout, "  next:     %s\n", strings.Join(names, ", "))
	}
}

func cmdSale(ctx context.Context, a *app, args []string) error {
	id, err := positionalID(args)
	if err != nil {
		return err
	}
	if err := a.requireSession(); err != nil {
		return err
	}
	s, err := a.repos.Sales.Get(ctx, id)
	if err != nil {
		return err
	}
	a.printSale(s)
	return nil
}

func cmdNewSale(ctx context.Context, a *app, args []string) error {
	fs := a.flags("venta-nueva")
	serial := fs.String("serie", "", "vehicle serial number")
	quantity := fs.Int("cantidad", 1, "units sold")
	priceText := fs.String("precio", "", "unit price")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(); err != nil {
		return err
	}

	price, err := decimal.NewFromString(*priceText)
	if err != nil {
		return apperr.Validation("precio", "invalid price %q", *priceText)
	}

	// Stock checks need a current vehicle list; the cache is used when the
	// backend is down.
	if _, err := a.repos.Vehicles.Refresh(ctx); err != nil && !errors.Is(err, repository.ErrSuperseded) {
		a.log.Debug("vehicle refresh before sale failed", "error", err)
	}

	s, err := a.repos.Sales.Register(ctx, *serial, *quantity, price)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Sale %d recorded.\n", s.ID)
	a.printSale(s)
	return nil
}

func cmdSaleStatus(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return apperr.Validation("", "usage: venta-estatus <id> <estatus>")
	}
	id, err := positionalID(args[:1])
	if err != nil {
		return err
	}
	if err := a.requireSession(); err != nil {
		return err
	}
	status, err := parseStatus(args[1])
	if err != nil {
		return err
	}

	// Knowing the current status lets impossible transitions fail locally.
	if _, err := a.repos.Sales.Get(ctx, id); err != nil {
		return err
	}
	s, err := a.repos.Sales.UpdateStatus(ctx, id, *status)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Sale %d is now %s.\n", s.ID, s.Status)
	return nil
}

func cmdCancelSale(ctx context.Context, a *app, args []string) error {
	id, err := positionalID(args)
	if err != nil {
		return err
	}
	if err := a.requireSession(); err != nil {
		return err
	}
	if _, err := a.repos.Sales.Get(ctx, id); err != nil {
		return err
	}
	s, err := a.repos.Sales.Cancel(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Sale %d cancelled, %d unit(s) of %s back in stock.\n", s.ID, s.Quantity, s.Serial)
	return nil
}

func cmdDeleteSale(ctx context.Context, a *app, args []string) error {
	id, err := positionalID(args)
	if err != nil {
		return err
	}
	if err := a.requireSession(); err != nil {
		return err
	}
	if err := a.repos.Sales.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Sale %d deleted.\n", id)
	return nil
}

func cmdCount(ctx context.Context, a *app, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	c, err := a.repos.Sales.Count(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "PENDING\t%d\t\n", c.Pending)
	fmt.Fprintf(tw, "COMPLETED\t%d\t\n", c.Completed)
	fmt.Fprintf(tw, "DELIVERED\t%d\t\n", c.Delivered)
	fmt.Fprintf(tw, "CANCELLED\t%d\t\n", c.Cancelled)
	fmt.Fprintf(tw, "TOTAL\t%d\t\n", c.Total)
	return tw.Flush()
}

func cmdReport(ctx context.Context, a *app, args []string) error {
	fs := a.flags("reporte")
	from := fs.String("desde", "", "first day, YYYY-MM-DD")
	to := fs.String("hasta", "", "last day, YYYY-MM-DD")
	status := fs.String("estatus", "", "only this status")
	out := fs.String("o", "", "write to this file instead of stdout")
	pageSize := fs.Int("pagina", report.DefaultPageSize, "sales per page")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(); err != nil {
		return err
	}

	var req report.Request
	var err error
	if req.From, err = parseDay("desde", *from); err != nil {
		return err
	}
	if req.To, err = parseDay("hasta", *to); err != nil {
		return err
	}
	if req.Status, err = parseStatus(*status); err != nil {
		return err
	}

	sales, err := a.repos.Sales.ForReport(ctx, req)
	if err != nil {
		return err
	}
	doc := report.Build(sales, req, report.Options{PageSize: *pageSize})

	if *out == "" {
		_, err := doc.WriteTo(a.stdout)
		return err
	}
	if err := report.WriteFile(*out, doc); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Report with %d sale(s) written to %s\n", doc.Count, *out)
	return nil
}

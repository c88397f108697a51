package api

import (
	"database/sql"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/erazemk/concesionaria/internal/model"
)

// Login and registration allow a burst of 5 attempts per address, refilled
// one every 12 seconds.
var (
	authRate  = rate.Every(12 * time.Second)
	authBurst = 5
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	vehiclesHandler := &VehiclesHandler{DB: db}
	salesHandler := &SalesHandler{DB: db}

	authMW := AuthMiddleware(jwtSecret, db)
	limit := RateLimit(authRate, authBurst)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: registration and login.
	mux.Handle("POST /usuario", limit(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /usuario/login", limit(http.HandlerFunc(authHandler.Login)))

	// Session.
	mux.Handle("POST /usuario/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /usuario/yo", authMW(http.HandlerFunc(authHandler.Me)))

	// Accounts (admin only).
	mux.Handle("GET /usuario", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("PUT /usuario/{id}/rol", authMW(requireAdmin(http.HandlerFunc(usersHandler.UpdateRole))))
	mux.Handle("DELETE /usuario/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Vehicles: read (all roles), write (manager+).
	mux.Handle("GET /auto", authMW(http.HandlerFunc(vehiclesHandler.List)))
	mux.Handle("POST /auto", authMW(requireManager(http.HandlerFunc(vehiclesHandler.Create))))
	mux.Handle("GET /auto/{id}", authMW(http.HandlerFunc(vehiclesHandler.Get)))
	mux.Handle("PUT /auto/{id}", authMW(requireManager(http.HandlerFunc(vehiclesHandler.Update))))
	mux.Handle("DELETE /auto/{id}", authMW(requireManager(http.HandlerFunc(vehiclesHandler.Delete))))
	mux.Handle("PUT /auto/{id}/imagen", authMW(requireManager(http.HandlerFunc(vehiclesHandler.UploadImage))))
	mux.Handle("GET /auto/{id}/imagen", authMW(http.HandlerFunc(vehiclesHandler.GetImage)))

	// Sales: all roles, deletion manager+.
	mux.Handle("GET /ventas", authMW(http.HandlerFunc(salesHandler.List)))
	mux.Handle("POST /ventas", authMW(http.HandlerFunc(salesHandler.Create)))
	mux.Handle("GET /ventas/contar", authMW(http.HandlerFunc(salesHandler.Count)))
	mux.Handle("GET /ventas/filtro", authMW(http.HandlerFunc(salesHandler.Filter)))
	mux.Handle("GET /ventas/estatus/{estatus}", authMW(http.HandlerFunc(salesHandler.ListByStatus)))
	mux.Handle("GET /ventas/{id}", authMW(http.HandlerFunc(salesHandler.Get)))
	mux.Handle("PUT /ventas/{id}/estatus", authMW(http.HandlerFunc(salesHandler.UpdateStatus)))
	mux.Handle("DELETE /ventas/{id}", authMW(requireManager(http.HandlerFunc(salesHandler.Delete))))

	return mux
}

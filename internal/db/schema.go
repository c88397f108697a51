package db

import (
	"database/sql"
	"fmt"
)

// schema is the reference server's database schema. Constraint names match
// the ones the legacy backend reports in its error pages.
const schema = `
CREATE TABLE IF NOT EXISTS usuarios (
    id             INTEGER PRIMARY KEY,
    nombre         TEXT NOT NULL,
    apellido       TEXT NOT NULL DEFAULT '',
    email          TEXT NOT NULL,
    password_hash  TEXT NOT NULL,
    rol            TEXT NOT NULL DEFAULT 'seller' CHECK (rol IN ('admin', 'manager', 'seller')),
    fecha_registro DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    fecha_baja     DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_usuarios_email_activo
    ON usuarios(email) WHERE fecha_baja IS NULL;

CREATE TABLE IF NOT EXISTS autos (
    id                  INTEGER PRIMARY KEY,
    numero_serie        TEXT NOT NULL CONSTRAINT autos_numero_serie_key UNIQUE,
    sku                 TEXT NOT NULL DEFAULT '',
    marca_id            INTEGER NOT NULL DEFAULT 0,
    modelo              TEXT NOT NULL DEFAULT '',
    anio                INTEGER NOT NULL DEFAULT 0,
    color               TEXT NOT NULL DEFAULT '',
    precio              TEXT NOT NULL DEFAULT '0',
    stock               INTEGER NOT NULL DEFAULT 0 CONSTRAINT autos_stock_check CHECK (stock >= 0),
    descripcion         TEXT NOT NULL DEFAULT '',
    disponible          INTEGER NOT NULL DEFAULT 1,
    imagen              BLOB,
    imagen_mime         TEXT,
    fecha_registro      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    fecha_actualizacion DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS ventas (
    id           INTEGER PRIMARY KEY,
    numero_serie TEXT NOT NULL REFERENCES autos(numero_serie),
    cantidad     INTEGER NOT NULL CONSTRAINT ventas_cantidad_check CHECK (cantidad > 0),
    precio       TEXT NOT NULL,
    estatus      TEXT NOT NULL DEFAULT 'PENDING'
                 CONSTRAINT ventas_estatus_check CHECK (estatus IN ('PENDING', 'COMPLETED', 'DELIVERED', 'CANCELLED')),
    fecha_venta  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    vendido_por  INTEGER REFERENCES usuarios(id)
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    usuario_id INTEGER NOT NULL,
    expires_at DATETIME NOT NULL
);
`

// localSchema is the client-side cache: one row per namespaced key.
const localSchema = `
CREATE TABLE IF NOT EXISTS kv (
    namespace  TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (namespace, key)
);
`

// EnsureSchema creates all server tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// EnsureLocalSchema creates the client cache table if it doesn't already exist.
func EnsureLocalSchema(db *sql.DB) error {
	_, err := db.Exec(localSchema)
	if err != nil {
		return fmt.Errorf("creating local schema: %w", err)
	}
	return nil
}

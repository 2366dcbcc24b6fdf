// Package domain defines the core interfaces and types for Magpie.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// Row-slice methods return values; single-row methods return pointers
// and a not-found error when the row is absent.
type Repository interface {
	// Customer reference data
	UpsertCustomers(ctx context.Context, customers []Customer) error
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
	CountCustomers(ctx context.Context) (int, error)

	// Event log (append-only, idempotent on event_id)
	InsertEvents(ctx context.Context, events []Event) error
	ListEvents(ctx context.Context) ([]Event, error)
	ListEventsByCustomer(ctx context.Context, customerID string) ([]Event, error)
	CountEvents(ctx context.Context) (int, error)

	// Feature vectors (replaced wholesale by each refresh)
	ReplaceFeatures(ctx context.Context, features []FeatureVector) error
	GetFeatures(ctx context.Context, customerID string) (*FeatureVector, error)
	ListFeatures(ctx context.Context) ([]FeatureVector, error)

	// Persona assignments (replaced wholesale by each refresh)
	ReplacePersonas(ctx context.Context, assignments []PersonaAssignment) error
	GetPersona(ctx context.Context, customerID string) (*PersonaAssignment, error)
	ListPersonas(ctx context.Context) ([]PersonaAssignment, error)
	ListPersonasByLabel(ctx context.Context, persona string) ([]PersonaAssignment, error)

	// Segmentation run snapshots
	SaveSnapshot(ctx context.Context, snap *SegmentationSnapshot) error
	GetSnapshot(ctx context.Context, snapshotID string) (*SegmentationSnapshot, error)
	LatestSnapshot(ctx context.Context) (*SegmentationSnapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]SegmentationSnapshot, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite", "postgres" or "mysql"
	Driver string `env:"MAGPIE_DB_DRIVER"`

	// SQLite specific
	SQLitePath string `env:"MAGPIE_SQLITE_PATH"`

	// PostgreSQL specific
	PostgresHost     string `env:"MAGPIE_POSTGRES_HOST"`
	PostgresPort     int    `env:"MAGPIE_POSTGRES_PORT"`
	PostgresUser     string `env:"MAGPIE_POSTGRES_USER"`
	PostgresPassword string `env:"MAGPIE_POSTGRES_PASSWORD"`
	PostgresDB       string `env:"MAGPIE_POSTGRES_DB"`
	PostgresSSLMode  string `env:"MAGPIE_POSTGRES_SSLMODE"`

	// MySQL specific
	MySQLHost     string `env:"MAGPIE_MYSQL_HOST"`
	MySQLPort     int    `env:"MAGPIE_MYSQL_PORT"`
	MySQLUser     string `env:"MAGPIE_MYSQL_USER"`
	MySQLPassword string `env:"MAGPIE_MYSQL_PASSWORD"`
	MySQLDB       string `env:"MAGPIE_MYSQL_DB"`

	// Connection pool settings
	MaxOpenConns    int           `env:"MAGPIE_DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `env:"MAGPIE_DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `env:"MAGPIE_DB_CONN_MAX_LIFETIME"`
}

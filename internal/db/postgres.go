package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	// URL, when set, is used instead of the individual fields.
	URL string
}

func (c Credentials) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName,
	)
}

type PostgresDB struct {
	Conn *sql.DB
}

func NewPostgresDB(ctx context.Context, cred Credentials, logger *zap.Logger) (*PostgresDB, error) {
	conn, err := sql.Open("postgres", cred.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(50)
	conn.SetMaxIdleConns(10)

	logger.Info("✅ Connected to PostgreSQL")
	return &PostgresDB{Conn: conn}, nil
}

// RunMigrations applies the embedded schema migrations.
func (db *PostgresDB) RunMigrations() error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db.Conn, &postgres.Config{
		MigrationsTable: "orderflow_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.Conn.PingContext(ctx)
}

func (db *PostgresDB) Close() error {
	return db.Conn.Close()
}

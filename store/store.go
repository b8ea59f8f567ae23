// Package store owns the database handle: it opens GORM on the configured
// driver, creates the schema on request and classifies constraint errors.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/judyrop/inventory/config"
	"github.com/judyrop/inventory/logging"
	"github.com/judyrop/inventory/models"
)

type Config struct {
	Driver   string
	DSN      string
	LogLevel string
}

// FromConfig builds a store Config from the application config.
func FromConfig(cfg *config.Config) Config {
	return Config{
		Driver:   cfg.DBDriver,
		DSN:      cfg.DSN(),
		LogLevel: cfg.LogLevel,
	}
}

// Store is a single long-lived database handle. The caller that opens it
// is responsible for closing it.
type Store struct {
	db     *gorm.DB
	driver string

	closeOnce sync.Once
	closeErr  error
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, cfg Config, logger *logging.Logger) (*Store, error) {
	logger = logger.WithComponent(logging.ComponentStore)

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logging.NewGormLogger(logger, logging.ParseGormLevel(cfg.LogLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.Driver == config.DriverSQLite {
		// One writer at a time; also keeps PRAGMAs on a single connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Database connection established", logging.FieldDriver, cfg.Driver)
	return &Store{db: db, driver: cfg.Driver}, nil
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		return postgres.Open(cfg.DSN), nil
	case config.DriverSQLite:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlite driver requires a database path")
		}
		if !strings.HasPrefix(cfg.DSN, "file:") {
			if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
		return sqlite.Open(sqliteDSN(cfg.DSN)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// sqliteDSN turns on foreign key enforcement, which SQLite leaves off by
// default.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_foreign_keys") || strings.Contains(path, "_fk=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on"
}

// DB returns the GORM handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Driver returns the configured driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Close releases the connection pool. Only the first call does any work.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		sqlDB, err := s.db.DB()
		if err != nil {
			s.closeErr = err
			return
		}
		s.closeErr = sqlDB.Close()
	})
	return s.closeErr
}

// AutoMigrate creates or updates the tables of every model.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

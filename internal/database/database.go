package database

import (
	"fmt"
	"log"

	"github.com/clasedesurf/reservations/internal/config"
	"github.com/clasedesurf/reservations/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func Connect(cfg *config.Config) *gorm.DB {
	db, err := Open(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := Migrate(db); err != nil {
		log.Fatalf("Failed to auto migrate: %v", err)
	}

	return db
}

// Open returns a gorm handle for the configured driver. SQLite is limited to a
// single connection: it has no row locks, so writers must be serialised by the
// pool instead.
func Open(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if dialector.Name() == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.DatabaseMaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	}

	return db, nil
}

func dialectorFor(cfg *config.Config) (gorm.Dialector, error) {
	switch cfg.DatabaseDriver {
	case "", "sqlite":
		return sqlite.Open(cfg.DatabasePath), nil
	case "postgres":
		if cfg.DatabaseDSN == "" {
			return nil, fmt.Errorf("DATABASE_DSN is required for postgres")
		}
		return postgres.Open(cfg.DatabaseDSN), nil
	case "mysql":
		if cfg.DatabaseDSN == "" {
			return nil, fmt.Errorf("DATABASE_DSN is required for mysql")
		}
		return mysql.Open(cfg.DatabaseDSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.School{},
		&models.Class{},
		&models.Product{},
		&models.DiscountCode{},
		&models.Reservation{},
		&models.ReservationAddon{},
		&models.ReservationHistory{},
		&models.Payment{},
	)
}

package database

import (
	"strings"

	"folio-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite:"

// Open opens a GORM DB. A DSN of the form "sqlite:<path>" (or "sqlite::memory:")
// uses the pure-Go SQLite driver; anything else is treated as a Postgres URL.
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") behind connection poolers.
func Open(dsn string, debug bool) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if debug {
		cfg.Logger = logger.Default.LogMode(logger.Info)
	}
	if path, ok := strings.CutPrefix(dsn, sqlitePrefix); ok {
		db, err := gorm.Open(sqlite.Open(path), cfg)
		if err != nil {
			return nil, err
		}
		// SQLite serializes writers; one connection keeps transactions and
		// in-memory databases coherent.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), cfg)
}

// Models lists every persisted record.
func Models() []any {
	return []any{
		&domain.Portfolio{},
		&domain.Account{},
		&domain.Asset{},
		&domain.Holding{},
		&domain.FxRate{},
		&domain.Schema{},
		&domain.SchemaColumn{},
		&domain.FormulaDefinition{},
		&domain.ColumnAssetBehavior{},
		&domain.ColumnConstraint{},
		&domain.SchemaColumnValue{},
	}
}

// AutoMigrate creates or updates the tables for every model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// OpenMemory opens a migrated in-memory SQLite database, for tests and local runs.
func OpenMemory() (*gorm.DB, error) {
	db, err := Open(sqlitePrefix+":memory:", false)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

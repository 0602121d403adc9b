package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"invoice-financing/ledger-backend/internal/config"
	"invoice-financing/ledger-backend/internal/financing"
)

// Open returns the store selected by cfg.Database.Driver and a func that
// releases it. A memory store is primed from cfg.Snapshot.Path when a
// snapshot file exists there.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (financing.Store, func(), error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case config.DriverMemory:
		store := financing.NewMemoryStore()
		if _, err := Restore(ctx, store, cfg.Snapshot.Path, logger); err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case config.DriverSQLite:
		logger.Info("Opening sqlite database", zap.String("path", cfg.Database.SQLitePath))
		dialector = financing.SQLiteDialector(cfg.Database.SQLitePath)
	case config.DriverPostgres:
		logger.Info("Connecting to database",
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port),
			zap.String("db", cfg.Database.DBName),
		)
		dialector = postgres.Open(cfg.Database.GetDatabaseURL())
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to access database pool: %w", err)
	}
	if cfg.Database.Driver == config.DriverSQLite {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxConnections)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	}

	if err := financing.AutoMigrate(db); err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return financing.NewGormStore(db), func() { sqlDB.Close() }, nil
}

// Restore loads the snapshot at path into an empty store. It reports false
// without error when path is empty or no file exists yet.
func Restore(ctx context.Context, store financing.Store, path string, logger *zap.Logger) (bool, error) {
	if path == "" {
		return false, nil
	}
	snap, err := financing.ReadSnapshotFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("No snapshot to restore", zap.String("path", path))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := financing.RestoreSnapshot(ctx, store, snap); err != nil {
		return false, fmt.Errorf("failed to restore snapshot: %w", err)
	}
	logger.Info("Restored ledger snapshot",
		zap.String("path", path),
		zap.Time("taken_at", snap.TakenAt),
		zap.Int("invoices", len(snap.Invoices)),
		zap.Int("investments", len(snap.Investments)),
	)
	return true, nil
}

// Save writes the current ledger state to path
func Save(ctx context.Context, store financing.Store, path string) (*financing.Snapshot, error) {
	snap, err := financing.ExportSnapshot(ctx, store)
	if err != nil {
		return nil, err
	}
	if err := financing.WriteSnapshotFile(path, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

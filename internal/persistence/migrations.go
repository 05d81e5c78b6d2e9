package persistence

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

func init() {
	goose.SetBaseFS(embeddedMigrations)
}

// RunMigrations applies every pending migration embedded in the binary.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	if pool == nil {
		logger.Warn("no postgres pool available; skipping migrations")
		return nil
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	from, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	to, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}

	logger.Info("migrations applied", zap.Int64("from_version", from), zap.Int64("to_version", to))
	return nil
}

// RollbackMigrations reverts the given number of migrations.
func RollbackMigrations(ctx context.Context, pool *pgxpool.Pool, steps int, logger *zap.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	for i := 0; i < steps; i++ {
		if err := goose.DownContext(ctx, db, migrationsDir); err != nil {
			return fmt.Errorf("rollback migration: %w", err)
		}
	}
	logger.Info("migrations rolled back", zap.Int("steps", steps))
	return nil
}

// MigrationStatus prints the state of each migration through goose's logger.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.StatusContext(ctx, db, migrationsDir)
}

package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
)

// Env holds what operator commands share: configuration, a logger and the
// database pool.
type Env struct {
	Config   *config.Config
	Logger   *zap.Logger
	Postgres *persistence.Postgres
}

// Open loads configuration and connects to Postgres.
func Open(ctx context.Context) (*Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	return &Env{Config: cfg, Logger: logger, Postgres: pg}, nil
}

// Close releases the pool and flushes logs.
func (e *Env) Close() {
	e.Postgres.Close()
	_ = e.Logger.Sync()
}

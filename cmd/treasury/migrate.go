package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/treasury/internal/app"
	"github.com/odyssey-erp/treasury/internal/platform/db"
	"github.com/odyssey-erp/treasury/migrations"
)

// MigrateCmd applies the embedded schema in one transaction.
type MigrateCmd struct{}

// Run executes the migrations.
func (cmd *MigrateCmd) Run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, MaxConns: 1})
	if err != nil {
		return err
	}
	defer pool.Close()

	var applied []string
	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		var err error
		applied, err = migrations.Apply(ctx, tx)
		return err
	})
	if err != nil {
		return err
	}
	logger.Info("migrations applied", slog.Any("files", applied))
	return nil
}

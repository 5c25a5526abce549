package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/odyssey-erp/treasury/cmd/treasury/cli"
	"github.com/odyssey-erp/treasury/internal/app"
)

var root struct {
	Serve   ServeCmd    `cmd:"" default:"1" help:"Run the treasury HTTP API."`
	Migrate MigrateCmd  `cmd:"" help:"Apply the database schema."`
	Jobs    cli.JobsCmd `cmd:"" help:"Manage scheduled treasury jobs."`
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("close jobs client", slog.Any("error", err))
		}
	}()

	kctx := kong.Parse(&root,
		kong.Name("treasury"),
		kong.Description("Treasury ledger and interest accrual engine."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.BindTo(io.Writer(os.Stdout), (*io.Writer)(nil)),
		kong.Bind(cfg, logger, jobsCLI),
	)
	if err := kctx.Run(); err != nil {
		logger.Error("command failed", slog.String("command", kctx.Command()), slog.Any("error", err))
		os.Exit(1)
	}
}

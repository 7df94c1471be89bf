package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/alex65536/tourney/internal/app"
	"github.com/alex65536/tourney/internal/database"
	"github.com/alex65536/tourney/internal/util/signal"
	"github.com/alex65536/tourney/internal/util/slogx"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Args:  cobra.ExactArgs(0),
	Short: "Start tourney server",
	Long: `Starts the tourney server: the admin API, the bridge gateway, and the background
workers that run tournaments and matches.
`,
}

func init() {
	p := serverCmd.Flags()
	optsPath := p.StringP(
		"options", "o", "",
		"options file")
	secretsPath := p.StringP(
		"secrets", "s", "",
		"secrets file")
	envPath := p.StringP(
		"env", "e", ".env",
		"env file overriding secrets")
	if err := serverCmd.MarkFlagRequired("options"); err != nil {
		panic(err)
	}

	serverCmd.RunE = func(cmd *cobra.Command, _args []string) error {
		opts, err := loadOptions(*optsPath, *secretsPath, *envPath)
		if err != nil {
			return err
		}
		log := newLogger(opts.Debug)

		ctx, cancel := signal.NotifyContext(context.Background(), log, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		db, err := database.New(log.With(slog.String("component", "db")), opts.DB)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		a, err := app.New(ctx, log, db, opts.App)
		if err != nil {
			return fmt.Errorf("create app: %w", err)
		}
		defer a.Close()

		servs, err := newServers(ctx, log, &opts, a.Handler())
		if err != nil {
			return fmt.Errorf("create servers: %w", err)
		}
		servs.Go()
		defer servs.Shutdown()

		if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("app failed", slogx.Err(err))
			return fmt.Errorf("run app: %w", err)
		}
		return nil
	}
}

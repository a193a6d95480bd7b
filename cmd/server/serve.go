package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"availability-scheduler/internal/app"
	"availability-scheduler/internal/config"
	"availability-scheduler/internal/housekeeping"
	"availability-scheduler/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the housekeeping job",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		b, err := openBackend(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer b.close()
		if err := b.migrate(ctx); err != nil {
			return err
		}

		svc, err := newService(b, cfg)
		if err != nil {
			return err
		}

		gin.SetMode(cfg.Server.Mode)
		a := &app.App{Service: svc, Auth: cfg.Auth, Ping: b.ping}
		if gc := app.NewGoogleCalendar(cfg.Google); gc != nil {
			a.Calendar = gc
		}

		srv, err := server.New(app.NewRouter(a), cfg.Server)
		if err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(ctx) })
		if cfg.Housekeeping.Enabled {
			job, err := housekeeping.New(svc, cfg.Housekeeping, svc.Location())
			if err != nil {
				return err
			}
			g.Go(func() error { return job.Run(ctx) })
		}

		slog.Info("Scheduler started", "addr", srv.Addr(), "driver", cfg.Store.Driver, "slot_duration", svc.SlotDuration().String())
		if err := g.Wait(); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		slog.Info("Scheduler stopped")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer b.close()
		if err := b.migrate(cmd.Context()); err != nil {
			return err
		}
		slog.Info("Schema migrated", "driver", cfg.Store.Driver)
		return nil
	},
}

var housekeepCmd = &cobra.Command{
	Use:   "housekeep",
	Short: "Purge expired quick overrides and old exceptions once",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer b.close()
		svc, err := newService(b, cfg)
		if err != nil {
			return err
		}
		job, err := housekeeping.New(svc, cfg.Housekeeping, svc.Location())
		if err != nil {
			return err
		}
		n, err := job.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d rules\n", n)
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", config.DefaultServerPort, "HTTP port")
	serveCmd.Flags().String("mode", config.DefaultServerMode, "gin mode (debug, release, test)")

	rootCmd.AddCommand(serveCmd, migrateCmd, housekeepCmd)
}

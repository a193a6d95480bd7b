package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"availability-scheduler/internal/config"
	"availability-scheduler/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "scheduler",
	Short:         "Agent availability and appointment booking service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}

		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.Setup(cfg.Server.LogLevel)
		slog.Debug("Configuration loaded", "driver", cfg.Store.Driver, "timezone", cfg.Schedule.Timezone)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+config.DefaultConfigFile+" when present)")
	rootCmd.PersistentFlags().String("log-level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("driver", config.DefaultStoreDriver, "rule store driver (postgres, sqlite, memory)")
	rootCmd.PersistentFlags().String("database-url", "", "postgres connection url")
	rootCmd.PersistentFlags().String("sqlite-path", config.DefaultStoreSQLitePath, "sqlite database file")
	rootCmd.PersistentFlags().String("timezone", config.DefaultScheduleTimezone, "agent calendar time zone")
}

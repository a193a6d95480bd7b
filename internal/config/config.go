package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Store        StoreConfig        `koanf:"store"`
	Schedule     ScheduleConfig     `koanf:"schedule"`
	Auth         AuthConfig         `koanf:"auth"`
	Google       GoogleConfig       `koanf:"google"`
	Housekeeping HousekeepingConfig `koanf:"housekeeping"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	Mode            string `koanf:"mode"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

type StoreConfig struct {
	Driver      string `koanf:"driver"`
	URL         string `koanf:"url"`
	SQLitePath  string `koanf:"sqlite_path"`
	MaxConns    int    `koanf:"max_conns"`
	TxTimeout   string `koanf:"tx_timeout"`
	LockTimeout string `koanf:"lock_timeout"`
}

type ScheduleConfig struct {
	SlotDuration string `koanf:"slot_duration"`
	Timezone     string `koanf:"timezone"`
}

type AuthConfig struct {
	JWTSecret    string   `koanf:"jwt_secret"`
	StaticTokens []string `koanf:"static_tokens"`
}

// Enabled reports whether any credential is configured.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != "" || len(a.StaticTokens) > 0
}

type GoogleConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	RedirectURL  string `koanf:"redirect_url"`
}

func (g GoogleConfig) Configured() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RedirectURL != ""
}

type HousekeepingConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Schedule  string `koanf:"schedule"`
	Retention string `koanf:"retention"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

const (
	DefaultServerPort            = 8080
	DefaultServerLogLevel        = "info"
	DefaultServerMode            = "release"
	DefaultServerReadTimeout     = "10s"
	DefaultServerWriteTimeout    = "10s"
	DefaultServerIdleTimeout     = "60s"
	DefaultServerShutdownTimeout = "10s"
	DefaultStoreDriver           = DriverPostgres
	DefaultStoreSQLitePath       = "./scheduler.db"
	DefaultStoreMaxConns         = 10
	DefaultStoreTxTimeout        = "5s"
	DefaultStoreLockTimeout      = "3s"
	DefaultScheduleSlotDuration  = "30m"
	DefaultScheduleTimezone      = "Local"
	DefaultHousekeepingEnabled   = true
	DefaultHousekeepingSchedule  = "0 3 * * *"
	DefaultHousekeepingRetention = "720h"
	DefaultConfigFile            = "scheduler.yaml"
	EnvPrefix                    = "SCHED_"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":             DefaultServerPort,
		"server.log_level":        DefaultServerLogLevel,
		"server.mode":             DefaultServerMode,
		"server.read_timeout":     DefaultServerReadTimeout,
		"server.write_timeout":    DefaultServerWriteTimeout,
		"server.idle_timeout":     DefaultServerIdleTimeout,
		"server.shutdown_timeout": DefaultServerShutdownTimeout,
		"store.driver":            DefaultStoreDriver,
		"store.sqlite_path":       DefaultStoreSQLitePath,
		"store.max_conns":         DefaultStoreMaxConns,
		"store.tx_timeout":        DefaultStoreTxTimeout,
		"store.lock_timeout":      DefaultStoreLockTimeout,
		"schedule.slot_duration":  DefaultScheduleSlotDuration,
		"schedule.timezone":       DefaultScheduleTimezone,
		"housekeeping.enabled":    DefaultHousekeepingEnabled,
		"housekeeping.schedule":   DefaultHousekeepingSchedule,
		"housekeeping.retention":  DefaultHousekeepingRetention,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file: --config wins, otherwise ./scheduler.yaml when present.
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat(DefaultConfigFile); err == nil {
		if err := k.Load(file.Provider(DefaultConfigFile), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		slog.Debug("No config file found", "path", DefaultConfigFile)
	}

	// Environment: SCHED_STORE__TX_TIMEOUT -> store.tx_timeout
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	// CLI flags
	if cmd != nil {
		flags := cmd.Flags()
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := FlagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	applyLegacyEnv(&cfg)
	cfg.Auth.StaticTokens = splitTokens(cfg.Auth.StaticTokens)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"port":         "server.port",
	"log-level":    "server.log_level",
	"mode":         "server.mode",
	"driver":       "store.driver",
	"database-url": "store.url",
	"sqlite-path":  "store.sqlite_path",
	"timezone":     "schedule.timezone",
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// applyLegacyEnv fills values still unset from the plain variables older
// deployments export.
func applyLegacyEnv(cfg *Config) {
	if cfg.Store.URL == "" {
		cfg.Store.URL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && cfg.Server.Port == DefaultServerPort {
		if n, err := parsePort(port); err == nil {
			cfg.Server.Port = n
		} else {
			slog.Warn("Ignoring invalid PORT", "value", port, "error", err)
		}
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = strings.TrimSpace(os.Getenv("JWT_HMAC_SECRET"))
	}
	if len(cfg.Auth.StaticTokens) == 0 {
		if v := strings.TrimSpace(os.Getenv("STATIC_TOKENS")); v != "" {
			cfg.Auth.StaticTokens = []string{v}
		}
	}
	if cfg.Google.ClientID == "" {
		cfg.Google.ClientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if cfg.Google.ClientSecret == "" {
		cfg.Google.ClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}
	if cfg.Google.RedirectURL == "" {
		cfg.Google.RedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	}
}

// splitTokens accepts both YAML lists and comma-separated strings.
func splitTokens(in []string) []string {
	var out []string
	for _, v := range in {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

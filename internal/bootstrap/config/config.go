package config

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"pulsesync/internal/bootstrap/logging"
	"pulsesync/internal/errs"
)

type Config struct {
	App       AppConfig                 `mapstructure:"app"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Sync      SyncConfig                `mapstructure:"sync"`
	Webhook   WebhookConfig             `mapstructure:"webhook"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// SyncConfig carries engine-wide sync tuning. Per-connection overrides live on
// the connection row.
type SyncConfig struct {
	PageSize                int   `mapstructure:"page_size"`
	MaxItemsPerUnit         int   `mapstructure:"max_items_per_unit"`
	DefaultIntervalMinutes  int   `mapstructure:"default_interval_minutes"`
	SchedulerTickSeconds    int   `mapstructure:"scheduler_tick_seconds"`
	MaxConcurrentSyncs      int64 `mapstructure:"max_concurrent_syncs"`
	TokenRefreshSkewMinutes int   `mapstructure:"token_refresh_skew_minutes"`
}

func (c SyncConfig) DefaultInterval() time.Duration {
	return time.Duration(c.DefaultIntervalMinutes) * time.Minute
}

func (c SyncConfig) SchedulerTick() time.Duration {
	return time.Duration(c.SchedulerTickSeconds) * time.Second
}

func (c SyncConfig) TokenRefreshSkew() time.Duration {
	return time.Duration(c.TokenRefreshSkewMinutes) * time.Minute
}

type WebhookConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ProviderConfig describes one vendor's OAuth endpoints and paging style.
// Pagination is "offset" (startAt/total) or "cursor" (@odata.nextLink).
type ProviderConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	AuthURL      string `mapstructure:"auth_url"`
	TokenURL     string `mapstructure:"token_url"`
	Pagination   string `mapstructure:"pagination"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			// Keep default and env-backed config when no file is provided.
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if cfg.Database.DSN == "" {
		return Config{}, errors.New("database.dsn is required")
	}
	if cfg.Sync.PageSize <= 0 {
		return Config{}, errors.New("sync.page_size must be positive")
	}
	if cfg.Sync.MaxConcurrentSyncs <= 0 {
		return Config{}, errors.New("sync.max_concurrent_syncs must be positive")
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.Int("sync_page_size", cfg.Sync.PageSize),
	)

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pulsesync")
	v.SetDefault("app.env", "local")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".pulsesync/state/pulsesync.sqlite")
	v.SetDefault("sync.page_size", 50)
	v.SetDefault("sync.max_items_per_unit", 5000)
	v.SetDefault("sync.default_interval_minutes", 30)
	v.SetDefault("sync.scheduler_tick_seconds", 60)
	v.SetDefault("sync.max_concurrent_syncs", 4)
	v.SetDefault("sync.token_refresh_skew_minutes", 5)
	v.SetDefault("webhook.listen_addr", ":8087")
}

package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"pulsesync/internal/bootstrap/config"
	"pulsesync/internal/bootstrap/database"
	"pulsesync/internal/bootstrap/logging"
	cacheinfra "pulsesync/internal/infrastructure/cache"
	sqliterepo "pulsesync/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "pulsesync/internal/infrastructure/persistence/sqlite/uow"
	"pulsesync/internal/infrastructure/vendorapi"
	"pulsesync/internal/ports"
	syncusecase "pulsesync/internal/usecase/sync"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewSyncRepository,
			fx.As(new(ports.SyncRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			cacheinfra.NewSQLiteCache,
			fx.As(new(ports.Cache)),
		),
	),
	fx.Provide(
		fx.Annotate(
			provideVendorClient,
			fx.As(new(ports.VendorClient)),
		),
	),
	fx.Provide(syncusecase.NewService),
	fx.Provide(provideScheduler),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

func provideVendorClient(cfg config.Config) *vendorapi.Client {
	return vendorapi.NewClient(cfg.Providers, nil)
}

func provideScheduler(svc *syncusecase.Service, cfg config.Config) *syncusecase.Scheduler {
	return syncusecase.NewScheduler(svc, cfg.Sync)
}

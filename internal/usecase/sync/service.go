package sync

import (
	"time"

	"pulsesync/internal/bootstrap/config"
	"pulsesync/internal/ports"
)

// Service wires the sync engine's usecases: token lifecycle, orchestration,
// paginated fetch, upsert, webhook ingestion.
type Service struct {
	repo    ports.SyncRepository
	uow     ports.UnitOfWork
	cache   ports.Cache
	vendor  ports.VendorClient
	cfg     config.SyncConfig
	flights *flightRegistry

	now func() time.Time
}

func NewService(repo ports.SyncRepository, uow ports.UnitOfWork, cache ports.Cache, vendor ports.VendorClient, cfg config.Config) *Service {
	return &Service{
		repo:    repo,
		uow:     uow,
		cache:   cache,
		vendor:  vendor,
		cfg:     cfg.Sync,
		flights: newFlightRegistry(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

package sync

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"pulsesync/internal/bootstrap/config"
	"pulsesync/internal/infrastructure/cache"
	"pulsesync/internal/infrastructure/persistence/sqlite/model"
	"pulsesync/internal/infrastructure/persistence/sqlite/repository"
	"pulsesync/internal/infrastructure/persistence/sqlite/uow"
	"pulsesync/internal/ports"
)

// fakeVendor scripts vendor responses per unit and records what the engine
// asked for.
type fakeVendor struct {
	mu stdsync.Mutex

	units    []ports.Unit
	unitsErr map[string]error
	pages    map[string][]ports.ItemPage
	items    map[string]ports.RemoteItem

	refreshBundle ports.TokenBundle
	refreshErr    error
	exchange      ports.TokenBundle
	identity      ports.WorkspaceIdentity

	refreshCalls  int
	getItemCalls  int
	listItemCalls int
	pageRequests  []ports.PageRequest
	pageIndex     map[string]int
}

var _ ports.VendorClient = (*fakeVendor)(nil)

func newFakeVendor() *fakeVendor {
	return &fakeVendor{
		pages:     make(map[string][]ports.ItemPage),
		items:     make(map[string]ports.RemoteItem),
		unitsErr:  make(map[string]error),
		pageIndex: make(map[string]int),
	}
}

func (f *fakeVendor) ExchangeCode(_ context.Context, _, _ string) (ports.TokenBundle, error) {
	return f.exchange, nil
}

func (f *fakeVendor) RefreshToken(_ context.Context, _ ports.Connection) (ports.TokenBundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refreshCalls++
	if f.refreshErr != nil {
		return ports.TokenBundle{}, f.refreshErr
	}
	return f.refreshBundle, nil
}

func (f *fakeVendor) GetIdentity(_ context.Context, _, _, _ string) (ports.WorkspaceIdentity, error) {
	return f.identity, nil
}

func (f *fakeVendor) ListUnits(_ context.Context, conn ports.Connection, _ string) ([]ports.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.unitsErr[conn.ID]; err != nil {
		return nil, err
	}
	return f.units, nil
}

func (f *fakeVendor) ListItems(_ context.Context, _ ports.Connection, _, unitKey string, page ports.PageRequest) (ports.ItemPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listItemCalls++
	f.pageRequests = append(f.pageRequests, page)

	scripted := f.pages[unitKey]
	idx := f.pageIndex[unitKey]
	if idx >= len(scripted) {
		return ports.ItemPage{}, nil
	}
	f.pageIndex[unitKey] = idx + 1
	return scripted[idx], nil
}

func (f *fakeVendor) GetItem(_ context.Context, _ ports.Connection, _, itemKey string) (ports.RemoteItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getItemCalls++
	item, ok := f.items[itemKey]
	if !ok {
		return ports.RemoteItem{}, errors.New("item not scripted: " + itemKey)
	}
	return item, nil
}

type testEnv struct {
	svc    *Service
	repo   *repository.SyncRepository
	vendor *fakeVendor
	db     *gorm.DB
}

func setupService(t *testing.T) *testEnv {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "engine.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&model.Connection{}, &model.SyncRun{}, &model.RemoteEntity{}, &model.CacheKV{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	vendor := newFakeVendor()
	repo := repository.NewSyncRepository(db)
	svc := NewService(repo, uow.NewUnitOfWork(db), cache.NewSQLiteCache(db), vendor, config.Config{
		Sync: config.SyncConfig{
			PageSize:                2,
			MaxItemsPerUnit:         5000,
			DefaultIntervalMinutes:  30,
			SchedulerTickSeconds:    60,
			MaxConcurrentSyncs:      2,
			TokenRefreshSkewMinutes: 5,
		},
	})

	return &testEnv{svc: svc, repo: repo, vendor: vendor, db: db}
}

func (e *testEnv) seedConnection(t *testing.T, conn ports.Connection) ports.Connection {
	t.Helper()

	now := time.Now().UTC()
	if conn.ID == "" {
		conn.ID = "conn-" + t.Name()
	}
	if conn.TenantID == "" {
		conn.TenantID = "tenant-1"
	}
	if conn.Provider == "" {
		conn.Provider = "trackwise"
	}
	if conn.BaseURL == "" {
		conn.BaseURL = "https://api.trackwise.example"
	}
	if conn.AccessToken == "" {
		conn.AccessToken = "access-token"
	}
	if conn.TokenExpiresAt == nil {
		conn.TokenExpiresAt = timePtr(now.Add(time.Hour))
	}
	conn.IsActive = true
	conn.CreatedAt = now
	conn.UpdatedAt = now

	if err := e.repo.CreateConnection(context.Background(), conn); err != nil {
		t.Fatalf("seed connection: %v", err)
	}
	return conn
}

func remoteItem(externalID, itemType, status string) ports.RemoteItem {
	now := time.Now().UTC()
	return ports.RemoteItem{
		ExternalID: externalID,
		Title:      "item " + externalID,
		ItemType:   itemType,
		Status:     status,
		CreatedAt:  timePtr(now.Add(-time.Hour)),
		UpdatedAt:  timePtr(now),
		Raw:        json.RawMessage(`{"key":"` + externalID + `"}`),
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }

package sync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domainsync "pulsesync/internal/domain/sync"
	"pulsesync/internal/ports"
)

func TestRunSyncFullPaginatesAndUpserts(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	conn := env.seedConnection(t, ports.Connection{})
	env.vendor.units = []ports.Unit{{Key: "OPS", Name: "Operations"}}
	env.vendor.pages["OPS"] = []ports.ItemPage{
		{
			Items:    []ports.RemoteItem{remoteItem("OPS-1", "task", "open"), remoteItem("OPS-2", "task", "open")},
			StartAt:  0,
			Total:    3,
			HasTotal: true,
		},
		{
			Items:    []ports.RemoteItem{remoteItem("OPS-3", "task", "done")},
			StartAt:  2,
			Total:    3,
			HasTotal: true,
		},
	}

	result, err := env.svc.RunSync(ctx, RunSyncInput{ConnectionID: conn.ID})
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}

	if result.Kind != domainsync.RunKindFull {
		t.Fatalf("RunSync() kind = %s, want full", result.Kind)
	}
	if result.ItemsFetched != 3 || result.ItemsCreated != 3 || result.TotalProcessed != 3 {
		t.Fatalf("RunSync() counters = fetched %d created %d processed %d", result.ItemsFetched, result.ItemsCreated, result.TotalProcessed)
	}
	// One units listing plus one call per page.
	if result.APICalls != 3 {
		t.Fatalf("RunSync() api calls = %d, want 3", result.APICalls)
	}

	runs, err := env.repo.ListRuns(ctx, conn.ID, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListRuns() len = %d, want 1", len(runs))
	}
	run := runs[0]
	if run.Status != string(domainsync.RunStatusCompleted) {
		t.Fatalf("run status = %s", run.Status)
	}
	if run.CompletedAt == nil || run.CompletedAt.Before(run.StartedAt) {
		t.Fatalf("run completed_at = %v, started_at = %v", run.CompletedAt, run.StartedAt)
	}
	if run.ItemsFetched != 3 || run.TotalProcessed != 3 {
		t.Fatalf("run counters = fetched %d processed %d", run.ItemsFetched, run.TotalProcessed)
	}

	stored, err := env.repo.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatalf("GetConnection() error = %v", err)
	}
	if stored.LastSuccessfulSyncAt == nil {
		t.Fatal("last successful sync not stamped")
	}
	if stored.TotalItemsSynced != 3 {
		t.Fatalf("total items synced = %d, want 3", stored.TotalItemsSynced)
	}

	entity, err := env.repo.GetEntity(ctx, conn.TenantID, conn.Provider, "OPS-2")
	if err != nil {
		t.Fatalf("GetEntity() error = %v", err)
	}
	if entity.ParentRef != "OPS" {
		t.Fatalf("entity parent_ref = %q, want OPS", entity.ParentRef)
	}
}

func TestRunSyncIncrementalPassesUpdatedSince(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	since := time.Now().UTC().Add(-15 * time.Minute).Truncate(time.Second)
	conn := env.seedConnection(t, ports.Connection{
		LastSuccessfulSyncAt: &since,
	})
	env.vendor.units = []ports.Unit{{Key: "OPS"}}
	env.vendor.pages["OPS"] = []ports.ItemPage{
		{Items: []ports.RemoteItem{remoteItem("OPS-9", "task", "open")}},
	}

	result, err := env.svc.RunSync(ctx, RunSyncInput{ConnectionID: conn.ID})
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if result.Kind != domainsync.RunKindIncremental {
		t.Fatalf("RunSync() kind = %s, want incremental", result.Kind)
	}

	if len(env.vendor.pageRequests) == 0 {
		t.Fatal("no page requests recorded")
	}
	got := env.vendor.pageRequests[0].UpdatedSince
	if got == nil || !got.Equal(since) {
		t.Fatalf("page updated_since = %v, want %v", got, since)
	}
}

func TestRunSyncForceFullIgnoresWatermark(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	conn := env.seedConnection(t, ports.Connection{
		LastSuccessfulSyncAt: timePtr(time.Now().UTC().Add(-time.Hour)),
	})
	env.vendor.units = []ports.Unit{{Key: "OPS"}}
	env.vendor.pages["OPS"] = []ports.ItemPage{
		{Items: []ports.RemoteItem{remoteItem("OPS-1", "task", "open")}},
	}

	result, err := env.svc.RunSync(ctx, RunSyncInput{ConnectionID: conn.ID, ForceFull: true})
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if result.Kind != domainsync.RunKindFull {
		t.Fatalf("RunSync() kind = %s, want full", result.Kind)
	}
	if env.vendor.pageRequests[0].UpdatedSince != nil {
		t.Fatalf("page updated_since = %v, want nil", env.vendor.pageRequests[0].UpdatedSince)
	}
}

func TestRunSyncFailureRecordsRunAndConnectionState(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	conn := env.seedConnection(t, ports.Connection{})
	env.vendor.unitsErr[conn.ID] = domainsync.ErrTransientAPI

	_, err := env.svc.RunSync(ctx, RunSyncInput{ConnectionID: conn.ID})
	if !errors.Is(err, domainsync.ErrTransientAPI) {
		t.Fatalf("RunSync() error = %v, want ErrTransientAPI", err)
	}

	runs, err := env.repo.ListRuns(ctx, conn.ID, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListRuns() len = %d, want 1", len(runs))
	}
	if runs[0].Status != string(domainsync.RunStatusFailed) {
		t.Fatalf("run status = %s, want failed", runs[0].Status)
	}
	if runs[0].ErrorMessage == "" {
		t.Fatal("run error message is empty")
	}

	stored, err := env.repo.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatalf("GetConnection() error = %v", err)
	}
	if stored.FailedSyncAttempts != 1 {
		t.Fatalf("failed attempts = %d, want 1", stored.FailedSyncAttempts)
	}
	if stored.LastSyncError == "" {
		t.Fatal("last sync error is empty")
	}
	if stored.LastSuccessfulSyncAt != nil {
		t.Fatalf("last successful sync = %v, want nil", stored.LastSuccessfulSyncAt)
	}

	// A later successful run resets the failure streak.
	delete(env.vendor.unitsErr, conn.ID)
	env.vendor.units = []ports.Unit{{Key: "OPS"}}
	env.vendor.pages["OPS"] = []ports.ItemPage{
		{Items: []ports.RemoteItem{remoteItem("OPS-1", "task", "open")}},
	}
	if _, err := env.svc.RunSync(ctx, RunSyncInput{ConnectionID: conn.ID}); err != nil {
		t.Fatalf("RunSync() retry error = %v", err)
	}

	stored, err = env.repo.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatalf("GetConnection() error = %v", err)
	}
	if stored.FailedSyncAttempts != 0 {
		t.Fatalf("failed attempts after success = %d, want 0", stored.FailedSyncAttempts)
	}
	if stored.LastSyncError != "" {
		t.Fatalf("last sync error after success = %q, want empty", stored.LastSyncError)
	}
}

func TestRunSyncRejectsConcurrentRun(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	conn := env.seedConnection(t, ports.Connection{})

	if !env.svc.flights.TryAcquire(conn.ID) {
		t.Fatal("could not acquire flight guard")
	}
	defer env.svc.flights.Release(conn.ID)

	_, err := env.svc.RunSync(ctx, RunSyncInput{ConnectionID: conn.ID})
	if !errors.Is(err, domainsync.ErrSyncInProgress) {
		t.Fatalf("RunSync() error = %v, want ErrSyncInProgress", err)
	}
	if !strings.Contains(err.Error(), "sync already in progress for connection "+conn.ID) {
		t.Fatalf("RunSync() error message = %q", err.Error())
	}

	runs, err := env.repo.ListRuns(ctx, conn.ID, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("ListRuns() len = %d, want 0", len(runs))
	}
}

func TestRunSyncItemFailureDoesNotAbortRun(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	conn := env.seedConnection(t, ports.Connection{})
	env.vendor.units = []ports.Unit{{Key: "OPS"}}
	env.vendor.pages["OPS"] = []ports.ItemPage{
		{Items: []ports.RemoteItem{
			remoteItem("OPS-1", "task", "open"),
			remoteItem("", "task", "open"),
			remoteItem("OPS-3", "task", "open"),
		}},
	}

	result, err := env.svc.RunSync(ctx, RunSyncInput{ConnectionID: conn.ID})
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if result.ItemsFetched != 3 || result.ItemsFailed != 1 || result.TotalProcessed != 2 {
		t.Fatalf("RunSync() counters = fetched %d failed %d processed %d", result.ItemsFetched, result.ItemsFailed, result.TotalProcessed)
	}

	runs, err := env.repo.ListRuns(ctx, conn.ID, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if runs[0].Status != string(domainsync.RunStatusCompleted) {
		t.Fatalf("run status = %s, want completed", runs[0].Status)
	}
}

func TestRunSyncFilteredItemsFetchedButNotProcessed(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	conn := env.seedConnection(t, ports.Connection{
		ItemTypes: []string{"task"},
	})
	env.vendor.units = []ports.Unit{{Key: "OPS"}}
	env.vendor.pages["OPS"] = []ports.ItemPage{
		{Items: []ports.RemoteItem{
			remoteItem("OPS-1", "task", "open"),
			remoteItem("OPS-2", "bug", "open"),
		}},
	}

	result, err := env.svc.RunSync(ctx, RunSyncInput{ConnectionID: conn.ID})
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if result.ItemsFetched != 2 {
		t.Fatalf("RunSync() fetched = %d, want 2", result.ItemsFetched)
	}
	if result.TotalProcessed != 1 || result.ItemsCreated != 1 {
		t.Fatalf("RunSync() processed = %d created = %d, want 1/1", result.TotalProcessed, result.ItemsCreated)
	}
	if result.ItemsFailed != 0 {
		t.Fatalf("RunSync() failed = %d, want 0", result.ItemsFailed)
	}

	if _, err := env.repo.GetEntity(ctx, conn.TenantID, conn.Provider, "OPS-2"); !errors.Is(err, domainsync.ErrEntityNotFound) {
		t.Fatalf("filtered entity lookup error = %v, want ErrEntityNotFound", err)
	}
}

func TestRunSyncStopsAtPerUnitCap(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	env.svc.cfg.MaxItemsPerUnit = 2
	conn := env.seedConnection(t, ports.Connection{})
	env.vendor.units = []ports.Unit{{Key: "OPS"}}
	env.vendor.pages["OPS"] = []ports.ItemPage{
		{
			Items:    []ports.RemoteItem{remoteItem("OPS-1", "task", "open"), remoteItem("OPS-2", "task", "open")},
			StartAt:  0,
			Total:    6,
			HasTotal: true,
		},
		{
			Items:    []ports.RemoteItem{remoteItem("OPS-3", "task", "open"), remoteItem("OPS-4", "task", "open")},
			StartAt:  2,
			Total:    6,
			HasTotal: true,
		},
	}

	result, err := env.svc.RunSync(ctx, RunSyncInput{ConnectionID: conn.ID})
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if result.ItemsFetched != 2 || result.TotalProcessed != 2 {
		t.Fatalf("RunSync() counters = fetched %d processed %d, want 2/2", result.ItemsFetched, result.TotalProcessed)
	}
	// The cap ends the unit after its first page even though more remain.
	if env.vendor.listItemCalls != 1 {
		t.Fatalf("list item calls = %d, want 1", env.vendor.listItemCalls)
	}

	runs, err := env.repo.ListRuns(ctx, conn.ID, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Status != string(domainsync.RunStatusCompleted) {
		t.Fatalf("runs = %+v, want one completed run", runs)
	}
}

func TestRunSyncShortPageStopsWithoutTotal(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	conn := env.seedConnection(t, ports.Connection{})
	env.vendor.units = []ports.Unit{{Key: "OPS"}}
	env.vendor.pages["OPS"] = []ports.ItemPage{
		{Items: []ports.RemoteItem{remoteItem("OPS-1", "task", "open"), remoteItem("OPS-2", "task", "open")}},
		{Items: []ports.RemoteItem{remoteItem("OPS-3", "task", "open")}},
	}

	result, err := env.svc.RunSync(ctx, RunSyncInput{ConnectionID: conn.ID})
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if result.ItemsFetched != 3 || result.TotalProcessed != 3 {
		t.Fatalf("RunSync() counters = fetched %d processed %d, want 3/3", result.ItemsFetched, result.TotalProcessed)
	}
	// One full page then a short one: the short page itself is the stop signal.
	if env.vendor.listItemCalls != 2 {
		t.Fatalf("list item calls = %d, want 2", env.vendor.listItemCalls)
	}
	if result.APICalls != 3 {
		t.Fatalf("RunSync() api calls = %d, want 3", result.APICalls)
	}
}

func TestRunSyncUnitSubset(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	conn := env.seedConnection(t, ports.Connection{})
	env.vendor.units = []ports.Unit{{Key: "OPS"}, {Key: "ENG"}}
	env.vendor.pages["OPS"] = []ports.ItemPage{
		{Items: []ports.RemoteItem{remoteItem("OPS-1", "task", "open")}},
	}
	env.vendor.pages["ENG"] = []ports.ItemPage{
		{Items: []ports.RemoteItem{remoteItem("ENG-1", "task", "open")}},
	}

	result, err := env.svc.RunSync(ctx, RunSyncInput{ConnectionID: conn.ID, Units: []string{"ops"}})
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if result.ItemsFetched != 1 {
		t.Fatalf("RunSync() fetched = %d, want 1", result.ItemsFetched)
	}
	if env.vendor.pageIndex["ENG"] != 0 {
		t.Fatal("excluded unit was fetched")
	}
}

func TestRunSyncInactiveConnection(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	conn := env.seedConnection(t, ports.Connection{})
	if err := env.repo.DeactivateConnection(ctx, conn.ID); err != nil {
		t.Fatalf("DeactivateConnection() error = %v", err)
	}

	_, err := env.svc.RunSync(ctx, RunSyncInput{ConnectionID: conn.ID})
	if !errors.Is(err, domainsync.ErrConnectionInactive) {
		t.Fatalf("RunSync() error = %v, want ErrConnectionInactive", err)
	}
}

func TestRunSyncUnknownConnection(t *testing.T) {
	env := setupService(t)

	_, err := env.svc.RunSync(context.Background(), RunSyncInput{ConnectionID: "nope"})
	if !errors.Is(err, domainsync.ErrConnectionNotFound) {
		t.Fatalf("RunSync() error = %v, want ErrConnectionNotFound", err)
	}
}

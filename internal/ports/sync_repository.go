package ports

import (
	"context"
	"time"
)

// Connection is one tenant's authorized link to one vendor account.
type Connection struct {
	ID          string
	TenantID    string
	Provider    string
	WorkspaceID string
	BaseURL     string

	AccessToken    string
	RefreshToken   *string
	TokenExpiresAt *time.Time
	Scopes         string

	SyncIntervalMinutes int
	AutoSyncEnabled     bool
	ItemTypes           []string
	ItemStatuses        []string

	LastSyncAt           *time.Time
	LastSuccessfulSyncAt *time.Time
	LastSyncError        string
	FailedSyncAttempts   int
	TotalItemsSynced     int64

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CredentialUpdate carries refreshed token material. A nil RefreshToken means
// "keep the stored one" (vendors that do not rotate refresh tokens omit it).
type CredentialUpdate struct {
	AccessToken    string
	RefreshToken   *string
	TokenExpiresAt *time.Time
	Scopes         string
}

// SyncRun is one execution attempt, the audit trail row for operators.
type SyncRun struct {
	ID           uint64
	ConnectionID string
	TenantID     string
	Kind         string
	Status       string
	StartedAt    time.Time
	CompletedAt  *time.Time

	ItemsFetched   int
	ItemsCreated   int
	ItemsUpdated   int
	ItemsFailed    int
	TotalProcessed int
	APICalls       int
	DurationMs     int64

	ErrorMessage string
	ErrorDetail  string
}

type SyncRunCreate struct {
	ConnectionID string
	TenantID     string
	Kind         string
	Status       string
	StartedAt    time.Time
}

type SyncRunFinalize struct {
	Status      string
	CompletedAt time.Time

	ItemsFetched   int
	ItemsCreated   int
	ItemsUpdated   int
	ItemsFailed    int
	TotalProcessed int
	APICalls       int
	DurationMs     int64

	ErrorMessage string
	ErrorDetail  string
}

// RemoteEntity is the normalized local copy of one remote item.
type RemoteEntity struct {
	ID           uint64
	TenantID     string
	ConnectionID string
	Provider     string
	ExternalID   string
	ParentRef    string

	Title           string
	ItemType        string
	Status          string
	RemoteCreatedAt *time.Time
	RemoteUpdatedAt *time.Time
	PayloadJSON     string

	LastSyncedAt time.Time
	IsDeleted    bool
}

type RemoteEntityUpsert struct {
	TenantID     string
	ConnectionID string
	Provider     string
	ExternalID   string
	ParentRef    string

	Title           string
	ItemType        string
	Status          string
	RemoteCreatedAt *time.Time
	RemoteUpdatedAt *time.Time
	PayloadJSON     string

	LastSyncedAt time.Time
}

// SyncRepository persists connections, runs, and remote entities.
// Every row and every query is tenant-scoped through the connection.
type SyncRepository interface {
	CreateConnection(ctx context.Context, conn Connection) error
	GetConnection(ctx context.Context, id string) (Connection, error)
	ListActiveConnections(ctx context.Context) ([]Connection, error)
	UpdateCredentials(ctx context.Context, id string, update CredentialUpdate) error
	MarkSyncStarted(ctx context.Context, id string, at time.Time) error
	MarkSyncSucceeded(ctx context.Context, id string, at time.Time, itemsSynced int64) error
	MarkSyncFailed(ctx context.Context, id string, message string) error
	DeactivateConnection(ctx context.Context, id string) error

	CreateRun(ctx context.Context, input SyncRunCreate) (SyncRun, error)
	FinalizeRun(ctx context.Context, runID uint64, input SyncRunFinalize) error
	ListRuns(ctx context.Context, connectionID string, limit int) ([]SyncRun, error)

	// UpsertEntity returns true when a new row was inserted, false when an
	// existing row was updated. Classification is atomic: the insert attempt
	// itself decides, not a prior existence read.
	UpsertEntity(ctx context.Context, input RemoteEntityUpsert) (created bool, err error)
	GetEntity(ctx context.Context, tenantID, provider, externalID string) (RemoteEntity, error)
	MarkEntityDeleted(ctx context.Context, tenantID, provider, externalID string, at time.Time) error
	FindConnectionIDForUnit(ctx context.Context, provider, unitKey string) (string, bool, error)
}

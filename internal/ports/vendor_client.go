package ports

import (
	"context"
	"encoding/json"
	"time"
)

// Unit is one parent grouping on the vendor side (project, channel, team).
type Unit struct {
	Key  string
	Name string
}

// RemoteItem is one normalized item from a vendor list/get response. Raw keeps
// the vendor payload verbatim, nested blobs included.
type RemoteItem struct {
	ExternalID string
	ParentRef  string
	Title      string
	ItemType   string
	Status     string
	CreatedAt  *time.Time
	UpdatedAt  *time.Time
	Raw        json.RawMessage
}

// PageRequest asks for one page of a unit's items. Cursor wins over StartAt
// when the provider paginates by next-link.
type PageRequest struct {
	StartAt      int
	Cursor       string
	PageSize     int
	UpdatedSince *time.Time
}

// ItemPage is one page of results plus whatever pagination metadata the
// vendor reported.
type ItemPage struct {
	Items      []RemoteItem
	NextCursor string
	StartAt    int
	Total      int
	HasTotal   bool
}

// TokenBundle is the outcome of an OAuth grant. RefreshToken is empty when the
// vendor does not rotate it.
type TokenBundle struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	Scopes       string
}

// WorkspaceIdentity is what the vendor's user-info endpoint reports after an
// authorization-code exchange.
type WorkspaceIdentity struct {
	AccountID   string
	WorkspaceID string
	DisplayName string
}

// VendorClient talks to one family of vendor REST APIs: bearer-authenticated
// list/get endpoints plus the OAuth token endpoint.
type VendorClient interface {
	ExchangeCode(ctx context.Context, provider, code string) (TokenBundle, error)
	RefreshToken(ctx context.Context, conn Connection) (TokenBundle, error)
	GetIdentity(ctx context.Context, provider, baseURL, accessToken string) (WorkspaceIdentity, error)

	ListUnits(ctx context.Context, conn Connection, accessToken string) ([]Unit, error)
	ListItems(ctx context.Context, conn Connection, accessToken, unitKey string, page PageRequest) (ItemPage, error)
	GetItem(ctx context.Context, conn Connection, accessToken, itemKey string) (RemoteItem, error)
}

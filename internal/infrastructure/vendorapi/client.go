package vendorapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"pulsesync/internal/bootstrap/config"
	domainsync "pulsesync/internal/domain/sync"
	"pulsesync/internal/errs"
	"pulsesync/internal/ports"
)

const defaultTimeout = 30 * time.Second

// Client implements ports.VendorClient against the neutral REST contract the
// supported vendors expose: bearer-authenticated list/get endpoints returning
// {value: []} or {values: []} envelopes, offset (startAt/total) or cursor
// (@odata.nextLink) pagination, and an OAuth token endpoint.
type Client struct {
	providers  map[string]config.ProviderConfig
	httpClient *http.Client
}

var _ ports.VendorClient = (*Client)(nil)

func NewClient(providers map[string]config.ProviderConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		providers:  providers,
		httpClient: httpClient,
	}
}

func (c *Client) oauthConfig(provider string) (*oauth2.Config, error) {
	cfg, ok := c.providers[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil, errs.Wrapf(domainsync.ErrUnknownProvider, "provider %q", provider)
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}, nil
}

// oauthContext routes the oauth2 transport through our HTTP client.
func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) ExchangeCode(ctx context.Context, provider, code string) (ports.TokenBundle, error) {
	if ctx == nil {
		return ports.TokenBundle{}, errors.New("context is required")
	}

	cfg, err := c.oauthConfig(provider)
	if err != nil {
		return ports.TokenBundle{}, err
	}

	tok, err := cfg.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return ports.TokenBundle{}, errs.Wrapf(domainsync.ErrAuth, "exchange authorization code: %v", err)
	}

	return bundleFromToken(tok), nil
}

func (c *Client) RefreshToken(ctx context.Context, conn ports.Connection) (ports.TokenBundle, error) {
	if ctx == nil {
		return ports.TokenBundle{}, errors.New("context is required")
	}
	if conn.RefreshToken == nil || strings.TrimSpace(*conn.RefreshToken) == "" {
		return ports.TokenBundle{}, errs.Wrapf(domainsync.ErrAuth, "connection %s: %v", conn.ID, domainsync.ErrRefreshTokenMissing)
	}

	cfg, err := c.oauthConfig(conn.Provider)
	if err != nil {
		return ports.TokenBundle{}, err
	}

	src := cfg.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: *conn.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return ports.TokenBundle{}, errs.Wrapf(domainsync.ErrAuth, "refresh token for connection %s: %v", conn.ID, err)
	}

	return bundleFromToken(tok), nil
}

func bundleFromToken(tok *oauth2.Token) ports.TokenBundle {
	bundle := ports.TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		bundle.ExpiresAt = &expiry
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		bundle.Scopes = scope
	}
	return bundle
}

type identityEnvelope struct {
	AccountID   string `json:"accountId"`
	WorkspaceID string `json:"workspaceId"`
	DisplayName string `json:"displayName"`
}

func (c *Client) GetIdentity(ctx context.Context, provider, baseURL, accessToken string) (ports.WorkspaceIdentity, error) {
	if _, ok := c.providers[strings.ToLower(strings.TrimSpace(provider))]; !ok {
		return ports.WorkspaceIdentity{}, errs.Wrapf(domainsync.ErrUnknownProvider, "provider %q", provider)
	}

	var envelope identityEnvelope
	if err := c.getJSON(ctx, strings.TrimRight(baseURL, "/")+"/rest/me", accessToken, &envelope); err != nil {
		return ports.WorkspaceIdentity{}, errs.Wrap(err, "fetch identity")
	}

	return ports.WorkspaceIdentity{
		AccountID:   envelope.AccountID,
		WorkspaceID: envelope.WorkspaceID,
		DisplayName: envelope.DisplayName,
	}, nil
}

type unitEnvelope struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

func (c *Client) ListUnits(ctx context.Context, conn ports.Connection, accessToken string) ([]ports.Unit, error) {
	var envelope listEnvelope
	if err := c.getJSON(ctx, strings.TrimRight(conn.BaseURL, "/")+"/rest/units", accessToken, &envelope); err != nil {
		return nil, errs.Wrap(err, "list units")
	}

	raws := envelope.items()
	units := make([]ports.Unit, 0, len(raws))
	for _, raw := range raws {
		var unit unitEnvelope
		if err := json.Unmarshal(raw, &unit); err != nil {
			return nil, errs.Wrap(err, "decode unit")
		}
		units = append(units, ports.Unit{Key: unit.Key, Name: unit.Name})
	}
	return units, nil
}

func (c *Client) ListItems(ctx context.Context, conn ports.Connection, accessToken, unitKey string, page ports.PageRequest) (ports.ItemPage, error) {
	requestURL := page.Cursor
	if requestURL == "" {
		values := url.Values{}
		values.Set("startAt", strconv.Itoa(page.StartAt))
		values.Set("maxResults", strconv.Itoa(page.PageSize))
		if page.UpdatedSince != nil {
			values.Set("updatedSince", page.UpdatedSince.UTC().Format(time.RFC3339))
		}
		requestURL = fmt.Sprintf(
			"%s/rest/units/%s/items?%s",
			strings.TrimRight(conn.BaseURL, "/"),
			url.PathEscape(unitKey),
			values.Encode(),
		)
	}

	var envelope listEnvelope
	if err := c.getJSON(ctx, requestURL, accessToken, &envelope); err != nil {
		return ports.ItemPage{}, errs.Wrapf(err, "list items for unit %s", unitKey)
	}

	raws := envelope.items()
	result := ports.ItemPage{
		Items:      make([]ports.RemoteItem, 0, len(raws)),
		NextCursor: envelope.NextLink,
		StartAt:    page.StartAt,
	}
	if envelope.StartAt != nil {
		result.StartAt = *envelope.StartAt
	}
	if envelope.Total != nil {
		result.Total = *envelope.Total
		result.HasTotal = true
	}

	for _, raw := range raws {
		item, err := decodeItem(raw, unitKey)
		if err != nil {
			return ports.ItemPage{}, err
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

func (c *Client) GetItem(ctx context.Context, conn ports.Connection, accessToken, itemKey string) (ports.RemoteItem, error) {
	requestURL := fmt.Sprintf(
		"%s/rest/items/%s",
		strings.TrimRight(conn.BaseURL, "/"),
		url.PathEscape(itemKey),
	)

	body, err := c.getRaw(ctx, requestURL, accessToken)
	if err != nil {
		return ports.RemoteItem{}, errs.Wrapf(err, "get item %s", itemKey)
	}

	return decodeItem(body, "")
}

// listEnvelope covers both envelope spellings the vendors use.
type listEnvelope struct {
	Value    []json.RawMessage `json:"value"`
	Values   []json.RawMessage `json:"values"`
	StartAt  *int              `json:"startAt"`
	Total    *int              `json:"total"`
	NextLink string            `json:"@odata.nextLink"`
}

func (e listEnvelope) items() []json.RawMessage {
	if len(e.Value) > 0 {
		return e.Value
	}
	return e.Values
}

type wireItem struct {
	ID        string     `json:"id"`
	Key       string     `json:"key"`
	ParentKey string     `json:"parentKey"`
	Title     string     `json:"title"`
	ItemType  string     `json:"type"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

func decodeItem(raw json.RawMessage, fallbackParent string) (ports.RemoteItem, error) {
	var item wireItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return ports.RemoteItem{}, errs.Wrap(err, "decode item")
	}

	externalID := item.Key
	if externalID == "" {
		externalID = item.ID
	}
	if externalID == "" {
		return ports.RemoteItem{}, errors.New("item has neither key nor id")
	}

	parent := item.ParentKey
	if parent == "" {
		parent = domainsync.ParentPrefix(item.Key)
	}
	if parent == "" {
		parent = fallbackParent
	}

	return ports.RemoteItem{
		ExternalID: externalID,
		ParentRef:  parent,
		Title:      item.Title,
		ItemType:   item.ItemType,
		Status:     item.Status,
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
		Raw:        raw,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, requestURL, accessToken string, out any) error {
	body, err := c.getRaw(ctx, requestURL, accessToken)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.Wrap(err, "decode response body")
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, requestURL, accessToken string) (json.RawMessage, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, errs.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport-level failures (timeouts, refused connections) are retried
		// on the next run, same as remote 5xx.
		return nil, errs.Wrapf(domainsync.ErrTransientAPI, "request %s: %v", requestURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(err, "read response body")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errs.Wrapf(domainsync.ErrAuth, "vendor returned %d", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, errs.Wrapf(domainsync.ErrEntityNotFound, "vendor returned 404 for %s", requestURL)
	case resp.StatusCode >= 500:
		return nil, errs.Wrapf(domainsync.ErrTransientAPI, "vendor returned %d", resp.StatusCode)
	default:
		return nil, fmt.Errorf("vendor returned unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

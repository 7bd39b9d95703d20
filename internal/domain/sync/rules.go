package sync

import (
	"strings"
	"time"
)

// SelectMode picks the run kind: incremental iff a successful sync exists and
// the caller did not force a full one.
func SelectMode(lastSuccessfulSyncAt *time.Time, forceFull bool) RunKind {
	if forceFull || lastSuccessfulSyncAt == nil {
		return RunKindFull
	}
	return RunKindIncremental
}

// IsDueForSync decides whether the scheduler should fire a connection.
// The reference point is the last successful sync, falling back to the last
// attempt so a failing connection is not retried on every tick.
func IsDueForSync(now time.Time, lastSuccessfulSyncAt, lastSyncAt *time.Time, interval time.Duration, autoSyncEnabled bool) bool {
	if !autoSyncEnabled {
		return false
	}

	ref := lastSuccessfulSyncAt
	if ref == nil {
		ref = lastSyncAt
	}
	if ref == nil {
		return true
	}

	return now.Sub(*ref) >= interval
}

// EffectiveInterval resolves the per-connection override against the global
// default. Zero or negative override means "use the default".
func EffectiveInterval(overrideMinutes int, defaultInterval time.Duration) time.Duration {
	if overrideMinutes > 0 {
		return time.Duration(overrideMinutes) * time.Minute
	}
	return defaultInterval
}

// PageState is what one page response tells us about remaining pages.
type PageState struct {
	Returned   int
	PageSize   int
	NextCursor string
	StartAt    int
	Total      int
	HasTotal   bool
}

// HasMorePages is the loop's stop condition, inverted. A cursor always wins;
// offset paging trusts the reported total when present and falls back to the
// short-page heuristic otherwise.
func HasMorePages(p PageState) bool {
	if p.Returned == 0 {
		return false
	}
	if p.NextCursor != "" {
		return true
	}
	if p.HasTotal {
		return p.StartAt+p.Returned < p.Total
	}
	return p.Returned >= p.PageSize
}

// PassesFilters applies the connection's inclusion filters. Empty filter lists
// include everything; matching is case-insensitive.
func PassesFilters(itemTypes, itemStatuses []string, itemType, itemStatus string) bool {
	return matchesFilter(itemTypes, itemType) && matchesFilter(itemStatuses, itemStatus)
}

func matchesFilter(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		if strings.EqualFold(strings.TrimSpace(candidate), strings.TrimSpace(value)) {
			return true
		}
	}
	return false
}

// ParentPrefix extracts the parent unit key from an item's natural key, e.g.
// "OPS-4211" -> "OPS". Empty when the key has no unit prefix.
func ParentPrefix(itemKey string) string {
	key := strings.TrimSpace(itemKey)
	idx := strings.Index(key, "-")
	if idx <= 0 {
		return ""
	}
	return key[:idx]
}

// SplitFilterList parses a stored comma-separated filter into its values.
func SplitFilterList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

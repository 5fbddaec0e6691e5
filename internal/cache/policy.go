package cache

import "time"

// Key namespaces.
const (
	NamespaceSummary  = "summary"
	NamespaceSearch   = "search"
	NamespaceDocument = "document"
)

// Policy holds the time-to-live of each cached value class.
type Policy struct {
	Summary      time.Duration
	DocumentView time.Duration
	Search       time.Duration
	EmptySearch  time.Duration
}

// DefaultPolicy returns the standard TTLs: summaries 24h, document views
// 15m, searches 1h and empty searches 5m.
func DefaultPolicy() Policy {
	return Policy{
		Summary:      24 * time.Hour,
		DocumentView: 15 * time.Minute,
		Search:       time.Hour,
		EmptySearch:  5 * time.Minute,
	}
}

// SummaryKey keys a summary by the digest of its normalised input text.
func SummaryKey(textHash string) string {
	return DeriveKey(NamespaceSummary, []any{textHash})
}

// SearchKey keys a search by its normalised query.
func SearchKey(normalizedQuery string) string {
	return DeriveKey(NamespaceSearch, []any{normalizedQuery})
}

// DocumentViewKey keys one caller's view of a document. Every view of a
// document shares the "document:<id>:" prefix.
func DocumentViewKey(documentID, userID string) string {
	return DeriveKey(documentScope(documentID), nil, F("user_id", userID))
}

func documentScope(documentID string) string {
	return NamespaceDocument + ":" + documentID
}

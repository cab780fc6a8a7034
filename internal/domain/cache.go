package domain

import "time"

// CacheEntry holds the explanations fetched for one token. Entries are never
// edited: invalidation replaces the whole entry.
type CacheEntry struct {
	Token        string
	Explanations []FeatureExplanation
	FetchedAt    time.Time
}

// Expired reports whether the entry is older than ttl. A zero ttl never expires.
func (e CacheEntry) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(e.FetchedAt) >= ttl
}

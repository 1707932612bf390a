package clientdata

import "time"

// TTL constants per data kind.
// These are added to the current time when storing to calculate expires_at.
const (
	TTLQuote = 10 * time.Minute // quotes go stale quickly during market hours
	TTLNews  = time.Hour
)

// TTLFor returns the TTL for a cache table, defaulting to the quote TTL.
func TTLFor(table string) time.Duration {
	if table == TableNews {
		return TTLNews
	}
	return TTLQuote
}

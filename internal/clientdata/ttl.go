package clientdata

import "time"

// TTL constants added to time.Now() when storing.
const (
	TTLQuote     = 15 * time.Minute // Latest quotes, refreshed intraday
	TTLDividends = 24 * time.Hour   // Dividend announcements change at most daily
)

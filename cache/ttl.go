package cache

import "time"

// TTLs per key class. Live per-account stats refresh fastest, protocol-wide
// analytics tolerate a minute, provider data five.
const (
	TTLLiveStats  = 30 * time.Second
	TTLAnalytics  = 60 * time.Second
	TTLMarketData = 300 * time.Second
	// TTLDegraded shortens retention for fallback values so recovery from a
	// provider outage is picked up quickly.
	TTLDegraded = 30 * time.Second
)

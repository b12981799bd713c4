package domain

import "time"

// QuotaWindowDuration is the trailing window over which expensive
// operations are counted per user.
const QuotaWindowDuration = 24 * time.Hour

// QuotaWindow is a rolling 24h counter of expensive operations for one
// user. It is created lazily on the first call in a new window and only
// ever incremented; expiry resets it by replacement.
type QuotaWindow struct {
	UserID      string
	WindowStart time.Time
	CallCount   int
}

// Expired reports whether the window has rolled past its duration.
func (w QuotaWindow) Expired(now time.Time) bool {
	return now.Sub(w.WindowStart) >= QuotaWindowDuration
}

package weather

import "time"

const (
	// CurrentExpiry is how long a CURRENT entry stays fresh.
	CurrentExpiry = time.Hour
	// DailyExpiry is how long HOURLY and DAILY entries stay fresh.
	DailyExpiry = 24 * time.Hour
)

// Window returns the expiry window for a category. Unknown categories get the
// short window.
func Window(c Category) time.Duration {
	switch c {
	case CategoryHourly, CategoryDaily:
		return DailyExpiry
	default:
		return CurrentExpiry
	}
}

// IsExpired reports whether data of category c written at fetchedAt is stale at now.
//
// A zero fetchedAt means nothing is stored and counts as expired. A fetchedAt
// after now (clock skew) counts as fresh, so a skewed writer does not cause a
// refetch on every read.
func IsExpired(c Category, fetchedAt, now time.Time) bool {
	if fetchedAt.IsZero() {
		return true
	}
	age := now.Sub(fetchedAt)
	if age < 0 {
		return false
	}
	return age >= Window(c)
}

// ExpiryCutoff returns the instant at or before which entries of category c are
// expired at now. Stores purge entries with fetchedAt <= cutoff.
func ExpiryCutoff(c Category, now time.Time) time.Time {
	return now.Add(-Window(c))
}

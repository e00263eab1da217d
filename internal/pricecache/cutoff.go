package pricecache

import "time"

// CutoffHour is the local hour at which every stored price expires.
const CutoffHour = 4

// StalenessCutoff returns the most recent CutoffHour boundary at or before now,
// in now's location.
func StalenessCutoff(now time.Time) time.Time {
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), CutoffHour, 0, 0, 0, now.Location())
	if now.Before(cutoff) {
		cutoff = cutoff.AddDate(0, 0, -1)
	}
	return cutoff
}

func NextCutoff(now time.Time) time.Time {
	return StalenessCutoff(now).AddDate(0, 0, 1)
}

// IsStale reports whether a price fetched at fetchedAt predates the last cutoff.
func IsStale(fetchedAt time.Time, now time.Time) bool {
	return fetchedAt.Before(StalenessCutoff(now))
}

package caching

import "time"

// Status tracks an entry's fetch lifecycle.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is one cached value with its freshness and retention metadata.
// Values are owned by the store: readers get the value as-is and must treat
// it as immutable, writers go through Set/Restore.
type Entry struct {
	Key        Key
	Value      any
	Status     Status
	FetchedAt  time.Time
	StaleAfter time.Time
	GCAfter    time.Time
	Err        error
}

// IsStale reports freshness at a given instant. The boundary is inclusive:
// a read exactly at StaleAfter triggers a refetch.
func (e Entry) IsStale(now time.Time) bool {
	if e.Status != StatusSuccess {
		return true
	}
	return !now.Before(e.StaleAfter)
}

// HasValue reports whether the entry carries usable data, which survives
// failed refetches (last known good value).
func (e Entry) HasValue() bool {
	return e.Value != nil
}

// Expired reports whether the entry has been idle past its retention window.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.GCAfter)
}

// Package model defines the on-disk and in-memory records shared by the
// audit log writer, search index, backup manager and restorer.
package model

import "time"

// Timestamp is a Unix time in seconds.
type Timestamp int64

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return Timestamp(time.Now().Unix())
}

// FromTime converts t to a Timestamp.
func FromTime(t time.Time) Timestamp {
	return Timestamp(t.Unix())
}

// Time returns the timestamp as a UTC time.Time.
func (ts Timestamp) Time() time.Time {
	return time.Unix(int64(ts), 0).UTC()
}

// DateKey returns the YYYY-MM-DD day the timestamp falls on, in UTC.
func (ts Timestamp) DateKey() string {
	return ts.Time().Format(DateLayout)
}

// DateLayout is the layout of date index keys.
const DateLayout = "2006-01-02"

// HashValue is a SHA-256 hash stored as hex string.
type HashValue string

// DefaultRetentionDays is the minimum regulatory retention for audit backups (7 years).
const DefaultRetentionDays = 2555

// SecondsPerDay is used to turn retention days into a cutoff timestamp.
const SecondsPerDay = 86400

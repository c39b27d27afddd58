// Package index builds per-day offset indexes over time-ordered datasets.
//
// A dataset sorted by a time column is walked in bounded windows of rows
// (see Partition). Each window's key column is read, and the global row
// offset of the first record of every calendar day is emitted as an Entry.
// Only one window is held in memory at a time, so datasets far larger than
// RAM can be indexed.
//
// Built indexes are persisted as ordinary datasets in the same store (see
// Save and Load), with columns "day" and "offset".
package index

import (
	"errors"
	"time"
)

var (
	ErrInvalidWindowSize = errors.New("window size must be positive")
	ErrNegativeTotal     = errors.New("total row count must not be negative")
	ErrKeyRequired       = errors.New("key column is required")
	ErrKeyNotTime        = errors.New("key column is not a time column")
	ErrUnsorted          = errors.New("dataset is not sorted by key")
	ErrShortRead         = errors.New("store returned fewer rows than requested")
	ErrNotIndex          = errors.New("dataset is not a day index")
	ErrStaleIndex        = errors.New("day index does not match its source dataset")
)

// Entry marks the first record of one calendar day.
type Entry struct {
	Day    time.Time // midnight of the day in the index location
	Offset int64     // global row offset of the day's first record
}

// DayOf truncates ts to midnight of its calendar day in loc.
func DayOf(ts time.Time, loc *time.Location) time.Time {
	y, m, d := ts.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

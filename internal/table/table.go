// Package table defines the core abstractions for columnar record storage.
// A Store holds named datasets. Each dataset is an ordered sequence of rows
// with a fixed Schema, physically split into segments (one per Append), and
// readable by half-open row range without materializing the whole dataset.
package table

import (
	"errors"
)

var (
	ErrDatasetNotFound  = errors.New("dataset not found")
	ErrDatasetExists    = errors.New("dataset already exists")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStoreClosed      = errors.New("store is closed")
	ErrReadOnly         = errors.New("store is read-only")
	ErrSchemaMismatch   = errors.New("schema mismatch")
	ErrRangeOutOfBounds = errors.New("row range out of bounds")
	ErrColumnNotFound   = errors.New("column not found")
	ErrColumnType       = errors.New("column type mismatch")
	ErrColumnLength     = errors.New("column length mismatch")
	ErrInvalidName      = errors.New("invalid name")
	ErrEmptyFrame       = errors.New("frame has no columns")
)

// Store is an on-disk or in-memory container of ordered datasets.
type Store interface {
	// Datasets lists all datasets ordered by name.
	Datasets() ([]DatasetMeta, error)

	// Meta returns the metadata of one dataset, or ErrDatasetNotFound.
	Meta(name string) (DatasetMeta, error)

	// Append adds the frame's rows to the end of the dataset, creating the
	// dataset with the frame's schema if it does not exist yet. Each call
	// produces one physical segment.
	Append(name string, f Frame) error

	// Select reads rows [start, stop) of the dataset. stop is clamped to the
	// row count. An empty columns list selects every column.
	Select(name string, start, stop int64, columns ...string) (Frame, error)

	// Annotate merges attrs into the dataset's attributes.
	Annotate(name string, attrs map[string]string) error

	// Remove deletes a dataset and all of its segments.
	Remove(name string) error

	// Rename moves a dataset to a new name, keeping its ID, segments and
	// attributes. It fails with ErrDatasetExists if to is taken.
	Rename(from, to string) error

	Close() error
}

package index

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"time"

	"chunky/internal/logging"
	"chunky/internal/table"
)

// DefaultWindowSize is the number of rows read per window when
// Config.WindowSize is zero.
const DefaultWindowSize = 1_000_000

// Reader is the part of table.Store that Build needs.
type Reader interface {
	Meta(name string) (table.DatasetMeta, error)
	Select(name string, start, stop int64, columns ...string) (table.Frame, error)
}

type Config struct {
	// Key names the time column the dataset is sorted by.
	Key string

	// WindowSize bounds the rows held in memory at once.
	// Defaults to DefaultWindowSize.
	WindowSize int64

	// Location defines calendar day boundaries. Defaults to UTC.
	Location *time.Location

	// Observer receives per-window callbacks. Nil means none.
	Observer Observer

	// Logger for lifecycle logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Build scans dataset window by window and returns one Entry per calendar
// day that has records, in ascending order. The dataset must be sorted
// ascending by cfg.Key; a decreasing key fails with ErrUnsorted.
//
// A missing dataset fails with table.ErrDatasetNotFound before any rows are
// read. Any read error aborts the scan.
func Build(ctx context.Context, store Reader, dataset string, cfg Config) ([]Entry, error) {
	if cfg.Key == "" {
		return nil, ErrKeyRequired
	}
	cfg.WindowSize = cmp.Or(cfg.WindowSize, DefaultWindowSize)
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	logger := logging.Default(cfg.Logger).With("component", "day-indexer", "dataset", dataset, "key", cfg.Key)

	meta, err := store.Meta(dataset)
	if err != nil {
		return nil, err
	}
	pos := meta.Schema.Index(cfg.Key)
	if pos < 0 {
		return nil, fmt.Errorf("%w: %q in dataset %q", table.ErrColumnNotFound, cfg.Key, meta.Name)
	}
	if meta.Schema[pos].Type != table.TypeTime {
		return nil, fmt.Errorf("%w: %q is %s", ErrKeyNotTime, cfg.Key, meta.Schema[pos].Type)
	}

	windows, err := Partition(meta.Rows, cfg.WindowSize)
	if err != nil {
		return nil, err
	}
	logger.Info("building day index",
		"rows", meta.Rows,
		"window_size", cfg.WindowSize,
		"windows", windows.Remaining(),
		"location", cfg.Location.String())

	s := &dayScanner{loc: cfg.Location, obs: cfg.Observer}
	for w, ok := windows.Next(); ok; w, ok = windows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cfg.Observer.WindowStart(w)

		f, err := store.Select(meta.Name, w.Offset, w.End(), cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("read window %s: %w", w, err)
		}
		col, ok := f.Column(cfg.Key)
		if !ok {
			return nil, fmt.Errorf("read window %s: %w: %q", w, table.ErrColumnNotFound, cfg.Key)
		}
		if int64(len(col.Times)) != w.Size {
			return nil, fmt.Errorf("read window %s: %w: got %d rows", w, ErrShortRead, len(col.Times))
		}
		if err := s.scan(w, col.Times); err != nil {
			return nil, err
		}
	}

	logger.Info("built day index", "days", len(s.entries))
	return s.entries, nil
}

// dayScanner carries day state across windows so that days spanning a
// window boundary produce a single entry.
type dayScanner struct {
	loc     *time.Location
	obs     Observer
	entries []Entry
	started bool
	day     time.Time // midnight of the current day
	last    time.Time // last key value seen
}

func (s *dayScanner) scan(w Window, keys []time.Time) error {
	s.obs.WindowBounds(w, keys[0], keys[len(keys)-1])

	// Every row is compared with its predecessor, whatever the endpoints say.
	for i, ts := range keys {
		offset := w.Offset + int64(i)
		if s.started && ts.Before(s.last) {
			return fmt.Errorf("%w: row %d (%s) precedes row %d (%s)",
				ErrUnsorted, offset, ts.Format(time.RFC3339Nano), offset-1, s.last.Format(time.RFC3339Nano))
		}
		if d := DayOf(ts, s.loc); !s.started || !d.Equal(s.day) {
			e := Entry{Day: d, Offset: offset}
			s.entries = append(s.entries, e)
			s.obs.DayStart(e)
			s.day = d
			s.started = true
		}
		s.last = ts
	}
	return nil
}

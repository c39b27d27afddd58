// Package memory provides an in-memory table.Store. Segments are retained
// as frames; semantics match the file store.
package memory

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"chunky/internal/logging"
	"chunky/internal/table"
)

type Config struct {
	Now func() time.Time

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Store holds datasets in memory.
//
// Logging:
//   - Logger is dependency-injected via Config.Logger
//   - Scoped with component="table-store", type="memory"
//   - Only dataset lifecycle events are logged
type Store struct {
	mu       sync.Mutex
	cfg      Config
	datasets map[string]*dataset
	closed   bool

	logger *slog.Logger
}

type dataset struct {
	meta     table.DatasetMeta
	segments []table.Frame
}

func NewStore(cfg Config) *Store {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		cfg:      cfg,
		datasets: make(map[string]*dataset),
		logger:   logging.Default(cfg.Logger).With("component", "table-store", "type", "memory"),
	}
}

func (s *Store) Datasets() ([]table.DatasetMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, table.ErrStoreClosed
	}
	names := slices.Sorted(maps.Keys(s.datasets))
	out := make([]table.DatasetMeta, 0, len(names))
	for _, name := range names {
		out = append(out, s.datasets[name].meta.Clone())
	}
	return out, nil
}

func (s *Store) Meta(name string) (table.DatasetMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.lookupLocked(name)
	if err != nil {
		return table.DatasetMeta{}, err
	}
	return ds.meta.Clone(), nil
}

func (s *Store) Append(name string, f table.Frame) error {
	clean, err := table.CleanName(name)
	if err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return table.ErrStoreClosed
	}

	ds, ok := s.datasets[clean]
	if !ok {
		ds = &dataset{meta: table.DatasetMeta{
			ID:      table.NewDatasetID(),
			Name:    clean,
			Schema:  f.Schema(),
			Created: s.cfg.Now(),
			Attrs:   map[string]string{},
		}}
		s.datasets[clean] = ds
		s.logger.Info("created dataset", "dataset", clean, "schema", ds.meta.Schema.String())
	} else if !ds.meta.Schema.Equal(f.Schema()) {
		return fmt.Errorf("%w: dataset %q has %s, frame has %s",
			table.ErrSchemaMismatch, clean, ds.meta.Schema, f.Schema())
	}

	if f.Len() == 0 {
		return nil
	}

	// Copy so later mutation of the caller's slices cannot leak in.
	var seg table.Frame
	if err := seg.AppendFrame(f); err != nil {
		return err
	}
	ds.segments = append(ds.segments, seg)
	ds.meta.Rows += int64(seg.Len())
	ds.meta.Segments = len(ds.segments)
	return nil
}

func (s *Store) Select(name string, start, stop int64, columns ...string) (table.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.lookupLocked(name)
	if err != nil {
		return table.Frame{}, err
	}
	stop, err = table.CheckRange(start, stop, ds.meta.Rows)
	if err != nil {
		return table.Frame{}, err
	}
	idx, err := table.ResolveColumns(ds.meta.Schema, columns)
	if err != nil {
		return table.Frame{}, err
	}

	out := table.Frame{Columns: make([]table.Column, len(idx))}
	for i, pos := range idx {
		field := ds.meta.Schema[pos]
		out.Columns[i] = table.NewColumn(field.Name, field.Type, int(stop-start))
	}

	var segStart int64
	for _, seg := range ds.segments {
		segEnd := segStart + int64(seg.Len())
		lo, hi := max(start, segStart), min(stop, segEnd)
		if lo < hi {
			part := seg.Slice(int(lo-segStart), int(hi-segStart))
			for i, pos := range idx {
				if err := out.Columns[i].AppendColumn(part.Columns[pos]); err != nil {
					return table.Frame{}, err
				}
			}
		}
		if segEnd >= stop {
			break
		}
		segStart = segEnd
	}
	return out, nil
}

func (s *Store) Annotate(name string, attrs map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.lookupLocked(name)
	if err != nil {
		return err
	}
	maps.Copy(ds.meta.Attrs, attrs)
	return nil
}

func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.lookupLocked(name)
	if err != nil {
		return err
	}
	delete(s.datasets, ds.meta.Name)
	s.logger.Info("removed dataset", "dataset", ds.meta.Name, "rows", ds.meta.Rows)
	return nil
}

func (s *Store) Rename(from, to string) error {
	clean, err := table.CleanName(to)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.lookupLocked(from)
	if err != nil {
		return err
	}
	old := ds.meta.Name
	if clean == old {
		return nil
	}
	if _, ok := s.datasets[clean]; ok {
		return fmt.Errorf("%w: %q", table.ErrDatasetExists, clean)
	}
	delete(s.datasets, old)
	ds.meta.Name = clean
	s.datasets[clean] = ds
	s.logger.Info("renamed dataset", "dataset", old, "to", clean)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) lookupLocked(name string) (*dataset, error) {
	if s.closed {
		return nil, table.ErrStoreClosed
	}
	clean, err := table.CleanName(name)
	if err != nil {
		return nil, err
	}
	ds, ok := s.datasets[clean]
	if !ok {
		return nil, fmt.Errorf("%w: %q", table.ErrDatasetNotFound, clean)
	}
	return ds, nil
}

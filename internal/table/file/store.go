// Package file provides the on-disk columnar table.Store.
//
// Layout:
//
//	<dir>/
//	  .lock               flock: exclusive for writers, shared for readers
//	  <dataset>/
//	    meta.bin          manifest (schema, segment list, attributes)
//	    000000.seg        one segment per Append
//	    000001.seg
package file

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"chunky/internal/logging"
	"chunky/internal/table"

	"github.com/klauspost/compress/zstd"
)

const (
	lockFileName = ".lock"
	tempPrefix   = ".tmp-"
)

// CompressionType selects the compression algorithm for new segments.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionZstd
)

// ParseCompression maps "none" or "zstd" to a CompressionType.
func ParseCompression(s string) (CompressionType, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q", s)
	}
}

var (
	ErrMissingDir      = errors.New("file store dir is required")
	ErrDirectoryLocked = errors.New("store directory is locked by another process")
)

type Config struct {
	Dir string

	// Create makes the store directory if it does not exist. Without it a
	// missing directory fails with table.ErrStoreUnavailable.
	Create bool

	// ReadOnly takes a shared lock and rejects every mutation.
	ReadOnly bool

	// Compression applies to segments written by this handle. Existing
	// segments are read according to their own header flags.
	Compression CompressionType

	FileMode os.FileMode
	Now      func() time.Time

	// Logger for structured logging. If nil, logging is disabled.
	// The store scopes this logger with component="table-store".
	Logger *slog.Logger
}

// Store is a directory of datasets.
//
// Logging:
//   - Logger is dependency-injected via Config.Logger
//   - Store owns its scoped logger (component="table-store", type="file")
//   - Only lifecycle events are logged (open, create, remove, close)
//   - No logging in Select or segment decoding
type Store struct {
	mu       sync.Mutex
	cfg      Config
	lockFile *os.File
	datasets map[string]*datasetState
	closed   bool
	zstdEnc  *zstd.Encoder // non-nil when compression is enabled

	logger *slog.Logger
}

type datasetState struct {
	dir      string
	manifest manifest
	starts   []int64 // first row of each segment
	rows     int64
}

func (d *datasetState) reindex() {
	d.starts = make([]int64, len(d.manifest.Segments))
	var n int64
	for i, s := range d.manifest.Segments {
		d.starts[i] = n
		n += s.Rows
	}
	d.rows = n
}

// Open opens the store at cfg.Dir and loads every dataset manifest.
func Open(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, ErrMissingDir
	}
	cfg.FileMode = cmp.Or(cfg.FileMode, 0o644)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := logging.Default(cfg.Logger).With("component", "table-store", "type", "file", "dir", cfg.Dir)

	info, err := os.Stat(cfg.Dir)
	switch {
	case errors.Is(err, fs.ErrNotExist) && cfg.Create && !cfg.ReadOnly:
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("%w: %w", table.ErrStoreUnavailable, err)
		}
		logger.Info("created store directory")
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %w", table.ErrStoreUnavailable, cfg.Dir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %s is not a directory", table.ErrStoreUnavailable, cfg.Dir)
	}

	lockFile, err := acquireLock(cfg)
	if err != nil {
		return nil, err
	}

	var zstdEnc *zstd.Encoder
	if cfg.Compression == CompressionZstd && !cfg.ReadOnly {
		zstdEnc, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedBestCompression),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			if lockFile != nil {
				_ = lockFile.Close()
			}
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
	}

	s := &Store{
		cfg:      cfg,
		lockFile: lockFile,
		datasets: make(map[string]*datasetState),
		zstdEnc:  zstdEnc,
		logger:   logger,
	}
	if err := s.loadExisting(); err != nil {
		_ = s.Close()
		return nil, err
	}
	logger.Debug("opened store", "datasets", len(s.datasets), "read_only", cfg.ReadOnly, "locked", lockFile != nil)
	return s, nil
}

// WithStore opens the store, runs fn, and closes the store on every exit
// path. The close error is reported when fn succeeds.
func WithStore(cfg Config, fn func(*Store) error) (err error) {
	s, err := Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

func acquireLock(cfg Config) (*os.File, error) {
	path := filepath.Clean(filepath.Join(cfg.Dir, lockFileName))
	flag, how := os.O_CREATE|os.O_RDWR, syscall.LOCK_EX
	if cfg.ReadOnly {
		flag, how = os.O_RDONLY, syscall.LOCK_SH
	}
	lockFile, err := os.OpenFile(path, flag, cfg.FileMode)
	if cfg.ReadOnly && errors.Is(err, fs.ErrNotExist) {
		// No writer has opened this directory yet. Readers never create
		// the lock file, so a read-only directory stays untouched.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", table.ErrStoreUnavailable, err)
	}
	if err := syscall.Flock(int(lockFile.Fd()), how|syscall.LOCK_NB); err != nil { //nolint:gosec // G115: uintptr->int is safe on 64-bit
		_ = lockFile.Close()
		return nil, fmt.Errorf("%w: %s", ErrDirectoryLocked, cfg.Dir)
	}
	return lockFile, nil
}

func (s *Store) loadExisting() error {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return fmt.Errorf("%w: %w", table.ErrStoreUnavailable, err)
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(s.cfg.Dir, e.Name())
		m, err := loadManifest(dir)
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("skipping directory without manifest", "path", dir)
			continue
		}
		if err != nil {
			return fmt.Errorf("load dataset %q: %w", e.Name(), err)
		}
		if m.Name != e.Name() {
			return fmt.Errorf("load dataset %q: %w: manifest names %q", e.Name(), ErrCorruptManifest, m.Name)
		}
		if !s.cfg.ReadOnly {
			s.removeTempFiles(dir)
		}
		ds := &datasetState{dir: dir, manifest: m}
		ds.reindex()
		s.datasets[m.Name] = ds
	}
	return nil
}

// removeTempFiles deletes leftovers of interrupted segment or manifest writes.
func (s *Store) removeTempFiles(dir string) {
	matches, _ := filepath.Glob(filepath.Join(dir, tempPrefix+"*"))
	for _, p := range matches {
		if err := os.Remove(p); err == nil {
			s.logger.Debug("removed stale temp file", "path", p)
		}
	}
}

func (s *Store) Dir() string {
	return s.cfg.Dir
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
		meta, err := s.datasets[name].manifest.toMeta()
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
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
	return ds.manifest.toMeta()
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
	if err := s.writableLocked(); err != nil {
		return err
	}

	ds, exists := s.datasets[clean]
	if exists && !ds.manifest.schema().Equal(f.Schema()) {
		return fmt.Errorf("%w: dataset %q has %s, frame has %s",
			table.ErrSchemaMismatch, clean, ds.manifest.schema(), f.Schema())
	}
	if !exists {
		ds = &datasetState{
			dir:      filepath.Join(s.cfg.Dir, clean),
			manifest: newManifest(table.NewDatasetID(), clean, f.Schema(), s.cfg.Now()),
		}
		if err := os.MkdirAll(ds.dir, 0o750); err != nil {
			return fmt.Errorf("create dataset dir: %w", err)
		}
	}

	next := ds.manifest.clone()
	var segPath string
	if f.Len() > 0 {
		data, err := encodeSegment(f, s.zstdEnc)
		if err != nil {
			return err
		}
		segName := fmt.Sprintf("%06d.seg", len(next.Segments))
		segPath = filepath.Join(ds.dir, segName)
		if err := writeFileAtomic(segPath, data, s.cfg.FileMode); err != nil {
			return fmt.Errorf("write segment: %w", err)
		}
		next.Segments = append(next.Segments, segmentRef{File: segName, Rows: int64(f.Len())})
	}

	if f.Len() > 0 || !exists {
		if err := writeManifest(ds.dir, next, s.cfg.FileMode); err != nil {
			if segPath != "" {
				_ = os.Remove(segPath)
			}
			if !exists {
				_ = os.RemoveAll(ds.dir)
			}
			return err
		}
	}

	ds.manifest = next
	ds.reindex()
	if !exists {
		s.datasets[clean] = ds
		s.logger.Info("created dataset", "dataset", clean, "schema", f.Schema().String())
	}
	return nil
}

func (s *Store) Select(name string, start, stop int64, columns ...string) (table.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.lookupLocked(name)
	if err != nil {
		return table.Frame{}, err
	}
	stop, err = table.CheckRange(start, stop, ds.rows)
	if err != nil {
		return table.Frame{}, err
	}
	schema := ds.manifest.schema()
	idx, err := table.ResolveColumns(schema, columns)
	if err != nil {
		return table.Frame{}, err
	}

	out := table.Frame{Columns: make([]table.Column, len(idx))}
	for i, pos := range idx {
		out.Columns[i] = table.NewColumn(schema[pos].Name, schema[pos].Type, int(stop-start))
	}
	if start == stop {
		return out, nil
	}

	// First segment whose range ends after start.
	first := sort.Search(len(ds.starts), func(i int) bool {
		return ds.starts[i]+ds.manifest.Segments[i].Rows > start
	})
	for i := first; i < len(ds.starts) && ds.starts[i] < stop; i++ {
		segStart := ds.starts[i]
		ref := ds.manifest.Segments[i]
		lo, hi := max(start, segStart)-segStart, min(stop, segStart+ref.Rows)-segStart
		if err := readSegmentRange(filepath.Join(ds.dir, ref.File), ref.Rows, schema, idx, lo, hi, &out); err != nil {
			return table.Frame{}, fmt.Errorf("dataset %q segment %s: %w", ds.manifest.Name, ref.File, err)
		}
	}
	return out, nil
}

func readSegmentRange(path string, rows int64, schema table.Schema, idx []int, lo, hi int64, out *table.Frame) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	dir, err := readSegmentDir(f, info.Size())
	if err != nil {
		return err
	}
	if dir.rows != rows || len(dir.columns) != len(schema) {
		return fmt.Errorf("%w: segment has %d rows and %d columns, manifest expects %d and %d",
			ErrCorruptSegment, dir.rows, len(dir.columns), rows, len(schema))
	}
	for i, pos := range idx {
		e := dir.columns[pos]
		if e.name != schema[pos].Name || e.typ != schema[pos].Type {
			return fmt.Errorf("%w: column %d is %s:%s, manifest expects %s",
				ErrCorruptSegment, pos, e.name, e.typ, schema[pos].Name)
		}
		col, err := readColumn(f, dir, e, lo, hi)
		if err != nil {
			return err
		}
		if err := out.Columns[i].AppendColumn(col); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Annotate(name string, attrs map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	ds, err := s.lookupLocked(name)
	if err != nil {
		return err
	}
	next := ds.manifest.clone()
	maps.Copy(next.Attrs, attrs)
	if err := writeManifest(ds.dir, next, s.cfg.FileMode); err != nil {
		return err
	}
	ds.manifest = next
	return nil
}

func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	ds, err := s.lookupLocked(name)
	if err != nil {
		return err
	}
	// Drop the manifest first so a partial RemoveAll never leaves a
	// loadable dataset with missing segments.
	if err := os.Remove(filepath.Join(ds.dir, manifestFileName)); err != nil {
		return fmt.Errorf("remove manifest: %w", err)
	}
	if err := os.RemoveAll(ds.dir); err != nil {
		return fmt.Errorf("remove dataset dir: %w", err)
	}
	delete(s.datasets, ds.manifest.Name)
	s.logger.Info("removed dataset", "dataset", ds.manifest.Name, "rows", ds.rows)
	return nil
}

// Rename moves the dataset directory and rewrites its manifest under the
// new name. If the manifest cannot be written the directory is moved back.
func (s *Store) Rename(from, to string) error {
	clean, err := table.CleanName(to)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	ds, err := s.lookupLocked(from)
	if err != nil {
		return err
	}
	old := ds.manifest.Name
	if clean == old {
		return nil
	}
	if _, ok := s.datasets[clean]; ok {
		return fmt.Errorf("%w: %q", table.ErrDatasetExists, clean)
	}

	dir := filepath.Join(s.cfg.Dir, clean)
	if err := os.Rename(ds.dir, dir); err != nil {
		return fmt.Errorf("rename dataset dir: %w", err)
	}
	next := ds.manifest.clone()
	next.Name = clean
	if err := writeManifest(dir, next, s.cfg.FileMode); err != nil {
		if rerr := os.Rename(dir, ds.dir); rerr != nil {
			s.logger.Error("failed to restore dataset dir", "dataset", old, "path", dir, "error", rerr)
		}
		return err
	}

	delete(s.datasets, old)
	ds.dir, ds.manifest = dir, next
	s.datasets[clean] = ds
	s.logger.Info("renamed dataset", "dataset", old, "to", clean)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.zstdEnc != nil {
		_ = s.zstdEnc.Close()
	}
	s.logger.Debug("closing store")
	if s.lockFile == nil {
		return nil
	}
	return s.lockFile.Close()
}

func (s *Store) writableLocked() error {
	if s.closed {
		return table.ErrStoreClosed
	}
	if s.cfg.ReadOnly {
		return table.ErrReadOnly
	}
	return nil
}

func (s *Store) lookupLocked(name string) (*datasetState, error) {
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

package file

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chunky/internal/table"
	"chunky/internal/table/storetest"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(t.TempDir(), "store")
		cfg.Create = true
	}
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.TestStore(t, func(t *testing.T) table.Store {
		return newTestStore(t, Config{})
	})
}

func TestStoreConformanceCompressed(t *testing.T) {
	storetest.TestStore(t, func(t *testing.T) table.Store {
		return newTestStore(t, Config{Compression: CompressionZstd})
	})
}

func TestOpenMissingDirIsUnavailable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nope")
	_, err := Open(Config{Dir: dir})
	if !errors.Is(err, table.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, statErr := os.Stat(dir); !os.IsNotExist(statErr) {
		t.Fatal("open without Create must not create the directory")
	}
}

func TestOpenFileIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medium.h5")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(Config{Dir: path}); !errors.Is(err, table.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestOpenMissingDirConfig(t *testing.T) {
	if _, err := Open(Config{}); !errors.Is(err, ErrMissingDir) {
		t.Fatalf("expected ErrMissingDir, got %v", err)
	}
}

func TestReopenPreservesDatasets(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	created := time.Date(2016, 12, 9, 19, 32, 26, 0, time.UTC)

	s, err := Open(Config{Dir: dir, Create: true, Compression: CompressionZstd, Now: func() time.Time { return created }})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Append("bar", storetest.Rows(0, 10)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append("bar", storetest.Rows(10, 5)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Annotate("bar", map[string]string{"origin": "test"}); err != nil {
		t.Fatalf("annotate: %v", err)
	}
	before, _ := s.Meta("bar")
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopen uncompressed: existing segments keep their own flags.
	s2 := newTestStore(t, Config{Dir: dir})
	after, err := s2.Meta("bar")
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if after.ID != before.ID || after.Rows != 15 || after.Segments != 2 {
		t.Fatalf("unexpected meta after reopen: %+v", after)
	}
	if !after.Created.Equal(created) {
		t.Errorf("expected created %v, got %v", created, after.Created)
	}
	if after.Attrs["origin"] != "test" {
		t.Errorf("attrs lost on reopen: %v", after.Attrs)
	}

	if err := s2.Append("bar", storetest.Rows(15, 5)); err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	f, err := s2.Select("bar", 8, 18)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	storetest.CheckRows(t, f, 8, 10)
}

func TestDirectoryLock(t *testing.T) {
	s := newTestStore(t, Config{})

	if _, err := Open(Config{Dir: s.Dir()}); !errors.Is(err, ErrDirectoryLocked) {
		t.Fatalf("expected ErrDirectoryLocked for second writer, got %v", err)
	}
	if _, err := Open(Config{Dir: s.Dir(), ReadOnly: true}); !errors.Is(err, ErrDirectoryLocked) {
		t.Fatalf("expected ErrDirectoryLocked for reader while writer holds lock, got %v", err)
	}
}

func TestSharedReadLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	err := WithStore(Config{Dir: dir, Create: true}, func(s *Store) error {
		return s.Append("bar", storetest.Rows(0, 3))
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	r1 := newTestStore(t, Config{Dir: dir, ReadOnly: true})
	r2 := newTestStore(t, Config{Dir: dir, ReadOnly: true})

	for _, r := range []*Store{r1, r2} {
		f, err := r.Select("bar", 0, 3)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		storetest.CheckRows(t, f, 0, 3)
	}

	if err := r1.Append("bar", storetest.Rows(3, 1)); !errors.Is(err, table.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if err := r1.Remove("bar"); !errors.Is(err, table.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if err := r1.Annotate("bar", map[string]string{"a": "b"}); !errors.Is(err, table.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if _, err := Open(Config{Dir: dir}); !errors.Is(err, ErrDirectoryLocked) {
		t.Fatalf("expected writer to be blocked by readers, got %v", err)
	}
}

func TestReadOnlyOpenDoesNotCreateLockFile(t *testing.T) {
	tests := []struct {
		name string
		mode os.FileMode
	}{
		{"writable dir", 0o750},
		{"read-only dir", 0o550},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "store")
			if err := os.Mkdir(dir, tt.mode); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
			t.Cleanup(func() { _ = os.Chmod(dir, 0o750) })

			s := newTestStore(t, Config{Dir: dir, ReadOnly: true})
			metas, err := s.Datasets()
			if err != nil {
				t.Fatalf("datasets: %v", err)
			}
			if len(metas) != 0 {
				t.Fatalf("expected no datasets, got %v", metas)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			if _, err := os.Stat(filepath.Join(dir, lockFileName)); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("expected no lock file, got %v", err)
			}

			// A later writer still takes the lock normally.
			if err := os.Chmod(dir, 0o750); err != nil {
				t.Fatalf("chmod: %v", err)
			}
			w := newTestStore(t, Config{Dir: dir})
			if _, err := Open(Config{Dir: dir, ReadOnly: true}); !errors.Is(err, ErrDirectoryLocked) {
				t.Fatalf("expected ErrDirectoryLocked, got %v", err)
			}
			_ = w.Close()
		})
	}
}

func TestRenameSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	err := WithStore(Config{Dir: dir, Create: true}, func(s *Store) error {
		if err := s.Append("bar", storetest.Rows(0, 5)); err != nil {
			return err
		}
		return s.Rename("bar", "baz")
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bar")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected old dataset dir to be gone, got %v", err)
	}

	s := newTestStore(t, Config{Dir: dir, ReadOnly: true})
	if _, err := s.Meta("bar"); !errors.Is(err, table.ErrDatasetNotFound) {
		t.Fatalf("expected ErrDatasetNotFound, got %v", err)
	}
	f, err := s.Select("baz", 0, 5)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	storetest.CheckRows(t, f, 0, 5)
	if err := s.Rename("baz", "bar"); !errors.Is(err, table.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestWithStoreClosesOnError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	boom := errors.New("boom")

	err := WithStore(Config{Dir: dir, Create: true}, func(s *Store) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	// Lock must have been released.
	err = WithStore(Config{Dir: dir}, func(s *Store) error { return nil })
	if err != nil {
		t.Fatalf("reopen after failed fn: %v", err)
	}
}

func TestWithStoreUnavailable(t *testing.T) {
	called := false
	err := WithStore(Config{Dir: filepath.Join(t.TempDir(), "missing")}, func(s *Store) error {
		called = true
		return nil
	})
	if !errors.Is(err, table.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if called {
		t.Fatal("fn must not run when the store cannot be opened")
	}
}

func TestRemoveDeletesFiles(t *testing.T) {
	s := newTestStore(t, Config{})
	if err := s.Append("bar", storetest.Rows(0, 3)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Remove("bar"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "bar")); !os.IsNotExist(err) {
		t.Fatalf("dataset dir should be gone, stat err=%v", err)
	}
}

func TestOpenSkipsDirWithoutManifestAndCleansTemps(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	err := WithStore(Config{Dir: dir, Create: true}, func(s *Store) error {
		return s.Append("bar", storetest.Rows(0, 2))
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "orphan"), 0o750); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(dir, "bar", tempPrefix+"123")
	if err := os.WriteFile(stale, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := newTestStore(t, Config{Dir: dir})
	metas, err := s.Datasets()
	if err != nil {
		t.Fatalf("datasets: %v", err)
	}
	if len(metas) != 1 || metas[0].Name != "bar" {
		t.Fatalf("expected only bar, got %+v", metas)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale temp file should be removed, stat err=%v", err)
	}
}

func TestOpenCorruptManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	err := WithStore(Config{Dir: dir, Create: true}, func(s *Store) error {
		return s.Append("bar", storetest.Rows(0, 2))
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bar", manifestFileName), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(Config{Dir: dir}); !errors.Is(err, ErrCorruptManifest) {
		t.Fatalf("expected ErrCorruptManifest, got %v", err)
	}
}

func TestSelectDetectsTruncatedSegment(t *testing.T) {
	s := newTestStore(t, Config{})
	if err := s.Append("bar", storetest.Rows(0, 4)); err != nil {
		t.Fatalf("append: %v", err)
	}
	seg := filepath.Join(s.Dir(), "bar", "000000.seg")
	if err := os.Truncate(seg, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Select("bar", 0, 4); !errors.Is(err, ErrCorruptSegment) {
		t.Fatalf("expected ErrCorruptSegment, got %v", err)
	}
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]CompressionType{"": CompressionNone, "none": CompressionNone, "ZSTD": CompressionZstd} {
		got, err := ParseCompression(in)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseCompression("lz4"); err == nil {
		t.Error("expected error for lz4")
	}
}

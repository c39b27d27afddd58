package generate

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"chunky/internal/table"
	"chunky/internal/table/file"
	"chunky/internal/table/memory"
)

var (
	start = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)
	stop  = time.Date(2016, 1, 3, 0, 0, 0, 0, time.UTC)
)

func baseConfig() Config {
	return Config{
		Dataset:    "bar",
		Start:      start,
		Stop:       stop,
		ChunkSize:  100,
		MaxRecords: 1000,
		MinDelta:   time.Minute,
		MaxDelta:   10 * time.Minute,
		Seed:       42,
	}
}

func readAll(t *testing.T, s table.Store, name string) table.Frame {
	t.Helper()
	meta, err := s.Meta(name)
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	f, err := s.Select(name, 0, meta.Rows)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	return f
}

func TestRunRespectsMaxRecords(t *testing.T) {
	s := memory.NewStore(memory.Config{})
	cfg := baseConfig()
	cfg.MaxRecords = 250

	stats, err := Run(context.Background(), s, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Rows != 250 || stats.Chunks != 3 {
		t.Fatalf("stats = %+v, want 250 rows in 3 chunks", stats)
	}
	meta, err := s.Meta("bar")
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.Rows != 250 || meta.Segments != 3 {
		t.Fatalf("meta rows=%d segments=%d", meta.Rows, meta.Segments)
	}
	if !meta.Schema.Equal(Schema) {
		t.Fatalf("schema = %s", meta.Schema)
	}
}

func TestRunStopsBeforeStop(t *testing.T) {
	s := memory.NewStore(memory.Config{})
	cfg := baseConfig()
	cfg.MaxRecords = 1_000_000

	stats, err := Run(context.Background(), s, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Two days at no more than ten minutes per step is at least 288 rows.
	if stats.Rows < 288 {
		t.Fatalf("expected at least 288 rows, got %d", stats.Rows)
	}
	if stats.Last.After(stop) {
		t.Fatalf("last record %v is after stop %v", stats.Last, stop)
	}
	if stop.Sub(stats.Last) >= cfg.MaxDelta {
		t.Fatalf("generator stopped early: last %v", stats.Last)
	}
}

func TestRunRecordsAreSortedAndInRange(t *testing.T) {
	s := memory.NewStore(memory.Config{})
	cfg := baseConfig()
	if _, err := Run(context.Background(), s, cfg); err != nil {
		t.Fatalf("run: %v", err)
	}
	f := readAll(t, s, "bar")

	setup, _ := f.Column(ColumnSetup)
	prev := start
	for i, ts := range setup.Times {
		d := ts.Sub(prev)
		if d < cfg.MinDelta || d >= cfg.MaxDelta {
			t.Fatalf("row %d: delta %s outside [%s, %s)", i, d, cfg.MinDelta, cfg.MaxDelta)
		}
		prev = ts
	}

	for _, name := range []string{ColumnX, ColumnY} {
		c, _ := f.Column(name)
		for i, v := range c.Floats {
			if v < 0 || v >= 1 {
				t.Fatalf("%s[%d] = %v outside [0, 1)", name, i, v)
			}
		}
	}
	vocab := map[string][]string{ColumnColour: colours, ColumnFruit: fruit, ColumnAnimal: animals}
	for name, words := range vocab {
		c, _ := f.Column(name)
		for i, v := range c.Strings {
			if !slices.Contains(words, v) {
				t.Fatalf("%s[%d] = %q not in vocabulary", name, i, v)
			}
		}
	}
}

func TestRunDeterministic(t *testing.T) {
	a := memory.NewStore(memory.Config{})
	b := memory.NewStore(memory.Config{})
	if _, err := Run(context.Background(), a, baseConfig()); err != nil {
		t.Fatalf("run a: %v", err)
	}
	if _, err := Run(context.Background(), b, baseConfig()); err != nil {
		t.Fatalf("run b: %v", err)
	}
	fa, fb := readAll(t, a, "bar"), readAll(t, b, "bar")
	if fa.Len() != fb.Len() {
		t.Fatalf("row counts differ: %d vs %d", fa.Len(), fb.Len())
	}
	for i := range fa.Len() {
		if !slices.Equal(fa.Row(i), fb.Row(i)) {
			t.Fatalf("row %d differs: %v vs %v", i, fa.Row(i), fb.Row(i))
		}
	}

	c := memory.NewStore(memory.Config{})
	cfg := baseConfig()
	cfg.Seed = 7
	if _, err := Run(context.Background(), c, cfg); err != nil {
		t.Fatalf("run c: %v", err)
	}
	fc := readAll(t, c, "bar")
	x1, _ := fa.Column(ColumnX)
	x2, _ := fc.Column(ColumnX)
	if slices.Equal(x1.Floats[:10], x2.Floats[:10]) {
		t.Fatal("different seeds produced identical data")
	}
}

func TestRunFixedStep(t *testing.T) {
	s := memory.NewStore(memory.Config{})
	cfg := baseConfig()
	cfg.MinDelta, cfg.MaxDelta = time.Hour, time.Hour

	stats, err := Run(context.Background(), s, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Rows != 48 {
		t.Fatalf("expected 48 hourly rows, got %d", stats.Rows)
	}
	if !stats.First.Equal(start.Add(time.Hour)) || !stats.Last.Equal(stop) {
		t.Fatalf("unexpected bounds %v to %v", stats.First, stats.Last)
	}
}

func TestRunReplacesDataset(t *testing.T) {
	s := memory.NewStore(memory.Config{})
	old := table.NewFrame(table.Int64Column("n", []int64{1, 2, 3}))
	if err := s.Append("bar", old); err != nil {
		t.Fatalf("append: %v", err)
	}
	cfg := baseConfig()
	cfg.MaxRecords = 10
	if _, err := Run(context.Background(), s, cfg); err != nil {
		t.Fatalf("run: %v", err)
	}
	meta, _ := s.Meta("bar")
	if meta.Rows != 10 || !meta.Schema.Equal(Schema) {
		t.Fatalf("dataset not replaced: %+v", meta)
	}
}

func TestRunFirstDeltaPastStop(t *testing.T) {
	s := memory.NewStore(memory.Config{})
	cfg := baseConfig()
	cfg.Stop = start.Add(time.Second)

	stats, err := Run(context.Background(), s, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Rows != 0 {
		t.Fatalf("expected no rows, got %d", stats.Rows)
	}
	meta, err := s.Meta("bar")
	if err != nil {
		t.Fatalf("expected an empty dataset: %v", err)
	}
	if meta.Rows != 0 || !meta.Schema.Equal(Schema) {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestRunFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "medium.d")
	cfg := baseConfig()
	cfg.MaxRecords = 300
	err := file.WithStore(file.Config{Dir: dir, Create: true, Compression: file.CompressionZstd}, func(s *file.Store) error {
		_, err := Run(context.Background(), s, cfg)
		return err
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	err = file.WithStore(file.Config{Dir: dir, ReadOnly: true}, func(s *file.Store) error {
		meta, err := s.Meta("bar")
		if err != nil {
			return err
		}
		if meta.Rows != 300 || meta.Segments != 3 {
			t.Errorf("rows=%d segments=%d", meta.Rows, meta.Segments)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no dataset", func(c *Config) { c.Dataset = "" }},
		{"negative chunk", func(c *Config) { c.ChunkSize = -1 }},
		{"negative max", func(c *Config) { c.MaxRecords = -5 }},
		{"negative delta", func(c *Config) { c.MinDelta = -time.Second }},
		{"inverted deltas", func(c *Config) { c.MinDelta, c.MaxDelta = time.Hour, time.Minute }},
		{"stop before start", func(c *Config) { c.Stop = start.Add(-time.Hour) }},
		{"stop equals start", func(c *Config) { c.Stop = start }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(&cfg)
			s := memory.NewStore(memory.Config{})
			if _, err := Run(context.Background(), s, cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if ds, _ := s.Datasets(); len(ds) != 0 {
				t.Fatalf("invalid config wrote datasets: %v", ds)
			}
		})
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, memory.NewStore(memory.Config{}), baseConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

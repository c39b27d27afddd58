// Package generate fills a dataset with synthetic time-ordered records.
//
// Each record advances a timestamp by a random delta and carries a pair of
// uniform floats and three categorical strings. The output is deterministic
// for a fixed seed, which makes it suitable for reproducible index and
// store benchmarks.
package generate

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"chunky/internal/logging"
	"chunky/internal/table"
)

var ErrInvalidConfig = errors.New("invalid generator config")

// Column names written by Run.
const (
	ColumnSetup  = "setup"
	ColumnX      = "x"
	ColumnY      = "y"
	ColumnColour = "colour"
	ColumnFruit  = "fruit"
	ColumnAnimal = "animal"
)

var (
	colours = []string{"red", "yellow", "green", "blue", "pink", "purple", "orange"}
	fruit   = []string{"apple", "banana", "blackcurrant", "cherry", "grape", "loganberry",
		"kiwi", "orange", "pineapple", "plum", "raspberry", "strawberry"}
	animals = []string{"dog", "cat", "goldfish", "horse", "hamster", "chimpanzee"}
)

// Defaults applied by Run when the corresponding Config field is zero.
const (
	DefaultChunkSize  = 100_000
	DefaultMaxRecords = 1_000_000
	DefaultMinDelta   = 5 * time.Second
	DefaultMaxDelta   = 60 * time.Second
)

// Writer is the part of table.Store that Run needs.
type Writer interface {
	Append(name string, f table.Frame) error
	Remove(name string) error
}

type Config struct {
	Dataset string

	// Start is the base timestamp. The first record is Start plus one delta.
	Start time.Time
	// Stop bounds the generated timestamps; no record is later than Stop.
	Stop time.Time

	// ChunkSize is the number of rows per Append.
	ChunkSize int
	// MaxRecords caps the total number of rows.
	MaxRecords int64

	// Deltas between consecutive records are drawn from [MinDelta, MaxDelta).
	// Equal bounds give a fixed step.
	MinDelta time.Duration
	MaxDelta time.Duration

	Seed uint64

	Logger *slog.Logger
}

// Stats summarizes a generator run.
type Stats struct {
	Rows   int64
	Chunks int
	First  time.Time
	Last   time.Time
}

func (c *Config) applyDefaults() {
	c.ChunkSize = cmp.Or(c.ChunkSize, DefaultChunkSize)
	c.MaxRecords = cmp.Or(c.MaxRecords, DefaultMaxRecords)
	c.MinDelta = cmp.Or(c.MinDelta, DefaultMinDelta)
	c.MaxDelta = cmp.Or(c.MaxDelta, DefaultMaxDelta)
}

func (c Config) validate() error {
	switch {
	case c.Dataset == "":
		return fmt.Errorf("%w: dataset is required", ErrInvalidConfig)
	case c.ChunkSize < 0:
		return fmt.Errorf("%w: chunk size %d", ErrInvalidConfig, c.ChunkSize)
	case c.MaxRecords < 0:
		return fmt.Errorf("%w: max records %d", ErrInvalidConfig, c.MaxRecords)
	case c.MinDelta <= 0 || c.MaxDelta < c.MinDelta:
		return fmt.Errorf("%w: delta range [%s, %s)", ErrInvalidConfig, c.MinDelta, c.MaxDelta)
	case !c.Start.Before(c.Stop):
		return fmt.Errorf("%w: start %s is not before stop %s", ErrInvalidConfig,
			c.Start.Format(time.RFC3339), c.Stop.Format(time.RFC3339))
	}
	return nil
}

// Run replaces cfg.Dataset in store with generated records, one Append per
// chunk. ctx is checked between chunks.
func Run(ctx context.Context, store Writer, cfg Config) (Stats, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Stats{}, err
	}
	logger := logging.Default(cfg.Logger).With("component", "generator", "dataset", cfg.Dataset)

	if err := store.Remove(cfg.Dataset); err != nil {
		if !errors.Is(err, table.ErrDatasetNotFound) {
			return Stats{}, fmt.Errorf("remove %q: %w", cfg.Dataset, err)
		}
		logger.Info("dataset not present, creating")
	}

	g := newGenerator(cfg)
	var stats Stats
	for !g.done {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		f := g.chunk()
		if f.Len() == 0 {
			break
		}
		if err := store.Append(cfg.Dataset, f); err != nil {
			return stats, fmt.Errorf("write chunk %d: %w", stats.Chunks+1, err)
		}
		setup, _ := f.Column(ColumnSetup)
		if stats.Rows == 0 {
			stats.First = setup.Times[0]
		}
		stats.Last = setup.Times[len(setup.Times)-1]
		stats.Rows += int64(f.Len())
		stats.Chunks++
		logger.Info("wrote chunk",
			"chunk", stats.Chunks,
			"first", stats.First.Format(time.RFC3339),
			"last", stats.Last.Format(time.RFC3339),
			"rows", f.Len(),
			"total", stats.Rows)
	}

	// The first delta may already pass Stop. Leave an empty dataset behind
	// so that later steps find it.
	if stats.Rows == 0 {
		if err := store.Append(cfg.Dataset, emptyFrame()); err != nil {
			return stats, fmt.Errorf("create empty dataset: %w", err)
		}
	}
	return stats, nil
}

type generator struct {
	cfg     Config
	rng     *rand.Rand
	current time.Time
	count   int64
	done    bool
}

func newGenerator(cfg Config) *generator {
	return &generator{
		cfg:     cfg,
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		current: cfg.Start,
	}
}

func (g *generator) delta() time.Duration {
	span := g.cfg.MaxDelta - g.cfg.MinDelta
	if span <= 0 {
		return g.cfg.MinDelta
	}
	return g.cfg.MinDelta + time.Duration(g.rng.Int64N(int64(span)))
}

// chunk returns the next block of rows. It sets done once Stop or
// MaxRecords is reached.
func (g *generator) chunk() table.Frame {
	n := int(min(int64(g.cfg.ChunkSize), g.cfg.MaxRecords-g.count))
	setup := make([]time.Time, 0, n)
	for len(setup) < n {
		next := g.current.Add(g.delta())
		if next.After(g.cfg.Stop) {
			g.done = true
			break
		}
		g.current = next
		setup = append(setup, next)
	}
	g.count += int64(len(setup))
	if g.count >= g.cfg.MaxRecords {
		g.done = true
	}

	rows := len(setup)
	x := make([]float64, rows)
	y := make([]float64, rows)
	colour := make([]string, rows)
	fr := make([]string, rows)
	animal := make([]string, rows)
	for i := range rows {
		x[i] = g.rng.Float64()
		y[i] = g.rng.Float64()
		colour[i] = colours[g.rng.IntN(len(colours))]
		fr[i] = fruit[g.rng.IntN(len(fruit))]
		animal[i] = animals[g.rng.IntN(len(animals))]
	}
	return table.NewFrame(
		table.TimeColumn(ColumnSetup, setup),
		table.Float64Column(ColumnX, x),
		table.Float64Column(ColumnY, y),
		table.StringColumn(ColumnColour, colour),
		table.StringColumn(ColumnFruit, fr),
		table.StringColumn(ColumnAnimal, animal),
	)
}

// Schema is the schema of every dataset written by Run.
var Schema = table.Schema{
	{Name: ColumnSetup, Type: table.TypeTime},
	{Name: ColumnX, Type: table.TypeFloat64},
	{Name: ColumnY, Type: table.TypeFloat64},
	{Name: ColumnColour, Type: table.TypeString},
	{Name: ColumnFruit, Type: table.TypeString},
	{Name: ColumnAnimal, Type: table.TypeString},
}

func emptyFrame() table.Frame {
	cols := make([]table.Column, len(Schema))
	for i, f := range Schema {
		cols[i] = table.NewColumn(f.Name, f.Type, 0)
	}
	return table.NewFrame(cols...)
}

package index

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"chunky/internal/table"
)

// Columns of a persisted day index.
const (
	DayColumn    = "day"
	OffsetColumn = "offset"
)

// Attributes recorded on a persisted day index.
const (
	AttrSource     = "index.source"
	AttrSourceID   = "index.source_id"
	AttrSourceRows = "index.source_rows"
	AttrKey        = "index.key"
	AttrLocation   = "index.location"
)

// DefaultName is the index dataset name used when none is given.
func DefaultName(dataset string) string {
	clean, err := table.CleanName(dataset)
	if err != nil {
		clean = dataset
	}
	return clean + "_index"
}

// stagingSuffix names the dataset Save writes before swapping it in.
const stagingSuffix = ".saving"

// Save replaces the dataset name with entries and records which dataset,
// key, and location the index was built from.
//
// The index is written and annotated under a staging name first, so a
// failed write leaves any previous index in place. The swap itself is a
// Remove followed by a Rename: if it is interrupted between the two, the
// new index survives under the staging name and the next Save replaces it.
func Save(store table.Store, name string, source table.DatasetMeta, key string, loc *time.Location, entries []Entry) error {
	clean, err := table.CleanName(name)
	if err != nil {
		return err
	}
	staging := clean + stagingSuffix
	if clean == source.Name || staging == source.Name {
		return fmt.Errorf("%w: index %q would overwrite its source dataset", table.ErrInvalidName, clean)
	}
	if loc == nil {
		loc = time.UTC
	}

	if err := store.Remove(staging); err != nil && !errors.Is(err, table.ErrDatasetNotFound) {
		return fmt.Errorf("remove stale staging index: %w", err)
	}
	if err := writeStaging(store, staging, source, key, loc, entries); err != nil {
		if rerr := store.Remove(staging); rerr != nil && !errors.Is(rerr, table.ErrDatasetNotFound) {
			return errors.Join(err, fmt.Errorf("remove staging index: %w", rerr))
		}
		return err
	}

	if err := store.Remove(clean); err != nil && !errors.Is(err, table.ErrDatasetNotFound) {
		return fmt.Errorf("remove previous index: %w", err)
	}
	if err := store.Rename(staging, clean); err != nil {
		return fmt.Errorf("install index: %w", err)
	}
	return nil
}

func writeStaging(store table.Store, staging string, source table.DatasetMeta, key string, loc *time.Location, entries []Entry) error {
	days := make([]time.Time, len(entries))
	offsets := make([]int64, len(entries))
	for i, e := range entries {
		days[i] = e.Day
		offsets[i] = e.Offset
	}
	frame := table.NewFrame(
		table.TimeColumn(DayColumn, days),
		table.Int64Column(OffsetColumn, offsets),
	)
	if err := store.Append(staging, frame); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := store.Annotate(staging, map[string]string{
		AttrSource:     source.Name,
		AttrSourceID:   source.ID.String(),
		AttrSourceRows: strconv.FormatInt(source.Rows, 10),
		AttrKey:        key,
		AttrLocation:   loc.String(),
	}); err != nil {
		return fmt.Errorf("annotate index: %w", err)
	}
	return nil
}

// DayIndex is a loaded day index.
type DayIndex struct {
	Name       string
	Source     string
	SourceID   table.DatasetID
	SourceRows int64
	Key        string
	Location   *time.Location
	Entries    []Entry
}

// Load reads a day index written by Save.
func Load(store Reader, name string) (*DayIndex, error) {
	meta, err := store.Meta(name)
	if err != nil {
		return nil, err
	}
	want := table.Schema{{Name: DayColumn, Type: table.TypeTime}, {Name: OffsetColumn, Type: table.TypeInt64}}
	if !meta.Schema.Equal(want) {
		return nil, fmt.Errorf("%w: %q has schema %s", ErrNotIndex, meta.Name, meta.Schema)
	}
	for _, k := range []string{AttrSource, AttrSourceID, AttrSourceRows, AttrKey, AttrLocation} {
		if _, ok := meta.Attrs[k]; !ok {
			return nil, fmt.Errorf("%w: %q lacks attribute %s", ErrNotIndex, meta.Name, k)
		}
	}

	idx := &DayIndex{
		Name:   meta.Name,
		Source: meta.Attrs[AttrSource],
		Key:    meta.Attrs[AttrKey],
	}
	if idx.SourceID, err = table.ParseDatasetID(meta.Attrs[AttrSourceID]); err != nil {
		return nil, fmt.Errorf("%w: source id: %w", ErrNotIndex, err)
	}
	if idx.SourceRows, err = strconv.ParseInt(meta.Attrs[AttrSourceRows], 10, 64); err != nil {
		return nil, fmt.Errorf("%w: source rows: %w", ErrNotIndex, err)
	}
	if idx.Location, err = time.LoadLocation(meta.Attrs[AttrLocation]); err != nil {
		return nil, fmt.Errorf("%w: location: %w", ErrNotIndex, err)
	}

	f, err := store.Select(meta.Name, 0, meta.Rows)
	if err != nil {
		return nil, err
	}
	days, _ := f.Column(DayColumn)
	offsets, _ := f.Column(OffsetColumn)
	idx.Entries = make([]Entry, f.Len())
	for i := range idx.Entries {
		idx.Entries[i] = Entry{Day: days.Times[i].In(idx.Location), Offset: offsets.Ints[i]}
	}
	return idx, nil
}

// Check verifies that source is the dataset this index was built from and
// that it has not grown or been regenerated since.
func (d *DayIndex) Check(source table.DatasetMeta) error {
	if source.ID != d.SourceID {
		return fmt.Errorf("%w: built from dataset %s, %q is now %s", ErrStaleIndex, d.SourceID, source.Name, source.ID)
	}
	if source.Rows != d.SourceRows {
		return fmt.Errorf("%w: built over %d rows, %q now has %d", ErrStaleIndex, d.SourceRows, source.Name, source.Rows)
	}
	return nil
}

// Lookup returns the row range [start, stop) of the day containing t.
func (d *DayIndex) Lookup(t time.Time) (start, stop int64, ok bool) {
	target := DayOf(t, d.Location)
	i, found := slices.BinarySearchFunc(d.Entries, target, func(e Entry, t time.Time) int {
		return e.Day.Compare(t)
	})
	if !found {
		return 0, 0, false
	}
	stop = d.SourceRows
	if i+1 < len(d.Entries) {
		stop = d.Entries[i+1].Offset
	}
	return d.Entries[i].Offset, stop, true
}

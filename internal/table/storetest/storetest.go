// Package storetest provides a shared conformance test suite for table.Store
// implementations. Each backend (memory, file) wires this suite to verify it
// satisfies the full Store contract.
package storetest

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"chunky/internal/table"
)

var base = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

// Rows builds a frame of n rows starting at row number first. Timestamps
// advance one minute per row; strings vary in length.
func Rows(first, n int) table.Frame {
	setup := make([]time.Time, n)
	seq := make([]int64, n)
	x := make([]float64, n)
	name := make([]string, n)
	for i := range n {
		row := first + i
		setup[i] = base.Add(time.Duration(row) * time.Minute)
		seq[i] = int64(row)
		x[i] = float64(row) / 4
		name[i] = fmt.Sprintf("row-%d%s", row, strings.Repeat("~", row%3))
	}
	return table.NewFrame(
		table.TimeColumn("setup", setup),
		table.Int64Column("seq", seq),
		table.Float64Column("x", x),
		table.StringColumn("name", name),
	)
}

// CheckRows verifies f holds rows [first, first+n) as produced by Rows.
func CheckRows(t *testing.T, f table.Frame, first, n int) {
	t.Helper()
	if f.Len() != n {
		t.Fatalf("expected %d rows, got %d", n, f.Len())
	}
	want := Rows(first, n)
	for _, wc := range want.Columns {
		gc, ok := f.Column(wc.Name)
		if !ok {
			continue
		}
		for i := range n {
			g, w := gc.Value(i), wc.Value(i)
			if gt, ok := g.(time.Time); ok {
				if !gt.Equal(w.(time.Time)) {
					t.Fatalf("%s[%d]: expected %v, got %v", wc.Name, i, w, g)
				}
				continue
			}
			if g != w {
				t.Fatalf("%s[%d]: expected %v, got %v", wc.Name, i, w, g)
			}
		}
	}
}

// TestStore runs the full conformance suite. newStore must return a fresh,
// empty, writable store for each sub-test.
func TestStore(t *testing.T, newStore func(t *testing.T) table.Store) {
	t.Run("EmptyStore", func(t *testing.T) {
		s := newStore(t)
		metas, err := s.Datasets()
		if err != nil {
			t.Fatalf("Datasets: %v", err)
		}
		if len(metas) != 0 {
			t.Fatalf("expected no datasets, got %d", len(metas))
		}
	})

	t.Run("MetaNotFound", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Meta("bar"); !errors.Is(err, table.ErrDatasetNotFound) {
			t.Fatalf("expected ErrDatasetNotFound, got %v", err)
		}
		if _, err := s.Select("bar", 0, 10); !errors.Is(err, table.ErrDatasetNotFound) {
			t.Fatalf("Select: expected ErrDatasetNotFound, got %v", err)
		}
		if err := s.Remove("bar"); !errors.Is(err, table.ErrDatasetNotFound) {
			t.Fatalf("Remove: expected ErrDatasetNotFound, got %v", err)
		}
		if err := s.Annotate("bar", map[string]string{"k": "v"}); !errors.Is(err, table.ErrDatasetNotFound) {
			t.Fatalf("Annotate: expected ErrDatasetNotFound, got %v", err)
		}
	})

	t.Run("AppendCreatesDataset", func(t *testing.T) {
		s := newStore(t)
		if err := s.Append("/bar", Rows(0, 5)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		meta, err := s.Meta("bar")
		if err != nil {
			t.Fatalf("Meta: %v", err)
		}
		if meta.Name != "bar" {
			t.Errorf("Name: expected bar, got %q", meta.Name)
		}
		if meta.Rows != 5 || meta.Segments != 1 {
			t.Errorf("expected 5 rows in 1 segment, got %d in %d", meta.Rows, meta.Segments)
		}
		if !meta.Schema.Equal(Rows(0, 0).Schema()) {
			t.Errorf("unexpected schema %s", meta.Schema)
		}
		if meta.ID == (table.DatasetID{}) {
			t.Error("expected a dataset ID")
		}
		if meta.Created.IsZero() {
			t.Error("expected a creation time")
		}
	})

	t.Run("SelectAcrossSegments", func(t *testing.T) {
		s := newStore(t)
		for _, r := range [][2]int{{0, 7}, {7, 7}, {14, 11}} {
			if err := s.Append("bar", Rows(r[0], r[1])); err != nil {
				t.Fatalf("Append: %v", err)
			}
		}
		meta, err := s.Meta("bar")
		if err != nil {
			t.Fatalf("Meta: %v", err)
		}
		if meta.Rows != 25 || meta.Segments != 3 {
			t.Fatalf("expected 25 rows in 3 segments, got %d in %d", meta.Rows, meta.Segments)
		}

		for _, r := range [][2]int{{0, 25}, {0, 3}, {5, 10}, {6, 8}, {7, 14}, {13, 22}, {24, 25}, {10, 10}} {
			f, err := s.Select("bar", int64(r[0]), int64(r[1]))
			if err != nil {
				t.Fatalf("Select [%d, %d): %v", r[0], r[1], err)
			}
			CheckRows(t, f, r[0], r[1]-r[0])
		}
	})

	t.Run("SelectClampsStop", func(t *testing.T) {
		s := newStore(t)
		if err := s.Append("bar", Rows(0, 10)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		f, err := s.Select("bar", 8, 100)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		CheckRows(t, f, 8, 2)
	})

	t.Run("SelectOutOfBounds", func(t *testing.T) {
		s := newStore(t)
		if err := s.Append("bar", Rows(0, 10)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		for _, r := range [][2]int64{{-1, 3}, {5, 4}, {11, 20}} {
			if _, err := s.Select("bar", r[0], r[1]); !errors.Is(err, table.ErrRangeOutOfBounds) {
				t.Errorf("Select [%d, %d): expected ErrRangeOutOfBounds, got %v", r[0], r[1], err)
			}
		}
	})

	t.Run("SelectColumns", func(t *testing.T) {
		s := newStore(t)
		if err := s.Append("bar", Rows(0, 6)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := s.Append("bar", Rows(6, 6)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		f, err := s.Select("bar", 4, 9, "name", "setup")
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if len(f.Columns) != 2 || f.Columns[0].Name != "name" || f.Columns[1].Name != "setup" {
			t.Fatalf("unexpected columns %s", f.Schema())
		}
		CheckRows(t, f, 4, 5)

		if _, err := s.Select("bar", 0, 1, "animal"); !errors.Is(err, table.ErrColumnNotFound) {
			t.Fatalf("expected ErrColumnNotFound, got %v", err)
		}
	})

	t.Run("SchemaMismatch", func(t *testing.T) {
		s := newStore(t)
		if err := s.Append("bar", Rows(0, 2)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		other := table.NewFrame(table.Int64Column("setup", []int64{1}))
		if err := s.Append("bar", other); !errors.Is(err, table.ErrSchemaMismatch) {
			t.Fatalf("expected ErrSchemaMismatch, got %v", err)
		}
		meta, err := s.Meta("bar")
		if err != nil {
			t.Fatalf("Meta: %v", err)
		}
		if meta.Rows != 2 {
			t.Fatalf("rejected append must not change row count, got %d", meta.Rows)
		}
	})

	t.Run("InvalidFrame", func(t *testing.T) {
		s := newStore(t)
		if err := s.Append("bar", table.Frame{}); !errors.Is(err, table.ErrEmptyFrame) {
			t.Fatalf("expected ErrEmptyFrame, got %v", err)
		}
		if err := s.Append("a/b", Rows(0, 1)); !errors.Is(err, table.ErrInvalidName) {
			t.Fatalf("expected ErrInvalidName, got %v", err)
		}
	})

	t.Run("EmptyAppendCreatesEmptyDataset", func(t *testing.T) {
		s := newStore(t)
		if err := s.Append("bar", Rows(0, 0)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		meta, err := s.Meta("bar")
		if err != nil {
			t.Fatalf("Meta: %v", err)
		}
		if meta.Rows != 0 || meta.Segments != 0 {
			t.Fatalf("expected empty dataset, got %d rows in %d segments", meta.Rows, meta.Segments)
		}
		f, err := s.Select("bar", 0, 10)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if f.Len() != 0 || len(f.Columns) != 4 {
			t.Fatalf("expected 0 rows with 4 columns, got %d rows, %d columns", f.Len(), len(f.Columns))
		}
	})

	t.Run("AppendCopiesCallerData", func(t *testing.T) {
		s := newStore(t)
		f := Rows(0, 3)
		if err := s.Append("bar", f); err != nil {
			t.Fatalf("Append: %v", err)
		}
		f.Columns[1].Ints[0] = 99
		got, err := s.Select("bar", 0, 3)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		CheckRows(t, got, 0, 3)
	})

	t.Run("AnnotateMerges", func(t *testing.T) {
		s := newStore(t)
		if err := s.Append("bar", Rows(0, 1)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := s.Annotate("bar", map[string]string{"a": "1", "b": "2"}); err != nil {
			t.Fatalf("Annotate: %v", err)
		}
		if err := s.Annotate("bar", map[string]string{"b": "3"}); err != nil {
			t.Fatalf("Annotate: %v", err)
		}
		meta, err := s.Meta("bar")
		if err != nil {
			t.Fatalf("Meta: %v", err)
		}
		if meta.Attrs["a"] != "1" || meta.Attrs["b"] != "3" {
			t.Fatalf("unexpected attrs %v", meta.Attrs)
		}
		meta.Attrs["a"] = "mutated"
		again, _ := s.Meta("bar")
		if again.Attrs["a"] != "1" {
			t.Fatal("Meta must return a copy of the attributes")
		}
	})

	t.Run("RemoveAndRecreate", func(t *testing.T) {
		s := newStore(t)
		if err := s.Append("bar", Rows(0, 4)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		first, _ := s.Meta("bar")
		if err := s.Remove("bar"); err != nil {
			t.Fatalf("Remove: %v", err)
		}
		if _, err := s.Meta("bar"); !errors.Is(err, table.ErrDatasetNotFound) {
			t.Fatalf("expected ErrDatasetNotFound after remove, got %v", err)
		}
		if err := s.Append("bar", Rows(0, 2)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		second, err := s.Meta("bar")
		if err != nil {
			t.Fatalf("Meta: %v", err)
		}
		if second.ID == first.ID {
			t.Error("recreated dataset must get a new ID")
		}
		if second.Rows != 2 {
			t.Errorf("expected 2 rows, got %d", second.Rows)
		}
	})

	t.Run("Rename", func(t *testing.T) {
		s := newStore(t)
		if err := s.Append("bar", Rows(0, 2)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := s.Append("bar", Rows(2, 2)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := s.Annotate("bar", map[string]string{"a": "1"}); err != nil {
			t.Fatalf("Annotate: %v", err)
		}
		if err := s.Append("qux", Rows(0, 1)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		before, _ := s.Meta("bar")

		tests := []struct {
			name     string
			from, to string
			wantErr  error
		}{
			{"missing source", "foo", "baz", table.ErrDatasetNotFound},
			{"target taken", "bar", "qux", table.ErrDatasetExists},
			{"invalid target", "bar", ".hidden", table.ErrInvalidName},
		}
		for _, tt := range tests {
			if err := s.Rename(tt.from, tt.to); !errors.Is(err, tt.wantErr) {
				t.Fatalf("%s: expected %v, got %v", tt.name, tt.wantErr, err)
			}
		}

		if err := s.Rename("bar", "/baz"); err != nil {
			t.Fatalf("Rename: %v", err)
		}
		if _, err := s.Meta("bar"); !errors.Is(err, table.ErrDatasetNotFound) {
			t.Fatalf("expected ErrDatasetNotFound for old name, got %v", err)
		}
		after, err := s.Meta("baz")
		if err != nil {
			t.Fatalf("Meta: %v", err)
		}
		if after.Name != "baz" || after.ID != before.ID || after.Rows != 4 || after.Segments != 2 || after.Attrs["a"] != "1" {
			t.Fatalf("unexpected meta after rename: %+v", after)
		}
		f, err := s.Select("baz", 0, 4)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		CheckRows(t, f, 0, 4)

		metas, err := s.Datasets()
		if err != nil {
			t.Fatalf("Datasets: %v", err)
		}
		var names []string
		for _, m := range metas {
			names = append(names, m.Name)
		}
		if fmt.Sprint(names) != "[baz qux]" {
			t.Fatalf("unexpected datasets %v", names)
		}
	})

	t.Run("DatasetsSortedByName", func(t *testing.T) {
		s := newStore(t)
		for _, name := range []string{"zeta", "alpha", "mid"} {
			if err := s.Append(name, Rows(0, 1)); err != nil {
				t.Fatalf("Append %s: %v", name, err)
			}
		}
		metas, err := s.Datasets()
		if err != nil {
			t.Fatalf("Datasets: %v", err)
		}
		var names []string
		for _, m := range metas {
			names = append(names, m.Name)
		}
		if fmt.Sprint(names) != "[alpha mid zeta]" {
			t.Fatalf("unexpected order %v", names)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		s := newStore(t)
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if _, err := s.Datasets(); !errors.Is(err, table.ErrStoreClosed) {
			t.Fatalf("expected ErrStoreClosed, got %v", err)
		}
		if err := s.Append("bar", Rows(0, 1)); !errors.Is(err, table.ErrStoreClosed) {
			t.Fatalf("expected ErrStoreClosed, got %v", err)
		}
	})
}

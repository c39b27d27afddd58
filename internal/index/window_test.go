package index

import (
	"errors"
	"slices"
	"testing"
)

func collect(t *testing.T, total, size int64) []Window {
	t.Helper()
	it, err := Partition(total, size)
	if err != nil {
		t.Fatalf("partition(%d, %d): %v", total, size, err)
	}
	var out []Window
	for w, ok := it.Next(); ok; w, ok = it.Next() {
		out = append(out, w)
	}
	return out
}

func TestPartitionExamples(t *testing.T) {
	tests := []struct {
		total, size int64
		want        []Window
	}{
		{10, 3, []Window{{0, 3}, {3, 3}, {6, 3}, {9, 1}}},
		{10, 10, []Window{{0, 10}}},
		{10, 20, []Window{{0, 10}}},
		{10, 5, []Window{{0, 5}, {5, 5}}},
		{1, 1, []Window{{0, 1}}},
		{0, 1, nil},
		{0, 1000, nil},
	}
	for _, tt := range tests {
		got := collect(t, tt.total, tt.size)
		if !slices.Equal(got, tt.want) {
			t.Errorf("partition(%d, %d) = %v, want %v", tt.total, tt.size, got, tt.want)
		}
	}
}

func TestPartitionCoversRangeExactly(t *testing.T) {
	for total := int64(0); total <= 50; total++ {
		for size := int64(1); size <= 60; size++ {
			windows := collect(t, total, size)

			var next, sum int64
			for i, w := range windows {
				if w.Offset != next {
					t.Fatalf("partition(%d, %d): window %d starts at %d, expected %d", total, size, i, w.Offset, next)
				}
				if w.Size <= 0 || w.Size > size {
					t.Fatalf("partition(%d, %d): window %d has size %d", total, size, i, w.Size)
				}
				if i < len(windows)-1 && w.Size != size {
					t.Fatalf("partition(%d, %d): only the last window may be short, window %d has %d", total, size, i, w.Size)
				}
				next = w.End()
				sum += w.Size
			}
			if next != total || sum != total {
				t.Fatalf("partition(%d, %d): covered %d rows ending at %d", total, size, sum, next)
			}
			if want := (total + size - 1) / size; int64(len(windows)) != want {
				t.Fatalf("partition(%d, %d): %d windows, expected %d", total, size, len(windows), want)
			}
		}
	}
}

func TestPartitionIsSinglePass(t *testing.T) {
	it, err := Partition(7, 3)
	if err != nil {
		t.Fatal(err)
	}
	if it.Remaining() != 3 {
		t.Fatalf("expected 3 remaining, got %d", it.Remaining())
	}
	for range 3 {
		if !it.HasNext() {
			t.Fatal("expected another window")
		}
		it.Next()
	}
	if it.HasNext() || it.Remaining() != 0 {
		t.Fatal("iterator should be exhausted")
	}
	if w, ok := it.Next(); ok {
		t.Fatalf("exhausted iterator yielded %v", w)
	}
}

func TestPartitionInvalid(t *testing.T) {
	if _, err := Partition(10, 0); !errors.Is(err, ErrInvalidWindowSize) {
		t.Errorf("size 0: expected ErrInvalidWindowSize, got %v", err)
	}
	if _, err := Partition(10, -3); !errors.Is(err, ErrInvalidWindowSize) {
		t.Errorf("size -3: expected ErrInvalidWindowSize, got %v", err)
	}
	if _, err := Partition(-1, 3); !errors.Is(err, ErrNegativeTotal) {
		t.Errorf("total -1: expected ErrNegativeTotal, got %v", err)
	}
}

func TestWindowString(t *testing.T) {
	if s := (Window{Offset: 6, Size: 3}).String(); s != "[6, 9)" {
		t.Errorf("unexpected string %q", s)
	}
}

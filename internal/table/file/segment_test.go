package file

import (
	"bytes"
	"errors"
	"testing"

	"chunky/internal/format"
	"chunky/internal/table"
	"chunky/internal/table/storetest"

	"github.com/klauspost/compress/zstd"
)

func decodeAll(t *testing.T, data []byte, lo, hi int64) table.Frame {
	t.Helper()
	r := bytes.NewReader(data)
	dir, err := readSegmentDir(r, int64(len(data)))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var out table.Frame
	for _, e := range dir.columns {
		c, err := readColumn(r, dir, e, lo, hi)
		if err != nil {
			t.Fatalf("read column %s: %v", e.name, err)
		}
		out.Columns = append(out.Columns, c)
	}
	return out
}

func TestSegmentRoundTrip(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	for name, e := range map[string]*zstd.Encoder{"plain": nil, "zstd": enc} {
		t.Run(name, func(t *testing.T) {
			data, err := encodeSegment(storetest.Rows(100, 9), e)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			h, err := format.Decode(data)
			if err != nil {
				t.Fatalf("decode header: %v", err)
			}
			if compressed := h.Flags&format.FlagCompressed != 0; compressed != (e != nil) {
				t.Fatalf("compressed flag %v, expected %v", compressed, e != nil)
			}
			storetest.CheckRows(t, decodeAll(t, data, 0, 9), 100, 9)
			storetest.CheckRows(t, decodeAll(t, data, 3, 7), 103, 4)
		})
	}
}

func TestSegmentDirectory(t *testing.T) {
	data, err := encodeSegment(storetest.Rows(0, 5), nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dir, err := readSegmentDir(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if dir.rows != 5 || dir.compressed {
		t.Fatalf("unexpected dir: %+v", dir)
	}
	want := storetest.Rows(0, 0).Schema()
	if len(dir.columns) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(dir.columns))
	}
	for i, e := range dir.columns {
		if e.name != want[i].Name || e.typ != want[i].Type {
			t.Errorf("column %d: expected %s:%s, got %s:%s", i, want[i].Name, want[i].Type, e.name, e.typ)
		}
		if e.typ.FixedWidth() && e.length != 5*valueBytes {
			t.Errorf("column %s: expected %d bytes, got %d", e.name, 5*valueBytes, e.length)
		}
	}
}

func TestSegmentPartialFixedRead(t *testing.T) {
	data, err := encodeSegment(storetest.Rows(0, 1000), nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	r := &countingReader{r: bytes.NewReader(data)}
	dir, err := readSegmentDir(r, int64(len(data)))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	r.n = 0
	c, err := readColumn(r, dir, dir.columns[0], 500, 510)
	if err != nil {
		t.Fatalf("read column: %v", err)
	}
	if c.Len() != 10 {
		t.Fatalf("expected 10 values, got %d", c.Len())
	}
	if r.n != 10*valueBytes {
		t.Fatalf("expected to read %d bytes, read %d", 10*valueBytes, r.n)
	}
}

func TestSegmentPartialCompressedRead(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	defer func() { _ = enc.Close() }()

	// 100000 float64 values span four seekable frames.
	data, err := encodeSegment(storetest.Rows(0, 100_000), enc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	r := &countingReader{r: bytes.NewReader(data)}
	dir, err := readSegmentDir(r, int64(len(data)))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	e := dir.columns[2]
	r.n = 0
	c, err := readColumn(r, dir, e, 70_000, 70_010)
	if err != nil {
		t.Fatalf("read column: %v", err)
	}
	if c.Len() != 10 {
		t.Fatalf("expected 10 values, got %d", c.Len())
	}
	for i, v := range c.Floats {
		if want := float64(70_000+i) / 4; v != want {
			t.Fatalf("value %d = %v, want %v", i, v, want)
		}
	}
	if uint64(r.n) >= e.length {
		t.Fatalf("expected a partial read of the %d byte block, read %d", e.length, r.n)
	}
}

func TestSegmentCorruption(t *testing.T) {
	data, err := encodeSegment(storetest.Rows(0, 3), nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if _, err := readSegmentDir(bytes.NewReader(data[:6]), 6); !errors.Is(err, ErrCorruptSegment) {
		t.Errorf("short preamble: expected ErrCorruptSegment, got %v", err)
	}

	bad := bytes.Clone(data)
	bad[1] = format.TypeManifest
	if _, err := readSegmentDir(bytes.NewReader(bad), int64(len(bad))); !errors.Is(err, format.ErrTypeMismatch) {
		t.Errorf("wrong type: expected ErrTypeMismatch, got %v", err)
	}

	truncated := data[:len(data)-4]
	if _, err := readSegmentDir(bytes.NewReader(truncated), int64(len(truncated))); !errors.Is(err, ErrCorruptSegment) {
		t.Errorf("truncated blocks: expected ErrCorruptSegment, got %v", err)
	}
}

type countingReader struct {
	r interface {
		ReadAt(p []byte, off int64) (int, error)
	}
	n int
}

func (c *countingReader) ReadAt(p []byte, off int64) (int, error) {
	n, err := c.r.ReadAt(p, off)
	c.n += n
	return n, err
}

package file

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"chunky/internal/format"
	"chunky/internal/table"

	"github.com/klauspost/compress/zstd"
)

// Segment layout:
//
//	header      4 bytes (format.TypeSegment, flags)
//	rows        u64
//	columns     u16
//	directory   per column: [type u8][nameLen u16][name][offset u64][length u64]
//	blocks      one block per column, at the directory offsets
//
// Fixed-width blocks hold 8 bytes per row, little-endian: Unix nanoseconds
// for time, two's complement for int64, IEEE-754 bits for float64.
// String blocks hold [len u32][bytes] per row.
// With FlagCompressed every non-empty block is a seekable zstd stream.
const (
	segmentVersion = 0x01

	rowsFieldBytes    = 8
	columnsFieldBytes = 2
	entryFixedBytes   = 1 + 2 + 8 + 8
	valueBytes        = 8
	strLenBytes       = 4

	segmentPreamble = format.HeaderSize + rowsFieldBytes + columnsFieldBytes
)

var (
	ErrCorruptSegment = errors.New("corrupt segment")
	ErrTooManyColumns = errors.New("too many columns")
)

type columnEntry struct {
	name   string
	typ    table.ColumnType
	offset uint64
	length uint64
}

type segmentDir struct {
	compressed bool
	rows       int64
	columns    []columnEntry
}

// encodeSegment serializes a validated frame. enc may be nil for an
// uncompressed segment.
func encodeSegment(f table.Frame, enc *zstd.Encoder) ([]byte, error) {
	if len(f.Columns) > math.MaxUint16 {
		return nil, ErrTooManyColumns
	}

	blocks := make([][]byte, len(f.Columns))
	for i, c := range f.Columns {
		block := encodeBlock(c)
		if enc != nil {
			var err error
			if block, err = compressBlock(block, enc); err != nil {
				return nil, fmt.Errorf("compress column %q: %w", c.Name, err)
			}
		}
		blocks[i] = block
	}

	dirSize := 0
	for _, c := range f.Columns {
		if len(c.Name) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: column name too long", table.ErrInvalidName)
		}
		dirSize += entryFixedBytes + len(c.Name)
	}
	total := segmentPreamble + dirSize
	for _, b := range blocks {
		total += len(b)
	}

	var flags byte
	if enc != nil {
		flags |= format.FlagCompressed
	}
	buf := make([]byte, total)
	hdr := format.Header{Type: format.TypeSegment, Version: segmentVersion, Flags: flags}.Encode()
	cursor := copy(buf, hdr[:])
	binary.LittleEndian.PutUint64(buf[cursor:], uint64(f.Len())) //nolint:gosec // G115: row count is non-negative
	cursor += rowsFieldBytes
	binary.LittleEndian.PutUint16(buf[cursor:], uint16(len(f.Columns)))
	cursor += columnsFieldBytes

	blockOffset := uint64(segmentPreamble + dirSize)
	for i, c := range f.Columns {
		buf[cursor] = byte(c.Type)
		cursor++
		binary.LittleEndian.PutUint16(buf[cursor:], uint16(len(c.Name)))
		cursor += 2
		cursor += copy(buf[cursor:], c.Name)
		binary.LittleEndian.PutUint64(buf[cursor:], blockOffset)
		cursor += 8
		binary.LittleEndian.PutUint64(buf[cursor:], uint64(len(blocks[i])))
		cursor += 8
		blockOffset += uint64(len(blocks[i]))
	}
	for _, b := range blocks {
		cursor += copy(buf[cursor:], b)
	}
	return buf, nil
}

func encodeBlock(c table.Column) []byte {
	switch c.Type {
	case table.TypeTime:
		buf := make([]byte, len(c.Times)*valueBytes)
		for i, ts := range c.Times {
			binary.LittleEndian.PutUint64(buf[i*valueBytes:], uint64(ts.UnixNano())) //nolint:gosec // G115: bit pattern round-trips
		}
		return buf
	case table.TypeInt64:
		buf := make([]byte, len(c.Ints)*valueBytes)
		for i, v := range c.Ints {
			binary.LittleEndian.PutUint64(buf[i*valueBytes:], uint64(v)) //nolint:gosec // G115: bit pattern round-trips
		}
		return buf
	case table.TypeFloat64:
		buf := make([]byte, len(c.Floats)*valueBytes)
		for i, v := range c.Floats {
			binary.LittleEndian.PutUint64(buf[i*valueBytes:], math.Float64bits(v))
		}
		return buf
	case table.TypeString:
		size := 0
		for _, s := range c.Strings {
			size += strLenBytes + len(s)
		}
		buf := make([]byte, size)
		cursor := 0
		for _, s := range c.Strings {
			binary.LittleEndian.PutUint32(buf[cursor:], uint32(len(s))) //nolint:gosec // G115: strings are far below 4GB
			cursor += strLenBytes
			cursor += copy(buf[cursor:], s)
		}
		return buf
	default:
		return nil
	}
}

// readSegmentDir parses the header and column directory.
func readSegmentDir(r io.ReaderAt, size int64) (segmentDir, error) {
	br := bufio.NewReader(io.NewSectionReader(r, 0, size))

	var pre [segmentPreamble]byte
	if _, err := io.ReadFull(br, pre[:]); err != nil {
		return segmentDir{}, fmt.Errorf("%w: short preamble", ErrCorruptSegment)
	}
	h, err := format.DecodeAndValidate(pre[:], format.TypeSegment, segmentVersion)
	if err != nil {
		return segmentDir{}, err
	}
	rows := binary.LittleEndian.Uint64(pre[format.HeaderSize:])
	if rows > math.MaxInt64 {
		return segmentDir{}, fmt.Errorf("%w: row count %d", ErrCorruptSegment, rows)
	}
	ncols := binary.LittleEndian.Uint16(pre[format.HeaderSize+rowsFieldBytes:])

	dir := segmentDir{
		compressed: h.Flags&format.FlagCompressed != 0,
		rows:       int64(rows),
		columns:    make([]columnEntry, ncols),
	}
	for i := range dir.columns {
		var typeAndLen [3]byte
		if _, err := io.ReadFull(br, typeAndLen[:]); err != nil {
			return segmentDir{}, fmt.Errorf("%w: short directory", ErrCorruptSegment)
		}
		name := make([]byte, binary.LittleEndian.Uint16(typeAndLen[1:]))
		if _, err := io.ReadFull(br, name); err != nil {
			return segmentDir{}, fmt.Errorf("%w: short column name", ErrCorruptSegment)
		}
		var span [16]byte
		if _, err := io.ReadFull(br, span[:]); err != nil {
			return segmentDir{}, fmt.Errorf("%w: short directory", ErrCorruptSegment)
		}
		e := columnEntry{
			name:   string(name),
			typ:    table.ColumnType(typeAndLen[0]),
			offset: binary.LittleEndian.Uint64(span[0:8]),
			length: binary.LittleEndian.Uint64(span[8:16]),
		}
		if !e.typ.Valid() || e.offset > uint64(size) || e.length > uint64(size)-e.offset { //nolint:gosec // G115: size is a file size
			return segmentDir{}, fmt.Errorf("%w: column %q out of bounds", ErrCorruptSegment, e.name)
		}
		dir.columns[i] = e
	}
	return dir, nil
}

// readColumn reads rows [lo, hi) of one column. Fixed-width blocks are
// read partially: directly when uncompressed, frame by frame otherwise.
// String blocks are read whole.
func readColumn(r io.ReaderAt, dir segmentDir, e columnEntry, lo, hi int64) (table.Column, error) {
	if !e.typ.FixedWidth() {
		block, err := readBlock(r, dir, e)
		if err != nil {
			return table.Column{}, err
		}
		return decodeStrings(e, block, lo, hi)
	}

	want := dir.rows * valueBytes
	buf := make([]byte, (hi-lo)*valueBytes)
	if len(buf) == 0 {
		return decodeFixed(e, buf), nil
	}
	var src io.ReaderAt = r
	base := int64(e.offset) //nolint:gosec // G115: offset checked at parse
	if dir.compressed {
		sr, size, err := openBlock(r, e)
		if err != nil {
			return table.Column{}, err
		}
		defer func() { _ = sr.Close() }()
		if size != want {
			return table.Column{}, fmt.Errorf("%w: column %q length %d", ErrCorruptSegment, e.name, size)
		}
		src, base = sr, 0
	} else if int64(e.length) != want { //nolint:gosec // G115: length checked at parse
		return table.Column{}, fmt.Errorf("%w: column %q length %d", ErrCorruptSegment, e.name, e.length)
	}
	if err := readFullAt(src, buf, base+lo*valueBytes); err != nil {
		return table.Column{}, fmt.Errorf("read column %q: %w", e.name, err)
	}
	return decodeFixed(e, buf), nil
}

func readBlock(r io.ReaderAt, dir segmentDir, e columnEntry) ([]byte, error) {
	if e.length == 0 {
		return nil, nil
	}
	if dir.compressed {
		sr, _, err := openBlock(r, e)
		if err != nil {
			return nil, err
		}
		defer func() { _ = sr.Close() }()
		out, err := io.ReadAll(sr)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress column %q: %w", ErrCorruptSegment, e.name, err)
		}
		return out, nil
	}
	block := make([]byte, e.length)
	if err := readFullAt(r, block, int64(e.offset)); err != nil { //nolint:gosec // G115: offset checked at parse
		return nil, fmt.Errorf("read column %q: %w", e.name, err)
	}
	return block, nil
}

func decodeFixed(e columnEntry, buf []byte) table.Column {
	n := len(buf) / valueBytes
	c := table.NewColumn(e.name, e.typ, n)
	for i := range n {
		v := binary.LittleEndian.Uint64(buf[i*valueBytes:])
		switch e.typ {
		case table.TypeTime:
			c.Times = append(c.Times, time.Unix(0, int64(v)).UTC()) //nolint:gosec // G115: bit pattern round-trips
		case table.TypeInt64:
			c.Ints = append(c.Ints, int64(v)) //nolint:gosec // G115: bit pattern round-trips
		case table.TypeFloat64:
			c.Floats = append(c.Floats, math.Float64frombits(v))
		}
	}
	return c
}

func decodeStrings(e columnEntry, block []byte, lo, hi int64) (table.Column, error) {
	c := table.NewColumn(e.name, e.typ, int(hi-lo))
	cursor := 0
	for row := int64(0); row < hi; row++ {
		if cursor+strLenBytes > len(block) {
			return table.Column{}, fmt.Errorf("%w: column %q truncated at row %d", ErrCorruptSegment, e.name, row)
		}
		l := int(binary.LittleEndian.Uint32(block[cursor:]))
		cursor += strLenBytes
		if l > len(block)-cursor {
			return table.Column{}, fmt.Errorf("%w: column %q truncated at row %d", ErrCorruptSegment, e.name, row)
		}
		if row >= lo {
			c.Strings = append(c.Strings, string(block[cursor:cursor+l]))
		}
		cursor += l
	}
	return c, nil
}

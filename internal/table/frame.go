package table

import (
	"fmt"
)

// Frame is an ordered set of equal-length columns: a batch of rows in
// columnar form.
type Frame struct {
	Columns []Column
}

func NewFrame(columns ...Column) Frame {
	return Frame{Columns: columns}
}

// Len returns the number of rows. Frames are assumed valid; see Validate.
func (f Frame) Len() int {
	if len(f.Columns) == 0 {
		return 0
	}
	return f.Columns[0].Len()
}

func (f Frame) Schema() Schema {
	s := make(Schema, len(f.Columns))
	for i, c := range f.Columns {
		s[i] = c.Field()
	}
	return s
}

// Column returns the named column.
func (f Frame) Column(name string) (Column, bool) {
	for _, c := range f.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Slice returns rows [i, j) of every column.
func (f Frame) Slice(i, j int) Frame {
	out := Frame{Columns: make([]Column, len(f.Columns))}
	for k, c := range f.Columns {
		out.Columns[k] = c.Slice(i, j)
	}
	return out
}

// Validate checks that the frame has at least one column, that names are
// non-empty and unique, types are known, and all columns have equal length.
func (f Frame) Validate() error {
	if len(f.Columns) == 0 {
		return ErrEmptyFrame
	}
	seen := make(map[string]struct{}, len(f.Columns))
	n := f.Columns[0].Len()
	for _, c := range f.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: empty column name", ErrInvalidName)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidName, c.Name)
		}
		seen[c.Name] = struct{}{}
		if !c.Type.Valid() {
			return fmt.Errorf("%w: column %q has %s", ErrColumnType, c.Name, c.Type)
		}
		if c.Len() != n {
			return fmt.Errorf("%w: column %q has %d rows, expected %d",
				ErrColumnLength, c.Name, c.Len(), n)
		}
	}
	return nil
}

// Project returns the named columns in the requested order. An empty list
// returns f unchanged.
func (f Frame) Project(columns ...string) (Frame, error) {
	if len(columns) == 0 {
		return f, nil
	}
	out := Frame{Columns: make([]Column, 0, len(columns))}
	for _, name := range columns {
		c, ok := f.Column(name)
		if !ok {
			return Frame{}, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
		}
		out.Columns = append(out.Columns, c)
	}
	return out, nil
}

// AppendFrame appends other's rows to f. Schemas must be equal.
func (f *Frame) AppendFrame(other Frame) error {
	if len(f.Columns) == 0 {
		f.Columns = make([]Column, len(other.Columns))
		for i, c := range other.Columns {
			f.Columns[i] = NewColumn(c.Name, c.Type, c.Len())
		}
	}
	if !f.Schema().Equal(other.Schema()) {
		return fmt.Errorf("%w: %s vs %s", ErrSchemaMismatch, f.Schema(), other.Schema())
	}
	for i := range f.Columns {
		if err := f.Columns[i].AppendColumn(other.Columns[i]); err != nil {
			return err
		}
	}
	return nil
}

// Row returns row i as untyped values in column order.
func (f Frame) Row(i int) []any {
	row := make([]any, len(f.Columns))
	for k, c := range f.Columns {
		row[k] = c.Value(i)
	}
	return row
}

// ResolveColumns maps requested column names to schema positions. An empty
// request selects every column.
func ResolveColumns(schema Schema, columns []string) ([]int, error) {
	if len(columns) == 0 {
		idx := make([]int, len(schema))
		for i := range schema {
			idx[i] = i
		}
		return idx, nil
	}
	idx := make([]int, len(columns))
	for i, name := range columns {
		pos := schema.Index(name)
		if pos < 0 {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
		}
		idx[i] = pos
	}
	return idx, nil
}

// CheckRange validates a Select range against the dataset length and
// returns the clamped stop.
func CheckRange(start, stop, rows int64) (int64, error) {
	if start < 0 || stop < start {
		return 0, fmt.Errorf("%w: [%d, %d)", ErrRangeOutOfBounds, start, stop)
	}
	stop = min(stop, rows)
	if start > stop {
		return 0, fmt.Errorf("%w: start %d beyond %d rows", ErrRangeOutOfBounds, start, rows)
	}
	return stop, nil
}

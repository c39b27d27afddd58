package table

import (
	"fmt"
	"time"
)

// Column is a named, typed vector of values. Exactly one of the value
// slices is in use, selected by Type.
type Column struct {
	Name    string
	Type    ColumnType
	Times   []time.Time
	Ints    []int64
	Floats  []float64
	Strings []string
}

func TimeColumn(name string, values []time.Time) Column {
	return Column{Name: name, Type: TypeTime, Times: values}
}

func Int64Column(name string, values []int64) Column {
	return Column{Name: name, Type: TypeInt64, Ints: values}
}

func Float64Column(name string, values []float64) Column {
	return Column{Name: name, Type: TypeFloat64, Floats: values}
}

func StringColumn(name string, values []string) Column {
	return Column{Name: name, Type: TypeString, Strings: values}
}

// NewColumn returns an empty column of the given type with room for n values.
func NewColumn(name string, typ ColumnType, n int) Column {
	c := Column{Name: name, Type: typ}
	switch typ {
	case TypeTime:
		c.Times = make([]time.Time, 0, n)
	case TypeInt64:
		c.Ints = make([]int64, 0, n)
	case TypeFloat64:
		c.Floats = make([]float64, 0, n)
	case TypeString:
		c.Strings = make([]string, 0, n)
	}
	return c
}

func (c Column) Field() Field {
	return Field{Name: c.Name, Type: c.Type}
}

func (c Column) Len() int {
	switch c.Type {
	case TypeTime:
		return len(c.Times)
	case TypeInt64:
		return len(c.Ints)
	case TypeFloat64:
		return len(c.Floats)
	case TypeString:
		return len(c.Strings)
	default:
		return 0
	}
}

// Slice returns rows [i, j) of the column. The result shares storage with c.
func (c Column) Slice(i, j int) Column {
	out := Column{Name: c.Name, Type: c.Type}
	switch c.Type {
	case TypeTime:
		out.Times = c.Times[i:j]
	case TypeInt64:
		out.Ints = c.Ints[i:j]
	case TypeFloat64:
		out.Floats = c.Floats[i:j]
	case TypeString:
		out.Strings = c.Strings[i:j]
	}
	return out
}

// Value returns row i as an untyped value.
func (c Column) Value(i int) any {
	switch c.Type {
	case TypeTime:
		return c.Times[i]
	case TypeInt64:
		return c.Ints[i]
	case TypeFloat64:
		return c.Floats[i]
	case TypeString:
		return c.Strings[i]
	default:
		return nil
	}
}

// AppendColumn appends other's values to c. Both columns must have the
// same name and type.
func (c *Column) AppendColumn(other Column) error {
	if c.Type != other.Type || c.Name != other.Name {
		return fmt.Errorf("%w: cannot append %s:%s to %s:%s",
			ErrColumnType, other.Name, other.Type, c.Name, c.Type)
	}
	switch c.Type {
	case TypeTime:
		c.Times = append(c.Times, other.Times...)
	case TypeInt64:
		c.Ints = append(c.Ints, other.Ints...)
	case TypeFloat64:
		c.Floats = append(c.Floats, other.Floats...)
	case TypeString:
		c.Strings = append(c.Strings, other.Strings...)
	}
	return nil
}

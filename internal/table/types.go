package table

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

type DatasetID uuid.UUID

func NewDatasetID() DatasetID {
	return DatasetID(uuid.Must(uuid.NewV7()))
}

func ParseDatasetID(value string) (DatasetID, error) {
	parsed, err := uuid.Parse(value)
	if err != nil {
		return DatasetID{}, err
	}
	return DatasetID(parsed), nil
}

func (id DatasetID) String() string {
	return uuid.UUID(id).String()
}

// ColumnType identifies the element type of a column.
type ColumnType uint8

const (
	TypeTime ColumnType = iota + 1
	TypeInt64
	TypeFloat64
	TypeString
)

func (t ColumnType) String() string {
	switch t {
	case TypeTime:
		return "time"
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the known column types.
func (t ColumnType) Valid() bool {
	return t >= TypeTime && t <= TypeString
}

// FixedWidth reports whether values of this type occupy 8 bytes on disk.
func (t ColumnType) FixedWidth() bool {
	return t == TypeTime || t == TypeInt64 || t == TypeFloat64
}

type Field struct {
	Name string
	Type ColumnType
}

// Schema is the ordered list of a dataset's fields.
type Schema []Field

// Equal reports whether both schemas have the same fields in the same order.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Index returns the position of the named field, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.Name + ":" + f.Type.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// DatasetMeta describes one dataset within a store.
type DatasetMeta struct {
	ID       DatasetID
	Name     string
	Schema   Schema
	Rows     int64
	Segments int
	Created  time.Time
	Attrs    map[string]string
}

// Clone returns a copy that shares no mutable state with m.
func (m DatasetMeta) Clone() DatasetMeta {
	out := m
	out.Schema = append(Schema(nil), m.Schema...)
	out.Attrs = maps.Clone(m.Attrs)
	return out
}

// Package export copies a SQL table into a dataset, one ordered chunk at a
// time, so that arbitrarily large tables can be loaded with bounded memory.
package export

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"chunky/internal/logging"
	"chunky/internal/table"
)

var (
	ErrInvalidConfig     = errors.New("invalid export config")
	ErrUnsupportedDriver = errors.New("unsupported driver")
	ErrQuery             = errors.New("query failed")
	ErrConvert           = errors.New("cannot convert value")
)

// DefaultChunkSize is the number of rows fetched per query.
const DefaultChunkSize = 1000

// Writer is the part of table.Store that Run needs.
type Writer interface {
	Append(name string, f table.Frame) error
	Remove(name string) error
}

type Config struct {
	// Driver selects identifier quoting: DriverMySQL or DriverSQLite.
	Driver string

	// Table is the source table. OrderBy is the column the chunks are
	// ordered by; it must give a total order for LIMIT/OFFSET paging to be
	// stable.
	Table   string
	OrderBy string

	ChunkSize int

	// Dataset is the destination. Defaults to Table.
	Dataset string

	// Append keeps existing rows in Dataset instead of replacing it.
	Append bool

	Logger *slog.Logger
}

// Stats summarizes an export run.
type Stats struct {
	Rows   int64
	Chunks int
	Schema table.Schema
}

// Run copies cfg.Table into cfg.Dataset. Each chunk is appended as soon as
// it is read. Paging stops after the first chunk shorter than ChunkSize.
func Run(ctx context.Context, db *sql.DB, store Writer, cfg Config) (Stats, error) {
	cfg.ChunkSize = cmp.Or(cfg.ChunkSize, DefaultChunkSize)
	cfg.Dataset = cmp.Or(cfg.Dataset, cfg.Table)
	if cfg.Table == "" || cfg.OrderBy == "" {
		return Stats{}, fmt.Errorf("%w: table and order column are required", ErrInvalidConfig)
	}
	if cfg.ChunkSize < 0 {
		return Stats{}, fmt.Errorf("%w: chunk size %d", ErrInvalidConfig, cfg.ChunkSize)
	}
	quote, err := quoter(cfg.Driver)
	if err != nil {
		return Stats{}, err
	}
	logger := logging.Default(cfg.Logger).With("component", "export", "table", cfg.Table, "dataset", cfg.Dataset)

	if !cfg.Append {
		if err := store.Remove(cfg.Dataset); err != nil && !errors.Is(err, table.ErrDatasetNotFound) {
			return Stats{}, fmt.Errorf("remove %q: %w", cfg.Dataset, err)
		}
	}

	stmt := fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT ? OFFSET ?", quote(cfg.Table), quote(cfg.OrderBy))
	var stats Stats
	for offset := int64(0); ; offset += int64(cfg.ChunkSize) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		logger.Debug("reading chunk", "offset", offset, "limit", cfg.ChunkSize)
		f, err := readChunk(ctx, db, stmt, cfg.ChunkSize, offset)
		if err != nil {
			logger.Error("read failed", "offset", offset, "error", err)
			return stats, err
		}
		if stats.Schema == nil {
			stats.Schema = f.Schema()
		}

		// An empty first chunk still creates the dataset with the table's schema.
		if f.Len() > 0 || stats.Chunks == 0 {
			if err := store.Append(cfg.Dataset, f); err != nil {
				return stats, fmt.Errorf("append chunk %d: %w", stats.Chunks+1, err)
			}
			stats.Chunks++
			stats.Rows += int64(f.Len())
			logger.Debug("appended chunk", "chunk", stats.Chunks, "rows", f.Len(), "total", stats.Rows)
		}
		if f.Len() < cfg.ChunkSize {
			break
		}
	}
	logger.Info("export complete", "rows", stats.Rows, "chunks", stats.Chunks)
	return stats, nil
}

func readChunk(ctx context.Context, db *sql.DB, stmt string, limit int, offset int64) (table.Frame, error) {
	rows, err := db.QueryContext(ctx, stmt, limit, offset)
	if err != nil {
		return table.Frame{}, fmt.Errorf("%w: %s: %w", ErrQuery, stmt, err)
	}
	defer func() { _ = rows.Close() }()

	types, err := rows.ColumnTypes()
	if err != nil {
		return table.Frame{}, fmt.Errorf("%w: %s: %w", ErrQuery, stmt, err)
	}
	cols := make([]table.Column, len(types))
	for i, ct := range types {
		cols[i] = table.NewColumn(ct.Name(), MapType(ct.DatabaseTypeName()), limit)
	}

	vals := make([]any, len(types))
	ptrs := make([]any, len(types))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for n := 0; rows.Next(); n++ {
		if err := rows.Scan(ptrs...); err != nil {
			return table.Frame{}, fmt.Errorf("%w: %s: %w", ErrQuery, stmt, err)
		}
		for i, v := range vals {
			if err := appendValue(&cols[i], v); err != nil {
				return table.Frame{}, fmt.Errorf("offset %d column %q: %w", offset+int64(n), cols[i].Name, err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return table.Frame{}, fmt.Errorf("%w: %s: %w", ErrQuery, stmt, err)
	}
	return table.NewFrame(cols...), nil
}

// Column type names by mapped type, after normalizeType.
var (
	intTypes = map[string]bool{
		"INT": true, "INTEGER": true, "TINYINT": true, "SMALLINT": true,
		"MEDIUMINT": true, "BIGINT": true, "BIG INT": true, "INT2": true,
		"INT4": true, "INT8": true, "YEAR": true, "BOOL": true, "BOOLEAN": true,
	}
	floatTypes = map[string]bool{
		"REAL": true, "FLOAT": true, "FLOAT4": true, "FLOAT8": true,
		"DOUBLE": true, "DOUBLE PRECISION": true, "DECIMAL": true,
		"DEC": true, "NUMERIC": true, "FIXED": true,
	}
	timeTypes = map[string]bool{
		"DATE": true, "DATETIME": true, "TIMESTAMP": true,
	}
)

// MapType maps a database column type name to a column type. Names are
// matched whole, ignoring case, a length suffix such as "(10,2)" and the
// UNSIGNED and SIGNED modifiers. Unknown and empty names map to TypeString.
func MapType(dbType string) table.ColumnType {
	t := normalizeType(dbType)
	switch {
	case intTypes[t]:
		return table.TypeInt64
	case floatTypes[t]:
		return table.TypeFloat64
	case timeTypes[t]:
		return table.TypeTime
	default:
		return table.TypeString
	}
}

func normalizeType(dbType string) string {
	t := strings.ToUpper(strings.TrimSpace(dbType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	var words []string
	for _, w := range strings.Fields(t) {
		if w != "UNSIGNED" && w != "SIGNED" {
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}

// Layouts accepted for times delivered as text.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// appendValue appends a scanned value to c. NULL becomes the zero value.
func appendValue(c *table.Column, v any) error {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch c.Type {
	case table.TypeInt64:
		var n int64
		switch x := v.(type) {
		case nil:
		case int64:
			n = x
		case uint64:
			if x > math.MaxInt64 {
				return fmt.Errorf("%w: %d overflows int64", ErrConvert, x)
			}
			n = int64(x)
		case float64:
			n = int64(x)
		case bool:
			if x {
				n = 1
			}
		case string:
			var err error
			if n, err = strconv.ParseInt(x, 10, 64); err != nil {
				return fmt.Errorf("%w: %q as int64", ErrConvert, x)
			}
		default:
			return fmt.Errorf("%w: %T as int64", ErrConvert, v)
		}
		c.Ints = append(c.Ints, n)

	case table.TypeFloat64:
		var f float64
		switch x := v.(type) {
		case nil:
		case float64:
			f = x
		case float32:
			f = float64(x)
		case int64:
			f = float64(x)
		case uint64:
			f = float64(x)
		case string:
			var err error
			if f, err = strconv.ParseFloat(x, 64); err != nil {
				return fmt.Errorf("%w: %q as float64", ErrConvert, x)
			}
		default:
			return fmt.Errorf("%w: %T as float64", ErrConvert, v)
		}
		c.Floats = append(c.Floats, f)

	case table.TypeTime:
		var t time.Time
		switch x := v.(type) {
		case nil:
		case time.Time:
			t = x
		case int64:
			t = time.Unix(x, 0).UTC()
		case string:
			var err error
			if t, err = parseTime(x); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %T as time", ErrConvert, v)
		}
		c.Times = append(c.Times, t)

	default:
		var s string
		switch x := v.(type) {
		case nil:
		case string:
			s = x
		case time.Time:
			s = x.Format(time.RFC3339Nano)
		default:
			s = fmt.Sprint(x)
		}
		c.Strings = append(c.Strings, s)
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q as time", ErrConvert, s)
}

package export

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Connection describes a source database. DSN, when set, is used as is.
type Connection struct {
	Driver   string
	DSN      string
	Host     string
	User     string
	Password string
	Database string
}

// FormatDSN returns the driver-specific data source name. For SQLite the
// database is a file path.
func (c Connection) FormatDSN() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	switch c.Driver {
	case DriverMySQL:
		cfg := mysql.NewConfig()
		cfg.User = c.User
		cfg.Passwd = c.Password
		cfg.Net = "tcp"
		cfg.Addr = c.Host
		if cfg.Addr != "" {
			if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
				cfg.Addr = net.JoinHostPort(cfg.Addr, "3306")
			}
		}
		cfg.DBName = c.Database
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	case DriverSQLite:
		if c.Database == "" {
			return "", fmt.Errorf("%w: sqlite needs a database path", ErrInvalidConfig)
		}
		return c.Database, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, c.Driver)
	}
}

// Redacted returns the DSN with the password masked, for logging.
func (c Connection) Redacted() string {
	dsn, err := c.FormatDSN()
	if err != nil || c.Driver != DriverMySQL {
		return dsn
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "<invalid dsn>"
	}
	if cfg.Passwd != "" {
		cfg.Passwd = "xxxxx"
	}
	return cfg.FormatDSN()
}

// Open opens and pings the database.
func Open(ctx context.Context, c Connection) (*sql.DB, error) {
	dsn, err := c.FormatDSN()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(c.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s %s: %w", c.Driver, c.Redacted(), err)
	}
	return db, nil
}

// quoter returns the identifier quoting function for driver.
func quoter(driver string) (func(string) string, error) {
	switch driver {
	case DriverMySQL:
		return func(id string) string { return quoteWith(id, "`") }, nil
	case DriverSQLite:
		return func(id string) string { return quoteWith(id, `"`) }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// quoteWith quotes a possibly schema-qualified identifier.
func quoteWith(id, q string) string {
	parts := strings.Split(id, ".")
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}

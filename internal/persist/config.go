package persist

import (
	"fmt"
	"time"
)

// Config configures the relational Store: which driver backs it and how its
// connection pool and validation writer behave.
type Config struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"

	// sqlite
	Path string `mapstructure:"path"`

	// postgres
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`

	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`

	// ValidationWriteBuffer bounds the async writer queue.
	ValidationWriteBuffer int `mapstructure:"validation_write_buffer"`
}

func DefaultConfig() *Config {
	return &Config{
		Driver:                "sqlite",
		Path:                  "./data/ledgerd.db",
		SSLMode:               "prefer",
		MaxOpenConns:          8,
		MaxIdleConns:          4,
		QueryTimeout:          10 * time.Second,
		ValidationWriteBuffer: 4096,
	}
}

func (c *Config) Validate() error {
	switch c.Driver {
	case "sqlite":
		if c.Path == "" {
			return fmt.Errorf("persist: sqlite driver requires a path")
		}
	case "postgres":
		if c.Host == "" || c.Database == "" {
			return fmt.Errorf("persist: postgres driver requires host and database")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, c.Driver)
	}
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("persist: max_open_conns must be positive")
	}
	if c.ValidationWriteBuffer <= 0 {
		return fmt.Errorf("persist: validation_write_buffer must be positive")
	}
	return nil
}

func (c *Config) dsn() string {
	switch c.Driver {
	case "sqlite":
		return c.Path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	case "postgres":
		dsn := fmt.Sprintf("host=%s dbname=%s sslmode=%s", c.Host, c.Database, c.SSLMode)
		if c.Port != 0 {
			dsn += fmt.Sprintf(" port=%d", c.Port)
		}
		if c.Username != "" {
			dsn += fmt.Sprintf(" user=%s", c.Username)
		}
		if c.Password != "" {
			dsn += fmt.Sprintf(" password=%s", c.Password)
		}
		return dsn
	default:
		return ""
	}
}

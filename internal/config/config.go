package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jask/vendrecon/internal/database"
	"github.com/jask/vendrecon/internal/ledger"
	"github.com/jask/vendrecon/internal/source"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig          `mapstructure:"database"`
	Catalog   PathConfig              `mapstructure:"catalog"`
	Locations PathConfig              `mapstructure:"locations"`
	Ledger    LedgerConfig            `mapstructure:"ledger"`
	Reports   ReportsConfig           `mapstructure:"reports"`
	Ingest    IngestConfig            `mapstructure:"ingest"`
	Sources   map[string]SourceConfig `mapstructure:"sources"`
	Lock      LockConfig              `mapstructure:"lock"`
	Log       LogConfig               `mapstructure:"log"`
}

// DatabaseConfig selects the ledger store. An empty Driver disables the store.
type DatabaseConfig struct {
	Driver    string `mapstructure:"driver"`
	DSN       string `mapstructure:"dsn"`
	Path      string `mapstructure:"path"`
	BatchSize int    `mapstructure:"batch_size"`
}

// PathConfig points at an input table.
type PathConfig struct {
	Path string `mapstructure:"path"`
}

// LedgerConfig controls the ledger file. An empty Path disables the file.
type LedgerConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

// ReportsConfig holds operator report destinations.
type ReportsConfig struct {
	UnmappedPath string `mapstructure:"unmapped_path"`
}

// IngestConfig holds parsing and dedup settings.
type IngestConfig struct {
	Timezone        string        `mapstructure:"timezone"`
	DedupResolution time.Duration `mapstructure:"dedup_resolution"`
}

// SourceConfig overrides a provider's framing. Nil fields keep the provider default.
type SourceConfig struct {
	SkipRows      *int   `mapstructure:"skip_rows"`
	Delimiter     string `mapstructure:"delimiter"`
	DropZeroValue *bool  `mapstructure:"drop_zero_value"`
}

// LockConfig enables the redis run lock when RedisAddr is set.
type LockConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Key           string        `mapstructure:"key"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"db-driver":        "database.driver",
	"dsn":              "database.dsn",
	"db":               "database.path",
	"batch-size":       "database.batch_size",
	"catalog":          "catalog.path",
	"locations":        "locations.path",
	"ledger":           "ledger.path",
	"ledger-format":    "ledger.format",
	"unmapped-report":  "reports.unmapped_path",
	"timezone":         "ingest.timezone",
	"dedup-resolution": "ingest.dedup_resolution",
	"redis":            "lock.redis_addr",
	"log-level":        "log.level",
	"log-format":       "log.format",
}

func dataDir() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "vendrecon")
}

// Load reads configuration from file, .env, env and flags (highest wins). Env var overrides
// use prefix VENDRECON_. flags may be nil.
func Load(flags *pflag.FlagSet) (Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()

	// default values
	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.path", filepath.Join(dataDir(), "vendrecon.db"))
	v.SetDefault("database.batch_size", 100)
	v.SetDefault("catalog.path", "catalog.csv")
	v.SetDefault("locations.path", "locations.csv")
	v.SetDefault("ledger.path", "")
	v.SetDefault("ledger.format", "")
	v.SetDefault("reports.unmapped_path", "")
	v.SetDefault("ingest.timezone", "Local")
	v.SetDefault("ingest.dedup_resolution", time.Minute)
	v.SetDefault("lock.redis_addr", "")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.key", "vendrecon:ingest")
	v.SetDefault("lock.ttl", 10*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("VENDRECON_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "vendrecon"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("VENDRECON")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// a missing default config file is fine; an explicit or broken one is not
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values that would otherwise fail mid-run.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "", database.DriverSQLite, database.DriverMySQL:
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	if c.Database.Driver == database.DriverMySQL && c.Database.DSN == "" {
		return fmt.Errorf("config: database.dsn is required for mysql")
	}
	if c.Database.BatchSize <= 0 {
		return fmt.Errorf("config: database.batch_size must be positive")
	}
	if c.Ledger.Format != "" {
		if _, err := ledger.ParseFormat(c.Ledger.Format); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if _, err := c.TimeLocation(); err != nil {
		return err
	}
	for name := range c.Sources {
		if _, err := source.ParseSystem(name); err != nil {
			return fmt.Errorf("config: sources: %w", err)
		}
	}
	return nil
}

// ResolvedDSN returns the store DSN, deriving the sqlite one from Path when DSN is unset.
func (d DatabaseConfig) ResolvedDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == database.DriverSQLite && d.Path != "" {
		return database.SQLiteDSN(d.Path)
	}
	return ""
}

// LedgerFormat resolves the ledger format from config or the file extension.
func (l LedgerConfig) LedgerFormat() ledger.Format {
	if f, err := ledger.ParseFormat(l.Format); err == nil && l.Format != "" {
		return f
	}
	return ledger.FormatFor(l.Path)
}

// TimeLocation loads ingest.timezone.
func (c Config) TimeLocation() (*time.Location, error) {
	tz := strings.TrimSpace(c.Ingest.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("config: ingest.timezone: %w", err)
	}
	return loc, nil
}

// SourceOptions builds adapter options for system from the sources table.
func (c Config) SourceOptions(system source.System, loc *time.Location) source.Options {
	opts := source.Options{Location: loc}
	for name, sc := range c.Sources {
		sys, err := source.ParseSystem(name)
		if err != nil || sys != system {
			continue
		}
		opts.SkipRows = sc.SkipRows
		opts.DropZeroValue = sc.DropZeroValue
		switch d := sc.Delimiter; {
		case d == `\t` || strings.EqualFold(d, "tab"):
			opts.Delimiter = '\t'
		case d != "":
			opts.Delimiter = []rune(d)[0]
		}
	}
	return opts
}

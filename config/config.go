/*
Package config loads server configuration from a YAML file, environment
variables and built-in defaults.

PRECEDENCE (highest first):
  1. Environment: VACATION_<KEY> with dots and dashes as underscores,
     e.g. VACATION_DB_DRIVER=sqlite, VACATION_LOG_LEVEL=debug
  2. Config file passed with --config
  3. Defaults below

EXAMPLE:
  http:
    port: 8080
    cors_origins: ["http://localhost:3000"]
  db:
    driver: sqlite            # memory | sqlite | postgres
    dsn: ./vacation.db
    lock_timeout: 5s
  directory:
    file: ./org.yaml
  policies:
    file: ./policies.yaml
  log:
    level: info               # debug | info | warn | error
    format: console           # console | json
    file: ""                  # empty = stderr
  time_types:
    HOUR_4: {multiplier: 0.5}

SEE ALSO:
  - config/logging.go: SetupLogger
  - cmd/server: flag wiring
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

const EnvPrefix = "VACATION"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	HTTP      HTTPConfig                `mapstructure:"http"`
	DB        DBConfig                  `mapstructure:"db"`
	Directory FileConfig                `mapstructure:"directory"`
	Policies  FileConfig                `mapstructure:"policies"`
	Log       LogConfig                 `mapstructure:"log"`
	TimeTypes map[string]TimeTypeConfig `mapstructure:"time_types"`
}

type HTTPConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DBConfig struct {
	Driver      string        `mapstructure:"driver"`
	DSN         string        `mapstructure:"dsn"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

type FileConfig struct {
	File string `mapstructure:"file"`
}

// LogConfig mirrors the lumberjack rotation knobs.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

type TimeTypeConfig struct {
	Multiplier string `mapstructure:"multiplier"`
	WholeDay   bool   `mapstructure:"whole_day"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("db.driver", DriverMemory)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.lock_timeout", "5s")
	v.SetDefault("directory.file", "")
	v.SetDefault("policies.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 7)
	v.SetDefault("log.compress", false)
}

// New returns a viper instance with defaults and environment binding set up.
// Callers may bind cobra flags to it before calling Decode.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (if non-empty) on top of defaults and environment.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return Decode(v)
}

// Decode unmarshals and validates v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.DB.DSN == "" {
			return generic.Invalid("db.dsn", "required for driver %q", c.DB.Driver)
		}
	default:
		return generic.Invalid("db.driver", "unknown driver %q", c.DB.Driver)
	}
	if c.DB.LockTimeout <= 0 {
		return generic.Invalid("db.lock_timeout", "must be positive")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return generic.Invalid("http.port", "out of range: %d", c.HTTP.Port)
	}
	if _, err := c.TimeTypeOverrides(); err != nil {
		return err
	}
	return nil
}

// TimeTypeOverrides converts the time_types section. Viper lower-cases map
// keys, so names are upper-cased back to match vacation.TimeType.
func (c *Config) TimeTypeOverrides() (vacation.TimeTypes, error) {
	if len(c.TimeTypes) == 0 {
		return nil, nil
	}
	out := make(vacation.TimeTypes, len(c.TimeTypes))
	for name, tc := range c.TimeTypes {
		key := "time_types." + name
		m, err := decimal.NewFromString(strings.TrimSpace(tc.Multiplier))
		if err != nil {
			return nil, generic.Invalid(key+".multiplier", "not a decimal: %q", tc.Multiplier)
		}
		if !m.IsPositive() {
			return nil, generic.Invalid(key+".multiplier", "must be positive")
		}
		out[vacation.TimeType(strings.ToUpper(name))] = vacation.TimeTypeRule{Multiplier: m, WholeDay: tc.WholeDay}
	}
	return out, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}

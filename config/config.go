package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultPath is read when CRATE_LEDGER_CONFIG is not set.
	DefaultPath = "config/config.yaml"
	envPrefix   = "CRATE_LEDGER"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	LevelDB LevelDBConfig
	Ledger  LedgerConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	AppLogFile string
	Level      string
}

type LevelDBConfig struct {
	Path string
}

// LedgerConfig holds the optional link repair checks.
type LedgerConfig struct {
	VerifyChildren   bool
	RequireBacklinks bool
	RejectCycles     bool
	MaxWalk          int
}

// Load reads the config file at path (or CRATE_LEDGER_CONFIG, or DefaultPath)
// and applies CRATE_LEDGER_* environment overrides. A missing file is not an
// error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}
	v.SetConfigFile(path)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Log: LogConfig{
			AppLogFile: v.GetString("log.app_log_file"),
			Level:      v.GetString("log.level"),
		},
		LevelDB: LevelDBConfig{
			Path: v.GetString("leveldb.path"),
		},
		Ledger: LedgerConfig{
			VerifyChildren:   v.GetBool("ledger.verify_children"),
			RequireBacklinks: v.GetBool("ledger.require_backlinks"),
			RejectCycles:     v.GetBool("ledger.reject_cycles"),
			MaxWalk:          v.GetInt("ledger.max_walk"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("log.app_log_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("leveldb.path", "data/crates")
	v.SetDefault("ledger.verify_children", true)
	v.SetDefault("ledger.require_backlinks", false)
	v.SetDefault("ledger.reject_cycles", false)
	v.SetDefault("ledger.max_walk", 1024)
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.LevelDB.Path == "" {
		return errors.New("leveldb.path is required")
	}
	if c.Ledger.MaxWalk <= 0 {
		return fmt.Errorf("ledger.max_walk must be positive, got %d", c.Ledger.MaxWalk)
	}
	return nil
}

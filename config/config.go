// Package config loads romfs settings from a config file and the environment.
package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// AppName names the config directory and the environment prefix
const AppName = "romfs"

// Config is the full set of settings
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Source  SourceConfig  `mapstructure:"source"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Extract ExtractConfig `mapstructure:"extract"`
	Mount   MountConfig   `mapstructure:"mount"`
}

// LogConfig controls the logger built by Logger
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// SourceConfig controls how image files are opened
type SourceConfig struct {
	Mmap      bool `mapstructure:"mmap"`
	Serialize bool `mapstructure:"serialize"`
}

// CacheConfig sizes the decoded directory cache; zero disables it
type CacheConfig struct {
	Entries int `mapstructure:"entries"`
}

// ExtractConfig controls the extract command
type ExtractConfig struct {
	Workers int `mapstructure:"workers"`
}

// MountConfig controls FUSE mounts
type MountConfig struct {
	AllowOther bool   `mapstructure:"allowOther"`
	Debug      bool   `mapstructure:"debug"`
	FSName     string `mapstructure:"fsName"`
}

// DefaultConfigPath is the directory searched for romfs.yaml when no
// file is named explicitly.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", AppName)
	}
	return filepath.Join(home, ".config", AppName)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.pretty", false)
	v.SetDefault("source.mmap", true)
	v.SetDefault("source.serialize", false)
	v.SetDefault("cache.entries", 1024)
	v.SetDefault("extract.workers", 4)
	v.SetDefault("mount.allowOther", false)
	v.SetDefault("mount.debug", false)
	v.SetDefault("mount.fsName", AppName)
}

// Load reads the config file at path, or searches the working directory
// and DefaultConfigPath for romfs.yaml when path is empty.
// A missing file is not an error. ROMFS_ environment variables override
// file values, with dots in keys replaced by underscores.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultConfigPath())
	}

	v.SetEnvPrefix(AppName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if cfg.Extract.Workers < 1 {
		cfg.Extract.Workers = 1
	}
	if cfg.Cache.Entries < 0 {
		cfg.Cache.Entries = 0
	}
	return &cfg, nil
}

// Logger builds the logger described by c, writing to w
func (c LogConfig) Logger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return zerolog.Nop(), errors.Wrapf(err, "log level %q", c.Level)
	}
	if c.Pretty {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

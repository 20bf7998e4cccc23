package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "HIKETRACKER"

const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendLog    = "log"
)

type Config struct {
	ListenAddr       string `mapstructure:"listen_addr" validate:"required"`
	MonAddr          string `mapstructure:"mon_addr"`
	DataDir          string `mapstructure:"data_dir" validate:"required"`
	Backend          string `mapstructure:"backend" validate:"oneof=file badger log"`
	MaxBatch         int    `mapstructure:"max_batch" validate:"gt=0"`
	ArchiveCap       int    `mapstructure:"archive_cap" validate:"gt=0"`
	LiveWindow       int    `mapstructure:"live_window" validate:"gt=0"`
	MaxBodyBytes     int64  `mapstructure:"max_body_bytes" validate:"gt=0"`
	UploadRatePerMin int    `mapstructure:"upload_rate_per_min" validate:"gte=0"`
	ProxyProtocol    bool   `mapstructure:"proxy_protocol"`
	LogLevel         string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("mon_addr", "localhost:8081")
	v.SetDefault("data_dir", "tracks")
	v.SetDefault("backend", BackendFile)
	v.SetDefault("max_batch", 5000)
	v.SetDefault("archive_cap", 100000)
	v.SetDefault("live_window", 200)
	v.SetDefault("max_body_bytes", 8<<20)
	v.SetDefault("upload_rate_per_min", 0)
	v.SetDefault("proxy_protocol", false)
	v.SetDefault("log_level", "info")
}

// New returns a viper instance with defaults and environment binding set up.
// Keys can be overridden with HIKETRACKER_<KEY>, e.g. HIKETRACKER_DATA_DIR.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file at path on top of defaults and
// environment, then validates the result.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

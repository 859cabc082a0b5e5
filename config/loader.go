package config

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads and parses the config file, injecting defaults and validating.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "surgecache.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyCacheDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Redis.Addr", "localhost:6379")
	v.SetDefault("Redis.DB", 0)
	v.SetDefault("Rebuild.Workers", 10)
	v.SetDefault("Rebuild.Queue", 256)
	v.SetDefault("Rebuild.Policy", "drop")
	v.SetDefault("Seckill.Mode", "script")
	v.SetDefault("Seckill.LockTTL", "10s")
	v.SetDefault("Seckill.CommitRetries", 3)
	v.SetDefault("Seckill.CommitBackoff", "100ms")
}

func applyCacheDefaults(cfg *Config) {
	for i := range cfg.Caches {
		c := &cfg.Caches[i]
		if c.Strategy == "" {
			c.Strategy = "pass_through"
		}
		if c.TTL.Std() == 0 {
			c.TTL = Duration(30 * time.Minute)
		}
		if c.NullTTL.Std() == 0 {
			c.NullTTL = Duration(2 * time.Minute)
		}
		if c.LogicalTTL.Std() == 0 {
			c.LogicalTTL = Duration(10 * time.Minute)
		}
		if c.LockTTL.Std() == 0 {
			c.LockTTL = Duration(10 * time.Second)
		}
		if c.MaxRetries == 0 {
			c.MaxRetries = 5
		}
		if c.BaseBackoff.Std() == 0 {
			c.BaseBackoff = Duration(50 * time.Millisecond)
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("config: cannot parse duration: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("config: unsupported duration type %T", v)
		}
	}
}

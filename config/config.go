// Package config loads the deployment configuration: which read strategy
// serves each entity namespace, TTL and retry tuning, rebuild pool sizing,
// and which admission path the flash sale runs on. Strategy selection lives
// here, not in request handlers.
package config

import (
	"fmt"
	"time"

	"github.com/unkn0wn-root/surgecache"
)

type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Redis   RedisConfig
	Caches  []CacheConfig
	Rebuild RebuildConfig
	Seckill SeckillConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig tunes one entity namespace.
type CacheConfig struct {
	Namespace   string
	Strategy    string // "pass_through" | "mutex" | "logical"
	TTL         Duration
	NullTTL     Duration
	LogicalTTL  Duration
	LockTTL     Duration
	MaxRetries  int
	BaseBackoff Duration
}

// ReaderStrategy maps the config string onto the reader strategy.
func (c CacheConfig) ReaderStrategy() (surgecache.Strategy, error) {
	switch c.Strategy {
	case "pass_through":
		return surgecache.PassThrough, nil
	case "mutex":
		return surgecache.MutexGuarded, nil
	case "logical":
		return surgecache.LogicalExpire, nil
	default:
		return 0, fmt.Errorf("config: unknown strategy %q for namespace %q", c.Strategy, c.Namespace)
	}
}

type RebuildConfig struct {
	Workers int
	Queue   int
	Policy  string // "drop" | "block"
}

func (c RebuildConfig) OverflowPolicy() (surgecache.OverflowPolicy, error) {
	switch c.Policy {
	case "drop":
		return surgecache.Drop, nil
	case "block":
		return surgecache.Block, nil
	default:
		return 0, fmt.Errorf("config: unknown rebuild policy %q", c.Policy)
	}
}

type SeckillConfig struct {
	Mode          string // "script" | "tx"
	Stream        string // script mode only; "" commits synchronously
	LockTTL       Duration
	CommitRetries int
	CommitBackoff Duration
}

func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis addr is required")
	}
	seen := make(map[string]bool, len(c.Caches))
	for _, cc := range c.Caches {
		if cc.Namespace == "" {
			return fmt.Errorf("config: cache entry without namespace")
		}
		if seen[cc.Namespace] {
			return fmt.Errorf("config: duplicate cache namespace %q", cc.Namespace)
		}
		seen[cc.Namespace] = true
		if _, err := cc.ReaderStrategy(); err != nil {
			return err
		}
	}
	if _, err := c.Rebuild.OverflowPolicy(); err != nil {
		return err
	}
	if c.Seckill.Mode != "script" && c.Seckill.Mode != "tx" {
		return fmt.Errorf("config: unknown seckill mode %q", c.Seckill.Mode)
	}
	return nil
}

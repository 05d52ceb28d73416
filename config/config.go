// Package config loads cache.Config from files and environment variables.
//
// Keys match the mapstructure tags of cache.Config. Every key can be
// overridden with an environment variable named CCACHE_<KEY>, e.g.
// CCACHE_MAX_SIZE=10000 or CCACHE_LOCK_TIMEOUT=2s.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/IvanBrykalov/ccache/cache"
)

// EnvPrefix is the prefix of environment variables read by Load and NewViper.
const EnvPrefix = "CCACHE"

// Configuration keys.
const (
	KeyMaxSize        = "max_size"
	KeyBuckets        = "buckets"
	KeyItemsToPrune   = "items_to_prune"
	KeyDeleteBuffer   = "delete_buffer"
	KeyPromoteBuffer  = "promote_buffer"
	KeyGetsPerPromote = "gets_per_promote"
	KeyAlwaysEvict    = "always_evict"
	KeyLockTimeout    = "lock_timeout"
)

// ErrInvalidValue is wrapped by validation errors; the message names the key.
var ErrInvalidValue = errors.New("invalid value")

// NewViper returns a viper instance with cache defaults registered and
// CCACHE_* environment variables enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	return v
}

// SetDefaults registers cache.DefaultConfig under the configuration keys.
// Registering every key also makes viper consult the environment for it.
func SetDefaults(v *viper.Viper) {
	d := cache.DefaultConfig()
	v.SetDefault(KeyMaxSize, d.MaxSize)
	v.SetDefault(KeyBuckets, d.Buckets)
	v.SetDefault(KeyItemsToPrune, d.ItemsToPrune)
	v.SetDefault(KeyDeleteBuffer, d.DeleteBuffer)
	v.SetDefault(KeyPromoteBuffer, d.PromoteBuffer)
	v.SetDefault(KeyGetsPerPromote, d.GetsPerPromote)
	v.SetDefault(KeyAlwaysEvict, d.AlwaysEvict)
	v.SetDefault(KeyLockTimeout, d.LockTimeout)
}

// Load reads a cache.Config from path (YAML, JSON or TOML, chosen by
// extension) with environment overrides. An empty path reads defaults and
// environment only.
func Load(path string) (cache.Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cache.Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates a cache.Config from v. Durations may be
// given as strings ("250ms"). Pass v.Sub("cache") to read a nested section.
func FromViper(v *viper.Viper) (cache.Config, error) {
	var cfg cache.Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return cache.Config{}, fmt.Errorf("decode cache config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cache.Config{}, err
	}
	return cfg, nil
}

// Validate rejects values New would otherwise silently replace with defaults.
func Validate(cfg cache.Config) error {
	nonNegative := []struct {
		key string
		val int64
	}{
		{KeyMaxSize, cfg.MaxSize},
		{KeyBuckets, int64(cfg.Buckets)},
		{KeyDeleteBuffer, int64(cfg.DeleteBuffer)},
		{KeyPromoteBuffer, int64(cfg.PromoteBuffer)},
		{KeyGetsPerPromote, int64(cfg.GetsPerPromote)},
		{KeyLockTimeout, int64(cfg.LockTimeout)},
	}
	for _, f := range nonNegative {
		if f.val < 0 {
			return wrapKeyErr(f.key, fmt.Errorf("%w: must be non-negative, got %d", ErrInvalidValue, f.val))
		}
	}
	if cfg.ItemsToPrune <= 0 {
		return wrapKeyErr(KeyItemsToPrune, fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, cfg.ItemsToPrune))
	}
	return nil
}

func wrapKeyErr(key string, err error) error {
	return fmt.Errorf("%s: %w", key, err)
}

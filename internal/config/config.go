// Package config loads cache settings from YAML and turns them into
// cache.Options.
package config

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jmgilman/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/IvanBrykalov/instancecache/cache"
	"github.com/IvanBrykalov/instancecache/policy"
	"github.com/IvanBrykalov/instancecache/policy/lru"
	"github.com/IvanBrykalov/instancecache/policy/twoq"
)

// Eviction policy names accepted in Config.Policy.
const (
	PolicyLRU = "lru"
	Policy2Q  = "2q"
)

// Config is the on-disk shape of a cache definition:
//
//	name: beans
//	capacity: 1000
//	policy: 2q
//	ghost_capacity: 500
//	lock_timeout: 250ms
//	sweep_interval: 1s
//	metrics:
//	  namespace: app
//	  subsystem: beans
//	  addr: ":8080"
type Config struct {
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity"`
	Buckets  int    `yaml:"buckets"`

	// Policy is "lru" (default) or "2q".
	Policy string `yaml:"policy"`
	// GhostCapacity bounds the 2Q ghost list; 0 means Capacity/2.
	GhostCapacity int `yaml:"ghost_capacity"`

	LockTimeout   time.Duration `yaml:"lock_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	Metrics Metrics `yaml:"metrics"`
}

// Metrics configures the Prometheus exporter.
type Metrics struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
	// Addr serves /metrics when non-empty.
	Addr string `yaml:"addr"`
}

// Default returns the configuration used for fields a file leaves out.
func Default() Config {
	return Config{
		Name:     "instances",
		Capacity: 1000,
		Policy:   PolicyLRU,
		Metrics:  Metrics{Namespace: "instancecache"},
	}
}

// Load reads and validates the YAML file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, errors.CodeInvalidConfig, "open config %s", path)
	}
	defer f.Close()
	return Decode(f)
}

// Parse decodes and validates YAML bytes.
func Parse(data []byte) (Config, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads YAML from r on top of Default and validates the result.
// Unknown keys are rejected.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(err, errors.CodeInvalidConfig, "decode config")
	}
	cfg.Policy = strings.ToLower(strings.TrimSpace(cfg.Policy))
	if cfg.Policy == "" {
		cfg.Policy = PolicyLRU
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return errors.Newf(errors.CodeInvalidConfig, "capacity must be > 0 (got %d)", c.Capacity)
	case c.Buckets < 0:
		return errors.Newf(errors.CodeInvalidConfig, "buckets must be >= 0 (got %d)", c.Buckets)
	case c.Policy != PolicyLRU && c.Policy != Policy2Q:
		return errors.Newf(errors.CodeInvalidConfig, "unknown policy %q (use %s or %s)", c.Policy, PolicyLRU, Policy2Q)
	case c.GhostCapacity < 0:
		return errors.Newf(errors.CodeInvalidConfig, "ghost_capacity must be >= 0 (got %d)", c.GhostCapacity)
	case c.LockTimeout < 0:
		return errors.Newf(errors.CodeInvalidConfig, "lock_timeout must be >= 0 (got %s)", c.LockTimeout)
	case c.SweepInterval < 0:
		return errors.Newf(errors.CodeInvalidConfig, "sweep_interval must be >= 0 (got %s)", c.SweepInterval)
	}
	return nil
}

// Strategy builds the eviction strategy named by c.Policy.
func Strategy[K comparable](c Config) policy.Strategy[K] {
	if c.Policy == Policy2Q {
		ghosts := c.GhostCapacity
		if ghosts == 0 {
			ghosts = c.Capacity / 2
		}
		return twoq.New[K](ghosts)
	}
	return lru.New[K]()
}

// Options turns c into cache.Options. The discard strategy is not part of
// the file and must be supplied; Metrics, Logger and Loader are left for the
// caller to fill in.
func Options[K comparable, V any](c Config, d cache.DiscardStrategy[K, V]) cache.Options[K, V] {
	return cache.Options[K, V]{
		Name:          c.Name,
		Capacity:      c.Capacity,
		Buckets:       c.Buckets,
		Eviction:      Strategy[K](c),
		Discard:       d,
		LockTimeout:   c.LockTimeout,
		SweepInterval: c.SweepInterval,
	}
}

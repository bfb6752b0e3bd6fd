// Package config holds the deployment configuration read once at process
// start and handed to the engine, the registry and the stores.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/adjutant-go/adjutant/action"
	"github.com/adjutant-go/adjutant/engine"
	"github.com/adjutant-go/adjutant/notify"
	"github.com/adjutant-go/adjutant/quota"
	"github.com/adjutant-go/adjutant/registry"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory = "memory"
	DriverSqlite = "sqlite"
	DriverMySQL  = "mysql"
)

type Config struct {
	Engine EngineConfig `yaml:"engine"`

	// Actions overrides the default settings of action kinds.
	Actions map[action.Kind]map[string]any `yaml:"actions"`

	Quota quota.Config `yaml:"quota"`

	// Templates are the message templates by name.
	Templates map[string]notify.Template `yaml:"templates"`

	Store StoreConfig `yaml:"store"`

	Identity IdentityConfig `yaml:"identity"`
}

type EngineConfig struct {
	TokenTTL time.Duration `yaml:"token_ttl"`

	DefaultTask engine.TaskSettings            `yaml:"default_task"`
	TaskTypes   map[string]engine.TaskSettings `yaml:"task_types"`

	// DefaultRecipients receive messages of task types without recipients.
	DefaultRecipients []string `yaml:"default_recipients"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`

	// Path is the sqlite database file.
	Path string `yaml:"path"`

	MySQL MySQLConfig `yaml:"mysql"`

	// Redis moves tokens into redis when set.
	Redis *RedisConfig `yaml:"redis"`

	ApplyMigrations bool `yaml:"apply_migrations"`
}

type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`

	// ExpirationGrace keeps expired tokens around so they can be reported.
	ExpirationGrace time.Duration `yaml:"expiration_grace"`
}

type IdentityConfig struct {
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			TokenTTL: engine.DefaultOptions.TokenTTL,
		},
		Store: StoreConfig{
			Driver:          DriverSqlite,
			Path:            "adjutant.db",
			ApplyMigrations: true,
		},
		Identity: IdentityConfig{
			CacheSize: 1000,
			CacheTTL:  time.Minute,
		},
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return Parse(b)
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
func Parse(b []byte) (*Config, error) {
	c := Default()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return c, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Engine.TokenTTL <= 0 {
		errs = append(errs, errors.New("engine: token_ttl must be positive"))
	}

	if err := c.Quota.Validate(); err != nil {
		errs = append(errs, err)
	}

	for taskType, s := range c.Engine.TaskTypes {
		for _, t := range s.Templates {
			if _, ok := c.Templates[t]; !ok {
				errs = append(errs, fmt.Errorf("engine: task type %q sends unknown template %q", taskType, t))
			}
		}
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSqlite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store: sqlite needs a path"))
		}
	case DriverMySQL:
		if c.Store.MySQL.Host == "" || c.Store.MySQL.Database == "" {
			errs = append(errs, errors.New("store: mysql needs host and database"))
		}
	default:
		errs = append(errs, fmt.Errorf("store: unknown driver %q", c.Store.Driver))
	}

	if c.Store.Redis != nil && c.Store.Redis.Addr == "" {
		errs = append(errs, errors.New("store: redis needs an address"))
	}

	return errors.Join(errs...)
}

// Configure applies the action overrides to r.
func (c *Config) Configure(r *registry.Registry) error {
	if len(c.Actions) == 0 {
		return nil
	}

	return r.Configure(c.Actions)
}

// EngineOptions translates the engine section.
func (c *Config) EngineOptions() []engine.EngineOption {
	opts := []engine.EngineOption{
		engine.WithTokenTTL(c.Engine.TokenTTL),
		engine.WithDefaultTaskSettings(c.Engine.DefaultTask),
	}

	for taskType, s := range c.Engine.TaskTypes {
		opts = append(opts, engine.WithTaskSettings(taskType, s))
	}

	return opts
}

// NotifyOptions translates the settings the template dispatcher needs.
func (c *Config) NotifyOptions() []notify.Option {
	if len(c.Engine.DefaultRecipients) == 0 {
		return nil
	}

	return []notify.Option{notify.WithDefaultRecipients(c.Engine.DefaultRecipients...)}
}

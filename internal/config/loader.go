package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "PROTONATE"

// Sentinel errors wrapped by Load so callers can tell the failure apart.
var (
	ErrConfigFileNotFound = stderrors.New("config file not found")
	ErrConfigParse        = stderrors.New("config file could not be parsed")
	ErrConfigValidation   = stderrors.New("config validation failed")
)

// envKeys lists the keys bound to environment variables even when absent
// from the file.  viper's AutomaticEnv only resolves keys it already knows.
var envKeys = []string{
	"engine.base_dir", "engine.executable", "engine.dictionary", "engine.timeout",
	"engine.work_dir", "engine.keep_files", "engine.flip", "engine.his",
	"engine.cache.enabled", "engine.cache.ttl", "engine.cache.prefix",
	"reconcile.max_bond_distance",
	"log.level", "log.format",
	"server.port", "server.mode", "server.cors_origins", "server.rate_limit", "server.rate_burst",
	"metrics.enabled", "metrics.namespace", "metrics.path",
	"redis.addr", "redis.password", "redis.db",
	"minio.endpoint", "minio.access_key", "minio.secret_key", "minio.use_ssl", "minio.bucket",
	"kafka.brokers", "kafka.group_id",
	"kafka.topics.requested", "kafka.topics.completed", "kafka.topics.notification",
	"postgres.enabled", "postgres.host", "postgres.port", "postgres.user",
	"postgres.password", "postgres.db_name", "postgres.ssl_mode", "postgres.migration_path",
	"worker.concurrency", "worker.max_retries", "worker.health_port",
}

// newViper builds a pre-configured Viper instance: YAML file type,
// PROTONATE_ env prefix, automatic env binding, and a "." → "_" key
// replacer so that "engine.base_dir" resolves to PROTONATE_ENGINE_BASE_DIR.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads the YAML file at configPath, merges PROTONATE_* environment
// overrides, applies defaults for unset fields, and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := readConfig(v, configPath); err != nil {
		return nil, err
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from PROTONATE_* environment variables alone.
//
//	PROTONATE_<SECTION>_<FIELD>   e.g.  PROTONATE_ENGINE_BASE_DIR, PROTONATE_REDIS_ADDR
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// LoadOrEnv loads configPath when it is set and falls back to the
// environment otherwise.
func LoadOrEnv(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	return Load(configPath)
}

func readConfig(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if stderrors.As(err, &notFound) || stderrors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: %w: %q", ErrConfigFileNotFound, configPath)
		}
		return fmt.Errorf("config: %w: %q: %v", ErrConfigParse, configPath, err)
	}
	return nil
}

// unmarshalAndFinalize unmarshals viper state into a Config struct, applies
// defaults, and validates the result.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w: %v", ErrConfigParse, err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}

	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the re-parsed Config
// whenever the file changes.  Only settings that are safe to swap at run time
// (log level, engine defaults) should be applied by the callback.
//
// Watch is non-blocking; viper owns the fsnotify goroutine.  A change that
// fails to parse or validate is reported through onError and onChange is not
// called.
func Watch(configPath string, onChange func(*Config), onError func(error)) error {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := readConfig(v, configPath); err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// MustLoad is a convenience wrapper around Load that panics on any error.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

//Personal.AI order the ending

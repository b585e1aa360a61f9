package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	DefaultStorePath        = "pledge.db"
	DefaultStoreLockTimeout = "5s"
	DefaultStoreLockRetry   = "50ms"
	DefaultLogLevel         = "info"
	DefaultRegistrar        = "registrar"
	DefaultSweeperSchedule  = "*/5 * * * *"
	DefaultSweeperIdentity  = "sweeper"

	// DefaultConfigFile is read from the working directory when --config
	// is not given.
	DefaultConfigFile = "pledge.yaml"

	envPrefix = "PLEDGE_"
)

type Config struct {
	Store     StoreConfig   `koanf:"store"`
	Log       LogConfig     `koanf:"log"`
	Identity  string        `koanf:"identity"`
	Registrar string        `koanf:"registrar"`
	Sweeper   SweeperConfig `koanf:"sweeper"`
}

type StoreConfig struct {
	Path        string `koanf:"path"`
	LockTimeout string `koanf:"lock_timeout"`
	LockRetry   string `koanf:"lock_retry"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type SweeperConfig struct {
	Schedule string `koanf:"schedule"`
	Identity string `koanf:"identity"`
}

// flagKeys maps command-line flag names to config keys. Flags not listed
// here are not configuration.
var flagKeys = map[string]string{
	"db":               "store.path",
	"lock-timeout":     "store.lock_timeout",
	"as":               "identity",
	"registrar":        "registrar",
	"log-level":        "log.level",
	"sweep-schedule":   "sweeper.schedule",
	"sweeper-identity": "sweeper.identity",
}

// Load layers configuration, later sources overriding earlier ones:
// defaults, the YAML config file, PLEDGE_* environment variables, then
// flags the user actually set on cmd. A nil cmd skips the flag layer.
func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"store.path":         DefaultStorePath,
		"store.lock_timeout": DefaultStoreLockTimeout,
		"store.lock_retry":   DefaultStoreLockRetry,
		"log.level":          DefaultLogLevel,
		"identity":           "",
		"registrar":          DefaultRegistrar,
		"sweeper.schedule":   DefaultSweeperSchedule,
		"sweeper.identity":   DefaultSweeperIdentity,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
	} else if _, err := os.Stat(DefaultConfigFile); err == nil {
		if err := k.Load(file.Provider(DefaultConfigFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", DefaultConfigFile, err)
		}
	} else {
		slog.Debug("no config file", "path", DefaultConfigFile)
	}

	// PLEDGE_STORE_LOCK_TIMEOUT -> store.lock_timeout: only the first
	// underscore separates the section.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if cmd != nil {
		provider := posflag.ProviderWithFlag(cmd.Flags(), ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(cmd.Flags(), f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no command could run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, errors.New("store.path is empty"))
	}
	if _, err := c.LockTimeout(); err != nil {
		errs = append(errs, fmt.Errorf("store.lock_timeout: %w", err))
	}
	if _, err := c.LockRetry(); err != nil {
		errs = append(errs, fmt.Errorf("store.lock_retry: %w", err))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if strings.TrimSpace(c.Registrar) == "" {
		errs = append(errs, errors.New("registrar is empty"))
	}
	return errors.Join(errs...)
}

func (c *Config) LockTimeout() (time.Duration, error) {
	return DurationOrDefault(c.Store.LockTimeout, DefaultStoreLockTimeout)
}

func (c *Config) LockRetry() (time.Duration, error) {
	return DurationOrDefault(c.Store.LockRetry, DefaultStoreLockRetry)
}

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wanderhub/wanderhub-chat/globals"
)

const (
	defaultSyncLimit     = 50
	defaultUserCacheSize = 1024
)

// Config is the global configuration object which is filled via the configuration file
// and environment variables (prefix WHCHAT).
type Config struct {
	HistoryConfig     HistoryConfig     `mapstructure:"history"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	MeetupConfig      MeetupConfig      `mapstructure:"meetup"`
	LogLevel          string            `mapstructure:"log_level"`
	UserCacheSize     int               `mapstructure:"user_cache_size"`
}

// HistoryConfig bounds the history sync response. The cap is a hard limit, a
// client asking for more still gets at most SyncLimit messages.
type HistoryConfig struct {
	SyncLimit int `mapstructure:"sync_limit"`
}

// PersistenceConfig configures the relational store holding users, memberships and
// the DM / chatroom message tables. Type is "sqlite" or "postgres".
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// MeetupConfig configures the buntdb file backing the ephemeral meetup chatrooms.
// Path ":memory:" keeps meetup messages purely in-process. Retention, if set,
// expires meetup messages after the given duration.
type MeetupConfig struct {
	Path      string `mapstructure:"path"`
	Retention string `mapstructure:"retention"`
}

func (m MeetupConfig) RetentionDuration() time.Duration {
	if m.Retention == "" {
		return 0
	}
	d, err := time.ParseDuration(m.Retention)
	if err != nil {
		globals.AppLogger.Error("invalid meetup retention, ignoring", "retention", m.Retention, "error", err)
		return 0
	}
	return d
}

func (h HistoryConfig) Limit() int {
	if h.SyncLimit <= 0 || h.SyncLimit > defaultSyncLimit {
		return defaultSyncLimit
	}
	return h.SyncLimit
}

func (c *Config) CacheSize() int {
	if c.UserCacheSize <= 0 {
		return defaultUserCacheSize
	}
	return c.UserCacheSize
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.StringP("log-level", "l", "", "log level (trace/debug/info/warn/error)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath, which can
// either point to a single TOML file or to a directory, in which case all *.toml files
// in this directory are concatenated. It returns a Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("persistence.type", "sqlite")
	viper.SetDefault("persistence.dsn", "wanderhub-chat.db")
	viper.SetDefault("meetup.path", ":memory:")
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("WHCHAT")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}
	return &cfg, nil
}

// Package config loads CommitMux's process-level configuration: where
// the index lives on disk, default ignore/patch-size limits, the
// embedding backfill batch size, and logging options. Domain-level
// key/value settings (embed.model, embed.endpoint) live in the
// store's own config table instead — see internal/store.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/blackwell-systems/commitmux/internal/logging"
)

// Config is the complete CommitMux process configuration.
type Config struct {
	// DataDir is the root directory for the index database and managed
	// clones, e.g. "~/.commitmux". The database lives at
	// <DataDir>/commitmux.db; managed clones live under
	// <DataDir>/clones/<name>.
	DataDir string `mapstructure:"dataDir"`

	Ignore IgnoreConfig `mapstructure:"ignore"`
	Embed  EmbedConfig  `mapstructure:"embed"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// IgnoreConfig holds configurable default ignore rules. The ingester
// does not read these fields: it unions model.DefaultIgnoreConfig with
// each repo's own exclude prefixes.
type IgnoreConfig struct {
	PathPrefixes  []string `mapstructure:"pathPrefixes"`
	MaxPatchBytes int      `mapstructure:"maxPatchBytes"`
}

// EmbedConfig holds the model and endpoint used when the store's config
// table has no embed.model / embed.endpoint entry (they are not written
// into that table), and the batch size used by the backfill loop.
type EmbedConfig struct {
	Model     string `mapstructure:"model"`
	Endpoint  string `mapstructure:"endpoint"`
	BatchSize int    `mapstructure:"batchSize"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Format string `mapstructure:"format"` // "json" | "human"
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
}

// EnvPrefix is the environment variable prefix recognized for
// overrides, e.g. COMMITMUX_DATADIR, COMMITMUX_EMBED_MODEL.
const EnvPrefix = "COMMITMUX"

// Default returns the built-in configuration used when no config file
// is present and no environment overrides are set.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		DataDir: filepath.Join(home, ".commitmux"),
		Ignore: IgnoreConfig{
			PathPrefixes:  []string{"node_modules/", "vendor/", "dist/", ".git/"},
			MaxPatchBytes: 1_048_576,
		},
		Embed: EmbedConfig{
			Model:     "nomic-embed-text",
			Endpoint:  "http://localhost:11434/v1",
			BatchSize: 32,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// Load reads config.json from <dataDirHint>/config.json (falling back
// to ~/.commitmux/config.json when dataDirHint is empty), applies
// COMMITMUX_* environment overrides, and returns the resolved config.
// A missing config file is not an error: defaults are used.
func Load(dataDirHint string) (*Config, error) {
	def := Default()

	v := viper.New()
	v.SetDefault("dataDir", def.DataDir)
	v.SetDefault("ignore.pathPrefixes", def.Ignore.PathPrefixes)
	v.SetDefault("ignore.maxPatchBytes", def.Ignore.MaxPatchBytes)
	v.SetDefault("embed.model", def.Embed.Model)
	v.SetDefault("embed.endpoint", def.Embed.Endpoint)
	v.SetDefault("embed.batchSize", def.Embed.BatchSize)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.level", def.Logging.Level)

	v.SetConfigName("config")
	v.SetConfigType("json")
	if dataDirHint != "" {
		v.AddConfigPath(dataDirHint)
	}
	v.AddConfigPath(def.DataDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewLogger builds a logging.Logger from LoggingConfig.
func (c *Config) NewLogger() *logging.Logger {
	format := logging.HumanFormat
	if c.Logging.Format == "json" {
		format = logging.JSONFormat
	}
	level := logging.InfoLevel
	switch c.Logging.Level {
	case "debug":
		level = logging.DebugLevel
	case "warn":
		level = logging.WarnLevel
	case "error":
		level = logging.ErrorLevel
	}
	return logging.NewLogger(logging.Config{Format: format, Level: level})
}

// DBPath returns the path to the SQLite index file under DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "commitmux.db")
}

// ClonesDir returns the directory managed clones are created under.
func (c *Config) ClonesDir() string {
	return filepath.Join(c.DataDir, "clones")
}

// EnsureDataDir creates DataDir and its clones subdirectory if absent.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.ClonesDir(), 0o755); err != nil {
		return err
	}
	return nil
}

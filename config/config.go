package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ConfigDebug            = "debug"
	ConfigConfigFile       = "config"
	ConfigBookPath         = "book-path"
	ConfigWeak             = "weak"
	ConfigAnalyze          = "analyze"
	ConfigBatch            = "batch"
	ConfigTTLogSize        = "tt-log-size"
	ConfigTTMemoryFraction = "tt-memory-fraction"
	ConfigThreads          = "threads"
	ConfigSharedTT         = "shared-tt"
	ConfigNodeLimit        = "node-limit"
	ConfigSearchTimeout    = "search-timeout"
	ConfigVerbose          = "verbose"
	ConfigSummary          = "summary"
	ConfigCPUProfile       = "cpu-profile"
	ConfigHistoryFile      = "history-file"
	ConfigStagingDB        = "staging-db"
)

type Config struct {
	*viper.Viper
	flags *pflag.FlagSet
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(ConfigDebug, false)
	v.SetDefault(ConfigBookPath, "7x6.book")
	v.SetDefault(ConfigWeak, false)
	v.SetDefault(ConfigAnalyze, false)
	v.SetDefault(ConfigBatch, false)
	v.SetDefault(ConfigTTLogSize, 24)
	v.SetDefault(ConfigTTMemoryFraction, 0.0)
	v.SetDefault(ConfigThreads, 1)
	v.SetDefault(ConfigSharedTT, false)
	v.SetDefault(ConfigNodeLimit, uint64(0))
	v.SetDefault(ConfigSearchTimeout, "0s")
	v.SetDefault(ConfigVerbose, false)
	v.SetDefault(ConfigSummary, false)
	v.SetDefault(ConfigHistoryFile, "/tmp/connect4_readline.tmp")
	v.SetDefault(ConfigStagingDB, "")
}

// DefaultConfig returns a config with only the defaults set.
func DefaultConfig() *Config {
	c := &Config{Viper: viper.New()}
	setDefaults(c.Viper)
	return c
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("connect4", pflag.ContinueOnError)
	fs.Bool(ConfigDebug, false, "enable debug logging")
	fs.String(ConfigConfigFile, "", "optional YAML config file")
	fs.StringP(ConfigBookPath, "b", "7x6.book", "opening book file")
	fs.BoolP(ConfigWeak, "w", false, "weak solver: only win/draw/loss")
	fs.BoolP(ConfigAnalyze, "a", false, "score every column instead of the position")
	fs.Bool(ConfigBatch, false, "read move sequences from stdin instead of playing")
	fs.Int(ConfigTTLogSize, 24, "transposition table holds about 2^n entries")
	fs.Float64(ConfigTTMemoryFraction, 0, "size the transposition table from this fraction of system memory (0 to use tt-log-size)")
	fs.Int(ConfigThreads, 1, "analyze root moves on this many goroutines")
	fs.Bool(ConfigSharedTT, false, "share one sharded transposition table between threads")
	fs.Uint64(ConfigNodeLimit, 0, "abandon a search after this many nodes (0 for no limit)")
	fs.Duration(ConfigSearchTimeout, 0, "abandon a search after this long (0 for no limit)")
	fs.BoolP(ConfigVerbose, "v", false, "batch: also print nodes and microseconds per position")
	fs.Bool(ConfigSummary, false, "batch: print timing statistics and a score histogram at the end")
	fs.String(ConfigCPUProfile, "", "write a CPU profile to this file")
	fs.String(ConfigHistoryFile, "/tmp/connect4_readline.tmp", "interactive shell history file")
	fs.String(ConfigStagingDB, "", "sqlite file used to stage book generation")
	return fs
}

// Load reads flags from args, then CONNECT4_* environment variables, then
// the optional config file. Flags win over the environment, which wins over
// the file.
func (c *Config) Load(args []string) error {
	return c.LoadWithFlags(args, nil)
}

// LoadWithFlags is Load for a command that defines flags of its own. They
// are registered by register and read back like any other setting.
func (c *Config) LoadWithFlags(args []string, register func(fs *pflag.FlagSet)) error {
	c.Viper = viper.New()
	setDefaults(c.Viper)
	c.flags = newFlagSet()
	if register != nil {
		register(c.flags)
	}
	if err := c.flags.Parse(args); err != nil {
		return err
	}
	if err := c.BindPFlags(c.flags); err != nil {
		return err
	}
	c.SetEnvPrefix("connect4")
	c.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.AutomaticEnv()

	if cf := c.GetString(ConfigConfigFile); cf != "" {
		c.SetConfigFile(cf)
		if err := c.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("reading config file: %w", err)
			}
		}
	}
	return nil
}

// Args returns the positional arguments left after flag parsing.
func (c *Config) Args() []string {
	if c.flags == nil {
		return nil
	}
	return c.flags.Args()
}

// SanitizedSettings returns the settings for logging.
func (c *Config) SanitizedSettings() map[string]any {
	return c.AllSettings()
}

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rendis/blockflow/internal/layout"
)

// envPrefix prefixes every environment override, e.g. BLOCKFLOW_DB_PATH.
const envPrefix = "BLOCKFLOW"

// Config holds all blockflow configuration.
// Priority: flags > env vars > .env > settings.json > defaults.
type Config struct {
	ListenAddr         string   `mapstructure:"listen_addr" json:"listen_addr"`
	DBPath             string   `mapstructure:"db_path" json:"db_path"`
	LogLevel           string   `mapstructure:"log_level" json:"log_level"`
	AllowedOrigins     []string `mapstructure:"allowed_origins" json:"allowed_origins"`
	NodeSep            float64  `mapstructure:"node_sep" json:"node_sep"`
	RankSep            float64  `mapstructure:"rank_sep" json:"rank_sep"`
	ContainerBaseWidth float64  `mapstructure:"container_base_width" json:"container_base_width"`
	ContainerWidthStep float64  `mapstructure:"container_width_step" json:"container_width_step"`
}

func defaultConfig() Config {
	d := layout.DefaultOptions()
	return Config{
		ListenAddr:         ":4200",
		DBPath:             filepath.Join(blockflowDir(), "blockflow.db"),
		LogLevel:           "info",
		NodeSep:            d.NodeSep,
		RankSep:            d.RankSep,
		ContainerBaseWidth: d.ContainerBaseWidth,
		ContainerWidthStep: d.ContainerWidthStep,
	}
}

func blockflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".blockflow"
	}
	return filepath.Join(home, ".blockflow")
}

func settingsPath() string {
	return filepath.Join(blockflowDir(), "settings.json")
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"db-path":     "db_path",
	"log-level":   "log_level",
	"listen-addr": "listen_addr",
}

// loadConfig layers the configuration sources. An empty settingsFile uses
// ~/.blockflow/settings.json, which may be missing; an explicit one must exist.
// flags may be nil.
func loadConfig(settingsFile string, flags *pflag.FlagSet) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	def := defaultConfig()
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("allowed_origins", def.AllowedOrigins)
	v.SetDefault("node_sep", def.NodeSep)
	v.SetDefault("rank_sep", def.RankSep)
	v.SetDefault("container_base_width", def.ContainerBaseWidth)
	v.SetDefault("container_width_step", def.ContainerWidthStep)

	explicit := settingsFile != ""
	if !explicit {
		settingsFile = settingsPath()
	}
	v.SetConfigFile(settingsFile)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", settingsFile, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.AllowedOrigins = splitOrigins(cfg.AllowedOrigins)
	return cfg, nil
}

// splitOrigins flattens comma-separated entries and drops blanks.
func splitOrigins(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, o := range strings.Split(entry, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

// layoutOptions returns the layout spacing configured in cfg.
func (c Config) layoutOptions() layout.Options {
	opts := layout.DefaultOptions()
	opts.NodeSep = c.NodeSep
	opts.RankSep = c.RankSep
	opts.ContainerBaseWidth = c.ContainerBaseWidth
	opts.ContainerWidthStep = c.ContainerWidthStep
	return opts
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	OriginsChanged  bool
	LogLevelChanged bool
	LayoutChanged   bool
	RestartNeeded   []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if !slices.Equal(old.AllowedOrigins, new.AllowedOrigins) {
		d.OriginsChanged = true
	}
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.layoutOptions() != new.layoutOptions() {
		d.LayoutChanged = true
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	return d
}

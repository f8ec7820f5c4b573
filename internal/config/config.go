// Package config handles loading, parsing, and validating application configuration.
// It defines the structure for configuration settings, provides default values,
// loads settings from YAML files, and applies overrides from environment variables.
// file: internal/config/config.go.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/preflight/internal/logging"
	"gopkg.in/yaml.v3"
)

// AppConfig holds settings about the running build.
type AppConfig struct {
	// PreRelease marks this build as a pre-release, which shows the
	// pre-release notice until it has been acknowledged once.
	PreRelease bool `yaml:"pre_release"`
}

// PathsConfig locates the directories the startup sequence reads and writes.
// All entries support '~' expansion.
type PathsConfig struct {
	// ConfigDir holds markers, the recent-sessions list and engine state.
	ConfigDir string `yaml:"config_dir"`
	// SessionDir is the default parent directory for new sessions and inflated archives.
	SessionDir string `yaml:"session_dir"`
	// UserTemplateDir holds the user's own session templates.
	UserTemplateDir string `yaml:"user_template_dir"`
	// SystemTemplateDirs are searched after the user template dir.
	SystemTemplateDirs []string `yaml:"system_template_dirs,omitempty"`
	// MetaTemplateDirs hold script-based session templates.
	MetaTemplateDirs []string `yaml:"meta_template_dirs,omitempty"`
}

// SessionConfig tunes the session chooser.
type SessionConfig struct {
	// DefaultNameTemplate is a text/template (sprig functions available)
	// rendered to pre-fill the name of a new session.
	DefaultNameTemplate string `yaml:"default_name_template"`
	// RecentLimit caps the recent-sessions list.
	RecentLimit int `yaml:"recent_limit"`
	// MasterChannels is the default master bus width for new sessions.
	MasterChannels int `yaml:"master_channels"`
}

// MarkersConfig selects how startup markers are persisted.
type MarkersConfig struct {
	// Backend is "file" or "keyring". Keyring falls back to files when unavailable.
	Backend string `yaml:"backend"`
}

// EngineConfig holds the preferred audio engine settings.
type EngineConfig struct {
	// Backend is the preferred engine backend ("system" or "dummy").
	Backend string `yaml:"backend"`
	// SampleRate is the preferred rate when nothing else decides it.
	SampleRate int `yaml:"sample_rate"`
	// BufferSize is the period size in frames.
	BufferSize int `yaml:"buffer_size"`
}

// PluginsConfig controls plugin discovery.
type PluginsConfig struct {
	// CacheOnly skips the filesystem walk and uses the last scan results.
	CacheOnly bool `yaml:"cache_only"`
	// SearchPaths are walked during a full scan.
	SearchPaths []string `yaml:"search_paths,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Config is the root configuration structure for preflight.
type Config struct {
	App     AppConfig     `yaml:"app"`
	Paths   PathsConfig   `yaml:"paths"`
	Session SessionConfig `yaml:"session"`
	Markers MarkersConfig `yaml:"markers"`
	Engine  EngineConfig  `yaml:"engine"`
	Plugins PluginsConfig `yaml:"plugins"`
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfigPath returns the default location of the config file.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "preflight.yaml")
}

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "preflight")
	}
	return ".preflight"
}

// DefaultConfig returns a configuration populated with default values,
// with environment overrides applied on top.
func DefaultConfig() *Config {
	cfg := baseConfig()
	applyEnvironmentOverrides(cfg, logging.GetLogger("config_default"))
	return cfg
}

func baseConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	configDir := defaultConfigDir()

	return &Config{
		Paths: PathsConfig{
			ConfigDir:       configDir,
			SessionDir:      filepath.Join(home, "Sessions"),
			UserTemplateDir: filepath.Join(configDir, "templates"),
			MetaTemplateDirs: []string{
				filepath.Join(configDir, "scripts"),
			},
		},
		Session: SessionConfig{
			DefaultNameTemplate: `Untitled-{{ now | date "2006-01-02" }}`,
			RecentLimit:         10,
			MasterChannels:      2,
		},
		Markers: MarkersConfig{Backend: "file"},
		Engine: EngineConfig{
			Backend:    "system",
			SampleRate: 48000,
			BufferSize: 512,
		},
		Plugins: PluginsConfig{
			CacheOnly:   true,
			SearchPaths: defaultPluginPaths(home),
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func defaultPluginPaths(home string) []string {
	return []string{
		filepath.Join(home, ".vst"),
		filepath.Join(home, ".vst3"),
		filepath.Join(home, ".lv2"),
		"/usr/lib/vst",
		"/usr/lib/vst3",
		"/usr/lib/lv2",
	}
}

// LoadFromFile loads configuration from the specified YAML file path.
// It starts with default values, merges the values from the YAML file,
// and finally applies any environment variable overrides.
func LoadFromFile(path string) (*Config, error) {
	path, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- Path comes from command-line flag or default, considered trusted input.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file: %s", path)
	}

	cfg := baseConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file YAML: %s", path)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(cfg, logging.GetLogger("config_load"))
	return cfg, nil
}

// Load reads path when it exists and falls back to defaults when it does not.
func Load(path string) (*Config, error) {
	expanded, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(expanded); os.IsNotExist(statErr) {
		logging.GetLogger("config").Debug("No config file, using defaults.", "path", expanded)
		return DefaultConfig(), nil
	}
	return LoadFromFile(expanded)
}

// ExpandHome replaces a leading '~' with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory to expand path")
	}
	return filepath.Join(homeDir, path[1:]), nil
}

func (c *Config) expandPaths() error {
	single := []*string{&c.Paths.ConfigDir, &c.Paths.SessionDir, &c.Paths.UserTemplateDir}
	for _, p := range single {
		v, err := ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = v
	}
	for _, list := range [][]string{c.Paths.SystemTemplateDirs, c.Paths.MetaTemplateDirs, c.Plugins.SearchPaths} {
		for i := range list {
			v, err := ExpandHome(list[i])
			if err != nil {
				return err
			}
			list[i] = v
		}
	}
	return nil
}

// Validate checks the configuration for values the startup sequence cannot work with.
func (c *Config) Validate() error {
	var errs []string
	if c.Paths.ConfigDir == "" {
		errs = append(errs, "paths.config_dir is required")
	}
	if c.Paths.SessionDir == "" {
		errs = append(errs, "paths.session_dir is required")
	}
	switch c.Markers.Backend {
	case "file", "keyring":
	default:
		errs = append(errs, "markers.backend must be file or keyring")
	}
	if c.Engine.SampleRate < 0 {
		errs = append(errs, "engine.sample_rate must not be negative")
	}
	if c.Engine.BufferSize <= 0 {
		errs = append(errs, "engine.buffer_size must be positive")
	}
	if c.Session.RecentLimit <= 0 {
		errs = append(errs, "session.recent_limit must be positive")
	}
	if c.Session.MasterChannels <= 0 {
		errs = append(errs, "session.master_channels must be positive")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, "logging.format must be text or json")
	}
	if len(errs) > 0 {
		return errors.Newf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// MarkerDir is where marker files live.
func (c *Config) MarkerDir() string { return filepath.Join(c.Paths.ConfigDir, "markers") }

// RecentFile is the recent-sessions list.
func (c *Config) RecentFile() string { return filepath.Join(c.Paths.ConfigDir, "recent") }

// EngineStateFile stores the last working engine parameters.
func (c *Config) EngineStateFile() string { return filepath.Join(c.Paths.ConfigDir, "engine.yaml") }

// ControlSocket is where a running instance accepts control requests.
func (c *Config) ControlSocket() string { return filepath.Join(c.Paths.ConfigDir, "preflight.sock") }

// PluginCacheFile stores the last plugin scan.
func (c *Config) PluginCacheFile() string {
	return filepath.Join(c.Paths.ConfigDir, "plugin_cache.json")
}

// applyEnvironmentOverrides applies configuration overrides from environment variables.
// Environment variables take precedence over values set in configuration files or defaults.
func applyEnvironmentOverrides(config *Config, logger logging.Logger) {
	if dir := os.Getenv("PREFLIGHT_SESSION_DIR"); dir != "" {
		if expanded, err := ExpandHome(dir); err == nil {
			dir = expanded
		} else {
			logger.Warn("Could not expand '~' in PREFLIGHT_SESSION_DIR env var.", "error", err)
		}
		logger.Debug("Overriding session dir from environment.", "envVar", "PREFLIGHT_SESSION_DIR", "value", dir)
		config.Paths.SessionDir = dir
	}
	if level := os.Getenv("PREFLIGHT_LOG_LEVEL"); level != "" {
		logger.Debug("Overriding log level from environment.", "envVar", "PREFLIGHT_LOG_LEVEL", "value", level)
		config.Logging.Level = level
	}
	if backend := os.Getenv("PREFLIGHT_MARKER_BACKEND"); backend != "" {
		logger.Debug("Overriding marker backend from environment.", "envVar", "PREFLIGHT_MARKER_BACKEND", "value", backend)
		config.Markers.Backend = backend
	}
	if backend := os.Getenv("PREFLIGHT_ENGINE_BACKEND"); backend != "" {
		logger.Debug("Overriding engine backend from environment.", "envVar", "PREFLIGHT_ENGINE_BACKEND", "value", backend)
		config.Engine.Backend = backend
	}
	if v := os.Getenv("PREFLIGHT_PLUGIN_CACHE_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			logger.Debug("Overriding plugin cache-only flag from environment.", "envVar", "PREFLIGHT_PLUGIN_CACHE_ONLY", "value", b)
			config.Plugins.CacheOnly = b
		} else {
			logger.Warn("Invalid PREFLIGHT_PLUGIN_CACHE_ONLY environment variable ignored.", "value", v, "error", err)
		}
	}
	if v := os.Getenv("PREFLIGHT_PRE_RELEASE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.App.PreRelease = b
		} else {
			logger.Warn("Invalid PREFLIGHT_PRE_RELEASE environment variable ignored.", "value", v, "error", err)
		}
	}
}

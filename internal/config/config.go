// Package config handles loading and managing mboxvault configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/wesm/mboxvault/internal/fileutil"
)

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort         int      `toml:"api_port"`  // HTTP server port (default: 8080)
	BindAddr        string   `toml:"bind_addr"` // default 127.0.0.1
	APIKey          string   `toml:"api_key"`   // API authentication key
	AllowInsecure   bool     `toml:"allow_insecure"`
	CORSOrigins     []string `toml:"cors_origins"`
	CORSCredentials bool     `toml:"cors_credentials"`
	CORSMaxAge      int      `toml:"cors_max_age"` // seconds
}

// IsLoopback reports whether the server only listens on the local machine.
func (s ServerConfig) IsLoopback() bool {
	addr := s.BindAddr
	if addr == "" || strings.EqualFold(addr, "localhost") {
		return true
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}

// ValidateSecure refuses to expose an unauthenticated API beyond loopback
// unless allow_insecure is set.
func (s ServerConfig) ValidateSecure() error {
	if s.IsLoopback() || s.APIKey != "" || s.AllowInsecure {
		return nil
	}
	return fmt.Errorf("refusing to bind %s without an api_key; set [server] api_key or allow_insecure = true", s.BindAddr)
}

// ImportConfig tunes the mbox import pipeline.
type ImportConfig struct {
	Workers          int   `toml:"workers"`
	ProgressInterval int   `toml:"progress_interval"`
	MaxMessageBytes  int64 `toml:"max_message_bytes"`
}

// QueryConfig holds search defaults.
type QueryConfig struct {
	DefaultLimit int `toml:"default_limit"`
}

// ImportSchedule defines a recurring re-import of one mbox file.
type ImportSchedule struct {
	Path     string `toml:"path"`     // mbox file or Takeout zip
	Schedule string `toml:"schedule"` // Cron expression (e.g., "0 2 * * *" for 2am daily)
	Enabled  bool   `toml:"enabled"`
}

// Config represents the mboxvault configuration.
type Config struct {
	Data    DataConfig       `toml:"data"`
	Import  ImportConfig     `toml:"import"`
	Query   QueryConfig      `toml:"query"`
	Server  ServerConfig     `toml:"server"`
	Imports []ImportSchedule `toml:"imports"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	ConfigPath string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir      string `toml:"data_dir"`
	DatabasePath string `toml:"database_path"`
}

// DefaultHome returns the default mboxvault home directory.
// Respects MBOXVAULT_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MBOXVAULT_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mboxvault"
	}
	return filepath.Join(home, ".mboxvault")
}

// NewDefaultConfig returns the configuration used when no file exists.
func NewDefaultConfig() *Config {
	return newConfig(DefaultHome())
}

func newConfig(homeDir string) *Config {
	return &Config{
		HomeDir:    homeDir,
		ConfigPath: filepath.Join(homeDir, "config.toml"),
		Data: DataConfig{
			DataDir: homeDir,
		},
		Import: ImportConfig{
			Workers:          1,
			ProgressInterval: 100,
			MaxMessageBytes:  128 << 20,
		},
		Query: QueryConfig{
			DefaultLimit: 1000,
		},
		Server: ServerConfig{
			APIPort:  8080,
			BindAddr: "127.0.0.1",
		},
		Imports: []ImportSchedule{},
	}
}

// Load reads the configuration.
//
// With an explicit path the file must exist, and the home directory is the
// file's parent. Otherwise homeDir (or DefaultHome when empty) is used and
// its config.toml is optional.
func Load(path, homeDir string) (*Config, error) {
	explicit := path != ""
	switch {
	case explicit:
		path = expandPath(path)
		if homeDir == "" {
			abs, err := filepath.Abs(path)
			if err != nil {
				return nil, fmt.Errorf("resolve config path: %w", err)
			}
			homeDir = filepath.Dir(abs)
		}
	case homeDir == "":
		homeDir = DefaultHome()
	}
	homeDir = expandPath(homeDir)
	if !explicit {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := newConfig(homeDir)
	cfg.ConfigPath = path

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config: %w", err)
		}
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w%s", path, err, backslashHint(err))
	}

	// Expand ~ in paths
	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	cfg.Data.DatabasePath = expandPath(cfg.Data.DatabasePath)
	for i := range cfg.Imports {
		cfg.Imports[i].Path = expandPath(cfg.Imports[i].Path)
	}

	// Relative data paths are relative to the config file's directory.
	if cfg.Data.DataDir != "" && !filepath.IsAbs(cfg.Data.DataDir) {
		cfg.Data.DataDir = filepath.Join(filepath.Dir(path), cfg.Data.DataDir)
	}

	return cfg, nil
}

// backslashHint explains the most common TOML mistake on Windows: unquoted
// backslashes in a basic string are escape sequences.
func backslashHint(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "invalid escape") || strings.Contains(msg, "hexadecimal digits") {
		return "\nhint: use forward slashes (C:/Users/me/mail) or single quotes ('C:\\Users\\me\\mail') for Windows paths"
	}
	return ""
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	if c.Data.DatabasePath != "" {
		return c.Data.DatabasePath
	}
	return filepath.Join(c.Data.DataDir, "mboxvault.db")
}

// EnsureDataDir creates the data directory with owner-only permissions.
func (c *Config) EnsureDataDir() error {
	return fileutil.MkdirPrivate(c.Data.DataDir)
}

// CacheDir holds extracted Takeout archives.
func (c *Config) CacheDir() string {
	return filepath.Join(c.Data.DataDir, "cache")
}

// ScheduledImports returns imports with scheduling enabled.
func (c *Config) ScheduledImports() []ImportSchedule {
	var scheduled []ImportSchedule
	for _, imp := range c.Imports {
		if imp.Enabled && imp.Schedule != "" && imp.Path != "" {
			scheduled = append(scheduled, imp)
		}
	}
	return scheduled
}

// GetImportSchedule returns a copy of the schedule for path, or nil if the
// path is not configured.
func (c *Config) GetImportSchedule(path string) *ImportSchedule {
	for _, imp := range c.Imports {
		if imp.Path == path {
			s := imp
			return &s
		}
	}
	return nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

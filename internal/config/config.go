// Package config handles repository configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Config represents repository configuration stored in .bibmeta/config.json.
type Config struct {
	Prefix      string `json:"prefix"`                 // Prepended to every minted id
	Separator   string `json:"separator,omitempty"`    // Id list separator; whitespace when empty
	LogLevel    string `json:"log_level,omitempty"`    // debug, info, warn or error
	MetricsFile string `json:"metrics_file,omitempty"` // Prometheus textfile, relative to the root
}

const (
	BibmetaDir  = ".bibmeta"
	ConfigFile  = "config.json"
	CountersDir = "counters"
	StoreFile   = "store.db"
	LockFile    = "batch.lock"
	OutputDir   = "output"

	// DefaultPrefix is the id prefix of a freshly initialised repository.
	DefaultPrefix = "060"
)

// ErrNotRepository is returned when no .bibmeta directory can be found.
var ErrNotRepository = errors.New("not in a bibmeta repository (no .bibmeta directory found)")

// ValidLogLevels lists the accepted log_level values.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

var prefixPattern = regexp.MustCompile(`^[0-9]*$`)

// Default returns the configuration written by init.
func Default() *Config {
	return &Config{Prefix: DefaultPrefix, LogLevel: "info"}
}

// BibmetaPath returns the path to the .bibmeta directory from a root path.
func BibmetaPath(root string) string {
	return filepath.Join(root, BibmetaDir)
}

// ConfigPath returns the path to config.json from a root path.
func ConfigPath(root string) string {
	return filepath.Join(root, BibmetaDir, ConfigFile)
}

// CountersPath returns the counter directory from a root path.
func CountersPath(root string) string {
	return filepath.Join(root, BibmetaDir, CountersDir)
}

// StorePath returns the path to the knowledge store from a root path.
func StorePath(root string) string {
	return filepath.Join(root, BibmetaDir, StoreFile)
}

// LockPath returns the path to the batch lock from a root path.
func LockPath(root string) string {
	return filepath.Join(root, BibmetaDir, LockFile)
}

// OutputPath returns the default output directory from a root path.
func OutputPath(root string) string {
	return filepath.Join(root, BibmetaDir, OutputDir)
}

// MetricsPath returns the absolute metrics textfile path, or "" when metrics
// export is not configured.
func (c *Config) MetricsPath(root string) string {
	if c.MetricsFile == "" {
		return ""
	}
	path := ExpandPath(c.MetricsFile)
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// IsRepository checks if the given path contains a bibmeta repository.
func IsRepository(root string) bool {
	info, err := os.Stat(BibmetaPath(root))
	return err == nil && info.IsDir()
}

// FindRepository walks up from the given path to find a bibmeta repository.
// Returns the repository root path or ErrNotRepository.
func FindRepository(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		if IsRepository(abs) {
			return abs, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", ErrNotRepository
		}
		abs = parent
	}
}

// Init creates the repository layout under root and writes cfg. An existing
// repository is left alone.
func Init(root string, cfg *Config) error {
	if IsRepository(root) {
		return fmt.Errorf("already a bibmeta repository: %s", root)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, dir := range []string{CountersPath(root), OutputPath(root)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return cfg.Save(root)
}

// Load reads configuration from the repository at the given root.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to the repository at the given root.
func (c *Config) Save(root string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(root), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Validate checks the prefix and log level.
func (c *Config) Validate() error {
	if !prefixPattern.MatchString(c.Prefix) {
		return fmt.Errorf("invalid prefix %q: digits only", c.Prefix)
	}
	return ValidateLogLevel(c.LogLevel)
}

// ValidateLogLevel checks that level is empty or a known level.
func ValidateLogLevel(level string) error {
	if level == "" {
		return nil // Empty defaults to "info"
	}

	for _, valid := range ValidLogLevels {
		if level == valid {
			return nil
		}
	}

	return fmt.Errorf("invalid log_level: %s (valid: %v)", level, ValidLogLevels)
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}

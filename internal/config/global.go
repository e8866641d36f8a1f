package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GlobalConfig represents configuration stored in ~/.config/bm/config.yml.
type GlobalConfig struct {
	RepoPath string `yaml:"repo_path,omitempty"` // Repository used outside any .bibmeta tree
	LogLevel string `yaml:"log_level,omitempty"` // Overridden by the repository's log_level
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "bm"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"

	// RootEnv overrides repository discovery.
	RootEnv = "BM_ROOT"
)

// globalConfigCache caches the loaded global config.
var globalConfigCache *GlobalConfig

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/bm/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// LoadGlobalConfig loads the global configuration file.
// Returns an empty config (not an error) if the file doesn't exist.
func LoadGlobalConfig() (*GlobalConfig, error) {
	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	path := GlobalConfigPath()
	if path == "" {
		return &GlobalConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &GlobalConfig{}, nil
		}
		return nil, fmt.Errorf("reading global config: %w", err)
	}

	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing global config: %w", err)
	}
	if err := ValidateLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("global config: %w", err)
	}

	if cfg.RepoPath != "" {
		cfg.RepoPath = ExpandPath(cfg.RepoPath)
	}

	globalConfigCache = &cfg
	return &cfg, nil
}

// ResetGlobalConfigCache clears the cached global config.
// Useful for testing.
func ResetGlobalConfigCache() {
	globalConfigCache = nil
}

// ResolveRoot finds the repository to work on. BM_ROOT wins, then the
// nearest .bibmeta directory above cwd, then the global repo_path.
func ResolveRoot(cwd string) (string, error) {
	if env := os.Getenv(RootEnv); env != "" {
		root := ExpandPath(env)
		if !IsRepository(root) {
			return "", fmt.Errorf("%s=%s: %w", RootEnv, env, ErrNotRepository)
		}
		return root, nil
	}

	root, err := FindRepository(cwd)
	if err == nil {
		return root, nil
	}
	if !errors.Is(err, ErrNotRepository) {
		return "", err
	}

	global, gerr := LoadGlobalConfig()
	if gerr != nil {
		return "", gerr
	}
	if global.RepoPath != "" && IsRepository(global.RepoPath) {
		return global.RepoPath, nil
	}
	return "", err
}

// HelpfulConfigMessage explains how to point bm at a repository.
func HelpfulConfigMessage() string {
	configPath := GlobalConfigPath()
	return fmt.Sprintf(`No bibmeta repository found.

Run "bm init" in a directory, set %s, or create %s:
  mkdir -p %s
  echo 'repo_path: /path/to/repo' > %s`,
		RootEnv,
		configPath,
		filepath.Dir(configPath),
		configPath)
}

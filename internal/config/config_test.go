package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPathFunctions(t *testing.T) {
	root := "/test/repo"

	tests := []struct {
		name string
		fn   func(string) string
		want string
	}{
		{"BibmetaPath", BibmetaPath, "/test/repo/.bibmeta"},
		{"ConfigPath", ConfigPath, "/test/repo/.bibmeta/config.json"},
		{"CountersPath", CountersPath, "/test/repo/.bibmeta/counters"},
		{"StorePath", StorePath, "/test/repo/.bibmeta/store.db"},
		{"LockPath", LockPath, "/test/repo/.bibmeta/batch.lock"},
		{"OutputPath", OutputPath, "/test/repo/.bibmeta/output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn(root)
			if got != tt.want {
				t.Errorf("%s(%q) = %q, want %q", tt.name, root, got, tt.want)
			}
		})
	}
}

func TestIsRepository(t *testing.T) {
	tmpDir := t.TempDir()

	// Not a repository initially
	if IsRepository(tmpDir) {
		t.Error("IsRepository() = true for non-repo directory")
	}

	if err := os.Mkdir(filepath.Join(tmpDir, BibmetaDir), 0755); err != nil {
		t.Fatalf("Failed to create .bibmeta: %v", err)
	}

	if !IsRepository(tmpDir) {
		t.Error("IsRepository() = false for repo directory")
	}
}

func TestIsRepository_FileNotDir(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, BibmetaDir), []byte("not a dir"), 0644); err != nil {
		t.Fatalf("Failed to create .bibmeta file: %v", err)
	}

	if IsRepository(tmpDir) {
		t.Error("IsRepository() = true when .bibmeta is a file")
	}
}

func TestFindRepository(t *testing.T) {
	tmpDir := t.TempDir()
	repoDir := filepath.Join(tmpDir, "repo")
	nestedDir := filepath.Join(repoDir, "batches", "2024")

	if err := os.MkdirAll(nestedDir, 0755); err != nil {
		t.Fatalf("Failed to create nested dirs: %v", err)
	}
	if err := os.Mkdir(filepath.Join(repoDir, BibmetaDir), 0755); err != nil {
		t.Fatalf("Failed to create .bibmeta: %v", err)
	}

	for _, start := range []string{nestedDir, repoDir} {
		found, err := FindRepository(start)
		if err != nil {
			t.Fatalf("FindRepository(%q) error = %v", start, err)
		}
		if found != repoDir {
			t.Errorf("FindRepository(%q) = %q, want %q", start, found, repoDir)
		}
	}
}

func TestFindRepository_NotFound(t *testing.T) {
	_, err := FindRepository(t.TempDir())
	if !errors.Is(err, ErrNotRepository) {
		t.Errorf("FindRepository() error = %v, want ErrNotRepository", err)
	}
}

func TestInit(t *testing.T) {
	root := t.TempDir()

	if err := Init(root, Default()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	for _, dir := range []string{CountersPath(root), OutputPath(root)} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Prefix != DefaultPrefix {
		t.Errorf("Prefix = %q, want %q", cfg.Prefix, DefaultPrefix)
	}

	if err := Init(root, Default()); err == nil {
		t.Error("Init() should refuse an existing repository")
	}
}

func TestInit_InvalidPrefix(t *testing.T) {
	root := t.TempDir()
	if err := Init(root, &Config{Prefix: "06a"}); err == nil {
		t.Fatal("Init() accepted a non-numeric prefix")
	}
	if IsRepository(root) {
		t.Error("Init() created a repository despite the invalid config")
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmpDir, BibmetaDir), 0755); err != nil {
		t.Fatalf("Failed to create .bibmeta: %v", err)
	}

	cfg := &Config{
		Prefix:      "070",
		Separator:   ";",
		LogLevel:    "debug",
		MetricsFile: "metrics/bm.prom",
	}
	if err := cfg.Save(tmpDir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("Load() = %+v, want %+v", loaded, cfg)
	}
}

func TestLoad_DefaultsMissingFields(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmpDir, BibmetaDir), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ConfigPath(tmpDir), []byte(`{"separator": ";"}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Prefix != DefaultPrefix || cfg.LogLevel != "info" || cfg.Separator != ";" {
		t.Errorf("Load() = %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing", ""},
		{"invalid json", "not json"},
		{"bad log level", `{"log_level": "loud"}`},
		{"bad prefix", `{"prefix": "x1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			if err := os.Mkdir(filepath.Join(tmpDir, BibmetaDir), 0755); err != nil {
				t.Fatal(err)
			}
			if tt.content != "" {
				if err := os.WriteFile(ConfigPath(tmpDir), []byte(tt.content), 0644); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := Load(tmpDir); err == nil {
				t.Error("Load() should return an error")
			}
		})
	}
}

func TestValidateLogLevel(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"", false}, // Empty defaults to info
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"error", false},
		{"trace", true},
		{"INFO", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			err := ValidateLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLogLevel(%q) error = %v, wantErr = %v", tt.level, err, tt.wantErr)
			}
		})
	}
}

func TestMetricsPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}

	tests := []struct {
		file string
		want string
	}{
		{"", ""},
		{"bm.prom", "/repo/bm.prom"},
		{"/var/lib/node/bm.prom", "/var/lib/node/bm.prom"},
		{"~/bm.prom", filepath.Join(home, "bm.prom")},
	}
	for _, tt := range tests {
		cfg := &Config{MetricsFile: tt.file}
		if got := cfg.MetricsPath("/repo"); got != tt.want {
			t.Errorf("MetricsPath(%q) = %q, want %q", tt.file, got, tt.want)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}

	tests := []struct {
		path string
		want string
	}{
		{"", ""},
		{"/abs/path", "/abs/path"},
		{"~", home},
		{"~/repo", filepath.Join(home, "repo")},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.path); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

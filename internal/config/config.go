package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"dupmover/internal/hash"
)

type Config struct {
	ExcludedDirs       []string `yaml:"excluded_dirs" toml:"excluded_dirs"`
	HiddenPrefixes     []string `yaml:"hidden_prefixes" toml:"hidden_prefixes"`
	ExcludedExtensions []string `yaml:"excluded_extensions" toml:"excluded_extensions"`

	ChunkSize int            `yaml:"chunk_size" toml:"chunk_size"`
	Digest    hash.Algorithm `yaml:"digest" toml:"digest"`

	DuplicateFolder string `yaml:"duplicate_folder" toml:"duplicate_folder"`
	ReportDir       string `yaml:"report_dir" toml:"report_dir"`
	LogFile         string `yaml:"log_file" toml:"log_file"`
	MetricsFile     string `yaml:"metrics_file" toml:"metrics_file"`
}

func DefaultConfig() *Config {
	return &Config{
		ExcludedDirs: []string{
			"program files",
			"program files (x86)",
		},
		HiddenPrefixes: []string{".", "~", "_"},
		ExcludedExtensions: []string{
			".ini",
			".rdp",
			".exe",
			".marker",
			".dll",
			".lib",
			".cmd",
			".json",
			".sys",
			".tmp",
			".index",
		},
		ChunkSize:       hash.DefaultChunkSize,
		Digest:          hash.XXHash,
		DuplicateFolder: "duplicates",
		ReportDir:       "reports",
	}
}

// LoadConfig reads a YAML or TOML (by .toml extension) config file.
// A missing file yields DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if isTOML(path) {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	// Initialize slices if nil (for empty configs)
	if cfg.ExcludedDirs == nil {
		cfg.ExcludedDirs = []string{}
	}
	if cfg.HiddenPrefixes == nil {
		cfg.HiddenPrefixes = []string{}
	}
	if cfg.ExcludedExtensions == nil {
		cfg.ExcludedExtensions = []string{}
	}

	// Scalars left out of the file fall back to defaults
	def := DefaultConfig()
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.Digest == "" {
		cfg.Digest = def.Digest
	}
	if cfg.DuplicateFolder == "" {
		cfg.DuplicateFolder = def.DuplicateFolder
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = def.ReportDir
	}

	return &cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if !c.Digest.Valid() {
		return fmt.Errorf("unknown digest %q (supported: %v)", c.Digest, hash.Algorithms)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	var buf bytes.Buffer
	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		enc.Close()
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

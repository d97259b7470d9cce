package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains data, log, and catalog locations.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	CatalogPath string `toml:"catalog_path"`
}

// Tracks contains per-track limits and keyframe id generation.
type Tracks struct {
	Capacity    int     `toml:"capacity"`
	TimeEpsilon float64 `toml:"time_epsilon"`
	// IDFormat is "uuid" or "counter".
	IDFormat         string `toml:"id_format"`
	DefaultFrameRate int    `toml:"default_frame_rate"`
}

// Precompute contains frame cache sizing and the memory guard.
type Precompute struct {
	MarginFactor      float64 `toml:"margin_factor"`
	Workers           int     `toml:"workers"`
	MemoryGuard       bool    `toml:"memory_guard"`
	MaxMemoryFraction float64 `toml:"max_memory_fraction"`
}

// Codec contains the decimal precision used by compressed track documents.
type Codec struct {
	Compress      bool `toml:"compress"`
	TimeDecimals  int  `toml:"time_decimals"`
	ValueDecimals int  `toml:"value_decimals"`
}

// Packager contains the archive split policy.
type Packager struct {
	SplitTimeline         bool   `toml:"split_timeline"`
	SplitMusic            bool   `toml:"split_music"`
	SplitHistory          bool   `toml:"split_history"`
	ForceSplit            bool   `toml:"force_split"`
	TimelineFileName      string `toml:"timeline_file_name"`
	MusicFileName         string `toml:"music_file_name"`
	HistoryFileName       string `toml:"history_file_name"`
	ChildrenSizeThreshold int    `toml:"children_size_threshold"`
	ChildVertexThreshold  int    `toml:"child_vertex_threshold"`
	ChildSizeThreshold    int    `toml:"child_size_threshold"`
	MinFreeBytes          int64  `toml:"min_free_bytes"`
}

// Logging contains configuration for log output.
type Logging struct {
	// Format is auto, console, or json.
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains the Prometheus textfile destination.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Config encapsulates all configuration values for animstore.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and catalog locations
//   - Tracks: keyframe capacity, duplicate-time epsilon, id format
//   - Precompute: frame cache margin, workers, memory guard
//   - Codec: compressed document precision
//   - Packager: archive split policy and thresholds
//   - Logging: log format and level
//   - Metrics: optional Prometheus textfile output
type Config struct {
	Paths      Paths      `toml:"paths"`
	Tracks     Tracks     `toml:"tracks"`
	Precompute Precompute `toml:"precompute"`
	Codec      Codec      `toml:"codec"`
	Packager   Packager   `toml:"packager"`
	Logging    Logging    `toml:"logging"`
	Metrics    Metrics    `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A missing file yields defaults.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("animstore.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, filepath.Dir(c.Paths.CatalogPath)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

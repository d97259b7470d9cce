package config

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTracks(); err != nil {
		return err
	}
	if err := c.validatePrecompute(); err != nil {
		return err
	}
	if err := c.validateCodec(); err != nil {
		return err
	}
	if err := c.validatePackager(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateTracks() error {
	if c.Tracks.Capacity <= 0 {
		return errors.New("tracks.capacity must be positive")
	}
	if c.Tracks.TimeEpsilon <= 0 {
		return errors.New("tracks.time_epsilon must be positive")
	}
	switch c.Tracks.IDFormat {
	case "uuid", "counter":
	default:
		return fmt.Errorf("tracks.id_format: unsupported value %q (want uuid or counter)", c.Tracks.IDFormat)
	}
	if c.Tracks.DefaultFrameRate <= 0 {
		return errors.New("tracks.default_frame_rate must be positive")
	}
	return nil
}

func (c *Config) validatePrecompute() error {
	if c.Precompute.MarginFactor < 1 {
		return errors.New("precompute.margin_factor must be at least 1")
	}
	if c.Precompute.MaxMemoryFraction <= 0 || c.Precompute.MaxMemoryFraction > 1 {
		return errors.New("precompute.max_memory_fraction must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateCodec() error {
	if c.Codec.TimeDecimals < 0 || c.Codec.TimeDecimals > maxDecimals {
		return fmt.Errorf("codec.time_decimals must be between 0 and %d", maxDecimals)
	}
	if c.Codec.ValueDecimals < 0 || c.Codec.ValueDecimals > maxDecimals {
		return fmt.Errorf("codec.value_decimals must be between 0 and %d", maxDecimals)
	}
	return nil
}

func (c *Config) validatePackager() error {
	p := c.Packager
	for key, name := range map[string]string{
		"packager.timeline_file_name": p.TimelineFileName,
		"packager.music_file_name":    p.MusicFileName,
		"packager.history_file_name":  p.HistoryFileName,
	} {
		if name != path.Base(name) || strings.ContainsAny(name, `\`) || name == "project.json" || name == "project_info.json" {
			return fmt.Errorf("%s: %q must be a plain file name not reserved by the archive", key, name)
		}
	}
	if p.ChildrenSizeThreshold <= 0 || p.ChildSizeThreshold <= 0 || p.ChildVertexThreshold <= 0 {
		return errors.New("packager thresholds must be positive")
	}
	if p.MinFreeBytes < 0 {
		return errors.New("packager.min_free_bytes must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTracks()
	c.normalizePrecompute()
	c.normalizePackager()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CatalogPath) == "" {
		c.Paths.CatalogPath = defaultCatalogPath
	}
	if c.Paths.CatalogPath, err = expandPath(c.Paths.CatalogPath); err != nil {
		return fmt.Errorf("paths.catalog_path: %w", err)
	}
	if c.Metrics.TextfilePath, err = expandPath(strings.TrimSpace(c.Metrics.TextfilePath)); err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeTracks() {
	c.Tracks.IDFormat = strings.ToLower(strings.TrimSpace(c.Tracks.IDFormat))
	if c.Tracks.IDFormat == "" {
		c.Tracks.IDFormat = defaultIDFormat
	}
	if c.Tracks.DefaultFrameRate == 0 {
		c.Tracks.DefaultFrameRate = defaultFrameRate
	}
}

func (c *Config) normalizePrecompute() {
	if c.Precompute.MarginFactor == 0 {
		c.Precompute.MarginFactor = defaultMarginFactor
	}
	if c.Precompute.Workers <= 0 {
		c.Precompute.Workers = runtime.NumCPU()
	}
	if c.Precompute.MaxMemoryFraction == 0 {
		c.Precompute.MaxMemoryFraction = defaultMaxMemoryFraction
	}
}

func (c *Config) normalizePackager() {
	p := &c.Packager
	p.TimelineFileName = strings.TrimSpace(p.TimelineFileName)
	if p.TimelineFileName == "" {
		p.TimelineFileName = defaultTimelineFileName
	}
	p.MusicFileName = strings.TrimSpace(p.MusicFileName)
	if p.MusicFileName == "" {
		p.MusicFileName = defaultMusicFileName
	}
	p.HistoryFileName = strings.TrimSpace(p.HistoryFileName)
	if p.HistoryFileName == "" {
		p.HistoryFileName = defaultHistoryFileName
	}
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv("ANIMSTORE_LOG_LEVEL"); ok && strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = value
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

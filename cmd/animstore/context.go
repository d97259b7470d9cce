package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"animstore/internal/catalog"
	"animstore/internal/config"
	"animstore/internal/logging"
	"animstore/internal/metrics"
	"animstore/internal/workspace"
)

type commandContext struct {
	configFlag  *string
	metricsFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag, metricsFlag *string) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		metricsFlag: metricsFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) loggerValue() *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(c.config)
		if err != nil {
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

// openWorkspace builds a workspace wired to the catalog. The returned close
// function releases the catalog.
func (c *commandContext) openWorkspace(opts ...workspace.Option) (*workspace.Workspace, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := catalog.Open(cfg.Paths.CatalogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open catalog: %w", err)
	}
	opts = append([]workspace.Option{
		workspace.WithLogger(c.loggerValue()),
		workspace.WithCatalog(store),
	}, opts...)
	ws, err := workspace.New(cfg, opts...)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return ws, func() { _ = store.Close() }, nil
}

func (c *commandContext) metricsPath() string {
	if c.metricsFlag != nil {
		if path := strings.TrimSpace(*c.metricsFlag); path != "" {
			return path
		}
	}
	if c.config != nil {
		return c.config.Metrics.TextfilePath
	}
	return ""
}

func (c *commandContext) writeMetrics() error {
	path := c.metricsPath()
	if path == "" {
		return nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return err
	}
	if err := metrics.WriteTextfile(expanded); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

package main

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"vmfleet/internal/config"
	"vmfleet/internal/daemonctl"
	"vmfleet/internal/daemonrun"
)

type commandContext struct {
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	sourceOnce sync.Once
	source     *config.Source
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
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
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// configSource returns a Source over the resolved config file, so long-running
// commands pick up edits.
func (c *commandContext) configSource() (*config.Source, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.sourceOnce.Do(func() {
		c.source = config.NewSource(c.configPath, cfg)
	})
	return c.source, nil
}

func (c *commandContext) controller(runOpts daemonrun.Options) (*daemonctl.Controller, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	source, err := c.configSource()
	if err != nil {
		return nil, err
	}
	runOpts.ConfigPath = c.configPath
	return daemonctl.New(daemonctl.Options{
		PIDFile:        cfg.Daemon.PIDFile,
		LogFile:        cfg.Daemon.LogFile,
		Source:         source,
		Args:           []string{"daemon", "--config", c.configPath},
		Run:            func(ctx context.Context) error { return daemonrun.Run(ctx, cfg, runOpts) },
		StartupTimeout: cfg.StartupTimeout(),
		StopTimeout:    cfg.StopTimeout(),
	})
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

package main

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/avatar-studio/internal/config"
	"github.com/Faultbox/avatar-studio/internal/logger"
	"github.com/Faultbox/avatar-studio/internal/recording/library"
)

type commandContext struct {
	configFlag     *string
	recordingsFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	library *library.Library
}

func newCommandContext(configFlag, recordingsFlag *string) *commandContext {
	return &commandContext{
		configFlag:     configFlag,
		recordingsFlag: recordingsFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.LoadFrom(path, false)
		if err != nil {
			c.configErr = err
			return
		}
		if c.recordingsFlag != nil && strings.TrimSpace(*c.recordingsFlag) != "" {
			cfg.Recording.Directory = strings.TrimSpace(*c.recordingsFlag)
		}
		// Commands print their own results; only problems go to the log
		if err := logger.Init("warn", cfg.Logging.LogFile); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) log(name string) *zap.Logger {
	return logger.Named(name)
}

// openLibrary opens the recordings library once per invocation.
func (c *commandContext) openLibrary() (*library.Library, error) {
	if c.library != nil {
		return c.library, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	lib, err := library.Open(cfg.Recording.Directory, library.Options{
		PendingFrames: cfg.Recording.PendingFrames,
		Logger:        c.log("library"),
	})
	if err != nil {
		return nil, err
	}
	c.library = lib
	return lib, nil
}

func (c *commandContext) close() {
	if c.library != nil {
		_ = c.library.Close()
		c.library = nil
	}
	logger.Sync()
}

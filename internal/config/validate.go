package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateWatcher(); err != nil {
		return err
	}
	if err := c.validateReport(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WatchDir) == "" {
		return errors.New("paths.watch_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Paths.WatchDir == c.Paths.OutputDir {
		return errors.New("paths.watch_dir and paths.output_dir must differ")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers < 1 {
		return errors.New("pipeline.workers must be at least 1")
	}
	if c.Pipeline.ExtractionTimeoutSeconds < 1 {
		return errors.New("pipeline.extraction_timeout_seconds must be at least 1")
	}
	if c.Pipeline.PredictionTimeoutSeconds < 1 {
		return errors.New("pipeline.prediction_timeout_seconds must be at least 1")
	}
	return nil
}

func (c *Config) validateWatcher() error {
	if c.Watcher.QuietPeriodMillis < 1 {
		return errors.New("watcher.quiet_period_millis must be at least 1")
	}
	if c.Watcher.StabilityTimeoutMs < c.Watcher.QuietPeriodMillis {
		return errors.New("watcher.stability_timeout_millis must be at least the quiet period")
	}
	for _, ext := range c.Watcher.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("watcher.extensions entry %q must start with a dot", ext)
		}
	}
	return nil
}

func (c *Config) validateReport() error {
	if c.Report.IntervalSeconds < 1 {
		return errors.New("report.interval_seconds must be at least 1")
	}
	if c.Report.HighConfidenceThreshold < 0 || c.Report.HighConfidenceThreshold > 1 {
		return errors.New("report.high_confidence_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

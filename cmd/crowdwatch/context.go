package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"crowdwatch/internal/analysis"
	"crowdwatch/internal/config"
	"crowdwatch/internal/detector"
	"crowdwatch/internal/detector/remote"
	"crowdwatch/internal/logging"
	"crowdwatch/internal/media/player"
	"crowdwatch/internal/services"
)

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "config", "load", c.configPath(), err)
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		if c.verbose != nil && *c.verbose {
			cfg.Logging.Level = "debug"
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// session bundles what every pipeline command needs.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	client *remote.Client
}

func (c *commandContext) session() (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	client := remote.New(remote.Options{
		Endpoint:     cfg.Detector.Endpoint,
		CacheDir:     cfg.ModelCacheDir(),
		MaxInputSide: cfg.Detector.MaxInputSide,
		Logger:       logger,
	})
	return &session{cfg: cfg, logger: logger, client: client}, nil
}

// adapter builds a detector adapter; an empty variant uses the configured one.
func (r *session) adapter(variant string) (*detector.Adapter, error) {
	if strings.TrimSpace(variant) == "" {
		variant = r.cfg.Detector.Variant
	}
	normalized, err := detector.NormalizeVariant(variant)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "detector", "variant", variant, err)
	}
	return detector.NewAdapter(r.client, detector.Config{Variant: normalized}, r.logger), nil
}

func (r *session) analyzer(adapter *detector.Adapter) *analysis.Analyzer {
	opts := player.Options{
		FFmpegBinary:  r.cfg.FFmpegBinary(),
		FFprobeBinary: r.cfg.FFprobeBinary(),
		Logger:        r.logger,
	}
	return analysis.New(analysis.Options{
		Open: func(ctx context.Context, path string) (analysis.Media, error) {
			return player.Open(ctx, path, opts)
		},
		Detector:      adapter,
		SampleCount:   r.cfg.Sampling.SampleCount,
		SettleDelay:   r.cfg.SettleDelay(),
		SeekTimeout:   r.cfg.SeekTimeout(),
		LoadTimeout:   r.cfg.LoadTimeout(),
		DetectTimeout: r.cfg.DetectTimeout(),
		Logger:        r.logger,
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

// errorText renders err for the terminal, leading with the operator message.
func errorText(err error) string {
	msg := services.UserMessage(err)
	detail := strings.TrimSpace(err.Error())
	if strings.Contains(msg, detail) {
		return "Error: " + msg
	}
	return fmt.Sprintf("Error: %s\n  detail: %s", msg, detail)
}

package config

import (
	"fmt"
	"os"
	"strings"

	"crowdwatch/internal/aggregate"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDetector()
	c.normalizeStorage()
	c.normalizeServer()
	c.normalizeNotifications()
	c.normalizeTracing()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir()
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.AnnotateDir, err = expandPath(strings.TrimSpace(c.Paths.AnnotateDir)); err != nil {
		return fmt.Errorf("paths.annotate_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDetector() {
	c.Detector.Endpoint = strings.TrimSpace(c.Detector.Endpoint)
	if value, ok := os.LookupEnv("CROWDWATCH_DETECTOR_ENDPOINT"); ok && strings.TrimSpace(value) != "" {
		c.Detector.Endpoint = strings.TrimSpace(value)
	}
	if c.Detector.Endpoint == "" {
		c.Detector.Endpoint = defaultDetectorEndpoint
	}
	c.Detector.Endpoint = strings.TrimRight(c.Detector.Endpoint, "/")
	c.Detector.Variant = strings.ToLower(strings.TrimSpace(c.Detector.Variant))
	if c.Detector.Variant == "" {
		c.Detector.Variant = defaultDetectorVariant
	}
	if c.Detector.MaxInputSide < 0 {
		c.Detector.MaxInputSide = 0
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.AccessKey = strings.TrimSpace(c.Storage.AccessKey)
	if c.Storage.AccessKey == "" {
		if value, ok := os.LookupEnv("CROWDWATCH_S3_ACCESS_KEY"); ok {
			c.Storage.AccessKey = strings.TrimSpace(value)
		}
	}
	c.Storage.SecretKey = strings.TrimSpace(c.Storage.SecretKey)
	if c.Storage.SecretKey == "" {
		if value, ok := os.LookupEnv("CROWDWATCH_S3_SECRET_KEY"); ok {
			c.Storage.SecretKey = strings.TrimSpace(value)
		}
	}
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultStorageRegion
	}
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = defaultMaxUploadMB
	}
	c.Server.Token = strings.TrimSpace(c.Server.Token)
	if c.Server.Token == "" {
		if value, ok := os.LookupEnv("CROWDWATCH_API_TOKEN"); ok {
			c.Server.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Notifications.MinDensity = strings.TrimSpace(c.Notifications.MinDensity)
	if c.Notifications.MinDensity == "" {
		c.Notifications.MinDensity = defaultNotifyMinDensity
	}
	if level, err := aggregate.ParseDensity(c.Notifications.MinDensity); err == nil {
		c.Notifications.MinDensity = level.String()
	}
}

func (c *Config) normalizeTracing() {
	c.Tracing.OTLPEndpoint = strings.TrimSpace(c.Tracing.OTLPEndpoint)
	if c.Tracing.OTLPEndpoint == "" {
		if value, ok := os.LookupEnv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); ok {
			c.Tracing.OTLPEndpoint = strings.TrimSpace(value)
		}
	}
	c.Tracing.ServiceName = strings.TrimSpace(c.Tracing.ServiceName)
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaultServiceName
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

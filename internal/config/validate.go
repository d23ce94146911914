package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"crowdwatch/internal/aggregate"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSampling(); err != nil {
		return err
	}
	if err := c.validateDetector(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSampling() error {
	if c.Sampling.SampleCount <= 0 {
		return errors.New("sampling.sample_count must be positive")
	}
	if c.Sampling.SettleDelayMS < 0 {
		return errors.New("sampling.settle_delay_ms must be >= 0")
	}
	return ensurePositiveMap(map[string]int{
		"sampling.seek_timeout_seconds": c.Sampling.SeekTimeoutSeconds,
	})
}

func (c *Config) validateDetector() error {
	if !slices.Contains(detectorVariants, c.Detector.Variant) {
		return fmt.Errorf("detector.variant %q is not supported (want one of %s)", c.Detector.Variant, strings.Join(detectorVariants, ", "))
	}
	if err := validateHTTPURL("detector.endpoint", c.Detector.Endpoint); err != nil {
		return err
	}
	return ensurePositiveMap(map[string]int{
		"detector.load_timeout_seconds":   c.Detector.LoadTimeoutSeconds,
		"detector.detect_timeout_seconds": c.Detector.DetectTimeoutSeconds,
	})
}

func (c *Config) validateStorage() error {
	if !c.StorageEnabled() {
		return nil
	}
	if strings.Contains(c.Storage.Endpoint, "://") {
		return errors.New("storage.endpoint must be host[:port] without a scheme (use storage.use_ssl)")
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return errors.New("storage.access_key and storage.secret_key must be set when storage.endpoint is set (or set CROWDWATCH_S3_ACCESS_KEY/CROWDWATCH_S3_SECRET_KEY)")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.MaxUploadMB < 0 {
		return errors.New("server.max_upload_mb must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if _, err := aggregate.ParseDensity(c.Notifications.MinDensity); err != nil {
		return fmt.Errorf("notifications.min_density: %w", err)
	}
	return nil
}

func validateHTTPURL(key, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", key, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s is missing a host", key)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

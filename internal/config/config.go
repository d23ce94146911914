package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	CacheDir    string `toml:"cache_dir"`
	LogDir      string `toml:"log_dir"`
	AnnotateDir string `toml:"annotate_dir"`
}

// Sampling controls where and how frames are pulled from a clip.
type Sampling struct {
	SampleCount        int `toml:"sample_count"`
	SettleDelayMS      int `toml:"settle_delay_ms"`
	SeekTimeoutSeconds int `toml:"seek_timeout_seconds"`
}

// Detector points at the inference service and picks the model variant.
type Detector struct {
	Endpoint             string `toml:"endpoint"`
	Variant              string `toml:"variant"`
	LoadTimeoutSeconds   int    `toml:"load_timeout_seconds"`
	DetectTimeoutSeconds int    `toml:"detect_timeout_seconds"`
	MaxInputSide         int    `toml:"max_input_side"`
}

// Storage holds S3-compatible credentials for s3:// inputs.
type Storage struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Region    string `toml:"region"`
}

// Server configures `crowdwatch serve`.
type Server struct {
	Bind        string `toml:"bind"`
	MaxUploadMB int    `toml:"max_upload_mb"`
	// Token, when set, is required as a bearer token on /v1 endpoints.
	Token string `toml:"token"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	MinDensity     string `toml:"min_density"`
}

// Tracing configures the OTLP trace exporter. An empty endpoint disables it.
type Tracing struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for crowdwatch.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Sampling      Sampling      `toml:"sampling"`
	Detector      Detector      `toml:"detector"`
	Storage       Storage       `toml:"storage"`
	Server        Server        `toml:"server"`
	Notifications Notifications `toml:"notifications"`
	Tracing       Tracing       `toml:"tracing"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("crowdwatch.toml")
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

// EnsureDirectories creates the cache and log directories. The annotate
// directory is created on demand by the annotator.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ModelCacheDir is where detector manifests are cached.
func (c *Config) ModelCacheDir() string {
	return filepath.Join(c.Paths.CacheDir, "models")
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// FFmpegBinary returns the ffmpeg executable name used for frame extraction.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// SettleDelay is the wait between a completed seek and frame capture.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Sampling.SettleDelayMS) * time.Millisecond
}

// SeekTimeout bounds a single seek.
func (c *Config) SeekTimeout() time.Duration {
	return time.Duration(c.Sampling.SeekTimeoutSeconds) * time.Second
}

// LoadTimeout bounds detector model load.
func (c *Config) LoadTimeout() time.Duration {
	return time.Duration(c.Detector.LoadTimeoutSeconds) * time.Second
}

// DetectTimeout bounds a single detect call.
func (c *Config) DetectTimeout() time.Duration {
	return time.Duration(c.Detector.DetectTimeoutSeconds) * time.Second
}

// MaxUploadBytes is the request body limit for the HTTP server.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

// StorageEnabled reports whether s3:// inputs can be resolved.
func (c *Config) StorageEnabled() bool {
	return strings.TrimSpace(c.Storage.Endpoint) != ""
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

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "crowdwatch")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/crowdwatch"
	}
	return filepath.Join(home, ".cache", "crowdwatch")
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

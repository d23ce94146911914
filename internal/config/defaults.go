package config

const (
	defaultConfigPath           = "~/.config/crowdwatch/config.toml"
	defaultLogDir               = "~/.local/share/crowdwatch/logs"
	defaultSampleCount          = 5
	defaultSettleDelayMS        = 120
	defaultSeekTimeoutSeconds   = 30
	defaultDetectorEndpoint     = "http://127.0.0.1:8501"
	defaultDetectorVariant      = "mobilenet_v2"
	defaultLoadTimeoutSeconds   = 120
	defaultDetectTimeoutSeconds = 30
	defaultMaxInputSide         = 1280
	defaultStorageRegion        = "us-east-1"
	defaultServerBind           = "127.0.0.1:7490"
	defaultMaxUploadMB          = 512
	defaultNotifyTimeout        = 10
	defaultNotifyMinDensity     = "High"
	defaultServiceName          = "crowdwatch"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

var detectorVariants = []string{"mobilenet_v2", "lite_mobilenet_v2", "mobilenet_v1"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir: defaultCacheDir(),
			LogDir:   defaultLogDir,
		},
		Sampling: Sampling{
			SampleCount:        defaultSampleCount,
			SettleDelayMS:      defaultSettleDelayMS,
			SeekTimeoutSeconds: defaultSeekTimeoutSeconds,
		},
		Detector: Detector{
			Endpoint:             defaultDetectorEndpoint,
			Variant:              defaultDetectorVariant,
			LoadTimeoutSeconds:   defaultLoadTimeoutSeconds,
			DetectTimeoutSeconds: defaultDetectTimeoutSeconds,
			MaxInputSide:         defaultMaxInputSide,
		},
		Storage: Storage{
			UseSSL: true,
			Region: defaultStorageRegion,
		},
		Server: Server{
			Bind:        defaultServerBind,
			MaxUploadMB: defaultMaxUploadMB,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			MinDensity:     defaultNotifyMinDensity,
		},
		Tracing: Tracing{
			ServiceName: defaultServiceName,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

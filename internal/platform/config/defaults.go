package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:              "0.0.0.0",
			Port:            8000,
			PublicBaseURL:   "http://127.0.0.1:8000",
			ShutdownTimeout: 10 * time.Second,
			Auth: AuthConfig{
				Enabled: false,
			},
		},
		Log: LogConfig{
			Level:   "INFO",
			Dir:     "data/logs",
			File:    "server.log",
			Console: true,
		},
		Database: DatabaseConfig{
			Path: "./data/mochimon.db",
		},
		TTS: TTSConfig{
			Provider:         "voicevox",
			EngineURL:        "http://127.0.0.1:50021",
			Folder:           "tts",
			CacheExpiryDays:  30,
			URLValidity:      7 * 24 * time.Hour,
			ErrorExpiry:      24 * time.Hour,
			SynthesisTimeout: 30 * time.Second,
			Breaker: BreakerConfig{
				ConsecutiveFailures: 5,
				OpenTimeout:         30 * time.Second,
				HalfOpenRequests:    1,
			},
		},
		Store: MetadataStoreConfig{
			Driver:          "sqlite",
			CacheTTL:        time.Minute,
			CleanupInterval: time.Hour,
			Redis: RedisConfig{
				Addr:   "127.0.0.1:6379",
				Prefix: "tts:cache:",
			},
		},
		Blob: BlobConfig{
			Driver: "local",
			Local: LocalBlobConfig{
				Root: "./data/blobs",
			},
			S3: S3Config{
				Region: "ap-northeast-1",
			},
		},
		Observability: ObservabilityConfig{
			Enabled:       false,
			ServiceName:   "mochimon-server",
			Environment:   "development",
			TraceExporter: "none",
		},
	}
}

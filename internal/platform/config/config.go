package config

import (
	"time"
)

type Config struct {
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	TTS           TTSConfig           `yaml:"tts" mapstructure:"tts"`
	Store         MetadataStoreConfig `yaml:"store" mapstructure:"store"`
	Blob          BlobConfig          `yaml:"blob" mapstructure:"blob"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

type ServerConfig struct {
	IP              string        `yaml:"ip" mapstructure:"ip"`
	Port            int           `yaml:"port" mapstructure:"port"`
	PublicBaseURL   string        `yaml:"public_base_url" mapstructure:"public_base_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	Auth            AuthConfig    `yaml:"auth" mapstructure:"auth"`
}

// AuthConfig guards the API with HS256 bearer tokens when enabled.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Secret  string `yaml:"secret" mapstructure:"secret"`
}

type LogConfig struct {
	Level   string `yaml:"log_level" mapstructure:"log_level"`
	Dir     string `yaml:"log_dir" mapstructure:"log_dir"`
	File    string `yaml:"log_file" mapstructure:"log_file"`
	Console bool   `yaml:"console" mapstructure:"console"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// TTSConfig 语音缓存服务配置
type TTSConfig struct {
	Provider            string        `yaml:"provider" mapstructure:"provider"`
	EngineURL           string        `yaml:"engine_url" mapstructure:"engine_url"`
	Folder              string        `yaml:"folder" mapstructure:"folder"`
	CacheExpiryDays     int           `yaml:"cache_expiry_days" mapstructure:"cache_expiry_days"`
	URLValidity         time.Duration `yaml:"url_validity" mapstructure:"url_validity"`
	ErrorExpiry         time.Duration `yaml:"error_expiry" mapstructure:"error_expiry"`
	SynthesisTimeout    time.Duration `yaml:"synthesis_timeout" mapstructure:"synthesis_timeout"`
	EnforceCacheHorizon bool          `yaml:"enforce_cache_horizon" mapstructure:"enforce_cache_horizon"`
	Breaker             BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// CacheHorizon converts CacheExpiryDays to a duration.
func (c TTSConfig) CacheHorizon() time.Duration {
	return time.Duration(c.CacheExpiryDays) * 24 * time.Hour
}

type BreakerConfig struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout" mapstructure:"open_timeout"`
	HalfOpenRequests    uint32        `yaml:"half_open_requests" mapstructure:"half_open_requests"`
}

// MetadataStoreConfig selects where cache entries are kept.
type MetadataStoreConfig struct {
	Driver          string        `yaml:"driver" mapstructure:"driver"`
	CacheTTL        time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
	Redis           RedisConfig   `yaml:"redis,omitempty" mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
	Prefix   string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

// BlobConfig selects where synthesized audio is stored.
type BlobConfig struct {
	Driver string          `yaml:"driver" mapstructure:"driver"`
	Bucket string          `yaml:"bucket" mapstructure:"bucket"`
	Local  LocalBlobConfig `yaml:"local" mapstructure:"local"`
	S3     S3Config        `yaml:"s3" mapstructure:"s3"`
}

type LocalBlobConfig struct {
	Root       string `yaml:"root" mapstructure:"root"`
	SigningKey string `yaml:"signing_key" mapstructure:"signing_key"`
}

type S3Config struct {
	Region          string `yaml:"region" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
}

type ObservabilityConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	ServiceName   string `yaml:"service_name" mapstructure:"service_name"`
	Environment   string `yaml:"environment" mapstructure:"environment"`
	TraceExporter string `yaml:"trace_exporter" mapstructure:"trace_exporter"`
	OTLPEndpoint  string `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	OTLPInsecure  bool   `yaml:"otlp_insecure" mapstructure:"otlp_insecure"`
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mochimon-server-go/internal/platform/errors"
)

// 默认配置文件查找顺序
var defaultPaths = []string{"config.yaml", ".config.yaml"}

// Loader reads configuration from an optional YAML file and the environment.
type Loader struct {
	useDotEnv bool
	path      string
	lookup    func(string) (string, bool)
}

// NewLoader creates a loader that reads .env, the default config file and
// the process environment.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookup:    os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the YAML file to read. A missing pinned file is an error.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnv overrides the environment lookup (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookup = lookup
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load merges defaults, the YAML file and environment overrides, then
// validates the result.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("未找到 .env 文件，使用系统环境变量")
		}
	}

	cfg := DefaultConfig()

	path, err := l.resolvePath()
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.load", "failed to read "+path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.load", "failed to parse "+path, err)
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

func (l *Loader) resolvePath() (string, error) {
	explicit := l.path
	if explicit == "" {
		explicit, _ = l.lookup("MOCHIMON_CONFIG")
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errors.Wrap(errors.KindConfig, "config.load", "config file not accessible", err)
		}
		return explicit, nil
	}
	for _, candidate := range defaultPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// applyEnv 环境变量覆盖，沿用原服务的变量名
func (l *Loader) applyEnv(cfg *Config) error {
	var errs []string

	str := func(name string, target *string) {
		if v, ok := l.lookup(name); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	integer := func(name string, target *int) {
		if v, ok := l.lookup(name); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, name+": "+err.Error())
				return
			}
			*target = n
		}
	}
	boolean := func(name string, target *bool) {
		if v, ok := l.lookup(name); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, name+": "+err.Error())
				return
			}
			*target = b
		}
	}
	duration := func(name string, target *time.Duration) {
		if v, ok := l.lookup(name); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, name+": "+err.Error())
				return
			}
			*target = d
		}
	}

	str("VOICEVOX_ENGINE_URL", &cfg.TTS.EngineURL)
	str("STORAGE_BUCKET_NAME", &cfg.Blob.Bucket)
	str("STORAGE_TTS_FOLDER", &cfg.TTS.Folder)
	integer("TTS_CACHE_EXPIRY_DAYS", &cfg.TTS.CacheExpiryDays)
	boolean("TTS_ENFORCE_CACHE_HORIZON", &cfg.TTS.EnforceCacheHorizon)
	duration("TTS_SYNTHESIS_TIMEOUT", &cfg.TTS.SynthesisTimeout)

	str("MOCHIMON_SERVER_IP", &cfg.Server.IP)
	integer("MOCHIMON_SERVER_PORT", &cfg.Server.Port)
	str("MOCHIMON_PUBLIC_BASE_URL", &cfg.Server.PublicBaseURL)
	boolean("MOCHIMON_AUTH_ENABLED", &cfg.Server.Auth.Enabled)
	str("MOCHIMON_AUTH_SECRET", &cfg.Server.Auth.Secret)

	str("MOCHIMON_LOG_LEVEL", &cfg.Log.Level)
	str("MOCHIMON_LOG_DIR", &cfg.Log.Dir)
	str("MOCHIMON_DB_PATH", &cfg.Database.Path)

	str("MOCHIMON_STORE_DRIVER", &cfg.Store.Driver)
	duration("MOCHIMON_STORE_CACHE_TTL", &cfg.Store.CacheTTL)
	str("MOCHIMON_REDIS_ADDR", &cfg.Store.Redis.Addr)
	str("MOCHIMON_REDIS_PASSWORD", &cfg.Store.Redis.Password)
	integer("MOCHIMON_REDIS_DB", &cfg.Store.Redis.DB)

	str("MOCHIMON_BLOB_DRIVER", &cfg.Blob.Driver)
	str("MOCHIMON_BLOB_ROOT", &cfg.Blob.Local.Root)
	str("MOCHIMON_BLOB_SIGNING_KEY", &cfg.Blob.Local.SigningKey)
	str("MOCHIMON_S3_REGION", &cfg.Blob.S3.Region)
	str("MOCHIMON_S3_ENDPOINT", &cfg.Blob.S3.Endpoint)

	boolean("MOCHIMON_OBSERVABILITY_ENABLED", &cfg.Observability.Enabled)
	str("MOCHIMON_TRACE_EXPORTER", &cfg.Observability.TraceExporter)
	str("MOCHIMON_OTLP_ENDPOINT", &cfg.Observability.OTLPEndpoint)

	if len(errs) > 0 {
		return errors.New(errors.KindConfig, "config.env", "invalid environment overrides: "+strings.Join(errs, "; "))
	}
	return nil
}

func (l *Loader) validate(cfg *Config) error {
	const op = "config.validate"
	const maxURLValidity = 7 * 24 * time.Hour

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New(errors.KindConfig, op, fmt.Sprintf("invalid server port %d", cfg.Server.Port))
	}
	if cfg.Server.Auth.Enabled && cfg.Server.Auth.Secret == "" {
		return errors.New(errors.KindConfig, op, "server.auth.secret is required when auth is enabled")
	}
	if cfg.TTS.CacheExpiryDays < 1 {
		return errors.New(errors.KindConfig, op, "tts.cache_expiry_days must be at least 1")
	}
	if cfg.TTS.URLValidity > maxURLValidity {
		return errors.New(errors.KindConfig, op, "tts.url_validity cannot exceed 7 days")
	}
	if strings.TrimSpace(cfg.TTS.EngineURL) == "" {
		return errors.New(errors.KindConfig, op, "tts.engine_url is required")
	}

	switch strings.ToLower(cfg.Store.Driver) {
	case "memory", "sqlite":
	case "redis":
		if cfg.Store.Redis.Addr == "" {
			return errors.New(errors.KindConfig, op, "store.redis.addr is required for the redis driver")
		}
	default:
		return errors.New(errors.KindConfig, op, "unknown store driver: "+cfg.Store.Driver)
	}

	switch strings.ToLower(cfg.Blob.Driver) {
	case "local":
		if cfg.Blob.Local.Root == "" {
			return errors.New(errors.KindConfig, op, "blob.local.root is required for the local driver")
		}
	case "s3":
		if cfg.Blob.Bucket == "" {
			return errors.New(errors.KindConfig, op, "blob.bucket is required for the s3 driver")
		}
	default:
		return errors.New(errors.KindConfig, op, "unknown blob driver: "+cfg.Blob.Driver)
	}

	switch strings.ToLower(cfg.Observability.TraceExporter) {
	case "", "none", "stdout", "otlp":
	default:
		return errors.New(errors.KindConfig, op, "unknown trace exporter: "+cfg.Observability.TraceExporter)
	}
	return nil
}

package blob

import (
	"context"
	"fmt"
	"time"

	"mochimon-server-go/internal/domain/tts/inter"
)

// Driver identifiers supported by the audio blob store.
const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

// Config selects and configures a blob store driver.
type Config struct {
	Driver string
	Bucket string
	Local  LocalConfig
	S3     S3Config
}

// LocalConfig configures the filesystem driver.
type LocalConfig struct {
	Root string
	// PublicBaseURL is the externally reachable server origin used in signed URLs.
	PublicBaseURL string
	SigningKey    string
}

// S3Config configures the S3 driver. Endpoint and ForcePathStyle target
// S3-compatible services such as MinIO or LocalStack.
type S3Config struct {
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
}

// New builds the configured blob store.
func New(ctx context.Context, cfg Config) (inter.BlobStore, error) {
	switch cfg.Driver {
	case "", DriverLocal:
		return NewLocal(cfg.Local)
	case DriverS3:
		return NewS3(ctx, cfg.Bucket, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported blob driver: %s", cfg.Driver)
	}
}

// ClampValidity bounds a requested URL lifetime to (0, MaxURLValidity].
func ClampValidity(validity time.Duration) time.Duration {
	if validity <= 0 || validity > inter.MaxURLValidity {
		return inter.MaxURLValidity
	}
	return validity
}

package bootstrap

import (
	"time"

	domainauth "mochimon-server-go/internal/domain/auth"
	platformconfig "mochimon-server-go/internal/platform/config"
	platformerrors "mochimon-server-go/internal/platform/errors"
)

// IssueToken mints an API bearer token with the configured auth secret.
func IssueToken(configPath, subject string, ttl time.Duration) (string, error) {
	res, err := platformconfig.NewLoader().WithPath(configPath).Load()
	if err != nil {
		return "", err
	}
	return issueToken(res.Config, subject, ttl)
}

func issueToken(cfg *platformconfig.Config, subject string, ttl time.Duration) (string, error) {
	tokens, err := domainauth.NewAuthToken(cfg.Server.Auth.Secret)
	if err != nil {
		return "", platformerrors.Wrap(platformerrors.KindConfig, "bootstrap.issue-token", "server.auth.secret is not configured", err)
	}
	return tokens.WithTTL(ttl).GenerateToken(subject)
}

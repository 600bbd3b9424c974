package blob

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// BlobRoutePrefix is the HTTP path under which locally stored audio is served.
const BlobRoutePrefix = "/api/tts/blob/"

var (
	ErrInvalidToken = errors.New("invalid blob token")
	ErrPathMismatch = errors.New("blob token does not match path")
)

type blobClaims struct {
	Path string `json:"path"`
	jwt.RegisteredClaims
}

// URLSigner issues and verifies HS256 capability tokens for blob paths.
type URLSigner struct {
	secretKey []byte
	baseURL   string
}

// NewURLSigner builds a signer producing URLs rooted at baseURL.
func NewURLSigner(secretKey, baseURL string) (*URLSigner, error) {
	if secretKey == "" {
		return nil, errors.New("blob signing key is empty")
	}
	return &URLSigner{
		secretKey: []byte(secretKey),
		baseURL:   strings.TrimRight(baseURL, "/"),
	}, nil
}

// Sign returns a URL for objectPath valid until now+validity.
func (s *URLSigner) Sign(objectPath string, validity time.Duration, now time.Time) (string, error) {
	claims := blobClaims{
		Path: objectPath,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ClampValidity(validity))),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign blob token: %w", err)
	}

	escaped := (&url.URL{Path: objectPath}).EscapedPath()
	return s.baseURL + BlobRoutePrefix + escaped + "?token=" + url.QueryEscape(token), nil
}

// Verify checks that token is valid, unexpired and issued for objectPath.
func (s *URLSigner) Verify(objectPath, token string) error {
	claims := &blobClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	if claims.Path != objectPath {
		return ErrPathMismatch
	}
	return nil
}

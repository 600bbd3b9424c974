package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const metaSuffix = ".meta.json"

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	ContentType string            `json:"contentType"`
	Size        int64             `json:"size"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ModTime     time.Time         `json:"modTime"`
}

// LocalStore keeps audio objects on the filesystem and serves them through
// JWT-signed URLs handled by the HTTP layer.
type LocalStore struct {
	root   string
	signer *URLSigner
	now    func() time.Time
}

// NewLocal creates the root directory and the URL signer.
func NewLocal(cfg LocalConfig) (*LocalStore, error) {
	root := cfg.Root
	if root == "" {
		root = "./data/blobs"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	signer, err := NewURLSigner(cfg.SigningKey, cfg.PublicBaseURL)
	if err != nil {
		return nil, err
	}
	return &LocalStore{root: root, signer: signer, now: time.Now}, nil
}

// resolve maps an object path to a file under root, rejecting escapes.
func (s *LocalStore) resolve(objectPath string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(objectPath))
	if clean == string(filepath.Separator) || strings.HasSuffix(clean, metaSuffix) {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *LocalStore) Upload(_ context.Context, objectPath string, data []byte, contentType string, metadata map[string]string) error {
	target, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	info := ObjectInfo{ContentType: contentType, Size: int64(len(data)), Metadata: metadata, ModTime: s.now()}
	meta, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := writeAtomic(target+metaSuffix, meta); err != nil {
		return err
	}
	return writeAtomic(target, data)
}

func writeAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (s *LocalStore) Exists(_ context.Context, objectPath string) (bool, error) {
	target, err := s.resolve(objectPath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *LocalStore) SignURL(_ context.Context, objectPath string, validity time.Duration) (string, error) {
	if _, err := s.resolve(objectPath); err != nil {
		return "", err
	}
	return s.signer.Sign(objectPath, validity, s.now())
}

func (s *LocalStore) Delete(_ context.Context, objectPath string) error {
	target, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	for _, p := range []string{target, target + metaSuffix} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Verify checks a token presented with a blob download request.
func (s *LocalStore) Verify(objectPath, token string) error {
	return s.signer.Verify(objectPath, token)
}

// Open returns the object file and its recorded info. The caller closes the file.
func (s *LocalStore) Open(objectPath string) (*os.File, ObjectInfo, error) {
	target, err := s.resolve(objectPath)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	file, err := os.Open(target)
	if err != nil {
		return nil, ObjectInfo{}, err
	}

	var info ObjectInfo
	if raw, err := os.ReadFile(target + metaSuffix); err == nil {
		_ = json.Unmarshal(raw, &info)
	}
	if stat, err := file.Stat(); err == nil {
		info.Size = stat.Size()
		if info.ModTime.IsZero() {
			info.ModTime = stat.ModTime()
		}
	}
	if info.ContentType == "" {
		info.ContentType = "application/octet-stream"
	}
	return file, info, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage persists files to the local filesystem.
//
// SignURL joins the public base path instead of signing: locally served files
// carry no expiry.
type LocalStorage struct {
	baseDir    string
	publicBase string
}

// NewLocalStorage creates a LocalStorage instance. The directory is created if
// it does not exist.
func NewLocalStorage(baseDir, publicBase string) (*LocalStorage, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		baseDir = "datas/images"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	publicBase = strings.TrimSpace(publicBase)
	if publicBase == "" {
		publicBase = "/files"
	}
	return &LocalStorage{baseDir: baseDir, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

// LocalBaseDir returns the root directory used for storing files.
func (s *LocalStorage) LocalBaseDir() string {
	return s.baseDir
}

// Save writes the provided bytes to disk and returns the object key.
func (s *LocalStorage) Save(ctx context.Context, data []byte, opts SaveOptions) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty payload")
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	key := buildObjectKey(opts.OwnerID, opts.BaseName, opts.Extension)

	absPath := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if opts.SkipIfExists {
		if info, err := os.Stat(absPath); err == nil && info.Size() > 0 {
			return key, nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(absPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return key, nil
}

// SignURL maps the key onto the public serving path.
func (s *LocalStorage) SignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", errors.New("empty object key")
	}
	return s.publicBase + "/" + trimmed, nil
}

var _ Storage = (*LocalStorage)(nil)
var _ LocalBaseDirProvider = (*LocalStorage)(nil)

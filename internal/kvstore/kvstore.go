package kvstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store 是设备端的持久键值存储抽象。
//
// Get 在键不存在时返回 (nil, nil)；ListKeys 用于跨分区的管理类遍历。
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	RemoveMany(keys []string) error
	ListKeys() ([]string, error)
}

// FileStore persists each key as a single file under a base directory.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a FileStore instance. The directory is created if it
// does not exist.
func NewFileStore(baseDir string) (*FileStore, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		baseDir = "datas/cache"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Get reads the value stored for key, returning nil when absent.
func (s *FileStore) Get(key string) ([]byte, error) {
	name, err := s.fileFor(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read key %q: %w", key, err)
	}
	return data, nil
}

// Set writes the value via a temp file plus rename so readers never observe a
// partially written entry.
func (s *FileStore) Set(key string, value []byte) error {
	name, err := s.fileFor(key)
	if err != nil {
		return err
	}
	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("write key %q: %w", key, err)
	}
	if err := os.Rename(tmp, name); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit key %q: %w", key, err)
	}
	return nil
}

// RemoveMany deletes the given keys, ignoring ones that are already gone.
func (s *FileStore) RemoveMany(keys []string) error {
	for _, key := range keys {
		name, err := s.fileFor(key)
		if err != nil {
			return err
		}
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove key %q: %w", key, err)
		}
	}
	return nil
}

// ListKeys returns every stored key. Only ".kv" entries belong to the store;
// anything else in the directory is ignored.
func (s *FileStore) ListKeys() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".kv") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".kv"))
	}
	return keys, nil
}

func (s *FileStore) fileFor(key string) (string, error) {
	sanitized := sanitizeKey(key)
	if sanitized == "" {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.baseDir, sanitized+".kv"), nil
}

// sanitizeKey maps a key to a filesystem-safe name. The mapping must be
// injective: two distinct keys may never share a file, so bytes outside the
// safe set are hex-escaped rather than folded or dropped.
func sanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	builder := strings.Builder{}
	builder.Grow(len(key))
	for i := 0; i < len(key); i++ {
		ch := key[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9',
			ch == '-', ch == '_', ch == '.', ch == '@':
			builder.WriteByte(ch)
		default:
			fmt.Fprintf(&builder, "%%%02X", ch)
		}
	}
	return builder.String()
}

var _ Store = (*FileStore)(nil)

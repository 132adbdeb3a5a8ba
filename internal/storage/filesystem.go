package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const fileSuffix = ".json"

// FileSystem keeps one file per key under baseDir.
type FileSystem struct {
	baseDir string
}

var _ Store = (*FileSystem)(nil)

func NewFileSystem(baseDir string) (*FileSystem, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving state directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &FileSystem{baseDir: abs}, nil
}

// sanitizePath maps a key to a file inside baseDir, rejecting keys that
// would escape it or nest into subdirectories.
func (fs *FileSystem) sanitizePath(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}

	fullPath := filepath.Join(fs.baseDir, key+fileSuffix)
	if !strings.HasPrefix(fullPath, fs.baseDir+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}

	return fullPath, nil
}

func (fs *FileSystem) Put(ctx context.Context, key string, value []byte) error {
	fullPath, err := fs.sanitizePath(key)
	if err != nil {
		return opError("put", key, err)
	}
	return opError("put", key, writeFileAtomic(fullPath, value, 0600))
}

func (fs *FileSystem) Get(ctx context.Context, key string) ([]byte, bool, error) {
	fullPath, err := fs.sanitizePath(key)
	if err != nil {
		return nil, false, opError("get", key, err)
	}

	data, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, opError("get", key, err)
	}
	return data, true, nil
}

func (fs *FileSystem) Keys(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		return nil, opError("keys", "", err)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), fileSuffix))
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear deletes every key file in the directory, not only the ones this
// process wrote.
func (fs *FileSystem) Clear(ctx context.Context) error {
	keys, err := fs.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		err := os.Remove(filepath.Join(fs.baseDir, key+fileSuffix))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return opError("clear", key, err)
		}
	}
	return nil
}

func (fs *FileSystem) Close() error {
	return nil
}

// writeFileAtomic writes to a temporary file, fsyncs and renames it over
// the target so a crash never leaves a half-written value behind.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

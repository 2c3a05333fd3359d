package blobstore

import (
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const lockShards = 64

// FS provides a simple file system based blob store.
type FS struct {
	basePath string

	// Sharded by key so that writers of distinct keys do not block each
	// other while the at-most-one-physical-write guarantee holds per key.
	locks [lockShards]sync.Mutex
}

func NewFS(basePath string) *FS {
	return &FS{basePath: basePath}
}

func (s *FS) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = io.WriteString(h, key)
	return &s.locks[h.Sum32()%lockShards]
}

func (s *FS) path(key string) string {
	return filepath.Join(s.basePath, transformKey(key))
}

// Put writes the content of r under key. If the key already exists the call
// is a no-op that reports success without reading r.
func (s *FS) Put(key string, r io.Reader) error {
	mu := s.lock(key)
	mu.Lock()
	defer mu.Unlock()

	path := s.path(key)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	file, err := os.CreateTemp(dir, "lfsd_tmp_")
	if err != nil {
		return err
	}
	defer os.Remove(file.Name())

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	return os.Rename(file.Name(), path)
}

// Get returns the stored bytes for key as an io.ReadSeekCloser.
func (s *FS) Get(key string) (io.ReadSeekCloser, os.FileInfo, error) {
	path := s.path(key)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, stat, nil
}

func (s *FS) Info(key string) (os.FileInfo, error) {
	stat, err := os.Stat(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return stat, nil
}

// Has returns true if the key exists in the store.
func (s *FS) Has(key string) bool {
	if _, err := os.Stat(s.path(key)); os.IsNotExist(err) {
		return false
	}
	return true
}

func transformKey(key string) string {
	if len(key) < 5 {
		return key
	}
	return filepath.Join(key[0:2], key[2:4], key[4:])
}

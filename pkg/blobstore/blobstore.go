// Package blobstore provides key-value persistence for opaque byte blobs.
package blobstore

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrNotFound is returned when reading a key that was never written.
	ErrNotFound = errors.New("blob not found")
)

// ReadOnlyError is returned by every write primitive of a read-only store.
// It carries the offending key so that a misconfigured deployment can be
// diagnosed from the error alone.
type ReadOnlyError struct {
	Key string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("ReadOnlyPut(%q)", e.Key)
}

// Store is a blob store keyed by opaque string keys.
//
// Put is put-if-absent: writing a key that already exists succeeds without
// touching storage, and concurrent writes for the same key result in at most
// one physical write.
type Store interface {
	Put(key string, r io.Reader) error
	Get(key string) (io.ReadSeekCloser, os.FileInfo, error)
	Has(key string) bool
	Info(key string) (os.FileInfo, error)
}

package blobstore

import (
	"io"
	"os"
)

// readOnly wraps a Store and rejects every write while passing reads through
// to the underlying store unchanged.
type readOnly struct {
	next Store
}

// ReadOnly returns a read-only view of next. Put fails fast with a
// *ReadOnlyError naming the key; no bytes reach the underlying store.
func ReadOnly(next Store) Store {
	return &readOnly{next: next}
}

func (s *readOnly) Put(key string, r io.Reader) error {
	return &ReadOnlyError{Key: key}
}

func (s *readOnly) Get(key string) (io.ReadSeekCloser, os.FileInfo, error) {
	return s.next.Get(key)
}

func (s *readOnly) Has(key string) bool {
	return s.next.Has(key)
}

func (s *readOnly) Info(key string) (os.FileInfo, error) {
	return s.next.Info(key)
}

// Package lfs implements the content-addressed object store behind the LFS
// endpoints.
package lfs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"os"

	"github.com/wzshiming/lfsd/pkg/blobstore"
)

var (
	ErrHashMismatch = errors.New("Content hash does not match OID")
	ErrSizeMismatch = errors.New("Content size does not match")
)

// Content is a content-addressed store over a blobstore. Objects are keyed by
// the hex sha256 of their bytes; a blob is physically written exactly once per
// distinct OID no matter how many times it is submitted.
type Content struct {
	store blobstore.Store
	meta  *MetaDB
}

func NewContent(store blobstore.Store, meta *MetaDB) *Content {
	return &Content{store: store, meta: meta}
}

// Put stores the content of r under oid. The recorded size for an existing
// OID must match or Put fails with a *CollisionError. New content is verified
// against both size and oid before it is committed; a resubmission of stored
// content succeeds without rewriting storage.
func (s *Content) Put(oid string, size int64, r io.Reader) error {
	if recorded, ok := s.meta.Size(oid); ok && recorded != size {
		return &CollisionError{Oid: oid, Recorded: recorded, Requested: size}
	}

	if err := s.store.Put(oid, newVerifyReader(oid, size, r)); err != nil {
		return err
	}

	return s.meta.Ensure(oid, size)
}

// Get retrieves the content for oid from the store, returning it as an
// io.ReadSeekCloser suitable for http.ServeContent.
func (s *Content) Get(oid string) (io.ReadSeekCloser, os.FileInfo, error) {
	return s.store.Get(oid)
}

func (s *Content) Info(oid string) (os.FileInfo, error) {
	return s.store.Info(oid)
}

// Exists returns true if the object is fully stored: bytes present and size
// recorded. An interrupted upload reports false and is repaired by the next
// submission.
func (s *Content) Exists(oid string) bool {
	if !s.store.Has(oid) {
		return false
	}
	_, ok := s.meta.Size(oid)
	return ok
}

// verifyReader checks the byte count and sha256 of everything read through it
// and turns the final io.EOF into an error on mismatch, so the blobstore
// never commits bytes that do not match their OID.
type verifyReader struct {
	oid  string
	size int64

	read int64
	hash hash.Hash
	r    io.Reader
}

func newVerifyReader(oid string, size int64, r io.Reader) *verifyReader {
	return &verifyReader{
		oid:  oid,
		size: size,
		hash: sha256.New(),
		r:    r,
	}
}

func (v *verifyReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	if n > 0 {
		v.hash.Write(p[:n])
		v.read += int64(n)
		if v.read > v.size {
			return n, ErrSizeMismatch
		}
	}
	if err == io.EOF {
		if v.read != v.size {
			return n, ErrSizeMismatch
		}
		if hex.EncodeToString(v.hash.Sum(nil)) != v.oid {
			return n, ErrHashMismatch
		}
	}
	return n, err
}

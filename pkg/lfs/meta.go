package lfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
)

var (
	errNoBucket = errors.New("bucket not found")
)

var (
	objectsBucket = []byte("objects")
)

// CollisionError reports a Put whose size disagrees with the size first
// recorded for the same OID. Since the OID is a content hash, this means
// either a hash collision or corrupted data, and the store refuses it.
type CollisionError struct {
	Oid       string
	Recorded  int64
	Requested int64
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("size mismatch for %s: recorded %d, requested %d", e.Oid, e.Recorded, e.Requested)
}

// MetaDB records the size of every stored object. It provides the atomic
// create-if-absent primitive the content store builds its collision guard on.
// The storage is handled by boltdb.
type MetaDB struct {
	db *bolt.DB
}

// NewMetaDB creates a new MetaDB using the boltdb database at dbFile.
func NewMetaDB(dbFile string) *MetaDB {
	err := os.MkdirAll(filepath.Dir(dbFile), 0755)
	if err != nil {
		panic(fmt.Sprintf("Failed to create directory for boltdb file %s: %v", dbFile, err))
	}
	db, err := bolt.Open(dbFile, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		panic(fmt.Sprintf("Failed to open boltdb file %s: %v", dbFile, err))
	}

	db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(objectsBucket); err != nil {
			return err
		}
		return nil
	})

	return &MetaDB{db: db}
}

// Ensure records size for oid if no size is recorded yet. If a size is
// already recorded it must match; otherwise Ensure fails with a
// *CollisionError and the record is left untouched.
func (s *MetaDB) Ensure(oid string, size int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(objectsBucket)
		if bucket == nil {
			return errNoBucket
		}

		data := bucket.Get([]byte(oid))
		if data != nil {
			recorded := int64(binary.BigEndian.Uint64(data))
			if recorded != size {
				return &CollisionError{Oid: oid, Recorded: recorded, Requested: size}
			}
			return nil
		}

		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(size))
		return bucket.Put([]byte(oid), buf[:])
	})
}

// Size returns the recorded size for oid, or false if oid is unknown.
func (s *MetaDB) Size(oid string) (int64, bool) {
	var size int64
	var ok bool
	s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(objectsBucket)
		if bucket == nil {
			return errNoBucket
		}

		data := bucket.Get([]byte(oid))
		if data != nil {
			size = int64(binary.BigEndian.Uint64(data))
			ok = true
		}
		return nil
	})
	return size, ok
}

// Close closes the underlying boltdb.
func (s *MetaDB) Close() {
	s.db.Close()
}

package lfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestMetaDB(t *testing.T) *MetaDB {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "lfs-meta-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	db := NewMetaDB(filepath.Join(tmpDir, "meta.db"))
	t.Cleanup(db.Close)
	return db
}

func TestMetaDBEnsure(t *testing.T) {
	db := newTestMetaDB(t)

	oid := "ab02c2a1923c8eb11cb3ddab70320746d71d32ad63f255698dc67c3295757746"

	if _, ok := db.Size(oid); ok {
		t.Error("Size() ok = true before Ensure")
	}

	if err := db.Ensure(oid, 2048); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	size, ok := db.Size(oid)
	if !ok {
		t.Fatal("Size() ok = false after Ensure")
	}
	if size != 2048 {
		t.Errorf("Size() = %d, want %d", size, 2048)
	}

	// Same size again is a no-op.
	if err := db.Ensure(oid, 2048); err != nil {
		t.Errorf("Ensure() error on matching size = %v", err)
	}
}

func TestMetaDBEnsureSizeMismatch(t *testing.T) {
	db := newTestMetaDB(t)

	oid := "ab02c2a1923c8eb11cb3ddab70320746d71d32ad63f255698dc67c3295757746"
	if err := db.Ensure(oid, 2048); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	err := db.Ensure(oid, 1024)
	if err == nil {
		t.Fatal("Ensure() expected error for size mismatch")
	}

	var colErr *CollisionError
	if !errors.As(err, &colErr) {
		t.Fatalf("Ensure() error = %T, want *CollisionError", err)
	}
	if colErr.Oid != oid {
		t.Errorf("CollisionError.Oid = %q, want %q", colErr.Oid, oid)
	}
	if colErr.Recorded != 2048 || colErr.Requested != 1024 {
		t.Errorf("CollisionError sizes = (%d, %d), want (2048, 1024)", colErr.Recorded, colErr.Requested)
	}

	// The record is untouched.
	size, ok := db.Size(oid)
	if !ok || size != 2048 {
		t.Errorf("Size() = (%d, %v), want (2048, true)", size, ok)
	}
}

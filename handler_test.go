package lfsd_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gorilla/handlers"
	"github.com/wzshiming/lfsd"
	"github.com/wzshiming/lfsd/pkg/authenticate"
)

// TestReadOnlyMode checks that a read-only server rejects every write while
// still serving previously stored objects.
func TestReadOnlyMode(t *testing.T) {
	repoDir, err := os.MkdirTemp("", "lfsd-test-data")
	if err != nil {
		t.Fatalf("Failed to create temp data dir: %v", err)
	}
	defer os.RemoveAll(repoDir)

	stored := []byte("stored while writable")
	storedHash := sha256.Sum256(stored)
	storedOid := hex.EncodeToString(storedHash[:])

	// Populate the store through a writable server first.
	func() {
		h := lfsd.NewHandler(lfsd.WithRootDir(repoDir))
		defer h.Close()
		server := httptest.NewServer(handlers.LoggingHandler(os.Stderr, h))
		defer server.Close()

		href := fmt.Sprintf("%s/repo/upload/%s/%d", server.URL, storedOid, len(stored))
		resp := uploadContent(t, href, stored)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Upload status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
	}()

	h := lfsd.NewHandler(lfsd.WithRootDir(repoDir), lfsd.WithReadOnly())
	defer h.Close()
	server := httptest.NewServer(handlers.LoggingHandler(os.Stderr, h))
	defer server.Close()

	t.Run("PutFails", func(t *testing.T) {
		content := []byte("never stored")
		hash := sha256.Sum256(content)
		oid := hex.EncodeToString(hash[:])

		href := fmt.Sprintf("%s/repo/upload/%s/%d", server.URL, oid, len(content))
		resp := uploadContent(t, href, content)
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("Upload status = %d, want %d", resp.StatusCode, http.StatusForbidden)
		}

		// The JSON encoding escapes the quotes in ReadOnlyPut("<key>").
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "ReadOnlyPut(") || !strings.Contains(string(body), oid) {
			t.Errorf("Upload body = %s, want it to name ReadOnlyPut and the key", body)
		}

		// No bytes were persisted.
		dresp, err := http.Get(fmt.Sprintf("%s/repo/download/%s", server.URL, oid))
		if err != nil {
			t.Fatalf("Failed to send download request: %v", err)
		}
		defer dresp.Body.Close()
		if dresp.StatusCode != http.StatusNotFound {
			t.Errorf("Download status = %d, want %d", dresp.StatusCode, http.StatusNotFound)
		}
	})

	t.Run("ReadsStillWork", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("%s/repo/download/%s", server.URL, storedOid))
		if err != nil {
			t.Fatalf("Failed to send download request: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Download status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		got, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("Failed to read download body: %v", err)
		}
		if string(got) != string(stored) {
			t.Errorf("Download body = %q, want %q", got, stored)
		}
	})

	t.Run("BatchStillReportsStored", func(t *testing.T) {
		br := postBatch(t, server.URL, "repo", "upload", storedOid, int64(len(stored)))
		if _, ok := br.Objects[0].Actions["upload"]; ok {
			t.Error("Unexpected upload action for stored object")
		}
		if _, ok := br.Objects[0].Actions["download"]; !ok {
			t.Error("Expected download action for stored object")
		}
	})
}

func TestAuthentication(t *testing.T) {
	repoDir, err := os.MkdirTemp("", "lfsd-test-data")
	if err != nil {
		t.Fatalf("Failed to create temp data dir: %v", err)
	}
	defer os.RemoveAll(repoDir)

	h := lfsd.NewHandler(
		lfsd.WithRootDir(repoDir),
		lfsd.WithAuthenticate(&authenticate.Static{Token: "secret-token"}),
	)
	defer h.Close()
	server := httptest.NewServer(handlers.LoggingHandler(os.Stderr, h))
	defer server.Close()

	oid := "ab02c2a1923c8eb11cb3ddab70320746d71d32ad63f255698dc67c3295757746"
	body, _ := json.Marshal(map[string]any{
		"operation": "upload",
		"objects":   []map[string]any{{"oid": oid, "size": 2048}},
	})

	newBatchRequest := func() *http.Request {
		req, err := http.NewRequest(http.MethodPost, server.URL+"/repo/objects/batch", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("Failed to create request: %v", err)
		}
		req.Header.Set("Accept", metaMediaType)
		req.Header.Set("Content-Type", metaMediaType)
		return req
	}

	t.Run("Unauthenticated", func(t *testing.T) {
		resp, err := http.DefaultClient.Do(newBatchRequest())
		if err != nil {
			t.Fatalf("Failed to send request: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Batch status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
		}
	})

	t.Run("TokenAuthenticated", func(t *testing.T) {
		req := newBatchRequest()
		req.SetBasicAuth("anyone", "secret-token")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Failed to send request: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Batch status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
	})
}

// TestRequestLog checks the append-only request log exposed by the server.
func TestRequestLog(t *testing.T) {
	repoDir, err := os.MkdirTemp("", "lfsd-test-data")
	if err != nil {
		t.Fatalf("Failed to create temp data dir: %v", err)
	}
	defer os.RemoveAll(repoDir)

	h := lfsd.NewHandler(lfsd.WithRootDir(repoDir))
	defer h.Close()
	server := httptest.NewServer(handlers.LoggingHandler(os.Stderr, h))
	defer server.Close()

	content := []byte("logged content")
	hash := sha256.Sum256(content)
	oid := hex.EncodeToString(hash[:])

	href := fmt.Sprintf("%s/repo/upload/%s/%d", server.URL, oid, len(content))
	resp := uploadContent(t, href, content)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Upload status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	lresp, err := http.Get(server.URL + "/api/requests")
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	defer lresp.Body.Close()
	if lresp.StatusCode != http.StatusOK {
		t.Fatalf("List requests status = %d, want %d", lresp.StatusCode, http.StatusOK)
	}

	var entries []struct {
		Method string `json:"method"`
		Path   string `json:"path"`
		Code   int    `json:"code"`
	}
	if err := json.NewDecoder(lresp.Body).Decode(&entries); err != nil {
		t.Fatalf("Failed to decode request log: %v", err)
	}

	found := false
	for _, e := range entries {
		if e.Method == http.MethodPut && strings.Contains(e.Path, "/upload/"+oid+"/") && e.Code == http.StatusOK {
			found = true
		}
	}
	if !found {
		t.Errorf("Request log %+v does not contain the upload transfer", entries)
	}
}

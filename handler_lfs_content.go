package lfsd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wzshiming/lfsd/pkg/blobstore"
	"github.com/wzshiming/lfsd/pkg/lfs"
)

// handlePutContent receives data from the client and puts it into the
// content store
func (h *Handler) handlePutContent(w http.ResponseWriter, r *http.Request) {
	rv := unpack(r)

	size, err := strconv.ParseInt(mux.Vars(r)["size"], 10, 64)
	if err != nil || size < 0 {
		responseJSON(w, fmt.Sprintf("invalid size %q", mux.Vars(r)["size"]), http.StatusBadRequest)
		return
	}
	rv.Size = size

	if h.s3Store != nil {
		url, err := h.s3Store.SignPut(rv.Oid)
		if err != nil {
			responseJSON(w, fmt.Sprintf("failed to sign S3 URL for LFS object %q: %v", rv.Oid, err), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
		return
	}

	var body io.Reader = r.Body

	// Small uploads are sniffed for a pointer file: a misconfigured client
	// sometimes pushes the pointer where the content belongs.
	if size > 0 && size <= lfs.MaxPointerSize {
		buf, err := io.ReadAll(io.LimitReader(r.Body, size+1))
		if err != nil {
			responseJSON(w, fmt.Sprintf("failed to read LFS object %s: %v", rv.Oid, err), http.StatusBadRequest)
			return
		}
		if p, err := lfs.DecodePointer(bytes.NewReader(buf)); err == nil && p.Oid != rv.Oid {
			responseJSON(w, fmt.Sprintf("LFS pointer for %s uploaded in place of its content", p.Oid), http.StatusBadRequest)
			return
		}
		body = bytes.NewReader(buf)
	}

	if err := h.contentStore.Put(rv.Oid, rv.Size, body); err != nil {
		var roErr *blobstore.ReadOnlyError
		var colErr *lfs.CollisionError
		switch {
		case errors.As(err, &roErr):
			responseJSON(w, fmt.Sprintf("failed to put LFS object %s: root cause: %v", rv.Oid, roErr), http.StatusForbidden)
		case errors.As(err, &colErr):
			responseJSON(w, fmt.Sprintf("failed to put LFS object %s: %v", rv.Oid, colErr), http.StatusConflict)
		case errors.Is(err, lfs.ErrSizeMismatch), errors.Is(err, lfs.ErrHashMismatch):
			responseJSON(w, fmt.Sprintf("failed to put LFS object %s: %v", rv.Oid, err), http.StatusBadRequest)
		default:
			responseJSON(w, fmt.Sprintf("failed to put LFS object %s: %v", rv.Oid, err), http.StatusInternalServerError)
		}
		return
	}
}

// handleGetContent gets the content from the content store
func (h *Handler) handleGetContent(w http.ResponseWriter, r *http.Request) {
	rv := unpack(r)
	if h.s3Store != nil {
		url, err := h.s3Store.SignGet(rv.Oid)
		if err != nil {
			responseJSON(w, fmt.Sprintf("failed to sign S3 URL for LFS object %q: %v", rv.Oid, err), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
		return
	}

	content, stat, err := h.contentStore.Get(rv.Oid)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			responseJSON(w, fmt.Sprintf("LFS object %s not found", rv.Oid), http.StatusNotFound)
			return
		}
		responseJSON(w, fmt.Sprintf("failed to get LFS object %s: %v", rv.Oid, err), http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = content.Close()
	}()

	w.Header().Set("ETag", fmt.Sprintf("\"%s\"", rv.Oid))
	http.ServeContent(w, r, rv.Oid, stat.ModTime(), content)
}

func (h *Handler) handleVerifyObject(w http.ResponseWriter, r *http.Request) {
	rv := unpack(r)
	if h.s3Store != nil {
		info, err := h.s3Store.Info(rv.Oid)
		if err != nil {
			responseJSON(w, fmt.Sprintf("LFS object %s not found", rv.Oid), http.StatusNotFound)
			return
		}
		if info.Size() != rv.Size {
			responseJSON(w, "Size mismatch", http.StatusBadRequest)
			return
		}
		return
	}

	info, err := h.contentStore.Info(rv.Oid)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			responseJSON(w, fmt.Sprintf("LFS object %s not found", rv.Oid), http.StatusNotFound)
			return
		}
		responseJSON(w, fmt.Sprintf("failed to get LFS object %s info: %v", rv.Oid, err), http.StatusInternalServerError)
		return
	}

	if info.Size() != rv.Size {
		responseJSON(w, "Size mismatch", http.StatusBadRequest)
		return
	}
}

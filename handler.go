// Package lfsd provides an HTTP handler for serving Git LFS objects out of a
// content-addressed blob store with upload deduplication.
package lfsd

import (
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/wzshiming/lfsd/pkg/authenticate"
	"github.com/wzshiming/lfsd/pkg/blobstore"
	"github.com/wzshiming/lfsd/pkg/eventlog"
	"github.com/wzshiming/lfsd/pkg/lfs"
)

// Handler handles HTTP requests for LFS batch negotiation and object
// transfer.
type Handler struct {
	rootDir  string
	readOnly bool

	contentStore *lfs.Content
	metaDB       *lfs.MetaDB
	s3Store      *lfs.S3

	authenticate authenticate.Authenticator
	eventLog     *eventlog.Log

	root *mux.Router

	serve http.Handler

	next http.Handler
}

type Option func(*Handler)

func WithRootDir(rootDir string) Option {
	return func(h *Handler) {
		h.rootDir = rootDir
	}
}

// WithReadOnly puts the store in read-only mode: every write primitive fails
// fast and nothing is persisted.
func WithReadOnly() Option {
	return func(h *Handler) {
		h.readOnly = true
	}
}

// WithAuthenticate requires every request to authenticate against a.
func WithAuthenticate(a authenticate.Authenticator) Option {
	return func(h *Handler) {
		h.authenticate = a
	}
}

// WithLFSS3 configures the S3 transfer backend; object bytes are then moved
// through presigned URLs instead of this server.
func WithLFSS3(s3Store *lfs.S3) Option {
	return func(h *Handler) {
		h.s3Store = s3Store
	}
}

// WithEventLog sets the request log. If unset, a fresh log is created.
func WithEventLog(log *eventlog.Log) Option {
	return func(h *Handler) {
		h.eventLog = log
	}
}

// WithNext sets the next http.Handler to call if the request is not handled
// by this handler.
func WithNext(next http.Handler) Option {
	return func(h *Handler) {
		h.next = next
	}
}

// NewHandler creates a new Handler with the given options.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		rootDir: "./data",
		root:    mux.NewRouter(),
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.eventLog == nil {
		h.eventLog = eventlog.NewLog()
	}

	h.metaDB = lfs.NewMetaDB(filepath.Join(h.rootDir, "lfs", "meta.db"))

	var store blobstore.Store = blobstore.NewFS(filepath.Join(h.rootDir, "lfs"))
	if h.readOnly {
		store = blobstore.ReadOnly(store)
	}
	h.contentStore = lfs.NewContent(store, h.metaDB)

	h.register()
	h.serve = eventlog.Middleware(h.eventLog, h.root)
	return h
}

// ServeHTTP implements the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.serve.ServeHTTP(w, r)
}

// EventLog returns the append-only request log.
func (h *Handler) EventLog() *eventlog.Log {
	return h.eventLog
}

// Close releases the metadata database.
func (h *Handler) Close() {
	h.metaDB.Close()
}

func (h *Handler) register() {
	h.registryAPI(h.root)
	h.registryLFS(h.root)
	h.root.NotFoundHandler = h.next
}

func (h *Handler) registryAPI(r *mux.Router) {
	r.HandleFunc("/api/requests", h.requireAuth(h.handleListRequests)).Methods(http.MethodGet)
}

// handleListRequests dumps the request log, one entry per completed request.
func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	responseJSON(w, h.eventLog.Entries(), http.StatusOK)
}

func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if h.authenticate == nil {
		return next
	}
	return authenticate.Middleware(h.authenticate, next).ServeHTTP
}

func responseJSON(w http.ResponseWriter, data any, sc int) {
	header := w.Header()
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json; charset=utf-8")
	}

	if sc >= http.StatusBadRequest {
		header.Del("Content-Length")
		header.Set("X-Content-Type-Options", "nosniff")
	}

	if sc != 0 {
		w.WriteHeader(sc)
	}

	if data == nil {
		_, _ = w.Write([]byte("{}"))
		return
	}

	switch t := data.(type) {
	case error:
		var dataErr struct {
			Error string `json:"error"`
		}
		dataErr.Error = t.Error()
		data = dataErr
	case string:
		var dataErr struct {
			Error string `json:"error"`
		}
		dataErr.Error = t
		data = dataErr
	}

	enc := json.NewEncoder(w)
	_ = enc.Encode(data)
}

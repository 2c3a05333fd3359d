package lfsd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

const (
	contentMediaType = "application/vnd.git-lfs"
	metaMediaType    = contentMediaType + "+json"
)

func (h *Handler) registryLFS(r *mux.Router) {
	r.HandleFunc("/{repo:.+}/objects/batch", h.requireAuth(h.handleBatch)).Methods(http.MethodPost).MatcherFunc(metaMatcher)
	r.HandleFunc("/{repo:.+}/upload/{oid}/{size}", h.requireAuth(h.handlePutContent)).Methods(http.MethodPut)
	r.HandleFunc("/{repo:.+}/download/{oid}", h.requireAuth(h.handleGetContent)).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/{repo:.+}/verify/{oid}", h.requireAuth(h.handleVerifyObject)).Methods(http.MethodPost)
}

// handleBatch provides the batch api
func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	bv := unpackBatch(r)

	var responseObjects []*lfsRepresentation

	// Each entry is decided independently of the others.
	for _, object := range bv.Objects {
		if bv.Operation != "upload" {
			// Download intents always get a download action; a missing
			// object surfaces as 404 at transfer time.
			responseObjects = append(responseObjects, lfsRepresent(object, true, false))
			continue
		}

		if h.exists(object.Oid) {
			// Already stored: tell the client to skip the transfer.
			responseObjects = append(responseObjects, lfsRepresent(object, true, false))
			continue
		}

		responseObjects = append(responseObjects, lfsRepresent(object, false, true))
	}

	w.Header().Set("Content-Type", metaMediaType)

	respobj := &lfsBatchResponse{
		Transfer: "basic",
		Objects:  responseObjects,
	}

	responseJSON(w, respobj, http.StatusOK)
}

func (h *Handler) exists(oid string) bool {
	if h.s3Store != nil {
		fi, _ := h.s3Store.Info(oid)
		return fi != nil
	}
	return h.contentStore.Exists(oid)
}

// lfsRepresent takes a RequestVars and turns it into a Representation
// suitable for json encoding
func lfsRepresent(rv *lfsRequestVars, download, upload bool) *lfsRepresentation {
	rep := &lfsRepresentation{
		Oid:     rv.Oid,
		Size:    rv.Size,
		Actions: make(map[string]*lfsLink),
	}

	header := make(map[string]string)
	verifyHeader := make(map[string]string)

	header["Accept"] = contentMediaType

	if len(rv.Authorization) > 0 {
		header["Authorization"] = rv.Authorization
		verifyHeader["Authorization"] = rv.Authorization
	}

	if download {
		rep.Actions["download"] = &lfsLink{Href: rv.downloadLink(), Header: header}
	}

	if upload {
		rep.Actions["upload"] = &lfsLink{Href: rv.uploadLink(), Header: header}
		rep.Actions["verify"] = &lfsLink{Href: rv.verifyLink(), Header: verifyHeader}
	}
	return rep
}

func unpack(r *http.Request) *lfsRequestVars {
	vars := mux.Vars(r)
	rv := &lfsRequestVars{
		Repo:          vars["repo"],
		Oid:           vars["oid"],
		Authorization: r.Header.Get("Authorization"),
	}

	if r.Method == http.MethodPost {
		var p lfsRequestVars
		dec := json.NewDecoder(r.Body)
		err := dec.Decode(&p)
		if err != nil {
			return rv
		}

		if p.Oid != "" {
			rv.Oid = p.Oid
		}
		rv.Size = p.Size
	}

	return rv
}

func unpackBatch(r *http.Request) *lfsBatchVars {
	vars := mux.Vars(r)

	var bv lfsBatchVars

	dec := json.NewDecoder(r.Body)
	err := dec.Decode(&bv)
	if err != nil {
		return &bv
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwdProto := r.Header.Get("X-Forwarded-Proto"); fwdProto != "" {
		scheme = fwdProto
	}
	origin := fmt.Sprintf("%s://%s", scheme, r.Host)

	for i := 0; i < len(bv.Objects); i++ {
		bv.Objects[i].Repo = vars["repo"]
		bv.Objects[i].Authorization = r.Header.Get("Authorization")
		bv.Objects[i].Origin = origin
	}

	return &bv
}

// lfsRequestVars contain variables from the HTTP request. Variables from
// routing, json body decoding, and some headers are stored.
type lfsRequestVars struct {
	Origin string
	Oid    string `json:"oid"`
	Size   int64  `json:"size"`

	Repo          string
	Authorization string
}

func (v *lfsRequestVars) uploadLink() string {
	return fmt.Sprintf("%s/%s/upload/%s/%d", v.Origin, v.Repo, v.Oid, v.Size)
}

func (v *lfsRequestVars) downloadLink() string {
	return fmt.Sprintf("%s/%s/download/%s", v.Origin, v.Repo, v.Oid)
}

func (v *lfsRequestVars) verifyLink() string {
	return fmt.Sprintf("%s/%s/verify/%s", v.Origin, v.Repo, v.Oid)
}

type lfsBatchVars struct {
	Transfers []string          `json:"transfers,omitempty"`
	Operation string            `json:"operation"`
	Objects   []*lfsRequestVars `json:"objects"`
}

type lfsBatchResponse struct {
	Transfer string               `json:"transfer,omitempty"`
	Objects  []*lfsRepresentation `json:"objects"`
}

// lfsRepresentation is object metadata as seen by clients of the lfs server.
type lfsRepresentation struct {
	Oid     string              `json:"oid"`
	Size    int64               `json:"size"`
	Actions map[string]*lfsLink `json:"actions"`
	Error   *lfsObjectError     `json:"error,omitempty"`
}

type lfsObjectError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// lfsLink provides a structure used to build a hypermedia representation of
// an HTTP lfsLink.
type lfsLink struct {
	Href      string            `json:"href"`
	Header    map[string]string `json:"header,omitempty"`
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
}

// metaMatcher provides a mux.MatcherFunc that only allows requests that
// contain an Accept header with the metaMediaType
func metaMatcher(r *http.Request, m *mux.RouteMatch) bool {
	mediaParts := strings.Split(r.Header.Get("Accept"), ";")
	mt := mediaParts[0]
	return mt == metaMediaType
}

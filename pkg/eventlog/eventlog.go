// Package eventlog records one entry per completed HTTP request in an
// append-only log, for observability and test assertions.
package eventlog

import (
	"net/http"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
)

// Entry describes a single completed request.
type Entry struct {
	Time     time.Time     `json:"time"`
	Method   string        `json:"method"`
	Path     string        `json:"path"`
	Code     int           `json:"code"`
	Written  int64         `json:"written"`
	Duration time.Duration `json:"duration"`
}

// Log is an append-only event log guarded by a single writer lock. Entries
// are never mutated or removed once appended.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Entries returns a snapshot of the log.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Count returns the number of entries accepted by match.
func (l *Log) Count(match func(Entry) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if match(e) {
			n++
		}
	}
	return n
}

// Middleware appends one entry to log for every request completed by next.
func Middleware(log *Log, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m := httpsnoop.CaptureMetrics(next, w, r)
		log.Append(Entry{
			Time:     start,
			Method:   r.Method,
			Path:     r.URL.Path,
			Code:     m.Code,
			Written:  m.Written,
			Duration: m.Duration,
		})
	})
}

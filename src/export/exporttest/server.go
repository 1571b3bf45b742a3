// Package exporttest serves canned build-export feeds for tests.
package exporttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Build is one build served by a Server. Events are JSON payloads of the
// detail feed, in order.
type Build struct {
	ID     string
	Events []string
}

// Server is an httptest server speaking the build-export protocol. Event
// ids are 1-based positions, so Last-Event-ID resumes after that position.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	builds   []Build
	requests []*http.Request
}

// NewServer starts a Server for builds. Callers must Close it.
func NewServer(builds ...Build) *Server {
	s := &Server{builds: builds}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Requests returns the requests received so far.
func (s *Server) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*http.Request(nil), s.requests...)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Clone(r.Context()))
	s.mu.Unlock()

	after, _ := strconv.Atoi(r.Header.Get("Last-Event-ID"))
	path := strings.TrimPrefix(r.URL.Path, "/build-export/v1")

	switch {
	case strings.HasPrefix(path, "/builds/since/"):
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: Heartbeat\ndata: {}\n\n")
		for i, b := range s.builds {
			if i+1 <= after {
				continue
			}
			ref, _ := json.Marshal(map[string]interface{}{"buildId": b.ID, "timestamp": 0})
			fmt.Fprintf(w, "id: %d\nevent: Build\ndata: %s\n\n", i+1, ref)
		}

	case strings.HasPrefix(path, "/build/") && strings.HasSuffix(path, "/events"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/build/"), "/events")
		b, ok := s.find(id)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for i, ev := range b.Events {
			if i+1 <= after {
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: BuildEvent\ndata: %s\n\n", i+1, ev)
		}

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) find(id string) (Build, bool) {
	for _, b := range s.builds {
		if b.ID == id {
			return b, true
		}
	}
	return Build{}, false
}

// Started returns a BuildStarted payload.
func Started(ms int64) string {
	return fmt.Sprintf(`{"timestamp":%d,"type":{"eventType":"BuildStarted"},"data":{}}`, ms)
}

// Finished returns a BuildFinished payload, with a failure when failed.
func Finished(ms int64, failed bool) string {
	failure := "null"
	if failed {
		failure = `{"message":"build failed"}`
	}
	return fmt.Sprintf(`{"timestamp":%d,"type":{"eventType":"BuildFinished"},"data":{"failure":%s}}`, ms, failure)
}

// Tag returns a UserTag payload.
func Tag(tag string) string {
	return fmt.Sprintf(`{"timestamp":0,"type":{"eventType":"UserTag"},"data":{"tag":%q}}`, tag)
}

// Value returns a UserNamedValue payload.
func Value(key, value string) string {
	return fmt.Sprintf(`{"timestamp":0,"type":{"eventType":"UserNamedValue"},"data":{"key":%q,"value":%q}}`, key, value)
}

// Simple returns a successful build lasting durationMs.
func Simple(id string, durationMs int64, extra ...string) Build {
	events := []string{Started(1_000_000)}
	events = append(events, extra...)
	events = append(events, Finished(1_000_000+durationMs, false))
	return Build{ID: id, Events: events}
}

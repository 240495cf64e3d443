package remotestore

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tembleque/usersync"
)

// Server is an in-memory reference implementation of the remote store wire
// protocol Client speaks, used to exercise retry and precondition-failure
// paths in tests without a real backend.
type Server struct {
	mu        sync.Mutex
	latest    map[usersync.Resource]string
	versions  map[usersync.Resource]map[string]versionEntry
	router    chi.Router
}

type versionEntry struct {
	content []byte
	created time.Time
}

// NewServer builds an empty Server. Resources have no content and no
// versions until the first WriteResource-equivalent POST.
func NewServer() *Server {
	s := &Server{
		latest:   make(map[usersync.Resource]string),
		versions: make(map[usersync.Resource]map[string]versionEntry),
	}
	r := chi.NewRouter()
	r.Get("/resources/{resource}", s.handleRead)
	r.Post("/resources/{resource}", s.handleWrite)
	r.Get("/resources/{resource}/versions", s.handleList)
	r.Get("/resources/{resource}/versions/{ref}", s.handleResolve)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	resource := usersync.Resource(chi.URLParam(r, "resource"))

	s.mu.Lock()
	ref, ok := s.latest[resource]
	var content []byte
	if ok {
		content = s.versions[resource][ref].content
	}
	s.mu.Unlock()

	resp := readResourceResponse{Ref: ref, Absent: !ok}
	if ok {
		resp.Content = string(content)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	resource := usersync.Resource(chi.URLParam(r, "resource"))

	var bodyReader io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer gr.Close()
		bodyReader = gr
	}

	body, err := io.ReadAll(io.LimitReader(bodyReader, DefaultLimits.MaxDecompressedBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	expected := r.Header.Get("If-Match")

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.latest[resource]
	if expected != current {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}

	ref := uuid.NewString()
	if s.versions[resource] == nil {
		s.versions[resource] = make(map[string]versionEntry)
	}
	s.versions[resource][ref] = versionEntry{content: body, created: time.Now()}
	s.latest[resource] = ref

	writeJSON(w, http.StatusOK, writeResourceResponse{Ref: ref})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	resource := usersync.Resource(chi.URLParam(r, "resource"))

	s.mu.Lock()
	entries := make([]refEntry, 0, len(s.versions[resource]))
	for ref, v := range s.versions[resource] {
		entries = append(entries, refEntry{Ref: ref, Created: v.created})
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Created.Before(entries[j].Created) })
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	resource := usersync.Resource(chi.URLParam(r, "resource"))
	ref := chi.URLParam(r, "ref")

	s.mu.Lock()
	entry, ok := s.versions[resource][ref]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "version not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(entry.content)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

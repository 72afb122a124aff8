// Package sample implements the example backend and a minimal engine server,
// for local demos and for tests.
package sample

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/jxwalker/docfetch/internal/engine"
	"github.com/jxwalker/docfetch/internal/logging"
)

// Document is a seeded document. Layers lists layer names; "" is the default layer.
type Document struct {
	ID      string   `yaml:"id"`
	Title   string   `yaml:"title"`
	Layers  []string `yaml:"layers"`
	Content string   `yaml:"content"`
}

type layerKey struct{ doc, layer string }

// Server holds the sample state shared by the backend and engine handlers.
type Server struct {
	userID   string
	password string
	log      *logging.Logger

	mu        sync.Mutex
	docs      []Document
	serial    int64
	minSerial int64 // tokens below this serial are expired
	revoked   map[string]bool
	hits      map[string]int
	hold      map[layerKey]chan struct{}
}

func NewServer(userID, password string, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	return &Server{
		userID:   userID,
		password: password,
		log:      log,
		revoked:  make(map[string]bool),
		hits:     make(map[string]int),
		hold:     make(map[layerKey]chan struct{}),
	}
}

func (s *Server) AddDocument(d Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(d.Layers) == 0 {
		d.Layers = []string{""}
	}
	s.docs = append(s.docs, d)
}

// Revoke withdraws access to the document on the engine side: valid tokens get
// 403, and the backend stops listing it. The backend keeps issuing tokens, since
// it does not track engine permissions.
func (s *Server) Revoke(documentID string) {
	s.mu.Lock()
	s.revoked[documentID] = true
	s.mu.Unlock()
}

// ExpireTokens invalidates every token issued so far.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	s.minSerial = s.serial + 1
	s.mu.Unlock()
}

// Hold blocks layer downloads for the layer until the returned func is called.
func (s *Server) Hold(documentID, layer string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.hold[layerKey{documentID, layer}] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.hold, layerKey{documentID, layer})
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Hits returns how many requests reached the named route.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

func (s *Server) count(route string) {
	s.mu.Lock()
	s.hits[route]++
	s.mu.Unlock()
}

func (s *Server) issueLocked(doc, layer string) string {
	s.serial++
	return engine.EncodeToken(engine.Claims{DocumentID: doc, Layer: layer, Serial: s.serial})
}

// IssueToken returns a fresh token for a layer.
func (s *Server) IssueToken(doc, layer string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(doc, layer)
}

func (s *Server) findLocked(id string) (Document, bool) {
	for _, d := range s.docs {
		if d.ID == id {
			return d, true
		}
	}
	return Document{}, false
}

// BackendHandler serves /api/documents and /api/document/{id}[/{layer}].
func (s *Server) BackendHandler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.basicAuth)
	api.HandleFunc("/documents", s.handleDocuments).Methods(http.MethodGet)
	api.HandleFunc("/document/{id}", s.handleToken).Methods(http.MethodGet)
	api.HandleFunc("/document/{id}/{layer}", s.handleToken).Methods(http.MethodGet)
	return r
}

// EngineHandler serves /layers/{id}[/{layer}] and the matching /auth probes.
func (s *Server) EngineHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/layers/{id}", s.handleLayer).Methods(http.MethodGet)
	r.HandleFunc("/layers/{id}/auth", s.handleLayerAuth).Methods(http.MethodGet)
	r.HandleFunc("/layers/{id}/{layer}", s.handleLayer).Methods(http.MethodGet)
	r.HandleFunc("/layers/{id}/{layer}/auth", s.handleLayerAuth).Methods(http.MethodGet)
	return r
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(s.userID+":"+s.password))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(want)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="sample"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type documentJSON struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Tokens []string `json:"tokens"`
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	s.count("documents")
	s.mu.Lock()
	out := make([]documentJSON, 0, len(s.docs))
	for _, d := range s.docs {
		if s.revoked[d.ID] {
			continue
		}
		dj := documentJSON{ID: d.ID, Title: d.Title, Tokens: []string{}}
		for _, l := range d.Layers {
			dj.Tokens = append(dj.Tokens, s.issueLocked(d.ID, l))
		}
		out = append(out, dj)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.count("token")
	vars := mux.Vars(r)
	id, layer := vars["id"], vars["layer"]
	s.mu.Lock()
	d, ok := s.findLocked(id)
	var tok string
	if ok && hasLayer(d, layer) {
		tok = s.issueLocked(id, layer)
	}
	s.mu.Unlock()
	if tok == "" {
		http.Error(w, fmt.Sprintf("no such layer %q of document %q", layer, id), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": tok})
}

// authorize validates the engine Authorization header against the layer in the path.
func (s *Server) authorize(r *http.Request) (Document, string, int) {
	vars := mux.Vars(r)
	id, layer := vars["id"], vars["layer"]
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Token token=")
	raw = strings.Trim(raw, `"`)
	claims, err := engine.ParseToken(raw)
	if err != nil || claims.DocumentID != id || claims.Layer != layer {
		return Document{}, layer, http.StatusUnauthorized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if claims.Serial < s.minSerial {
		return Document{}, layer, http.StatusUnauthorized
	}
	if s.revoked[id] {
		return Document{}, layer, http.StatusForbidden
	}
	d, ok := s.findLocked(id)
	if !ok || !hasLayer(d, layer) {
		return Document{}, layer, http.StatusNotFound
	}
	return d, layer, http.StatusOK
}

func (s *Server) handleLayer(w http.ResponseWriter, r *http.Request) {
	s.count("layer")
	d, layer, status := s.authorize(r)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}
	s.mu.Lock()
	ch := s.hold[layerKey{d.ID, layer}]
	s.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		case <-r.Context().Done():
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": d.ID,
		"layer":       layer,
		"title":       d.Title,
		"content":     d.Content,
	})
}

func (s *Server) handleLayerAuth(w http.ResponseWriter, r *http.Request) {
	s.count("auth")
	if _, _, status := s.authorize(r); status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func hasLayer(d Document, layer string) bool {
	for _, l := range d.Layers {
		if l == layer {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

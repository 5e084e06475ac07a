// Package stub is an in-memory stand-in for the document analysis
// backend. It speaks the same HTTP surface so the client, its tests and
// local development work without the real service.
package stub

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// document is one uploaded image with its generated summary and the
// question history attached to it.
type document struct {
	ID       string
	Path     string
	Title    string
	Summary  string
	Image    []byte
	MTime    float64
	Messages []historyMessage
}

type historyMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// docStore keeps uploaded documents per user cookie. Documents survive
// session expiry, the same way the real backend keeps images on disk
// after it forgets the chat session. That split is what makes session
// recovery testable against the stub.
type docStore struct {
	mu       sync.Mutex
	docs     map[string]map[string]*document // userID -> docID -> doc
	sessions map[string]map[string]bool      // userID -> docID -> live
	lastID   int64
}

func newDocStore() *docStore {
	return &docStore{
		docs:     map[string]map[string]*document{},
		sessions: map[string]map[string]bool{},
	}
}

// nextDocID issues millisecond-timestamp ids, nudged forward on
// collision so two uploads in the same millisecond stay distinct.
func (s *docStore) nextDocID() string {
	now := time.Now().UnixMilli()
	if now <= s.lastID {
		now = s.lastID + 1
	}
	s.lastID = now
	return strconv.FormatInt(now, 10)
}

func (s *docStore) createSession(userID, filename string, image []byte) *document {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextDocID()
	doc := &document{
		ID:      id,
		Path:    "/data/uploads/" + id + ".jpg",
		Title:   filename,
		Summary: fmt.Sprintf("Scanned document %q (%d bytes).", filename, len(image)),
		Image:   append([]byte(nil), image...),
		MTime:   float64(time.Now().UnixMilli()) / 1000,
	}
	if s.docs[userID] == nil {
		s.docs[userID] = map[string]*document{}
	}
	if s.sessions[userID] == nil {
		s.sessions[userID] = map[string]bool{}
	}
	s.docs[userID][id] = doc
	s.sessions[userID][id] = true
	return doc
}

// sessionDoc returns the document only when its chat session is live.
func (s *docStore) sessionDoc(userID, docID string) (*document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sessions[userID][docID] {
		return nil, false
	}
	doc, ok := s.docs[userID][docID]
	return doc, ok
}

func (s *docStore) doc(userID, docID string) (*document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[userID][docID]
	return doc, ok
}

func (s *docStore) appendMessages(userID, docID string, msgs ...historyMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[userID][docID]; ok {
		doc.Messages = append(doc.Messages, msgs...)
	}
}

func (s *docStore) recent(userID string) []*document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*document, 0, len(s.docs[userID]))
	for _, doc := range s.docs[userID] {
		out = append(out, doc)
	}
	return out
}

func (s *docStore) imageByPath(userID, path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.docs[userID] {
		if doc.Path == path {
			return doc.Image, true
		}
	}
	return nil, false
}

func (s *docStore) delete(userID, docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[userID][docID]; !ok {
		return false
	}
	delete(s.docs[userID], docID)
	delete(s.sessions[userID], docID)
	return true
}

// ExpireSessions drops every live chat session while keeping the
// documents and their images. Exercises the client's recovery path.
func (s *docStore) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = map[string]map[string]bool{}
}

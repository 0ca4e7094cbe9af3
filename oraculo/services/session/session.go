// Package session holds live conversations in a bounded process-local cache
// backed by a durable transcript log.
package session

import (
	"sync"
	"time"

	"oraculo/oraculo/services/llm"
	"oraculo/oraculo/types"
)

type Role string

const (
	RoleDocumentContext Role = "document-context"
	RoleUser            Role = "user"
	RoleAssistant       Role = "assistant"
)

// Turn is immutable once appended.
type Turn struct {
	Role      Role
	Content   string
	CreatedAt time.Time
	Metadata  map[string]any
}

// Session is the cached unit of conversation state. Fields other than
// Transcript and Handle never change after creation.
type Session struct {
	ID                 string
	OwnerID            string
	Provider           string
	Model              string
	DocumentType       types.DocumentType
	NormalizedDocument string
	IsSummarized       bool
	Transcript         []Turn

	// Handle is bound lazily on the first model call after reconstruction.
	Handle *llm.Handle

	// mu guards Transcript, dirty and generation against readers that do
	// not hold the session lock (history pages, listings).
	mu         sync.RWMutex
	generation int64
	// dirty marks a session whose last durable write failed; the next write replaces the record.
	dirty bool
}

// Record is the durable counterpart of a Session.
type Record struct {
	SessionID          string
	OwnerID            string
	Provider           string
	Model              string
	DocumentType       types.DocumentType
	NormalizedDocument string
	IsSummarized       bool
	Transcript         []Turn
	UpdatedAt          time.Time
}

func (s *Session) record() Record {
	return Record{
		SessionID:          s.ID,
		OwnerID:            s.OwnerID,
		Provider:           s.Provider,
		Model:              s.Model,
		DocumentType:       s.DocumentType,
		NormalizedDocument: s.NormalizedDocument,
		IsSummarized:       s.IsSummarized,
		Transcript:         s.Snapshot(),
	}
}

func fromRecord(r *Record) *Session {
	return &Session{
		ID:                 r.SessionID,
		OwnerID:            r.OwnerID,
		Provider:           r.Provider,
		Model:              r.Model,
		DocumentType:       r.DocumentType,
		NormalizedDocument: r.NormalizedDocument,
		IsSummarized:       r.IsSummarized,
		Transcript:         r.Transcript,
	}
}

// Snapshot returns a copy of the transcript.
func (s *Session) Snapshot() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.Transcript))
	copy(out, s.Transcript)
	return out
}

func (s *Session) isDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

func (s *Session) setDirty(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = v
}

func (s *Session) gen() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Session) lastTurnAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.Transcript) == 0 {
		return time.Time{}
	}
	return s.Transcript[len(s.Transcript)-1].CreatedAt
}

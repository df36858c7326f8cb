package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/logging"
)

// ErrNotFound is returned for operations on unknown session ids.
var ErrNotFound = errors.New("会话不存在")

// activeWindow keeps empty sessions visible in listings for a while after
// creation.
const activeWindow = time.Hour

const defaultListLimit = 100

// Store keeps sessions in memory. State lives for the process lifetime
// only; a restart starts with an empty store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   logging.Logger
	now      func() time.Time
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		logger:   logging.NewComponentLogger("session"),
		now:      time.Now,
	}
}

// CreateOptions seeds a new session. Zero values get defaults.
type CreateOptions struct {
	// SessionID pins the id. Creating an id that already exists is
	// idempotent and returns the existing session unchanged.
	SessionID string
	Name      string
	ModelID   string
}

// Create makes a new session and returns a snapshot of it.
func (s *Store) Create(opts CreateOptions) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.SessionID != "" {
		if existing, ok := s.sessions[opts.SessionID]; ok {
			return existing.clone()
		}
	}

	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now()
	name := opts.Name
	if name == "" {
		name = DefaultName(now)
	}

	sess := &Session{
		SessionID:  id,
		CreatedAt:  now,
		LastActive: now,
		Name:       name,
		ModelID:    opts.ModelID,
		Messages:   []Message{},
	}
	s.sessions[id] = sess
	s.logger.Debug("created session %s (%s)", id, name)
	return sess.clone()
}

// Get returns a snapshot of the session.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.clone(), nil
}

// Mutate applies fn to the session under the store lock and refreshes
// last_active. fn sees the live session; it must not retain references.
func (s *Store) Mutate(id string, fn func(*Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(sess); err != nil {
		return err
	}
	sess.LastActive = s.now()
	return nil
}

// AppendMessage adds one message and bumps the message count.
func (s *Store) AppendMessage(id string, msg Message) error {
	return s.Mutate(id, func(sess *Session) error {
		if msg.Timestamp.IsZero() {
			msg.Timestamp = s.now()
		}
		sess.Messages = append(sess.Messages, msg)
		sess.MessageCount = len(sess.Messages)
		return nil
	})
}

// ClearMessages empties the history, keeping the session itself.
func (s *Store) ClearMessages(id string) error {
	return s.Mutate(id, func(sess *Session) error {
		sess.Messages = []Message{}
		sess.MessageCount = 0
		return nil
	})
}

// Rename updates the session name.
func (s *Store) Rename(id, name string) error {
	return s.Mutate(id, func(sess *Session) error {
		sess.Name = name
		return nil
	})
}

// SetModel updates the session's model selection.
func (s *Store) SetModel(id, modelID string) error {
	return s.Mutate(id, func(sess *Session) error {
		sess.ModelID = modelID
		return nil
	})
}

// Delete removes the session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// List returns session summaries ordered by last_active descending. Unless
// includeEmpty is set, sessions with no messages drop out once they have
// been idle for over an hour. limit <= 0 applies the default limit.
func (s *Store) List(includeEmpty bool, limit int) []Summary {
	if limit <= 0 {
		limit = defaultListLimit
	}

	s.mu.RLock()
	cutoff := s.now().Add(-activeWindow)
	var out []Summary
	for _, sess := range s.sessions {
		if includeEmpty || sess.MessageCount > 0 || sess.LastActive.After(cutoff) {
			out = append(out, sess.summary())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastActive.After(out[j].LastActive) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Cleanup deletes sessions idle for longer than maxAge and reports how many
// were removed.
func (s *Store) Cleanup(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-maxAge)
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastActive.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("cleaned up %d expired sessions", removed)
	}
	return removed
}

package bot

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/multibot/internal/models"
)

// Session is one conversation with a persona. turn serializes Ask calls;
// mu guards the transcript so it stays readable during a long turn.
type Session struct {
	ID        string
	CreatedAt time.Time

	turn sync.Mutex

	mu       sync.RWMutex
	name     string
	messages []models.Message
}

func (s *Session) append(msg models.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

func (s *Session) info(active bool) SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionInfo{
		ID:        s.ID,
		Name:      s.name,
		CreatedAt: s.CreatedAt,
		Active:    active,
		Messages:  len(s.messages),
	}
}

// SessionInfo is a read-only view of a session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
	Messages  int       `json:"messages"`
}

type personaSessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
	active   string
}

// SessionStore keeps every persona's sessions in memory. Each persona always
// has at least one session.
type SessionStore struct {
	personas map[string]*personaSessions
	now      func() time.Time
}

// NewSessionStore seeds one session per persona key.
func NewSessionStore(personaKeys []string) *SessionStore {
	s := &SessionStore{
		personas: make(map[string]*personaSessions, len(personaKeys)),
		now:      time.Now,
	}
	for _, key := range personaKeys {
		ps := &personaSessions{sessions: make(map[string]*Session)}
		s.create(ps)
		s.personas[key] = ps
	}
	return s
}

func (s *SessionStore) state(persona string) (*personaSessions, error) {
	ps, ok := s.personas[persona]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPersonaNotFound, persona)
	}
	return ps, nil
}

// create adds a session and makes it active. ps.mu must be held or ps unshared.
func (s *SessionStore) create(ps *personaSessions) *Session {
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
		name:      fmt.Sprintf("Chat %d", len(ps.sessions)+1),
	}
	ps.sessions[sess.ID] = sess
	ps.order = append(ps.order, sess.ID)
	ps.active = sess.ID
	return sess
}

// CreateSession adds a session named "Chat N" and makes it active.
func (s *SessionStore) CreateSession(persona string) (SessionInfo, error) {
	ps, err := s.state(persona)
	if err != nil {
		return SessionInfo{}, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return s.create(ps).info(true), nil
}

// Session returns the session with id, or the active one when id is empty.
func (s *SessionStore) Session(persona, id string) (*Session, error) {
	ps, err := s.state(persona)
	if err != nil {
		return nil, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if id == "" {
		id = ps.active
	}
	sess, ok := ps.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// SwitchSession makes id the active session of persona.
func (s *SessionStore) SwitchSession(persona, id string) error {
	ps, err := s.state(persona)
	if err != nil {
		return err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := ps.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	ps.active = id
	return nil
}

// RenameSession renames a session; an empty id means the active one.
func (s *SessionStore) RenameSession(persona, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrBlankName
	}
	sess, err := s.Session(persona, id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	sess.name = name
	sess.mu.Unlock()
	return nil
}

// DeleteSession removes a session. Deleting the active session activates the
// oldest remaining one.
func (s *SessionStore) DeleteSession(persona, id string) error {
	ps, err := s.state(persona)
	if err != nil {
		return err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, ok := ps.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if len(ps.sessions) == 1 {
		return &SessionInvariantError{Persona: persona}
	}

	delete(ps.sessions, id)
	for i, sid := range ps.order {
		if sid == id {
			ps.order = append(ps.order[:i], ps.order[i+1:]...)
			break
		}
	}
	if ps.active == id {
		ps.active = ps.order[0]
	}
	return nil
}

// ClearSession drops every message of a session.
func (s *SessionStore) ClearSession(persona, id string) error {
	sess, err := s.Session(persona, id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	sess.messages = nil
	sess.mu.Unlock()
	return nil
}

// ListSessions returns sessions in creation order.
func (s *SessionStore) ListSessions(persona string) ([]SessionInfo, error) {
	ps, err := s.state(persona)
	if err != nil {
		return nil, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()

	out := make([]SessionInfo, 0, len(ps.order))
	for _, id := range ps.order {
		out = append(out, ps.sessions[id].info(id == ps.active))
	}
	return out, nil
}

// ActiveSession describes the active session of persona.
func (s *SessionStore) ActiveSession(persona string) (SessionInfo, error) {
	sess, err := s.Session(persona, "")
	if err != nil {
		return SessionInfo{}, err
	}
	return sess.info(true), nil
}

// Transcript returns a copy of the session's messages, oldest first.
func (s *SessionStore) Transcript(persona, id string) ([]models.Message, error) {
	sess, err := s.Session(persona, id)
	if err != nil {
		return nil, err
	}
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	out := make([]models.Message, len(sess.messages))
	copy(out, sess.messages)
	return out, nil
}

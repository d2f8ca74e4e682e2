package rtmp

import (
	"errors"
	"sync"
)

// ContextStore keeps track of the sessions whose handshake has completed.
type ContextStore interface {
	Register(session *Session) error
	Destroy(sessionID string)
	Get(sessionID string) (*Session, bool)
	Len() int
}

var ErrSessionExists = errors.New("a session with the same id is already registered")

type InMemoryContext struct {
	mutex    sync.RWMutex
	sessions map[string]*Session
}

func NewInMemoryContext() *InMemoryContext {
	return &InMemoryContext{
		sessions: make(map[string]*Session),
	}
}

func (c *InMemoryContext) Register(session *Session) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, exists := c.sessions[session.GetID()]; exists {
		return ErrSessionExists
	}
	c.sessions[session.GetID()] = session
	return nil
}

// Destroy removes the session. Destroying an unknown id is a no-op.
func (c *InMemoryContext) Destroy(sessionID string) {
	c.mutex.Lock()
	delete(c.sessions, sessionID)
	c.mutex.Unlock()
}

func (c *InMemoryContext) Get(sessionID string) (*Session, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	session, exists := c.sessions[sessionID]
	return session, exists
}

func (c *InMemoryContext) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.sessions)
}

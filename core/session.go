package core

import (
	"sync"
	"sync/atomic"
	"time"
)

type SessionID string

// Session is a live warehouse session owned by a Pool. It is checked out to
// exactly one statement at a time.
type Session struct {
	id        SessionID
	driver    Driver
	context   SessionContext
	createdAt time.Time

	broken    atomic.Bool
	closeOnce sync.Once
}

func newSession(id SessionID, driver Driver, sc SessionContext, createdAt time.Time) *Session {
	return &Session{
		id:        id,
		driver:    driver,
		context:   sc,
		createdAt: createdAt,
	}
}

func (s *Session) GetID() SessionID {
	return s.id
}

func (s *Session) Driver() Driver {
	return s.driver
}

// Context returns the namespace defaults the session was opened with.
func (s *Session) Context() SessionContext {
	return s.context
}

// MarkBroken flags the session so the pool discards it on release.
func (s *Session) MarkBroken() {
	s.broken.Store(true)
}

func (s *Session) IsBroken() bool {
	return s.broken.Load()
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		if s.driver != nil {
			s.driver.Close()
		}
	})
}

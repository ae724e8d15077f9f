package apiclient

import "sync"

// Session holds the bearer token in memory. It is never persisted; refresh
// continuity comes from the server's cookie in the client's jar.
type Session struct {
	mu      sync.RWMutex
	token   string
	gen     uint64
	changed chan struct{}
}

func NewSession() *Session {
	return &Session{changed: make(chan struct{})}
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// snapshot returns the token together with its generation. The generation
// moves on every token change and on every failed refresh.
func (s *Session) snapshot() (string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.gen
}

// SetToken replaces the token; an empty token clears the session.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == token {
		return
	}
	s.set(token)
}

func (s *Session) Clear() { s.SetToken("") }

// expire clears the token after a failed refresh. The generation moves even
// when no token was held, so requests sent before the refresh do not start
// another one.
func (s *Session) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		s.gen++
		return
	}
	s.set("")
}

func (s *Session) set(token string) {
	s.token = token
	s.gen++
	close(s.changed)
	s.changed = make(chan struct{})
}

// Changed returns a channel that is closed on the next token change.
func (s *Session) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

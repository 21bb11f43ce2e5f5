package auth

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
)

// sessionCookieName is the cookie carrying the signed session id, the
// equivalent of auth.c's "-http-session-" cookie.
const sessionCookieName = "httpcore.session"

// SessionUsernameKey is the session variable auth.c sets on successful
// login (HTTP_SESSION_USERNAME).
const SessionUsernameKey = "username"

// SessionReferrerKey stores the URI to return to after form login.
const SessionReferrerKey = "referrer"

// Session is a per-client bag of variables, owned exclusively by its
// request for the duration of that request (spec §5, "Request parameters
// and session variables are owned by the owning request").
type Session struct {
	mu   sync.RWMutex
	vars map[string]string
}

func newSession() *Session {
	return &Session{vars: map[string]string{}}
}

// Get reads a session variable.
func (s *Session) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vars[key]
}

// Set writes a session variable.
func (s *Session) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[key] = value
}

// Username is a convenience accessor for the logged-in username, empty if
// not authenticated.
func (s *Session) Username() string {
	return s.Get(SessionUsernameKey)
}

// SessionStore is an in-memory, signed-cookie backed session store
// (spec §6.3 notes persistence is an external collaborator's job; this is
// the minimum needed to make §4.3.4 form login concretely runnable).
type SessionStore struct {
	codec *securecookie.SecureCookie
	mu    sync.RWMutex
	byID  map[string]*Session
}

// NewSessionStore creates a session store. hashKey/blockKey follow
// gorilla/securecookie conventions (32 and 16/24/32 bytes respectively);
// pass nil blockKey to disable payload encryption and sign only.
func NewSessionStore(hashKey, blockKey []byte) *SessionStore {
	return &SessionStore{
		codec: securecookie.New(hashKey, blockKey),
		byID:  map[string]*Session{},
	}
}

// Load resolves the Session for a request from its signed cookie, creating
// a fresh one if absent or invalid.
func (s *SessionStore) Load(r *http.Request) *Session {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return newSession()
	}
	var id string
	if err := s.codec.Decode(sessionCookieName, c.Value, &id); err != nil {
		return newSession()
	}
	s.mu.RLock()
	sess, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return newSession()
	}
	return sess
}

// Save persists sess under a fresh id and sets the signed cookie on w.
func (s *SessionStore) Save(w http.ResponseWriter, sess *Session) error {
	id := newNonce() + newNonce()
	encoded, err := s.codec.Encode(sessionCookieName, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.byID[id] = sess
	s.mu.Unlock()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(24 * time.Hour),
	})
	return nil
}

// Destroy removes sess from the store and clears its cookie, the
// equivalent of auth.c's logout handling.
func (s *SessionStore) Destroy(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		var id string
		if err := s.codec.Decode(sessionCookieName, c.Value, &id); err == nil {
			s.mu.Lock()
			delete(s.byID, id)
			s.mu.Unlock()
		}
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "", Path: "/", MaxAge: -1})
}

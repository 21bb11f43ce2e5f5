package auth

import (
	"context"
	"net/http"

	"github.com/embedthis/httpcore/internal/log"
	"github.com/embedthis/httpcore/internal/metrics"
)

// AskLogin writes the response that asks the caller to authenticate: a
// redirect to LoginPage for Form auth, or a 401 with the scheme's
// challenge headers for Basic/Digest (spec §3.3 ask_login).
func (a *Auth) AskLogin(w http.ResponseWriter, r *http.Request, referrer string) {
	switch a.Type {
	case TypeForm:
		if sess, ok := r.Context().Value(sessionContextKey{}).(*Session); ok && referrer != "" {
			sess.Set(SessionReferrerKey, referrer)
		}
		http.Redirect(w, r, a.LoginPage, http.StatusFound)
	default:
		a.SetResponseHeaders(w)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
}

type sessionContextKey struct{}

// WithSession attaches sess to the request context so AskLogin and the
// form-login handlers below can reach it without threading it through
// every call.
func WithSession(r *http.Request, sess *Session) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), sessionContextKey{}, sess))
}

// SessionFromRequest retrieves the Session attached by WithSession, if
// any.
func SessionFromRequest(r *http.Request) (*Session, bool) {
	sess, ok := r.Context().Value(sessionContextKey{}).(*Session)
	return sess, ok
}

// FormLoginHandler returns the handler for the auth's configured
// LoginURI: it reads username/password parameters, attempts Login, and on
// success redirects to the session's saved referrer (falling back to
// LoggedInURI), or back to LoginPage on failure (spec §4.3.4).
func (a *Auth) FormLoginHandler(store *SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds, ok := a.ParseCredentials(r)
		if !ok {
			a.denyLogin(w, r, "")
			return
		}
		u, err := a.Login(creds.Username, creds.Password)
		if err != nil {
			log.Default().WithFields(log.Fields{"user": creds.Username, "err": err}).Debug("form login failed")
			a.denyLogin(w, r, creds.Username)
			return
		}
		sess := newSession()
		sess.Set(SessionUsernameKey, u.Name)
		referrer := a.LoggedInURI
		if old, ok := SessionFromRequest(r); ok {
			if ref := old.Get(SessionReferrerKey); ref != "" {
				referrer = ref
			}
		}
		if err := store.Save(w, sess); err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, referrer, http.StatusFound)
	}
}

func (a *Auth) denyLogin(w http.ResponseWriter, r *http.Request, username string) {
	metrics.AuthFailuresTotal.WithLabelValues(string(ReasonBadPassword)).Inc()
	http.Redirect(w, r, a.LoginPage, http.StatusFound)
}

// LogoutHandler destroys the session and redirects to LoginPage, the
// equivalent of auth.c's logout handling referenced by spec §4.3.4.
func (a *Auth) LogoutHandler(store *SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store.Destroy(w, r)
		http.Redirect(w, r, a.LoginPage, http.StatusFound)
	}
}

package redfish

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionTimeout is how long an idle token stays valid.
const sessionTimeout = 30 * time.Minute

type authSession struct {
	id         string
	token      string
	user       string
	lastActive time.Time
}

// sessionStore tracks X-Auth-Token sessions for one Redfish endpoint.
type sessionStore struct {
	mu      sync.Mutex
	byToken map[string]*authSession
	byID    map[string]*authSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		byToken: make(map[string]*authSession),
		byID:    make(map[string]*authSession),
	}
}

// create mints a new session for user and returns id and token.
func (s *sessionStore) create(user string) (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &authSession{
		id:         uuid.NewString(),
		token:      uuid.NewString(),
		user:       user,
		lastActive: time.Now(),
	}
	s.byToken[sess.token] = sess
	s.byID[sess.id] = sess
	return sess.id, sess.token
}

// validate checks a token and refreshes its idle timer.
func (s *sessionStore) validate(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byToken[token]
	if !ok {
		return "", false
	}
	if time.Since(sess.lastActive) > sessionTimeout {
		delete(s.byToken, sess.token)
		delete(s.byID, sess.id)
		return "", false
	}
	sess.lastActive = time.Now()
	return sess.user, true
}

// get returns a session by resource ID.
func (s *sessionStore) get(id string) (*authSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	return sess, ok
}

// remove deletes a session by resource ID.
func (s *sessionStore) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byToken, sess.token)
	delete(s.byID, sess.id)
	return true
}

// list returns the live session IDs.
func (s *sessionStore) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.byID))
	for id := range s.byID {
		out = append(out, id)
	}
	return out
}

// purge drops expired sessions; called periodically from Run.
func (s *sessionStore) purge(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, sess := range s.byToken {
		if now.Sub(sess.lastActive) > sessionTimeout {
			delete(s.byToken, token)
			delete(s.byID, sess.id)
		}
	}
}

// publicPaths are reachable without credentials: discovery roots and
// session creation.
var publicPaths = map[string]struct{}{
	"/redfish/v1":                  {},
	"/redfish/v1/":                 {},
	"/redfish/v1/Systems":          {},
	"/redfish/v1/Systems/":         {},
	"/redfish/v1/Managers":         {},
	"/redfish/v1/Managers/":        {},
	"/redfish/v1/Chassis":          {},
	"/redfish/v1/Chassis/":         {},
	"/redfish/v1/SessionService":   {},
	"/redfish/v1/SessionService/":  {},
}

// sessionLogin reports whether r is the session-creation POST, which must
// carry its credentials in the body.
func sessionLogin(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	p := strings.TrimSuffix(r.URL.Path, "/")
	return p == "/redfish/v1/SessionService/Sessions"
}

// requireAuth enforces Basic or X-Auth-Token authentication on everything
// outside the public discovery surface. Session creation POSTs carry their
// credentials in the body and pass through.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, public := publicPaths[r.URL.Path]; public || sessionLogin(r) {
			next.ServeHTTP(w, r)
			return
		}

		if token := r.Header.Get("X-Auth-Token"); token != "" {
			if _, ok := s.tokens.validate(token); ok {
				next.ServeHTTP(w, r)
				return
			}
		}
		if user, pass, ok := r.BasicAuth(); ok {
			if want, exists := s.users[user]; exists && want == pass {
				next.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("WWW-Authenticate", `Basic realm="Redfish"`)
		s.writeError(w, http.StatusUnauthorized, "Base.1.0.GeneralError",
			"Authentication required")
	})
}

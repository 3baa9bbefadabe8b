package web

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/phuslu/log"
)

const (
	sessionCookie     = "letters_session"
	sessionSubject    = "archive"
	defaultSessionTTL = 24 * time.Hour
)

// sessions issues and verifies HS256 session tokens
type sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// newSessions uses secret, or a random per-process key when empty, in which
// case sessions do not survive a restart
func newSessions(secret []byte, ttl time.Duration) (*sessions, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &sessions{secret: secret, ttl: ttl, now: time.Now}, nil
}

func (s *sessions) issue() (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sessionSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, expires, nil
}

func (s *sessions) verify(raw string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithSubject(sessionSubject),
		jwt.WithTimeFunc(s.now),
	)
	return err
}

// requireSession lets a request through only with a valid session cookie.
// A server started with Insecure and no password lets every request through.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Password == "" {
			next.ServeHTTP(w, r)
			return
		}

		c, err := r.Cookie(sessionCookie)
		if err == nil {
			if err = s.sessions.verify(c.Value); err == nil {
				next.ServeHTTP(w, r)
				return
			}
			if !errors.Is(err, jwt.ErrTokenExpired) {
				log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Rejected session token")
			}
		}

		if r.Method == http.MethodGet && r.URL.Path == "/" {
			http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

type loginPage struct {
	Next  string
	Error string
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "login.html", loginPage{Next: safeNext(r.URL.Query().Get("next"))})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad form", http.StatusBadRequest)
		return
	}
	next := safeNext(r.PostForm.Get("next"))

	given := r.PostForm.Get("password")
	if s.opts.Password == "" || subtle.ConstantTimeCompare([]byte(given), []byte(s.opts.Password)) != 1 {
		log.Warn().Str("remote_addr", r.RemoteAddr).Msg("Failed login")
		s.render(w, http.StatusUnauthorized, "login.html", loginPage{Next: next, Error: "Incorrect password."})
		return
	}

	token, expires, err := s.sessions.issue()
	if err != nil {
		log.Error().Err(err).Msg("Error issuing session")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// safeNext keeps post-login redirects on this site
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

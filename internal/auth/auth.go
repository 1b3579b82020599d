package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gptkong/ip-quality-dashboard/internal/model"
)

const (
	cookieName    = "ipq_session"
	sessionMaxAge = 24 * time.Hour
)

// SessionStore is the persistence the session manager needs. *database.DB
// satisfies it.
type SessionStore interface {
	EnsureSessionSecret(ctx context.Context) (string, error)
	CreateSession(ctx context.Context, token, csrfToken, username string, expiresAt time.Time) error
	GetSession(ctx context.Context, token string) (string, string, time.Time, error)
	DeleteSession(ctx context.Context, token string) error
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}

type SessionManager struct {
	secret string
	store  SessionStore
}

func NewSessionManager(ctx context.Context, store SessionStore) (*SessionManager, error) {
	secret, err := store.EnsureSessionSecret(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session secret: %w", err)
	}
	return &SessionManager{secret: secret, store: store}, nil
}

// CreateSession issues a signed session cookie and returns the CSRF token
// the client must echo on mutating requests.
func (sm *SessionManager) CreateSession(w http.ResponseWriter, r *http.Request, username string) string {
	token := generateToken()
	csrfToken := generateToken()
	signed := sm.sign(token)
	expiresAt := time.Now().Add(sessionMaxAge)

	_ = sm.store.CreateSession(r.Context(), signed, csrfToken, username, expiresAt)

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sessionMaxAge.Seconds()),
	})
	return csrfToken
}

func (sm *SessionManager) DestroySession(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(cookieName)
	if err == nil {
		_ = sm.store.DeleteSession(r.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:   cookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

func (sm *SessionManager) GetSessionInfo(r *http.Request) (string, string, bool) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return "", "", false
	}
	username, csrfToken, expiresAt, err := sm.store.GetSession(r.Context(), cookie.Value)
	if err != nil || username == "" || time.Now().After(expiresAt) {
		return "", "", false
	}
	return username, csrfToken, true
}

func (sm *SessionManager) GetUsername(r *http.Request) (string, bool) {
	username, _, ok := sm.GetSessionInfo(r)
	return username, ok
}

// ValidateCSRF rejects mutating requests whose X-CSRF-Token header does not
// match the session's token.
func (sm *SessionManager) ValidateCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			_, csrfToken, ok := sm.GetSessionInfo(r)
			if !ok {
				denyJSON(w, http.StatusForbidden, "no session")
				return
			}
			if submitted := r.Header.Get("X-CSRF-Token"); submitted == "" || submitted != csrfToken {
				denyJSON(w, http.StatusForbidden, "invalid CSRF token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests without a valid session.
func (sm *SessionManager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := sm.GetUsername(r); !ok {
			denyJSON(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin additionally checks the session user holds the admin role.
func (sm *SessionManager) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := sm.GetUsername(r)
		if !ok {
			denyJSON(w, http.StatusUnauthorized, "authentication required")
			return
		}
		user, _ := sm.store.GetUserByUsername(r.Context(), username)
		if user == nil || user.Role != "admin" {
			denyJSON(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func denyJSON(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (sm *SessionManager) sign(token string) string {
	mac := hmac.New(sha256.New, []byte(sm.secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func generateToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

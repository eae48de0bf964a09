package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"usdqs-ledger/internal/domain"
)

// Session is an authenticated identity handed to the presentation layer.
type Session struct {
	ID        string
	Username  string
	ExpiresAt time.Time
}

// SessionManager issues signed session tokens and tracks which are still open,
// so ending a session invalidates its token before expiry.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu     sync.Mutex
	active map[string]Session
}

func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		active: make(map[string]Session),
	}
}

// Begin opens a session for an authenticated user.
func (m *SessionManager) Begin(user *domain.User) (string, Session, error) {
	if user == nil || user.Username == "" {
		return "", Session{}, errors.New("session requires a user")
	}

	now := m.now()
	sess := Session{
		ID:        uuid.NewString(),
		Username:  user.Username,
		ExpiresAt: now.Add(m.ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        sess.ID,
		Subject:   sess.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("sign session token: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(now)
	m.active[sess.ID] = sess

	return signed, sess, nil
}

// Resolve returns the open session behind token.
func (m *SessionManager) Resolve(token string) (Session, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Session{}, ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.active[claims.ID]
	if !ok || sess.Username != claims.Subject || !m.now().Before(sess.ExpiresAt) {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// Current answers the session query: the username behind token, or false.
func (m *SessionManager) Current(token string) (string, bool) {
	sess, err := m.Resolve(token)
	if err != nil {
		return "", false
	}
	return sess.Username, true
}

// End closes the session behind token. Unknown or malformed tokens are ignored.
func (m *SessionManager) End(token string) {
	sess, err := m.Resolve(token)
	if err != nil {
		return
	}
	m.mu.Lock()
	delete(m.active, sess.ID)
	m.mu.Unlock()
}

func (m *SessionManager) pruneLocked(now time.Time) {
	for id, sess := range m.active {
		if !now.Before(sess.ExpiresAt) {
			delete(m.active, id)
		}
	}
}

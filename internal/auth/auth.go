// Package auth manages facility-management accounts and their login sessions.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/campusreport/internal/models"
	"github.com/joescharf/campusreport/internal/store"
)

// MinPasswordLength is the shortest password CreateUser accepts.
const MinPasswordLength = 8

// DefaultSessionTTL is how long a login stays valid.
const DefaultSessionTTL = 12 * time.Hour

var (
	// ErrInvalidCredentials is returned by Login for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUnauthenticated is returned by Authenticate for a missing, unknown or expired token.
	ErrUnauthenticated = errors.New("not logged in or session expired")
)

// Service issues and checks sessions.
type Service struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
	cost  int
}

// NewService creates an auth service. A non-positive ttl uses DefaultSessionTTL.
func NewService(s store.Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{store: s, ttl: ttl, now: time.Now, cost: bcrypt.DefaultCost}
}

// CreateUser stores a new account with a bcrypt-hashed password.
func (a *Service) CreateUser(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	verr := &models.ValidationError{}
	if username == "" {
		verr.Add("username", "is required")
	}
	if len(password) < MinPasswordLength {
		verr.Add("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if _, err := a.store.GetUserByUsername(ctx, username); err == nil {
		verr.Add("username", "already exists")
		return nil, verr
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{Username: username, PasswordHash: string(hash)}
	if err := a.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks the password and opens a new session.
func (a *Service) Login(ctx context.Context, username, password string) (*models.Session, error) {
	u, err := a.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		var nf *models.NotFoundError
		if errors.As(err, &nf) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := a.now().UTC()
	sess := &models.Session{
		Token:     token,
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(a.ttl),
	}
	if err := a.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Authenticate resolves a session token to its user. Expired sessions are
// removed.
func (a *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	sess, err := a.store.GetSession(ctx, token)
	if err != nil {
		var nf *models.NotFoundError
		if errors.As(err, &nf) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if sess.Expired(a.now()) {
		_ = a.store.DeleteSession(ctx, token)
		return nil, ErrUnauthenticated
	}
	u, err := a.store.GetUser(ctx, sess.UserID)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	return u, nil
}

// Logout ends a session. Unknown tokens are ignored.
func (a *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return a.store.DeleteSession(ctx, token)
}

// PurgeExpired deletes all expired sessions and returns how many were removed.
func (a *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return a.store.DeleteExpiredSessions(ctx, a.now())
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

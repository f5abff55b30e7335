package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/campusreport/internal/models"
	"github.com/joescharf/campusreport/internal/store"
)

func setupAuth(t *testing.T) (*Service, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	a := NewService(s, time.Hour)
	a.cost = bcrypt.MinCost
	return a, s
}

func TestCreateUser_Validation(t *testing.T) {
	a, _ := setupAuth(t)
	ctx := context.Background()

	_, err := a.CreateUser(ctx, "", "short")
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("username"))
	assert.True(t, verr.Has("password"))

	_, err = a.CreateUser(ctx, "facility", "longenough")
	require.NoError(t, err)

	_, err = a.CreateUser(ctx, "facility", "longenough")
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("username"))
}

func TestCreateUser_HashesPassword(t *testing.T) {
	a, s := setupAuth(t)
	ctx := context.Background()

	u, err := a.CreateUser(ctx, "facility", "correct horse")
	require.NoError(t, err)

	stored, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct horse")))
}

func TestLoginAuthenticateLogout(t *testing.T) {
	a, _ := setupAuth(t)
	ctx := context.Background()

	u, err := a.CreateUser(ctx, "facility", "correct horse")
	require.NoError(t, err)

	sess, err := a.Login(ctx, "facility", "correct horse")
	require.NoError(t, err)
	assert.Len(t, sess.Token, 64)

	got, err := a.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	require.NoError(t, a.Logout(ctx, sess.Token))
	_, err = a.Authenticate(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLogin_WrongCredentials(t *testing.T) {
	a, _ := setupAuth(t)
	ctx := context.Background()

	_, err := a.CreateUser(ctx, "facility", "correct horse")
	require.NoError(t, err)

	_, err = a.Login(ctx, "facility", "Group62")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Login(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_ExpiredSession(t *testing.T) {
	a, _ := setupAuth(t)
	ctx := context.Background()

	_, err := a.CreateUser(ctx, "facility", "correct horse")
	require.NoError(t, err)

	now := time.Now()
	a.now = func() time.Time { return now }
	sess, err := a.Login(ctx, "facility", "correct horse")
	require.NoError(t, err)

	a.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = a.Authenticate(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// The expired session was removed, so rolling the clock back does not revive it.
	a.now = func() time.Time { return now }
	_, err = a.Authenticate(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthenticate_EmptyOrUnknownToken(t *testing.T) {
	a, _ := setupAuth(t)

	_, err := a.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = a.Authenticate(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestPurgeExpired(t *testing.T) {
	a, _ := setupAuth(t)
	ctx := context.Background()

	_, err := a.CreateUser(ctx, "facility", "correct horse")
	require.NoError(t, err)
	_, err = a.Login(ctx, "facility", "correct horse")
	require.NoError(t, err)

	n, err := a.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = a.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"usdqs-ledger/internal/repository/memory"
	"usdqs-ledger/internal/service"
)

func newUserService(t *testing.T, store *memory.Store) service.UserService {
	t.Helper()
	logger, _ := test.NewNullLogger()
	users := service.NewUserService(store, bcrypt.MinCost, logger)
	require.NoError(t, users.Load(context.Background()))
	return users
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	users := newUserService(t, store)

	user, err := users.Register(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Empty(t, user.PasswordHash)
	assert.False(t, user.CreatedAt.IsZero())
	assert.True(t, users.Exists(ctx, "alice"))

	authed, err := users.Authenticate(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", authed.Username)
	assert.Empty(t, authed.PasswordHash)

	stored, err := store.LoadUsers(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotEqual(t, "s3cret", stored[0].PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored[0].PasswordHash), []byte("s3cret")))
}

func TestRegisterUsernameTaken(t *testing.T) {
	ctx := context.Background()
	users := newUserService(t, memory.NewStore())

	_, err := users.Register(ctx, "alice", "one")
	require.NoError(t, err)

	_, err = users.Register(ctx, "alice", "two")
	assert.ErrorIs(t, err, service.ErrUsernameTaken)

	// usernames are case-sensitive
	_, err = users.Register(ctx, "Alice", "two")
	assert.NoError(t, err)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	users := newUserService(t, memory.NewStore())

	_, err := users.Register(ctx, "   ", "pw")
	assert.ErrorIs(t, err, service.ErrInvalidUsername)

	_, err = users.Register(ctx, "system", "pw")
	assert.ErrorIs(t, err, service.ErrInvalidUsername)

	_, err = users.Register(ctx, "alice", "")
	assert.ErrorIs(t, err, service.ErrInvalidPassword)

	_, err = users.Register(ctx, "alice", strings.Repeat("x", 100))
	assert.ErrorIs(t, err, service.ErrInvalidPassword)

	assert.False(t, users.Exists(ctx, "alice"))
}

func TestAuthenticateFailures(t *testing.T) {
	ctx := context.Background()
	users := newUserService(t, memory.NewStore())
	_, err := users.Register(ctx, "alice", "s3cret")
	require.NoError(t, err)

	_, err = users.Authenticate(ctx, "bob", "s3cret")
	assert.ErrorIs(t, err, service.ErrUserNotFound)

	_, err = users.Authenticate(ctx, "alice", "S3cret")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = users.Authenticate(ctx, "alice", "s3cret ")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestRegisterPersistenceFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	users := newUserService(t, store)

	boom := errors.New("quota exceeded")
	store.Fail(memory.Faults{SaveUsers: boom})

	_, err := users.Register(ctx, "alice", "pw")
	assert.ErrorIs(t, err, service.ErrPersistence)
	assert.ErrorIs(t, err, boom)
	assert.False(t, users.Exists(ctx, "alice"))

	store.Fail(memory.Faults{})
	_, err = users.Register(ctx, "alice", "pw")
	assert.NoError(t, err)
}

func TestUsersSurviveReload(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	users := newUserService(t, store)

	for _, name := range []string{"alice", "bob"} {
		_, err := users.Register(ctx, name, name+"-pw")
		require.NoError(t, err)
	}

	reloaded := newUserService(t, store)
	assert.True(t, reloaded.Exists(ctx, "alice"))
	assert.True(t, reloaded.Exists(ctx, "bob"))
	_, err := reloaded.Authenticate(ctx, "bob", "bob-pw")
	assert.NoError(t, err)

	_, err = reloaded.Register(ctx, "bob", "again")
	assert.ErrorIs(t, err, service.ErrUsernameTaken)
}

func TestUserLoadError(t *testing.T) {
	store := memory.NewStore()
	store.Fail(memory.Faults{LoadUsers: errors.New("corrupted")})

	users := service.NewUserService(store, bcrypt.MinCost, nil)
	assert.ErrorContains(t, users.Load(context.Background()), "corrupted")
}

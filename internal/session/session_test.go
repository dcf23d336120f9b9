package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"tattoostudio/internal/authn"
	"tattoostudio/internal/models"
	"tattoostudio/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, users map[string]string) *authn.Client {
	t.Helper()
	backend := authn.NewBackend(repository.NewMemoryUserDirectory(), repository.NewMemoryTokenStore(), time.Hour, nil)
	backend.SetCost(4)
	for email, password := range users {
		_, err := backend.CreateUser(context.Background(), email, password)
		require.NoError(t, err)
	}
	return authn.NewClient(backend, nil, nil)
}

func TestAllowList(t *testing.T) {
	list := NewAllowList([]string{" admin@oliveiratattoo.com ", "", "Deni@OliveiraTattoo.com", "admin@oliveiratattoo.com"})

	assert.Equal(t, []string{"admin@oliveiratattoo.com", "Deni@OliveiraTattoo.com"}, list.Emails())
	assert.True(t, list.Contains("admin@oliveiratattoo.com"))
	assert.True(t, list.Contains("deni@oliveiratattoo.com"))
	assert.True(t, list.Contains(" ADMIN@oliveiratattoo.com"))
	assert.False(t, list.Contains("client@example.com"))
	assert.False(t, list.Contains(""))
}

func TestManager_LoadingUntilFirstNotification(t *testing.T) {
	client := newClient(t, nil)
	m := NewManager(client, NewAllowList(models.DefaultAdminEmails), nil)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx))
	assert.True(t, m.Loading())
	assert.Nil(t, m.User())

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.WaitReady(waitCtx), context.DeadlineExceeded)

	client.Start(ctx)
	require.NoError(t, m.WaitReady(ctx))
	assert.False(t, m.Loading())
	assert.Nil(t, m.User())
	assert.False(t, m.IsAdmin())

	assert.ErrorIs(t, m.Start(ctx), ErrAlreadyStarted)
}

func TestManager_AdminSignInAndLogout(t *testing.T) {
	client := newClient(t, map[string]string{"admin@oliveiratattoo.com": "segredo1"})
	client.Start(context.Background())
	m := NewManager(client, NewAllowList(models.DefaultAdminEmails), nil)
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	require.NoError(t, m.SignIn(ctx, "admin@oliveiratattoo.com", "segredo1"))
	require.NotNil(t, m.User())
	assert.True(t, m.IsAdmin())

	state := <-m.Changes()
	assert.True(t, state.IsAdmin, "only the latest state is buffered")

	require.NoError(t, m.Logout(ctx))
	assert.Nil(t, m.User())
	assert.False(t, m.IsAdmin())
}

func TestManager_NonAdminIsNotAdmin(t *testing.T) {
	client := newClient(t, map[string]string{"client@example.com": "segredo1"})
	client.Start(context.Background())
	m := NewManager(client, NewAllowList(models.DefaultAdminEmails), nil)
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))

	require.NoError(t, m.SignIn(ctx, "client@example.com", "segredo1"))
	assert.NotNil(t, m.User())
	assert.False(t, m.IsAdmin())
}

func TestManager_WrongPasswordKeepsState(t *testing.T) {
	client := newClient(t, map[string]string{"admin@oliveiratattoo.com": "segredo1"})
	client.Start(context.Background())
	m := NewManager(client, NewAllowList(models.DefaultAdminEmails), nil)
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	<-m.Changes()

	err := m.SignIn(ctx, "admin@oliveiratattoo.com", "errada")
	require.Error(t, err)
	var authErr *authn.Error
	assert.False(t, errors.As(err, &authErr), "errors are normalized to plain errors")
	assert.Equal(t, "Credenciais inválidas.", err.Error())

	assert.Nil(t, m.User())
	select {
	case <-m.Changes():
		t.Fatal("failed sign-in must not emit a state change")
	default:
	}
}

func TestManager_StopUnsubscribes(t *testing.T) {
	client := newClient(t, map[string]string{"admin@oliveiratattoo.com": "segredo1"})
	client.Start(context.Background())
	m := NewManager(client, NewAllowList(models.DefaultAdminEmails), nil)
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))

	m.Stop()
	m.Stop()

	require.NoError(t, client.SignIn(ctx, "admin@oliveiratattoo.com", "segredo1"))
	assert.Nil(t, m.User(), "no updates after Stop")
}

type failingAuth struct{}

func (failingAuth) SignIn(context.Context, string, string) error { return errors.New("network down") }
func (failingAuth) SignOut(context.Context) error {
	return &authn.Error{Code: authn.CodeInternal, Message: "Erro interno de autenticação."}
}
func (failingAuth) OnAuthStateChanged(func(*models.User)) func() { return func() {} }

func TestManager_NormalizesErrors(t *testing.T) {
	m := NewManager(failingAuth{}, NewAllowList(nil), nil)
	ctx := context.Background()

	err := m.SignIn(ctx, "a@b.c", "x")
	assert.EqualError(t, err, "network down")

	err = m.Logout(ctx)
	assert.EqualError(t, err, "Erro interno de autenticação.")
}

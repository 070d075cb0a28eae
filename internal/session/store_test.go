package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/rupesh-2/matrimonial-UI/internal/api"
	"github.com/rupesh-2/matrimonial-UI/internal/apierr"
	"github.com/rupesh-2/matrimonial-UI/internal/credentials"
	"github.com/rupesh-2/matrimonial-UI/internal/logging"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
)

type stubAPI struct {
	mu sync.Mutex

	loginResult api.AuthResult
	loginErr    error
	loginGate   chan struct{}
	loginCalls  int
	loginFn     func(email string) (api.AuthResult, error)

	registerCalls int

	logoutErr   error
	logoutCalls int

	currentUser    models.Identity
	currentUserErr error
	currentCalls   int
	currentUserFn  func() (models.Identity, error)

	refreshToken string
	refreshErr   error
}

func (s *stubAPI) Login(ctx context.Context, email, password string) (api.AuthResult, error) {
	s.mu.Lock()
	s.loginCalls++
	gate := s.loginGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if s.loginFn != nil {
		return s.loginFn(email)
	}
	return s.loginResult, s.loginErr
}

func (s *stubAPI) Register(ctx context.Context, in api.RegisterInput) (api.AuthResult, error) {
	s.mu.Lock()
	s.registerCalls++
	s.mu.Unlock()
	return s.loginResult, s.loginErr
}

func (s *stubAPI) Logout(context.Context) error {
	s.mu.Lock()
	s.logoutCalls++
	s.mu.Unlock()
	return s.logoutErr
}

func (s *stubAPI) CurrentUser(context.Context) (models.Identity, error) {
	s.mu.Lock()
	s.currentCalls++
	s.mu.Unlock()
	if s.currentUserFn != nil {
		return s.currentUserFn()
	}
	return s.currentUser, s.currentUserErr
}

func (s *stubAPI) RefreshToken(context.Context) (string, error) {
	return s.refreshToken, s.refreshErr
}

func newVault() *credentials.Vault {
	return credentials.NewVault(credentials.NewMemoryStore(), logging.Discard())
}

func asha() api.AuthResult {
	return api.AuthResult{
		Identity: models.Identity{ID: 1, Name: "Asha", Email: "asha@example.com"},
		Token:    "tok-1",
	}
}

func TestLoginSuccessStoresIdentityAndCredential(t *testing.T) {
	ctx := context.Background()
	vault := newVault()
	stub := &stubAPI{loginResult: asha()}
	store := New(stub, vault)
	defer store.Close()

	var states []State
	store.Subscribe(func(s Snapshot) { states = append(states, s.State) })

	id, err := store.Login(ctx, " Asha@Example.com ", "secret")
	require.NoError(t, err)
	require.Equal(t, int64(1), id.ID)

	snap := store.Snapshot()
	require.True(t, snap.Authenticated())
	require.Empty(t, snap.Err)
	require.Equal(t, "tok-1", vault.Get(ctx))
	require.Equal(t, []State{Authenticating, Authenticated}, states)
}

func TestLoginFailureEntersAuthErrorAndClearsCredential(t *testing.T) {
	ctx := context.Background()
	vault := newVault()
	require.NoError(t, vault.Set(ctx, "stale"))
	stub := &stubAPI{loginErr: apierr.Application(422, "", "The provided credentials are incorrect.")}
	store := New(stub, vault)

	_, err := store.Login(ctx, "asha@example.com", "wrong")
	require.ErrorIs(t, err, apierr.ErrApplication)

	snap := store.Snapshot()
	require.Equal(t, AuthError, snap.State)
	require.Nil(t, snap.Identity)
	require.Equal(t, "The provided credentials are incorrect.", snap.Err)
	require.Empty(t, vault.Get(ctx))

	// AuthError may retry.
	stub.loginErr = nil
	stub.loginResult = asha()
	_, err = store.Login(ctx, "asha@example.com", "secret")
	require.NoError(t, err)
	require.Equal(t, Authenticated, store.Snapshot().State)
}

func TestLoginValidationMakesNoRequest(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "empty email", email: "", password: "x"},
		{name: "empty password", email: "a@b.co", password: ""},
		{name: "malformed email", email: "not-an-email", password: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAPI{}
			store := New(stub, newVault())

			_, err := store.Login(context.Background(), tt.email, tt.password)
			require.ErrorIs(t, err, apierr.ErrValidation)
			require.Zero(t, stub.loginCalls)
			require.Equal(t, Anonymous, store.Snapshot().State)
			require.NotEmpty(t, store.Snapshot().Err)
		})
	}
}

func TestRegisterValidation(t *testing.T) {
	base := api.RegisterInput{Name: "Asha", Email: "asha@example.com", Password: "password1", PasswordConfirmation: "password1"}

	mismatch := base
	mismatch.PasswordConfirmation = "password2"
	noName := base
	noName.Name = " "
	short := base
	short.Password, short.PasswordConfirmation = "short", "short"

	for _, in := range []api.RegisterInput{mismatch, noName, short} {
		stub := &stubAPI{}
		store := New(stub, newVault())
		_, err := store.Register(context.Background(), in)
		require.ErrorIs(t, err, apierr.ErrValidation)
		require.Zero(t, stub.registerCalls)
	}

	stub := &stubAPI{loginResult: asha()}
	store := New(stub, newVault())
	_, err := store.Register(context.Background(), base)
	require.NoError(t, err)
	require.Equal(t, 1, stub.registerCalls)
	require.Equal(t, Authenticated, store.Snapshot().State)
}

func TestLoginRejectedWhileSignedIn(t *testing.T) {
	stub := &stubAPI{loginResult: asha()}
	store := New(stub, newVault())

	_, err := store.Login(context.Background(), "asha@example.com", "secret")
	require.NoError(t, err)

	_, err = store.Login(context.Background(), "asha@example.com", "secret")
	require.ErrorIs(t, err, apierr.ErrValidation)
	require.Equal(t, 1, stub.loginCalls)
}

func TestLogoutSucceedsLocallyWhenRemoteFails(t *testing.T) {
	ctx := context.Background()
	vault := newVault()
	stub := &stubAPI{loginResult: asha(), logoutErr: apierr.Network(errors.New("connection refused"))}
	store := New(stub, vault)

	_, err := store.Login(ctx, "asha@example.com", "secret")
	require.NoError(t, err)

	require.NoError(t, store.Logout(ctx))
	require.Equal(t, 1, stub.logoutCalls)

	snap := store.Snapshot()
	require.Equal(t, Anonymous, snap.State)
	require.Nil(t, snap.Identity)
	require.Empty(t, vault.Get(ctx))
}

func TestLogoutDuringLoginDiscardsResponse(t *testing.T) {
	ctx := context.Background()
	vault := newVault()
	gate := make(chan struct{})
	stub := &stubAPI{loginResult: asha(), loginGate: gate}
	store := New(stub, vault)

	done := make(chan error, 1)
	go func() {
		_, err := store.Login(ctx, "asha@example.com", "secret")
		done <- err
	}()

	require.Eventually(t, func() bool { return store.Snapshot().State == Authenticating }, time.Second, time.Millisecond)
	require.NoError(t, store.Logout(ctx))
	close(gate)

	require.ErrorIs(t, <-done, ErrSuperseded)
	require.Equal(t, Anonymous, store.Snapshot().State)
	require.Empty(t, vault.Get(ctx))
}

func TestRestoreWithoutCredentialStaysAnonymous(t *testing.T) {
	stub := &stubAPI{}
	store := New(stub, newVault())

	id, err := store.Restore(context.Background())
	require.NoError(t, err)
	require.Nil(t, id)
	require.Zero(t, stub.currentCalls)
	require.Equal(t, Anonymous, store.Snapshot().State)
}

func TestRestoreSuccess(t *testing.T) {
	ctx := context.Background()
	vault := newVault()
	require.NoError(t, vault.Set(ctx, "tok-1"))
	stub := &stubAPI{currentUser: models.Identity{ID: 4, Name: "Ravi"}}
	store := New(stub, vault)

	id, err := store.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, id)
	require.Equal(t, int64(4), id.ID)
	require.True(t, store.Snapshot().Authenticated())
}

func TestRestoreFailurePurgesCredential(t *testing.T) {
	for _, failure := range []error{
		apierr.Authentication(""),
		apierr.Network(errors.New("timeout")),
		apierr.Application(500, "", "boom"),
	} {
		ctx := context.Background()
		vault := newVault()
		require.NoError(t, vault.Set(ctx, "tok-1"))
		store := New(&stubAPI{currentUserErr: failure}, vault)

		_, err := store.Restore(ctx)
		require.Error(t, err)
		require.Equal(t, Anonymous, store.Snapshot().State)
		require.Empty(t, vault.Get(ctx))
	}
}

func TestRestoreDropsExpiredJWTWithoutRequest(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": now.Add(-time.Minute).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	vault := newVault()
	require.NoError(t, vault.Set(ctx, token))
	stub := &stubAPI{}
	store := New(stub, vault, WithNowFunc(func() time.Time { return now }))

	id, err := store.Restore(ctx)
	require.NoError(t, err)
	require.Nil(t, id)
	require.Zero(t, stub.currentCalls)
	require.Empty(t, vault.Get(ctx))
}

func TestInvalidatedCredentialEndsSession(t *testing.T) {
	ctx := context.Background()
	vault := newVault()
	store := New(&stubAPI{loginResult: asha()}, vault)

	_, err := store.Login(ctx, "asha@example.com", "secret")
	require.NoError(t, err)

	vault.Invalidate(ctx)

	snap := store.Snapshot()
	require.Equal(t, Anonymous, snap.State)
	require.Nil(t, snap.Identity)
	require.Equal(t, expiredMessage, snap.Err)
	require.Empty(t, vault.Get(ctx))
}

func TestClosedStoreIgnoresInvalidation(t *testing.T) {
	ctx := context.Background()
	vault := newVault()
	store := New(&stubAPI{loginResult: asha()}, vault)
	_, err := store.Login(ctx, "asha@example.com", "secret")
	require.NoError(t, err)

	store.Close()
	vault.Invalidate(ctx)
	require.Equal(t, Authenticated, store.Snapshot().State)
}

func TestReplaceIdentity(t *testing.T) {
	store := New(&stubAPI{loginResult: asha()}, newVault())
	require.ErrorIs(t, store.ReplaceIdentity(models.Identity{Name: "x"}), apierr.ErrValidation)

	_, err := store.Login(context.Background(), "asha@example.com", "secret")
	require.NoError(t, err)

	require.NoError(t, store.ReplaceIdentity(models.Identity{Name: "Asha K", Location: "Pune"}))
	id, ok := store.Identity()
	require.True(t, ok)
	require.Equal(t, int64(1), id.ID)
	require.Equal(t, "Asha K", id.Name)

	require.ErrorIs(t, store.ReplaceIdentity(models.Identity{ID: 2}), apierr.ErrValidation)
}

func TestRefreshTokenStoresNewCredential(t *testing.T) {
	ctx := context.Background()
	vault := newVault()
	stub := &stubAPI{loginResult: asha(), refreshToken: "tok-2"}
	store := New(stub, vault)

	require.ErrorIs(t, store.RefreshToken(ctx), apierr.ErrValidation)

	_, err := store.Login(ctx, "asha@example.com", "secret")
	require.NoError(t, err)
	require.NoError(t, store.RefreshToken(ctx))
	require.Equal(t, "tok-2", vault.Get(ctx))
}

func rohan() api.AuthResult {
	return api.AuthResult{
		Identity: models.Identity{ID: 2, Name: "Rohan", Email: "rohan@example.com"},
		Token:    "tok-2",
	}
}

func TestLateLoginDoesNotTouchNewerSession(t *testing.T) {
	for name, late := range map[string]func() (api.AuthResult, error){
		"success": func() (api.AuthResult, error) { return asha(), nil },
		"failure": func() (api.AuthResult, error) {
			return api.AuthResult{}, apierr.Application(422, "", "The provided credentials are incorrect.")
		},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			vault := newVault()
			gate := make(chan struct{})
			stub := &stubAPI{loginFn: func(email string) (api.AuthResult, error) {
				if email == "asha@example.com" {
					<-gate
					return late()
				}
				return rohan(), nil
			}}
			store := New(stub, vault)
			defer store.Close()

			done := make(chan error, 1)
			go func() {
				_, err := store.Login(ctx, "asha@example.com", "secret")
				done <- err
			}()
			require.Eventually(t, func() bool { return store.Snapshot().State == Authenticating }, time.Second, time.Millisecond)

			require.NoError(t, store.Logout(ctx))
			_, err := store.Login(ctx, "rohan@example.com", "secret")
			require.NoError(t, err)

			close(gate)
			require.ErrorIs(t, <-done, ErrSuperseded)

			snap := store.Snapshot()
			require.True(t, snap.Authenticated())
			require.Equal(t, int64(2), snap.Identity.ID)
			require.Equal(t, "tok-2", vault.Get(ctx))
		})
	}
}

func TestLateRestoreDoesNotTouchNewerSession(t *testing.T) {
	for name, late := range map[string]func() (models.Identity, error){
		"success": func() (models.Identity, error) { return asha().Identity, nil },
		"failure": func() (models.Identity, error) { return models.Identity{}, apierr.Network(errors.New("timeout")) },
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			vault := newVault()
			require.NoError(t, vault.Set(ctx, "tok-1"))
			gate := make(chan struct{})
			stub := &stubAPI{
				currentUserFn: func() (models.Identity, error) {
					<-gate
					return late()
				},
				loginResult: rohan(),
			}
			store := New(stub, vault)
			defer store.Close()

			done := make(chan error, 1)
			go func() {
				_, err := store.Restore(ctx)
				done <- err
			}()
			require.Eventually(t, func() bool { return store.Snapshot().State == Authenticating }, time.Second, time.Millisecond)

			require.NoError(t, store.Logout(ctx))
			_, err := store.Login(ctx, "rohan@example.com", "secret")
			require.NoError(t, err)

			close(gate)
			require.ErrorIs(t, <-done, ErrSuperseded)

			snap := store.Snapshot()
			require.True(t, snap.Authenticated())
			require.Equal(t, int64(2), snap.Identity.ID)
			require.Equal(t, "tok-2", vault.Get(ctx))
		})
	}
}

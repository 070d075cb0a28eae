package fakeapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rupesh-2/matrimonial-UI/internal/api"
	"github.com/rupesh-2/matrimonial-UI/internal/apierr"
	"github.com/rupesh-2/matrimonial-UI/internal/credentials"
	"github.com/rupesh-2/matrimonial-UI/internal/feed"
	"github.com/rupesh-2/matrimonial-UI/internal/gateway"
	"github.com/rupesh-2/matrimonial-UI/internal/likes"
	"github.com/rupesh-2/matrimonial-UI/internal/logging"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
	"github.com/rupesh-2/matrimonial-UI/internal/ratelimit"
	"github.com/rupesh-2/matrimonial-UI/internal/realtime"
	"github.com/rupesh-2/matrimonial-UI/internal/session"
)

type harness struct {
	srv *Server
	ts  *httptest.Server
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	if opts.SigningKey == "" {
		opts.SigningKey = "test-signing-key"
	}
	opts.BcryptCost = bcrypt.MinCost
	srv := New(opts)
	require.NoError(t, srv.Seed(DemoUsers()...))

	ts := httptest.NewServer(srv.Handler(logging.Discard()))
	t.Cleanup(ts.Close)
	srv.SetPublicURL(ts.URL)
	return &harness{srv: srv, ts: ts}
}

type user struct {
	client  *api.Client
	vault   *credentials.Vault
	session *session.Store
}

func (h *harness) login(t *testing.T, email string) *user {
	t.Helper()
	vault := credentials.NewVault(credentials.NewMemoryStore(), logging.Discard())
	gw, err := gateway.New(h.ts.URL, vault)
	require.NoError(t, err)
	client := api.New(gw, api.DiscoverRoutes)
	sess := session.New(client, vault)
	t.Cleanup(sess.Close)

	_, err = sess.Login(context.Background(), email, DemoPassword)
	require.NoError(t, err)
	return &user{client: client, vault: vault, session: sess}
}

func (h *harness) userID(t *testing.T, email string) int64 {
	t.Helper()
	u, err := h.srv.World().Authenticate(email, DemoPassword)
	require.NoError(t, err)
	return u.ID
}

func TestLoginAndCurrentUser(t *testing.T) {
	h := newHarness(t, Options{})
	asha := h.login(t, "asha@example.com")

	snap := asha.session.Snapshot()
	require.True(t, snap.Authenticated())
	require.Equal(t, "Asha Verma", snap.Identity.Name)
	require.NotEmpty(t, asha.vault.Get(context.Background()))

	me, err := asha.client.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, "asha@example.com", me.Email)
}

func TestLoginWithWrongPassword(t *testing.T) {
	h := newHarness(t, Options{})
	vault := credentials.NewVault(credentials.NewMemoryStore(), logging.Discard())
	gw, err := gateway.New(h.ts.URL, vault)
	require.NoError(t, err)

	_, err = api.New(gw, api.DiscoverRoutes).Login(context.Background(), "asha@example.com", "wrong-password")
	require.ErrorIs(t, err, apierr.ErrAuthentication)
	require.Equal(t, "Invalid credentials", apierr.Message(err))
}

func TestLoginIsRateLimited(t *testing.T) {
	h := newHarness(t, Options{LoginLimiter: ratelimit.New(1, time.Minute, 1, time.Minute)})
	vault := credentials.NewVault(credentials.NewMemoryStore(), logging.Discard())
	gw, err := gateway.New(h.ts.URL, vault)
	require.NoError(t, err)
	client := api.New(gw, api.DiscoverRoutes)

	_, err = client.Login(context.Background(), "asha@example.com", DemoPassword)
	require.NoError(t, err)

	_, err = client.Login(context.Background(), "asha@example.com", DemoPassword)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.Status)
}

func TestRegisterValidationAndConflict(t *testing.T) {
	h := newHarness(t, Options{})
	vault := credentials.NewVault(credentials.NewMemoryStore(), logging.Discard())
	gw, err := gateway.New(h.ts.URL, vault)
	require.NoError(t, err)
	client := api.New(gw, api.DiscoverRoutes)

	_, err = client.Register(context.Background(), api.RegisterInput{
		Name: "Asha Again", Email: "asha@example.com", Password: "password123", PasswordConfirmation: "password123",
	})
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	require.Contains(t, apiErr.Fields, "email")

	res, err := client.Register(context.Background(), api.RegisterInput{
		Name: "Neha Kapoor", Email: "neha@example.com", Password: "password123", PasswordConfirmation: "password123", Age: 26,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.Equal(t, "Neha Kapoor", res.Identity.Name)
}

func TestLogoutRevokesToken(t *testing.T) {
	h := newHarness(t, Options{})
	asha := h.login(t, "asha@example.com")
	token := asha.vault.Get(context.Background())

	require.NoError(t, asha.client.Logout(context.Background()))

	_, err := h.srv.tokens.Verify(token)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestFeedPagesThroughRecommendations(t *testing.T) {
	h := newHarness(t, Options{})
	asha := h.login(t, "asha@example.com")

	store := feed.New(asha.client, 2)
	require.NoError(t, store.Refresh(context.Background()))

	snap := store.Snapshot()
	require.Len(t, snap.Entries, 2)
	require.Equal(t, 3, snap.Page.LastPage)
	require.True(t, snap.HasMore())

	require.NoError(t, store.LoadMore(context.Background()))
	require.Len(t, store.Snapshot().Entries, 4)
}

func TestFilteredFeedIsSinglePage(t *testing.T) {
	h := newHarness(t, Options{})
	asha := h.login(t, "asha@example.com")

	store := feed.New(asha.client, 2)
	require.NoError(t, store.FetchFiltered(context.Background(), models.Filter{Gender: "male", MinAge: 30}))

	snap := store.Snapshot()
	require.False(t, snap.HasMore())
	require.Len(t, snap.Entries, 2)
	for _, e := range snap.Entries {
		require.Equal(t, "male", e.Candidate.Gender)
		require.GreaterOrEqual(t, e.Candidate.Age, 30)
	}
}

func TestMutualLikeProducesMatch(t *testing.T) {
	h := newHarness(t, Options{})
	asha := h.login(t, "asha@example.com")
	rohan := h.login(t, "rohan@example.com")
	ashaID, rohanID := h.userID(t, "asha@example.com"), h.userID(t, "rohan@example.com")

	ashaLikes := likes.New(asha.client)
	res, err := ashaLikes.Like(context.Background(), rohanID)
	require.NoError(t, err)
	require.False(t, res.IsMatch)

	again, err := ashaLikes.Like(context.Background(), rohanID)
	require.NoError(t, err)
	require.False(t, again.IsMatch)

	res, err = likes.New(rohan.client).Like(context.Background(), ashaID)
	require.NoError(t, err)
	require.True(t, res.IsMatch)
	require.NotNil(t, res.MatchedUser)
	require.Equal(t, "Asha Verma", res.MatchedUser.Name)

	page, err := asha.client.Matches(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, page.Matches, 1)
	require.Equal(t, rohanID, page.Matches[0].User.ID)
}

func TestSendRequiresMatch(t *testing.T) {
	h := newHarness(t, Options{})
	asha := h.login(t, "asha@example.com")

	_, err := asha.client.Send(context.Background(), h.userID(t, "kavya@example.com"), "hello")
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.Status)
}

type receiverFunc func(models.Message) bool

func (f receiverFunc) Receive(m models.Message) bool { return f(m) }

func TestMessagesArePushedOverChatSocket(t *testing.T) {
	h := newHarness(t, Options{})
	asha := h.login(t, "asha@example.com")
	rohan := h.login(t, "rohan@example.com")
	ashaID, rohanID := h.userID(t, "asha@example.com"), h.userID(t, "rohan@example.com")

	_, err := h.srv.World().Like(ashaID, rohanID)
	require.NoError(t, err)
	_, err = h.srv.World().Like(rohanID, ashaID)
	require.NoError(t, err)

	endpoint, err := realtime.EndpointFromBase(h.ts.URL)
	require.NoError(t, err)
	got := make(chan models.Message, 1)
	listener, err := realtime.New(endpoint, asha.vault, receiverFunc(func(m models.Message) bool {
		got <- m
		return true
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool { return h.srv.Hub().Connected(ashaID) > 0 }, 5*time.Second, 10*time.Millisecond)

	sent, err := rohan.client.Send(context.Background(), ashaID, "Namaste!")
	require.NoError(t, err)

	select {
	case m := <-got:
		require.Equal(t, sent.ID, m.ID)
		require.Equal(t, rohanID, m.SenderID)
		require.Equal(t, "Namaste!", m.Content)
	case <-time.After(5 * time.Second):
		t.Fatal("message was not pushed")
	}

	unread, err := asha.client.UnreadCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, unread)
	require.NoError(t, asha.client.MarkRead(context.Background(), rohanID))
	unread, err = asha.client.UnreadCount(context.Background())
	require.NoError(t, err)
	require.Zero(t, unread)
}

func TestChatSocketRejectsMissingToken(t *testing.T) {
	h := newHarness(t, Options{})
	resp, err := http.Get(h.ts.URL + "/ws/chat")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProfilePhotoLifecycle(t *testing.T) {
	h := newHarness(t, Options{})
	asha := h.login(t, "asha@example.com")
	ctx := context.Background()

	location, err := asha.client.UploadPhoto(ctx, "portrait.jpg", bytes.NewReader([]byte("jpeg-bytes")))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(location, h.ts.URL+"/photos/"))

	resp, err := http.Get(location)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "jpeg-bytes", string(body))
	require.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

	bio := "Loves long walks."
	res, err := asha.client.UpdateProfile(ctx, models.ProfileUpdate{Bio: &bio})
	require.NoError(t, err)
	require.Equal(t, bio, res.Details.Bio)
	require.Equal(t, []string{location}, res.Details.Photos)

	require.NoError(t, asha.client.DeletePhoto(ctx, location))
	err = asha.client.DeletePhoto(ctx, location)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)

	resp, err = http.Get(location)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadRejectsNonImage(t *testing.T) {
	h := newHarness(t, Options{})
	asha := h.login(t, "asha@example.com")

	_, err := asha.client.UploadPhoto(context.Background(), "notes.txt", strings.NewReader("hello"))
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
}

func TestPreferencesRoundTrip(t *testing.T) {
	h := newHarness(t, Options{})
	asha := h.login(t, "asha@example.com")

	prefs, err := asha.client.UpdatePreferences(context.Background(), models.Preferences{MinAge: 25, MaxAge: 35, PreferredGender: "male"})
	require.NoError(t, err)
	require.Equal(t, 25, prefs.MinAge)
	require.Equal(t, "male", prefs.PreferredGender)

	_, err = asha.client.UpdatePreferences(context.Background(), models.Preferences{MinAge: 40, MaxAge: 30})
	require.True(t, errors.Is(err, apierr.ErrApplication))
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	h := newHarness(t, Options{})
	resp, err := http.Get(h.ts.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}

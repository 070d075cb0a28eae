// Package session owns the current identity and decides whether a user is
// logged in. It is the only writer of the credential apart from the gateway's
// 401 handling.
package session

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/rupesh-2/matrimonial-UI/internal/api"
	"github.com/rupesh-2/matrimonial-UI/internal/apierr"
	"github.com/rupesh-2/matrimonial-UI/internal/credentials"
	"github.com/rupesh-2/matrimonial-UI/internal/logging"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
	"github.com/rupesh-2/matrimonial-UI/internal/observe"
	"github.com/rupesh-2/matrimonial-UI/internal/paging"
)

// State is the position of the session state machine.
type State string

const (
	Anonymous      State = "anonymous"
	Authenticating State = "authenticating"
	Authenticated  State = "authenticated"
	AuthError      State = "auth_error"
)

// ErrSuperseded is returned by Login, Register, Restore and RefreshToken when a logout
// happened while the request was in flight. The response is discarded and the
// credential is left to whoever superseded it.
var ErrSuperseded = errors.New("session: superseded by logout")

const expiredMessage = "session expired, please log in again"

// API is the slice of the REST client the session needs.
type API interface {
	Login(ctx context.Context, email, password string) (api.AuthResult, error)
	Register(ctx context.Context, in api.RegisterInput) (api.AuthResult, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (models.Identity, error)
	RefreshToken(ctx context.Context) (string, error)
}

// Credentials is the credential vault as seen by the session.
type Credentials interface {
	Get(ctx context.Context) string
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context)
	OnInvalidate(fn func()) (cancel func())
}

// Snapshot is an immutable view of the session handed to subscribers.
type Snapshot struct {
	Version  uint64
	State    State
	Identity *models.Identity
	Err      string
}

// Authenticated reports whether the snapshot holds a signed-in identity.
func (s Snapshot) Authenticated() bool {
	return s.State == Authenticated && s.Identity != nil
}

// Option customizes a Store.
type Option func(*Store)

// WithNowFunc overrides the clock used to check credential expiry.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is the session state container.
type Store struct {
	api   API
	creds Credentials
	now   func() time.Time

	// credMu orders credential writes with ticket changes so a superseded
	// sign-in never touches the vault. Lock order is credMu then mu.
	credMu sync.Mutex

	mu       sync.Mutex
	state    State
	identity *models.Identity
	err      string
	version  uint64
	guard    paging.Guard

	hub              observe.Hub[Snapshot]
	cancelInvalidate func()
}

// New builds an anonymous session and starts listening for credential purges.
func New(client API, creds Credentials, opts ...Option) *Store {
	if client == nil || creds == nil {
		panic("session: api and credentials are required")
	}
	s := &Store{api: client, creds: creds, now: time.Now, state: Anonymous}
	for _, opt := range opts {
		opt(s)
	}
	s.cancelInvalidate = creds.OnInvalidate(s.credentialInvalidated)
	return s
}

// Close stops listening for credential purges.
func (s *Store) Close() {
	if s.cancelInvalidate != nil {
		s.cancelInvalidate()
	}
}

// Subscribe registers fn for every state change.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	return s.hub.Subscribe(fn)
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Identity returns the signed-in identity.
func (s *Store) Identity() (models.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Authenticated || s.identity == nil {
		return models.Identity{}, false
	}
	return s.identity.Clone(), true
}

// UserID returns the signed-in user's id, or 0.
func (s *Store) UserID() int64 {
	id, ok := s.Identity()
	if !ok {
		return 0
	}
	return id.ID
}

// Login exchanges email and password for a session.
func (s *Store) Login(ctx context.Context, email, password string) (models.Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateLogin(email, password); err != nil {
		s.recordError(err)
		return models.Identity{}, err
	}
	return s.authenticate(ctx, "session.login", func(ctx context.Context) (api.AuthResult, error) {
		return s.api.Login(ctx, email, password)
	})
}

// Register creates an account and signs it in.
func (s *Store) Register(ctx context.Context, in api.RegisterInput) (models.Identity, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if err := validateRegister(in); err != nil {
		s.recordError(err)
		return models.Identity{}, err
	}
	return s.authenticate(ctx, "session.register", func(ctx context.Context) (api.AuthResult, error) {
		return s.api.Register(ctx, in)
	})
}

func (s *Store) authenticate(ctx context.Context, op string, call func(context.Context) (api.AuthResult, error)) (identity models.Identity, err error) {
	ctx, span := logging.StartSpan(ctx, op)
	defer func() { span.End(err) }()

	ticket, err := s.begin()
	if err != nil {
		return models.Identity{}, err
	}

	res, err := call(ctx)
	if err == nil {
		identity = res.Identity.Clone()
		current, setErr := s.commit(ticket, func() error {
			return s.creds.Set(ctx, res.Token)
		}, func() {
			s.state = Authenticated
			s.identity = &identity
			s.err = ""
		})
		if !current {
			return models.Identity{}, ErrSuperseded
		}
		if setErr == nil {
			span.Logger().Info("signed in", "user_id", identity.ID)
			return identity.Clone(), nil
		}
		err = apierr.Application(0, "credential_storage", "unable to store credential: "+setErr.Error())
	}

	if !s.fail(ctx, ticket, AuthError, err) {
		return models.Identity{}, ErrSuperseded
	}
	return models.Identity{}, err
}

// begin moves to Authenticating. Only one sign-in may run at a time and a
// signed-in session must log out first.
func (s *Store) begin() (uint64, error) {
	s.credMu.Lock()
	s.mu.Lock()
	switch s.state {
	case Authenticating:
		s.mu.Unlock()
		s.credMu.Unlock()
		return 0, apierr.Validation("authentication already in progress")
	case Authenticated:
		s.mu.Unlock()
		s.credMu.Unlock()
		return 0, apierr.Validation("already signed in, log out first")
	}
	ticket := s.guard.Begin()
	s.state = Authenticating
	s.identity = nil
	s.err = ""
	snap := s.bumpLocked()
	s.mu.Unlock()
	s.credMu.Unlock()

	s.hub.Publish(snap)
	return ticket, nil
}

// commit runs write and then mutate, both only while ticket is current. When
// write fails mutate is skipped and the error is returned with current=true.
func (s *Store) commit(ticket uint64, write func() error, mutate func()) (current bool, err error) {
	s.credMu.Lock()

	s.mu.Lock()
	current = s.guard.Valid(ticket)
	s.mu.Unlock()
	if !current {
		s.credMu.Unlock()
		return false, nil
	}

	if write != nil {
		if err := write(); err != nil {
			s.credMu.Unlock()
			return true, err
		}
	}

	s.mu.Lock()
	mutate()
	snap := s.bumpLocked()
	s.mu.Unlock()
	s.credMu.Unlock()

	s.hub.Publish(snap)
	return true, nil
}

// fail purges the credential and records err in state, unless ticket was
// superseded in the meantime.
func (s *Store) fail(ctx context.Context, ticket uint64, state State, err error) bool {
	current, _ := s.commit(ticket, func() error {
		s.creds.Clear(ctx)
		return nil
	}, func() {
		s.state = state
		s.identity = nil
		s.err = apierr.Message(err)
	})
	return current
}

// Logout ends the session locally. The remote call is best effort.
func (s *Store) Logout(ctx context.Context) error {
	ctx, span := logging.StartSpan(ctx, "session.logout")

	if s.creds.Get(ctx) != "" {
		if err := s.api.Logout(ctx); err != nil {
			span.Logger().Warn("remote logout failed, clearing local session", "error", err)
		}
	}
	s.credMu.Lock()
	s.creds.Clear(ctx)
	s.mu.Lock()
	s.guard.Begin()
	s.state = Anonymous
	s.identity = nil
	s.err = ""
	snap := s.bumpLocked()
	s.mu.Unlock()
	s.credMu.Unlock()

	s.hub.Publish(snap)
	span.End(nil)
	return nil
}

// Restore resumes a session from the stored credential. It returns nil with no
// error when there is nothing to restore. Any failure purges the credential.
func (s *Store) Restore(ctx context.Context) (restored *models.Identity, err error) {
	ctx, span := logging.StartSpan(ctx, "session.restore")
	defer func() { span.End(err) }()

	token := s.creds.Get(ctx)
	if token == "" {
		s.reset("")
		return nil, nil
	}
	if expiry, ok := credentials.ExpiresAt(token); ok && !s.now().Before(expiry) {
		span.Logger().Info("stored credential expired", "expired_at", expiry)
		s.credMu.Lock()
		s.creds.Clear(ctx)
		s.credMu.Unlock()
		s.reset("")
		return nil, nil
	}

	s.credMu.Lock()
	s.mu.Lock()
	if s.state == Authenticating {
		s.mu.Unlock()
		s.credMu.Unlock()
		return nil, apierr.Validation("authentication already in progress")
	}
	ticket := s.guard.Begin()
	s.state = Authenticating
	snap := s.bumpLocked()
	s.mu.Unlock()
	s.credMu.Unlock()
	s.hub.Publish(snap)

	identity, err := s.api.CurrentUser(ctx)
	if err != nil {
		if !s.fail(ctx, ticket, Anonymous, err) {
			return nil, ErrSuperseded
		}
		return nil, err
	}

	identity = identity.Clone()
	if current, _ := s.commit(ticket, nil, func() {
		s.state = Authenticated
		s.identity = &identity
		s.err = ""
	}); !current {
		return nil, ErrSuperseded
	}
	out := identity.Clone()
	return &out, nil
}

// RefreshToken swaps the stored credential for a fresh one.
func (s *Store) RefreshToken(ctx context.Context) (err error) {
	ctx, span := logging.StartSpan(ctx, "session.refresh")
	defer func() { span.End(err) }()

	s.mu.Lock()
	signedIn, ticket := s.state == Authenticated, s.guard.Current()
	s.mu.Unlock()
	if !signedIn {
		return apierr.Validation("not signed in")
	}

	token, err := s.api.RefreshToken(ctx)
	if err == nil {
		var current bool
		current, err = s.commit(ticket, func() error { return s.creds.Set(ctx, token) }, func() {})
		if !current {
			return ErrSuperseded
		}
	}
	if err != nil {
		s.recordError(err)
		return err
	}
	return nil
}

// ReplaceIdentity swaps in an updated identity, e.g. after a profile edit.
func (s *Store) ReplaceIdentity(identity models.Identity) error {
	s.mu.Lock()
	if s.state != Authenticated || s.identity == nil {
		s.mu.Unlock()
		return apierr.Validation("not signed in")
	}
	if identity.ID != 0 && identity.ID != s.identity.ID {
		s.mu.Unlock()
		return apierr.Validation("identity belongs to another user")
	}
	identity = identity.Clone()
	identity.ID = s.identity.ID
	s.identity = &identity
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
	return nil
}

// ClearError drops the recorded error. An AuthError session becomes Anonymous.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = ""
	if s.state == AuthError {
		s.state = Anonymous
	}
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

// credentialInvalidated runs when the gateway purged the credential after a 401.
func (s *Store) credentialInvalidated() {
	s.credMu.Lock()
	s.mu.Lock()
	if s.state != Authenticated {
		s.mu.Unlock()
		s.credMu.Unlock()
		return
	}
	s.guard.Begin()
	s.state = Anonymous
	s.identity = nil
	s.err = expiredMessage
	snap := s.bumpLocked()
	s.mu.Unlock()
	s.credMu.Unlock()

	s.hub.Publish(snap)
}

func (s *Store) reset(msg string) {
	s.credMu.Lock()
	s.mu.Lock()
	s.guard.Begin()
	s.state = Anonymous
	s.identity = nil
	s.err = msg
	snap := s.bumpLocked()
	s.mu.Unlock()
	s.credMu.Unlock()

	s.hub.Publish(snap)
}

func (s *Store) recordError(err error) {
	s.mu.Lock()
	s.err = apierr.Message(err)
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

func (s *Store) bumpLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{Version: s.version, State: s.state, Err: s.err}
	if s.identity != nil {
		id := s.identity.Clone()
		snap.Identity = &id
	}
	return snap
}

func validateLogin(email, password string) error {
	if email == "" || password == "" {
		return apierr.Validation("email and password are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apierr.Validation("invalid email address")
	}
	return nil
}

func validateRegister(in api.RegisterInput) error {
	if in.Name == "" {
		return apierr.Validation("name is required")
	}
	if err := validateLogin(in.Email, in.Password); err != nil {
		return err
	}
	if len(in.Password) < 8 {
		return apierr.Validation("password must be at least 8 characters")
	}
	if in.Password != in.PasswordConfirmation {
		return apierr.Validation("passwords do not match")
	}
	if in.Age != 0 && in.Age < 18 {
		return apierr.Validation("you must be at least 18 years old")
	}
	return nil
}

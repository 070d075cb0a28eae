package credentials

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rupesh-2/matrimonial-UI/internal/observe"
)

// Vault is the credential store the rest of the client talks to. It never
// surfaces backend read failures: an unreadable credential is reported as
// absent so the client falls back to the logged-out state.
type Vault struct {
	store  Store
	logger *slog.Logger

	invalidated observe.Hub[struct{}]
}

// NewVault wraps store. A nil logger uses slog.Default().
func NewVault(store Store, logger *slog.Logger) *Vault {
	if store == nil {
		panic("credentials: store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Vault{store: store, logger: logger}
}

// Get returns the current credential, or "" when none is stored or the
// backend fails.
func (v *Vault) Get(ctx context.Context) string {
	token, err := v.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			v.logger.Warn("credential read failed, treating as logged out", "error", err)
		}
		return ""
	}
	return strings.TrimSpace(token)
}

// Set persists a new credential.
func (v *Vault) Set(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("credentials: empty token")
	}
	if err := v.store.Save(ctx, token); err != nil {
		v.logger.Error("credential write failed", "error", err)
		return err
	}
	return nil
}

// Clear removes the credential. Failures are logged; the caller's logout proceeds.
func (v *Vault) Clear(ctx context.Context) {
	if err := v.store.Delete(ctx); err != nil {
		v.logger.Error("credential delete failed", "error", err)
	}
}

// Invalidate clears the credential because the server rejected it and tells
// every OnInvalidate subscriber.
func (v *Vault) Invalidate(ctx context.Context) {
	v.Clear(ctx)
	v.logger.Info("credential invalidated by server")
	v.invalidated.Publish(struct{}{})
}

// OnInvalidate registers fn to run after the server rejected the credential.
func (v *Vault) OnInvalidate(fn func()) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	return v.invalidated.Subscribe(func(struct{}) { fn() })
}

// ExpiresAt reads the exp claim of a JWT credential without verifying its
// signature. Opaque tokens report ok=false.
func ExpiresAt(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether token is a JWT whose exp lies before now.
func Expired(token string, now time.Time) bool {
	exp, ok := ExpiresAt(token)
	return ok && !now.Before(exp)
}

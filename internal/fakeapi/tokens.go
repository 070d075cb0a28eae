package fakeapi

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenInvalid indicates a malformed, forged or expired token.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenRevoked indicates the token was logged out.
	ErrTokenRevoked = errors.New("token revoked")
)

type claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 access tokens. Logged-out tokens are kept
// in a revocation set until they expire.
type Tokens struct {
	key []byte
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewTokens builds an issuer signing with key.
func NewTokens(key string, ttl time.Duration, now func() time.Time) *Tokens {
	if key == "" {
		panic("fakeapi: signing key must not be empty")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Tokens{key: []byte(key), ttl: ttl, now: now, revoked: map[string]time.Time{}}
}

// Issue creates a token for userID.
func (t *Tokens) Issue(userID int64) (string, error) {
	if userID <= 0 {
		return "", errors.New("user id must be provided")
	}
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	})
	signed, err := token.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify returns the user owning raw.
func (t *Tokens) Verify(raw string) (int64, error) {
	c, err := t.parse(raw)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	_, revoked := t.revoked[c.ID]
	t.mu.Unlock()
	if revoked {
		return 0, ErrTokenRevoked
	}
	return c.UserID, nil
}

// Refresh revokes raw and issues a replacement.
func (t *Tokens) Refresh(raw string) (string, error) {
	userID, err := t.Verify(raw)
	if err != nil {
		return "", err
	}
	t.Revoke(raw)
	return t.Issue(userID)
}

// Revoke logs raw out. Invalid tokens are ignored.
func (t *Tokens) Revoke(raw string) {
	c, err := t.parse(raw)
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for id, exp := range t.revoked {
		if now.After(exp) {
			delete(t.revoked, id)
		}
	}
	if c.ExpiresAt != nil {
		t.revoked[c.ID] = c.ExpiresAt.Time
	}
}

func (t *Tokens) parse(raw string) (*claims, error) {
	c := &claims{}
	token, err := jwt.ParseWithClaims(raw, c, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.key, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid || c.UserID <= 0 {
		return nil, ErrTokenInvalid
	}
	return c, nil
}

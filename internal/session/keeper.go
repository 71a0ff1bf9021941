package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matheus3301/chatsync/internal/model"
)

// ErrNoSession is returned when an operation needs credentials and there
// are none, or they have expired.
var ErrNoSession = errors.New("no active session")

// CredentialStore persists remembered credentials.
type CredentialStore interface {
	SaveCredentials(ctx context.Context, c model.Credentials) error
	LoadCredentials(ctx context.Context) (*model.Credentials, error)
	ClearCredentials(ctx context.Context) error
}

// Keeper holds the credentials of the running session. They are written to
// the store only when the user asked to be remembered; otherwise they live
// in memory until logout or restart.
type Keeper struct {
	mu    sync.RWMutex
	cur   *model.Credentials
	store CredentialStore
	now   func() time.Time
}

// NewKeeper creates a keeper over store, which may be nil for memory only.
func NewKeeper(store CredentialStore) *Keeper {
	return &Keeper{store: store, now: time.Now}
}

// Restore loads remembered credentials. Expired ones are deleted and
// reported as absent.
func (k *Keeper) Restore(ctx context.Context) (bool, error) {
	if k.store == nil {
		return false, nil
	}
	c, err := k.store.LoadCredentials(ctx)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, nil
	}
	if !c.Valid(k.now()) {
		return false, k.store.ClearCredentials(ctx)
	}
	k.mu.Lock()
	k.cur = c
	k.mu.Unlock()
	return true, nil
}

// Set installs new credentials. A missing expiry is read from the token's
// exp claim when it is a JWT.
func (k *Keeper) Set(ctx context.Context, c model.Credentials) error {
	if c.ExpiresAt.IsZero() {
		if exp, ok := TokenExpiry(c.Token); ok {
			c.ExpiresAt = exp
		}
	}
	k.mu.Lock()
	k.cur = &c
	k.mu.Unlock()

	if k.store == nil {
		return nil
	}
	if c.Remember {
		return k.store.SaveCredentials(ctx, c)
	}
	// A previous remembered login must not outlive this one.
	return k.store.ClearCredentials(ctx)
}

// Current returns the credentials if they are present and unexpired.
func (k *Keeper) Current() (model.Credentials, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.cur == nil || !k.cur.Valid(k.now()) {
		return model.Credentials{}, false
	}
	return *k.cur, true
}

// Token returns the bearer token or ErrNoSession.
func (k *Keeper) Token() (string, error) {
	c, ok := k.Current()
	if !ok {
		return "", ErrNoSession
	}
	return c.Token, nil
}

// HasSession reports whether a usable token is held.
func (k *Keeper) HasSession() bool {
	_, ok := k.Current()
	return ok
}

// IsRemembered reports whether the current session is persisted.
func (k *Keeper) IsRemembered() bool {
	c, ok := k.Current()
	return ok && c.Remember
}

// Clear forgets the credentials in memory and in the store.
func (k *Keeper) Clear(ctx context.Context) error {
	k.mu.Lock()
	k.cur = nil
	k.mu.Unlock()
	if k.store == nil {
		return nil
	}
	return k.store.ClearCredentials(ctx)
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// The client has no key to verify with; the server remains the authority.
func TokenExpiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time.UTC(), true
}

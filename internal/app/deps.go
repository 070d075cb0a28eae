package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rupesh-2/matrimonial-UI/internal/api"
	"github.com/rupesh-2/matrimonial-UI/internal/config"
	"github.com/rupesh-2/matrimonial-UI/internal/credentials"
	"github.com/rupesh-2/matrimonial-UI/internal/db"
	"github.com/rupesh-2/matrimonial-UI/internal/feed"
	"github.com/rupesh-2/matrimonial-UI/internal/gateway"
	"github.com/rupesh-2/matrimonial-UI/internal/likes"
	"github.com/rupesh-2/matrimonial-UI/internal/matches"
	"github.com/rupesh-2/matrimonial-UI/internal/messages"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
	"github.com/rupesh-2/matrimonial-UI/internal/profile"
	"github.com/rupesh-2/matrimonial-UI/internal/ratelimit"
	"github.com/rupesh-2/matrimonial-UI/internal/realtime"
	"github.com/rupesh-2/matrimonial-UI/internal/session"
	"github.com/rupesh-2/matrimonial-UI/internal/storage"
)

const throttleIdleTTL = 10 * time.Minute

// Client holds one signed-in (or anonymous) user's stores, wired to a single
// gateway and credential vault.
type Client struct {
	Config  config.Config
	Logger  *slog.Logger
	Vault   *credentials.Vault
	Gateway *gateway.Client
	API     *api.Client

	Session  *session.Store
	Feed     *feed.Store
	Likes    *likes.Store
	Matches  *matches.Store
	Messages *messages.Store
	Profile  *profile.Store

	mu         sync.Mutex
	signedInAs int64
	closers    []func()
}

// NewClient wires together the concrete implementations the CLI and library
// consumers use. pool is only consulted for the postgres credential backend
// and may be nil otherwise.
func NewClient(ctx context.Context, cfg config.Config, logger *slog.Logger, pool db.Pool) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := buildCredentialStore(cfg.Credentials, pool)
	if err != nil {
		return nil, err
	}
	vault := credentials.NewVault(store, logger)

	gwOpts := []gateway.Option{gateway.WithTimeout(cfg.RequestTimeout)}
	if cfg.Throttle.RequestsPerSecond > 0 {
		gwOpts = append(gwOpts, gateway.WithThrottle(ratelimit.PerSecond(cfg.Throttle.RequestsPerSecond, cfg.Throttle.Burst, throttleIdleTTL)))
	}
	gw, err := gateway.New(cfg.APIBaseURL, vault, gwOpts...)
	if err != nil {
		return nil, err
	}

	routes := api.DiscoverRoutes
	if cfg.LikeRoutes == config.LikeRoutesLikes {
		routes = api.LikesRoutes
	}
	client := api.New(gw, routes)

	sess := session.New(client, vault)

	var profileOpts []profile.Option
	if cfg.ObjectStore.Enabled() {
		photos, err := storage.NewPhotoStore(ctx, cfg.ObjectStore)
		if err != nil {
			sess.Close()
			return nil, err
		}
		profileOpts = append(profileOpts, profile.WithPhotoStore(photos))
	}

	c := &Client{
		Config:   cfg,
		Logger:   logger,
		Vault:    vault,
		Gateway:  gw,
		API:      client,
		Session:  sess,
		Feed:     feed.New(client, cfg.FeedPageSize),
		Likes:    likes.New(client, likes.WithCheckTTL(cfg.LikeCheckTTL)),
		Matches:  matches.New(client),
		Messages: messages.New(client),
		Profile:  profile.New(client, sess, profileOpts...),
	}
	c.closers = append(c.closers, sess.Close, sess.Subscribe(c.sessionChanged))
	return c, nil
}

func buildCredentialStore(cfg config.CredentialConfig, pool db.Pool) (credentials.Store, error) {
	switch cfg.Backend {
	case config.CredentialBackendMemory:
		return credentials.NewMemoryStore(), nil
	case config.CredentialBackendFile:
		return credentials.NewFileStore(cfg.Path, cfg.Passphrase), nil
	case config.CredentialBackendPostgres:
		if pool == nil {
			return nil, fmt.Errorf("credential backend %q requires a database pool", cfg.Backend)
		}
		return credentials.NewPostgresStore(pool), nil
	default:
		return nil, fmt.Errorf("unknown credential backend %q", cfg.Backend)
	}
}

// sessionChanged clears every user-scoped store when the signed-in user goes
// away or changes, whether by logout or by a purged credential.
func (c *Client) sessionChanged(snap session.Snapshot) {
	var current int64
	if snap.Authenticated() {
		current = snap.Identity.ID
	} else if snap.State == session.Authenticating {
		return
	}

	c.mu.Lock()
	previous := c.signedInAs
	c.signedInAs = current
	c.mu.Unlock()

	if previous == 0 || previous == current {
		return
	}
	c.Logger.Info("session ended, clearing user state", "previous_user_id", previous)
	c.Feed.Reset()
	c.Likes.Reset()
	c.Matches.Reset()
	c.Messages.Reset()
	c.Profile.Reset()
}

// Like likes userID and, when that completes a match, records the match and
// drops the candidate from the feed.
func (c *Client) Like(ctx context.Context, userID int64) (models.LikeResult, error) {
	res, err := c.Likes.Like(ctx, userID)
	if err != nil {
		return res, err
	}
	c.Feed.Dismiss(userID)
	if res.IsMatch && res.MatchedUser != nil {
		c.Matches.Add(models.Match{User: *res.MatchedUser, MatchedAt: time.Now().UTC()})
	}
	return res, nil
}

// Listener builds the chat socket listener. A nil receiver delivers pushed
// messages to the message store.
func (c *Client) Listener(receiver realtime.Receiver, opts ...realtime.Option) (*realtime.Listener, error) {
	endpoint := c.Config.RealtimeURL
	if endpoint == "" {
		var err error
		if endpoint, err = realtime.EndpointFromBase(c.Config.APIBaseURL); err != nil {
			return nil, err
		}
	}
	if receiver == nil {
		receiver = c.Messages
	}
	return realtime.New(endpoint, c.Vault, receiver, opts...)
}

// Close releases subscriptions held by the client.
func (c *Client) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

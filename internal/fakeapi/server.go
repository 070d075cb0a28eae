// Package fakeapi is an in-memory implementation of the matrimony REST API
// and chat socket, used for local development and end-to-end tests.
package fakeapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/rupesh-2/matrimonial-UI/internal/logging"
	"github.com/rupesh-2/matrimonial-UI/internal/middleware"
)

type ctxKey string

const userIDKey ctxKey = "user_id"

// Options configures a Server.
type Options struct {
	SigningKey   string
	TokenTTL     time.Duration
	LoginLimiter RateLimiter
	NowFunc      func() time.Time
	// BcryptCost defaults to bcrypt.DefaultCost. Tests lower it.
	BcryptCost int
	// PublicURL prefixes uploaded photo locations.
	PublicURL string
}

// Server implements every endpoint the client uses.
type Server struct {
	world   *World
	tokens  *Tokens
	hub     *Hub
	limiter RateLimiter
	now     func() time.Time

	photosMu  sync.RWMutex
	photos    map[string]storedPhoto
	publicURL string
}

type storedPhoto struct {
	contentType string
	data        []byte
}

// New builds a server with an empty world.
func New(opts Options) *Server {
	now := opts.NowFunc
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Server{
		world:     NewWorld(now, opts.BcryptCost),
		tokens:    NewTokens(opts.SigningKey, ttl, now),
		hub:       NewHub(),
		limiter:   opts.LoginLimiter,
		now:       now,
		photos:    map[string]storedPhoto{},
		publicURL: strings.TrimSuffix(opts.PublicURL, "/"),
	}
}

// World exposes the state for seeding and assertions.
func (s *Server) World() *World { return s.world }

// Hub exposes the chat hub.
func (s *Server) Hub() *Hub { return s.hub }

// SetPublicURL sets the prefix of uploaded photo locations once the listen
// address is known.
func (s *Server) SetPublicURL(u string) {
	s.photosMu.Lock()
	defer s.photosMu.Unlock()
	s.publicURL = strings.TrimSuffix(u, "/")
}

// Seed creates the given accounts.
func (s *Server) Seed(users ...SeedUser) error {
	for _, u := range users {
		if _, err := s.world.CreateUser(u); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns the routed API wrapped with request logging and CORS.
func (s *Server) Handler(logger *slog.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.health).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/photos/{name}", s.servePhoto).Methods(http.MethodGet)

	r.HandleFunc("/api/register", s.register).Methods(http.MethodPost)
	r.HandleFunc("/api/login", s.login).Methods(http.MethodPost)
	r.HandleFunc("/ws/chat", s.chat).Methods(http.MethodGet)

	authed := r.PathPrefix("/api").Subrouter()
	authed.Use(s.authenticate)

	authed.HandleFunc("/logout", s.logout).Methods(http.MethodPost)
	authed.HandleFunc("/refresh", s.refresh).Methods(http.MethodPost)
	authed.HandleFunc("/user", s.currentUser).Methods(http.MethodGet)

	authed.HandleFunc("/profile", s.profile).Methods(http.MethodGet)
	authed.HandleFunc("/profile", s.updateProfile).Methods(http.MethodPut)
	authed.HandleFunc("/profile/preferences", s.updatePreferences).Methods(http.MethodPost)
	authed.HandleFunc("/profile/upload-photo", s.uploadPhoto).Methods(http.MethodPost)
	authed.HandleFunc("/profile/delete-photo", s.deletePhoto).Methods(http.MethodDelete)

	authed.HandleFunc("/recommendations", s.recommendations).Methods(http.MethodGet)

	authed.HandleFunc("/discover/like/{id:[0-9]+}", s.like).Methods(http.MethodPost)
	authed.HandleFunc("/discover/unlike/{id:[0-9]+}", s.unlike).Methods(http.MethodDelete)
	authed.HandleFunc("/likes", s.likes).Methods(http.MethodGet)
	authed.HandleFunc("/likes/check/{id:[0-9]+}", s.isLiked).Methods(http.MethodGet)
	authed.HandleFunc("/likes/{id:[0-9]+}", s.like).Methods(http.MethodPost)
	authed.HandleFunc("/likes/{id:[0-9]+}", s.unlike).Methods(http.MethodDelete)

	authed.HandleFunc("/matches", s.matches).Methods(http.MethodGet)
	authed.HandleFunc("/matches/{id:[0-9]+}", s.removeMatch).Methods(http.MethodDelete)

	authed.HandleFunc("/messages", s.conversations).Methods(http.MethodGet)
	authed.HandleFunc("/messages/unread-count", s.unreadCount).Methods(http.MethodGet)
	authed.HandleFunc("/messages/send", s.send).Methods(http.MethodPost)
	authed.HandleFunc("/messages/{id:[0-9]+}", s.thread).Methods(http.MethodGet)
	authed.HandleFunc("/messages/{id:[0-9]+}/read", s.markRead).Methods(http.MethodPost)
	authed.HandleFunc("/messages/{id:[0-9]+}", s.deleteMessage).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(r.Context(), w, http.StatusNotFound, "Not found")
	})

	handler := middleware.RequestLogger(logger)(r)
	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Accept", "X-Request-ID"},
		AllowCredentials: false,
	}).Handler(handler)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// authenticate resolves the bearer token into a user id on the context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.userFromRequest(r)
		if !ok {
			respondError(r.Context(), w, http.StatusUnauthorized, "Unauthenticated.")
			return
		}
		logger := logging.FromContext(r.Context()).With(slog.Int64("userId", userID))
		ctx := logging.WithLogger(r.Context(), logger)
		ctx = context.WithValue(ctx, userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userFromRequest reads the Authorization header, falling back to the token
// query parameter browsers use for websockets.
func (s *Server) userFromRequest(r *http.Request) (int64, bool) {
	token := bearerToken(r)
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return 0, false
	}
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return 0, false
	}
	if _, err := s.world.User(userID); err != nil {
		return 0, false
	}
	return userID, true
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func userIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	s.hub.serve(w, r, userID)
}

func (s *Server) online(userID int64) bool {
	return s.hub.Connected(userID) > 0
}

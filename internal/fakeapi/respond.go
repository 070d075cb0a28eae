package fakeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rupesh-2/matrimonial-UI/internal/logging"
)

// RateLimiter guards sensitive endpoints.
type RateLimiter interface {
	Allow(key string) bool
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, map[string]string{"message": message})
}

func allowRequest(limiter RateLimiter, r *http.Request, scope string) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(rateLimitKey(r, scope))
}

func rateLimitKey(r *http.Request, scope string) string {
	ip := clientIP(r)
	if scope == "" {
		return ip
	}
	return fmt.Sprintf("%s:%s", scope, ip)
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// userJSON is the user object every endpoint returns.
type userJSON struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Email          string   `json:"email,omitempty"`
	Gender         string   `json:"gender,omitempty"`
	Age            int      `json:"age,omitempty"`
	Location       string   `json:"location,omitempty"`
	Photos         []string `json:"photos"`
	ProfilePicture string   `json:"profile_picture,omitempty"`
	IsOnline       bool     `json:"is_online"`
	Bio            string   `json:"bio,omitempty"`
	Interests      []string `json:"interests,omitempty"`
	Occupation     string   `json:"occupation,omitempty"`
	Education      string   `json:"education,omitempty"`
	Height         int      `json:"height,omitempty"`
}

func toUserJSON(u User, withEmail bool, online bool) userJSON {
	out := userJSON{
		ID:         u.ID,
		Name:       u.Name,
		Gender:     u.Gender,
		Age:        u.Age,
		Location:   u.Location,
		Photos:     u.Photos,
		IsOnline:   online,
		Bio:        u.Bio,
		Interests:  u.Interests,
		Occupation: u.Occupation,
		Education:  u.Education,
		Height:     u.Height,
	}
	if out.Photos == nil {
		out.Photos = []string{}
	}
	if len(u.Photos) > 0 {
		out.ProfilePicture = u.Photos[0]
	}
	if withEmail {
		out.Email = u.Email
	}
	return out
}

type messageJSON struct {
	ID         int64     `json:"id"`
	FromUserID int64     `json:"from_user_id"`
	ToUserID   int64     `json:"to_user_id"`
	Message    string    `json:"message"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

func toMessageJSON(m Message) messageJSON {
	return messageJSON{
		ID:         m.ID,
		FromUserID: m.FromID,
		ToUserID:   m.ToID,
		Message:    m.Body,
		IsRead:     m.IsRead,
		CreatedAt:  m.CreatedAt,
	}
}

type pageJSON struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// paginate slices items for page and describes the result.
func paginate[T any](items []T, page, perPage int) ([]T, pageJSON) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	total := len(items)
	last := max(1, (total+perPage-1)/perPage)
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)
	return items[start:end], pageJSON{CurrentPage: page, LastPage: last, PerPage: perPage, Total: total}
}

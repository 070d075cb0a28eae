package fakeapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/rupesh-2/matrimonial-UI/internal/logging"
)

const (
	defaultRecommendationLimit = 10
	likesPerPage               = 20
	matchesPerPage             = 20
)

type recommendationJSON struct {
	userJSON
	CompatibilityScore float64 `json:"compatibility_score"`
}

// recommendations handles GET /api/recommendations. Any filter parameter
// returns a single unpaginated result.
func (s *Server) recommendations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit := queryInt(r, "limit", defaultRecommendationLimit)
	if limit <= 0 || limit > 100 {
		limit = defaultRecommendationLimit
	}
	page := queryInt(r, "page", 1)

	f := RecommendationFilter{
		MinAge:    queryInt(r, "min_age", 0),
		MaxAge:    queryInt(r, "max_age", 0),
		Gender:    q.Get("gender"),
		Interests: q["interests[]"],
	}
	filtered := f.MinAge > 0 || f.MaxAge > 0 || f.Gender != "" || len(f.Interests) > 0 || q.Get("max_distance") != ""

	all := s.world.Recommendations(userIDFrom(ctx), f)
	if filtered {
		page = 1
	}
	items, pg := paginate(all, page, limit)

	out := make([]recommendationJSON, 0, len(items))
	for _, rec := range items {
		out = append(out, recommendationJSON{userJSON: toUserJSON(rec.User, false, s.online(rec.User.ID)), CompatibilityScore: rec.Score})
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"recommendations": out,
		"current_page":    pg.CurrentPage,
		"last_page":       pg.LastPage,
		"per_page":        pg.PerPage,
		"total":           pg.Total,
	})
}

// like handles POST /api/discover/like/{id} and POST /api/likes/{id}.
func (s *Server) like(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	userID := userIDFrom(ctx)
	target := pathID(r)

	matched, err := s.world.Like(userID, target)
	switch {
	case errors.Is(err, ErrAlreadyLiked):
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"message": "Already liked this user", "code": "already_liked"})
		return
	case errors.Is(err, ErrNotFound):
		respondError(ctx, w, http.StatusNotFound, "User not found")
		return
	case err != nil:
		logger.Error("like failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to like user")
		return
	}

	resp := map[string]any{"message": "User liked successfully", "is_match": matched}
	if matched {
		other, err := s.world.User(target)
		if err == nil {
			resp["message"] = "It's a match!"
			resp["matched_user"] = toUserJSON(other, false, s.online(other.ID))
		}
		if me, err := s.world.User(userID); err == nil {
			s.hub.sendToUser(target, event{Type: "match", Data: toUserJSON(me, false, true)})
		}
	}
	respondJSON(ctx, w, http.StatusCreated, resp)
}

// unlike handles DELETE /api/discover/unlike/{id} and DELETE /api/likes/{id}.
func (s *Server) unlike(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.world.Unlike(userIDFrom(ctx), pathID(r))
	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "Like removed"})
}

type likeJSON struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	LikedUserID int64     `json:"liked_user_id"`
	LikedUser   *userJSON `json:"liked_user,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// likes handles GET /api/likes.
func (s *Server) likes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items, pg := paginate(s.world.Likes(userIDFrom(ctx)), queryInt(r, "page", 1), likesPerPage)

	out := make([]likeJSON, 0, len(items))
	for _, l := range items {
		entry := likeJSON{ID: l.ID, UserID: l.UserID, LikedUserID: l.LikedID, CreatedAt: l.CreatedAt}
		if u, err := s.world.User(l.LikedID); err == nil {
			uj := toUserJSON(u, false, s.online(u.ID))
			entry.LikedUser = &uj
		}
		out = append(out, entry)
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"data":         out,
		"current_page": pg.CurrentPage,
		"last_page":    pg.LastPage,
		"per_page":     pg.PerPage,
		"total":        pg.Total,
	})
}

// isLiked handles GET /api/likes/check/{id}.
func (s *Server) isLiked(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondJSON(ctx, w, http.StatusOK, map[string]bool{"is_liked": s.world.IsLiked(userIDFrom(ctx), pathID(r))})
}

type matchJSON struct {
	User      userJSON  `json:"user"`
	MatchedAt time.Time `json:"matched_at"`
}

// matches handles GET /api/matches.
func (s *Server) matches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items, pg := paginate(s.world.Matches(userIDFrom(ctx)), queryInt(r, "page", 1), matchesPerPage)

	out := make([]matchJSON, 0, len(items))
	for _, m := range items {
		out = append(out, matchJSON{User: toUserJSON(m.User, false, s.online(m.User.ID)), MatchedAt: m.MatchedAt})
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"matches":      out,
		"current_page": pg.CurrentPage,
		"last_page":    pg.LastPage,
		"per_page":     pg.PerPage,
		"total":        pg.Total,
	})
}

// removeMatch handles DELETE /api/matches/{id}.
func (s *Server) removeMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.world.Unmatch(userIDFrom(ctx), pathID(r)); err != nil {
		respondError(ctx, w, http.StatusNotFound, "Match not found")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "Match removed"})
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

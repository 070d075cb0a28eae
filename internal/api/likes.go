package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rupesh-2/matrimonial-UI/internal/gateway"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
)

// LikePage is one page of the current user's outgoing likes.
type LikePage struct {
	Likes []models.Like
	Page  models.Page
}

type wireLike struct {
	ID          flexInt   `json:"id"`
	UserID      flexInt   `json:"user_id"`
	LikedUserID flexInt   `json:"liked_user_id"`
	LikedUser   *wireUser `json:"liked_user"`
	CreatedAt   flexTime  `json:"created_at"`
}

func (w wireLike) model() models.Like {
	like := models.Like{
		ID:          int64(w.ID),
		LikedUserID: int64(w.LikedUserID),
		CreatedAt:   time.Time(w.CreatedAt),
	}
	if w.LikedUser != nil {
		like.LikedUser = w.LikedUser.identity()
		if like.LikedUserID == 0 {
			like.LikedUserID = like.LikedUser.ID
		}
	}
	if like.LikedUser.ID == 0 {
		like.LikedUser = models.Identity{ID: like.LikedUserID, Name: "Unknown", ProfilePicture: models.PlaceholderPhoto}
	}
	return like
}

type likesEnvelope struct {
	wirePage
	Data  []wireLike `json:"data"`
	Likes []wireLike `json:"likes"`
}

// Likes fetches one page of likes.
func (c *Client) Likes(ctx context.Context, page int) (LikePage, error) {
	var env likesEnvelope
	if err := c.gw.Do(ctx, gateway.Request{
		Path:  "/api/likes",
		Query: url.Values{"page": {strconv.Itoa(page)}},
	}, &env); err != nil {
		return LikePage{}, err
	}

	raw := env.Data
	if len(raw) == 0 {
		raw = env.Likes
	}
	likes := make([]models.Like, 0, len(raw))
	for _, w := range raw {
		like := w.model()
		if like.LikedUserID <= 0 {
			continue
		}
		likes = append(likes, like)
	}
	return LikePage{Likes: likes, Page: env.wirePage.page(page, 0)}, nil
}

type likeActionEnvelope struct {
	Message     string    `json:"message"`
	IsMatch     flexBool  `json:"is_match"`
	MatchedUser *wireUser `json:"matched_user"`
}

// Like records a like for userID.
func (c *Client) Like(ctx context.Context, userID int64) (models.LikeResult, error) {
	var env likeActionEnvelope
	if err := c.gw.Do(ctx, gateway.Request{Method: http.MethodPost, Path: c.likePath(userID)}, &env); err != nil {
		return models.LikeResult{}, err
	}

	result := models.LikeResult{IsMatch: bool(env.IsMatch)}
	if result.IsMatch && env.MatchedUser != nil {
		matched := env.MatchedUser.identity()
		result.MatchedUser = &matched
	}
	return result, nil
}

// Unlike removes the like for userID.
func (c *Client) Unlike(ctx context.Context, userID int64) error {
	return c.gw.Do(ctx, gateway.Request{Method: http.MethodDelete, Path: c.unlikePath(userID)}, nil)
}

// IsLiked asks the server whether the current user likes userID.
func (c *Client) IsLiked(ctx context.Context, userID int64) (bool, error) {
	var env struct {
		IsLiked flexBool `json:"is_liked"`
	}
	if err := c.gw.Do(ctx, gateway.Request{Path: fmt.Sprintf("/api/likes/check/%d", userID)}, &env); err != nil {
		return false, err
	}
	return bool(env.IsLiked), nil
}

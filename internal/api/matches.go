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

// MatchPage is one page of mutual matches.
type MatchPage struct {
	Matches []models.Match
	Page    models.Page
}

// wireMatch is either a user object carrying matched_at or a {user, matched_at} pair.
type wireMatch struct {
	wireUser
	User      *wireUser `json:"user"`
	MatchedAt flexTime  `json:"matched_at"`
	CreatedAt flexTime  `json:"created_at"`
}

func (w wireMatch) model() models.Match {
	m := models.Match{MatchedAt: time.Time(w.MatchedAt)}
	if w.User != nil {
		m.User = w.User.identity()
	} else {
		m.User = w.wireUser.identity()
	}
	if m.MatchedAt.IsZero() {
		m.MatchedAt = time.Time(w.CreatedAt)
	}
	return m
}

type matchesEnvelope struct {
	wirePage
	Matches []wireMatch `json:"matches"`
	Data    []wireMatch `json:"data"`
}

// Matches fetches one page of mutual matches.
func (c *Client) Matches(ctx context.Context, page int) (MatchPage, error) {
	var env matchesEnvelope
	if err := c.gw.Do(ctx, gateway.Request{
		Path:  "/api/matches",
		Query: url.Values{"page": {strconv.Itoa(page)}},
	}, &env); err != nil {
		return MatchPage{}, err
	}

	raw := env.Matches
	if len(raw) == 0 {
		raw = env.Data
	}
	out := make([]models.Match, 0, len(raw))
	for _, w := range raw {
		m := w.model()
		if m.User.ID <= 0 {
			continue
		}
		out = append(out, m)
	}
	return MatchPage{Matches: out, Page: env.wirePage.page(page, 0)}, nil
}

// RemoveMatch dissolves the match with userID.
func (c *Client) RemoveMatch(ctx context.Context, userID int64) error {
	return c.gw.Do(ctx, gateway.Request{
		Method: http.MethodDelete,
		Path:   fmt.Sprintf("/api/matches/%d", userID),
	}, nil)
}

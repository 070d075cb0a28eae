package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/rupesh-2/matrimonial-UI/internal/gateway"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
)

// RecommendationPage is one page of the feed.
type RecommendationPage struct {
	Items []models.Recommendation
	Page  models.Page
}

// wireRecommendation is either a flat candidate carrying compatibility_score
// or a {compatibility_percentage, score, user} wrapper.
type wireRecommendation struct {
	wireUser
	CompatibilityScore      *flexFloat `json:"compatibility_score"`
	CompatibilityPercentage *flexFloat `json:"compatibility_percentage"`
	Score                   *flexFloat `json:"score"`
	User                    *wireUser  `json:"user"`
}

func (w wireRecommendation) model() models.Recommendation {
	var rec models.Recommendation
	if w.User != nil {
		rec.Candidate = w.User.candidate()
	} else {
		rec.Candidate = w.wireUser.candidate()
	}

	switch {
	case w.CompatibilityScore != nil:
		rec.CompatibilityScore = float64(*w.CompatibilityScore)
	case w.CompatibilityPercentage != nil:
		rec.CompatibilityScore = float64(*w.CompatibilityPercentage)
	case w.Score != nil:
		score := float64(*w.Score)
		if score <= 1 {
			score *= 100
		}
		rec.CompatibilityScore = score
	}
	return rec
}

type recommendationEnvelope struct {
	wirePage
	Recommendations []wireRecommendation `json:"recommendations"`
	Data            []wireRecommendation `json:"data"`
}

func (e recommendationEnvelope) result(page, limit int) RecommendationPage {
	raw := e.Recommendations
	if len(raw) == 0 {
		raw = e.Data
	}
	items := make([]models.Recommendation, 0, len(raw))
	for _, w := range raw {
		rec := w.model()
		if rec.Candidate.ID <= 0 {
			continue
		}
		items = append(items, rec)
	}
	return RecommendationPage{Items: items, Page: e.wirePage.page(page, limit)}
}

// Recommendations fetches one page of ranked candidates.
func (c *Client) Recommendations(ctx context.Context, limit, page int) (RecommendationPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("page", strconv.Itoa(page))

	var env recommendationEnvelope
	if err := c.gw.Do(ctx, gateway.Request{Path: "/api/recommendations", Query: q}, &env); err != nil {
		return RecommendationPage{}, err
	}
	return env.result(page, limit), nil
}

// FilteredRecommendations fetches the first page of candidates matching f.
func (c *Client) FilteredRecommendations(ctx context.Context, f models.Filter, limit int) (RecommendationPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if f.MinAge > 0 {
		q.Set("min_age", strconv.Itoa(f.MinAge))
	}
	if f.MaxAge > 0 {
		q.Set("max_age", strconv.Itoa(f.MaxAge))
	}
	if f.Gender != "" {
		q.Set("gender", f.Gender)
	}
	if f.MaxDistance > 0 {
		q.Set("max_distance", strconv.Itoa(f.MaxDistance))
	}
	for _, interest := range f.Interests {
		q.Add("interests[]", interest)
	}

	var env recommendationEnvelope
	if err := c.gw.Do(ctx, gateway.Request{Path: "/api/recommendations", Query: q}, &env); err != nil {
		return RecommendationPage{}, err
	}
	return env.result(1, limit), nil
}

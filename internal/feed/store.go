// Package feed holds the ranked recommendation feed: page 1 replaces it, later
// pages append without duplicates, and dismissals hide entries until the next
// replace.
package feed

import (
	"context"
	"slices"
	"sync"

	"github.com/rupesh-2/matrimonial-UI/internal/api"
	"github.com/rupesh-2/matrimonial-UI/internal/apierr"
	"github.com/rupesh-2/matrimonial-UI/internal/logging"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
	"github.com/rupesh-2/matrimonial-UI/internal/observe"
	"github.com/rupesh-2/matrimonial-UI/internal/paging"
)

// DefaultPageSize is used when a caller passes a non-positive limit.
const DefaultPageSize = 10

// API is the slice of the REST client the feed needs.
type API interface {
	Recommendations(ctx context.Context, limit, page int) (api.RecommendationPage, error)
	FilteredRecommendations(ctx context.Context, f models.Filter, limit int) (api.RecommendationPage, error)
}

// Snapshot is the feed as handed to subscribers. Entries excludes dismissals.
type Snapshot struct {
	Version     uint64
	Entries     []models.Recommendation
	Page        models.Page
	Filter      models.Filter
	Loading     bool
	LoadingMore bool
	Err         string
}

// HasMore reports whether LoadMore would fetch another page.
func (s Snapshot) HasMore() bool {
	return s.Filter.IsZero() && s.Page.HasMore()
}

// Store is the feed state container.
type Store struct {
	api      API
	pageSize int

	mu          sync.Mutex
	entries     []models.Recommendation
	dismissed   map[int64]struct{}
	page        models.Page
	limit       int
	filter      models.Filter
	guard       paging.Guard
	loading     bool
	loadingMore bool
	err         string
	version     uint64

	hub observe.Hub[Snapshot]
}

// New builds an empty feed. pageSize is the default limit for Refresh.
func New(client API, pageSize int) *Store {
	if client == nil {
		panic("feed: api is required")
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Store{api: client, pageSize: pageSize, limit: pageSize, dismissed: map[int64]struct{}{}}
}

// Subscribe registers fn for every change.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	return s.hub.Subscribe(fn)
}

// Snapshot returns the current feed.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// View returns the displayed entries in rank order.
func (s *Store) View() []models.Recommendation {
	return s.Snapshot().Entries
}

// Fetch loads one page. Page 1 replaces the feed and clears dismissals; later
// pages append. A later page is skipped while any fetch is in flight.
func (s *Store) Fetch(ctx context.Context, limit, page int) error {
	if limit <= 0 {
		limit = s.pageSize
	}
	page = paging.NormalizePage(page)
	if page == 1 {
		return s.replace(ctx, limit, models.Filter{})
	}
	return s.appendPage(ctx, limit, page)
}

// Refresh reloads page 1 with the active filter.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	limit, filter := s.limit, s.filter
	s.mu.Unlock()
	return s.replace(ctx, limit, filter)
}

// FetchFiltered replaces the feed with candidates matching f. A zero filter
// returns to the unfiltered feed.
func (s *Store) FetchFiltered(ctx context.Context, f models.Filter) error {
	s.mu.Lock()
	limit := s.limit
	s.mu.Unlock()
	return s.replace(ctx, limit, f)
}

// LoadMore appends the next page. It is a no-op when there is no next page or
// a fetch is in flight.
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	limit := s.limit
	s.mu.Unlock()
	return s.appendPage(ctx, limit, 0)
}

func (s *Store) replace(ctx context.Context, limit int, filter models.Filter) (err error) {
	ctx, span := logging.StartSpan(ctx, "feed.replace", "limit", limit, "filtered", !filter.IsZero())
	defer func() { span.End(err) }()

	s.mu.Lock()
	ticket := s.guard.Begin()
	s.loading = true
	s.loadingMore = false
	s.limit = limit
	snap := s.bumpLocked()
	s.mu.Unlock()
	s.hub.Publish(snap)

	var res api.RecommendationPage
	if filter.IsZero() {
		res, err = s.api.Recommendations(ctx, limit, 1)
	} else {
		res, err = s.api.FilteredRecommendations(ctx, filter, limit)
	}

	s.mu.Lock()
	if !s.guard.Valid(ticket) {
		s.mu.Unlock()
		span.Logger().Debug("discarding superseded feed response")
		return err
	}
	s.loading = false
	if err != nil {
		s.err = apierr.Message(err)
	} else {
		s.entries = paging.Dedupe(res.Items, recommendationKey)
		s.dismissed = map[int64]struct{}{}
		s.page = res.Page
		s.filter = filter
		s.err = ""
	}
	snap = s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
	return err
}

// appendPage fetches page, or the next page when page is 0.
func (s *Store) appendPage(ctx context.Context, limit, page int) (err error) {
	s.mu.Lock()
	if s.loading || s.loadingMore || !s.filter.IsZero() {
		s.mu.Unlock()
		return nil
	}
	if page == 0 {
		if !s.page.HasMore() {
			s.mu.Unlock()
			return nil
		}
		page = s.page.CurrentPage + 1
	}
	ticket := s.guard.Current()
	s.loadingMore = true
	snap := s.bumpLocked()
	s.mu.Unlock()
	s.hub.Publish(snap)

	ctx, span := logging.StartSpan(ctx, "feed.load_more", "page", page)
	defer func() { span.End(err) }()

	res, err := s.api.Recommendations(ctx, limit, page)

	s.mu.Lock()
	if !s.guard.Valid(ticket) {
		s.mu.Unlock()
		span.Logger().Debug("discarding page fetched before a refresh", "page", page)
		return err
	}
	s.loadingMore = false
	if err != nil {
		s.err = apierr.Message(err)
	} else {
		s.entries = paging.Merge(s.entries, res.Items, recommendationKey)
		s.page = res.Page
		s.err = ""
	}
	snap = s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
	return err
}

// Dismiss hides candidateID until the next replace. No request is sent.
func (s *Store) Dismiss(candidateID int64) {
	s.mu.Lock()
	s.dismissed[candidateID] = struct{}{}
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

// ClearError drops the recorded error.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = ""
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

// Reset empties the feed and abandons in-flight fetches, e.g. on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	s.guard.Begin()
	s.entries = nil
	s.dismissed = map[int64]struct{}{}
	s.page = models.Page{}
	s.filter = models.Filter{}
	s.limit = s.pageSize
	s.loading, s.loadingMore = false, false
	s.err = ""
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

func (s *Store) bumpLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	visible := make([]models.Recommendation, 0, len(s.entries))
	for _, e := range s.entries {
		if _, hidden := s.dismissed[e.Candidate.ID]; hidden {
			continue
		}
		visible = append(visible, e)
	}
	return Snapshot{
		Version:     s.version,
		Entries:     slices.Clip(visible),
		Page:        s.page,
		Filter:      s.filter,
		Loading:     s.loading,
		LoadingMore: s.loadingMore,
		Err:         s.err,
	}
}

func recommendationKey(r models.Recommendation) int64 {
	return r.Candidate.ID
}

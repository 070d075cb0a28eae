// Package matches holds the list of mutual matches.
package matches

import (
	"context"
	"slices"
	"sync"

	"github.com/rupesh-2/matrimonial-UI/internal/api"
	"github.com/rupesh-2/matrimonial-UI/internal/apierr"
	"github.com/rupesh-2/matrimonial-UI/internal/logging"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
	"github.com/rupesh-2/matrimonial-UI/internal/observe"
	"github.com/rupesh-2/matrimonial-UI/internal/optimistic"
	"github.com/rupesh-2/matrimonial-UI/internal/paging"
)

// API is the slice of the REST client the matches store needs.
type API interface {
	Matches(ctx context.Context, page int) (api.MatchPage, error)
	RemoveMatch(ctx context.Context, userID int64) error
}

// Snapshot is the match list handed to subscribers.
type Snapshot struct {
	Version uint64
	Matches []models.Match
	Page    models.Page
	Loading bool
	Err     string
}

// Has reports whether userID is among the loaded matches.
func (s Snapshot) Has(userID int64) bool {
	return slices.ContainsFunc(s.Matches, func(m models.Match) bool { return m.User.ID == userID })
}

// Store is the match state container.
type Store struct {
	api API

	mu      sync.Mutex
	matches []models.Match
	page    models.Page
	guard   paging.Guard
	// epoch changes on Reset so a late rollback cannot resurrect a match.
	epoch   uint64
	loading bool
	err     string
	version uint64

	hub observe.Hub[Snapshot]
}

// New builds an empty match list.
func New(client API) *Store {
	if client == nil {
		panic("matches: api is required")
	}
	return &Store{api: client}
}

// Subscribe registers fn for every change.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	return s.hub.Subscribe(fn)
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Fetch loads page. Page 1 replaces the list, later pages append.
func (s *Store) Fetch(ctx context.Context, page int) (err error) {
	page = paging.NormalizePage(page)

	ctx, span := logging.StartSpan(ctx, "matches.fetch", "page", page)
	defer func() { span.End(err) }()

	s.mu.Lock()
	var ticket uint64
	if page == 1 {
		ticket = s.guard.Begin()
	} else {
		if s.loading {
			s.mu.Unlock()
			return nil
		}
		ticket = s.guard.Current()
	}
	s.loading = true
	snap := s.bumpLocked()
	s.mu.Unlock()
	s.hub.Publish(snap)

	res, err := s.api.Matches(ctx, page)

	s.mu.Lock()
	if !s.guard.Valid(ticket) {
		s.mu.Unlock()
		span.Logger().Debug("discarding superseded match page")
		return err
	}
	s.loading = false
	switch {
	case err != nil:
		s.err = apierr.Message(err)
	case page == 1:
		s.matches = paging.Dedupe(res.Matches, matchKey)
		s.page = res.Page
		s.err = ""
	default:
		s.matches = paging.Merge(s.matches, res.Matches, matchKey)
		s.page = res.Page
		s.err = ""
	}
	snap = s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
	return err
}

// LoadMore appends the next page when there is one.
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	if !page.HasMore() {
		return nil
	}
	return s.Fetch(ctx, page.CurrentPage+1)
}

// Add records a match learned from a like response without a reload.
func (s *Store) Add(m models.Match) {
	if m.User.ID <= 0 {
		return
	}
	s.mu.Lock()
	if slices.ContainsFunc(s.matches, func(x models.Match) bool { return x.User.ID == m.User.ID }) {
		s.mu.Unlock()
		return
	}
	s.matches = append([]models.Match{m}, s.matches...)
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

type removal struct {
	match models.Match
	index int
	found bool
}

// Remove unmatches userID. The entry disappears immediately and returns to
// its position if the server refuses.
func (s *Store) Remove(ctx context.Context, userID int64) (err error) {
	if userID <= 0 {
		err = apierr.Validation("invalid user id")
		s.recordError(err)
		return err
	}

	ctx, span := logging.StartSpan(ctx, "matches.remove", "user_id", userID)
	defer func() { span.End(err) }()

	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	update := optimistic.Update[removal]{
		Snapshot: func() removal {
			s.mu.Lock()
			defer s.mu.Unlock()
			i := slices.IndexFunc(s.matches, func(m models.Match) bool { return m.User.ID == userID })
			if i < 0 {
				return removal{}
			}
			return removal{match: s.matches[i], index: i, found: true}
		},
		Apply: func() {
			s.mu.Lock()
			s.matches = slices.DeleteFunc(slices.Clone(s.matches), func(m models.Match) bool { return m.User.ID == userID })
			snap := s.bumpLocked()
			s.mu.Unlock()
			s.hub.Publish(snap)
		},
		Restore: func(prev removal) {
			if !prev.found {
				return
			}
			s.mu.Lock()
			if s.epoch != epoch {
				s.mu.Unlock()
				return
			}
			if !slices.ContainsFunc(s.matches, func(m models.Match) bool { return m.User.ID == userID }) {
				at := min(prev.index, len(s.matches))
				s.matches = slices.Insert(slices.Clone(s.matches), at, prev.match)
			}
			snap := s.bumpLocked()
			s.mu.Unlock()
			s.hub.Publish(snap)
		},
	}
	if err = update.Run(ctx, func(ctx context.Context) error {
		return s.api.RemoveMatch(ctx, userID)
	}); err != nil {
		s.mu.Lock()
		stale := s.epoch != epoch
		s.mu.Unlock()
		if !stale {
			s.recordError(err)
		}
		return err
	}
	return nil
}

// ClearError drops the recorded error.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = ""
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

// Reset empties the list, e.g. on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	s.epoch++
	s.guard.Begin()
	s.matches = nil
	s.page = models.Page{}
	s.loading = false
	s.err = ""
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

func (s *Store) recordError(err error) {
	s.mu.Lock()
	s.err = apierr.Message(err)
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

func (s *Store) bumpLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version: s.version,
		Matches: slices.Clone(s.matches),
		Page:    s.page,
		Loading: s.loading,
		Err:     s.err,
	}
}

func matchKey(m models.Match) int64 {
	return m.User.ID
}

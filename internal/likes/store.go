// Package likes mirrors the set of users the current user has liked. Like and
// unlike are applied optimistically and rolled back when the server rejects
// them, except for the duplicate-like rejection, which counts as success.
package likes

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rupesh-2/matrimonial-UI/internal/api"
	"github.com/rupesh-2/matrimonial-UI/internal/apierr"
	"github.com/rupesh-2/matrimonial-UI/internal/logging"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
	"github.com/rupesh-2/matrimonial-UI/internal/observe"
	"github.com/rupesh-2/matrimonial-UI/internal/optimistic"
	"github.com/rupesh-2/matrimonial-UI/internal/paging"
)

// DuplicateLikeCode is the stable error code for a repeated like.
const DuplicateLikeCode = "already_liked"

// duplicateLikeMessages are the legacy message sentinels some server versions
// send instead of DuplicateLikeCode.
var duplicateLikeMessages = []string{
	"already liked this user",
	"already liked this profile",
}

// ErrReset is returned by Like and Unlike when Reset ran while the request was
// in flight. The outcome is not applied to the store.
var ErrReset = errors.New("likes: store was reset during the request")

// DefaultCheckTTL is how long IsLiked answers are cached.
const DefaultCheckTTL = 30 * time.Second

// API is the slice of the REST client the like store needs.
type API interface {
	Likes(ctx context.Context, page int) (api.LikePage, error)
	Like(ctx context.Context, userID int64) (models.LikeResult, error)
	Unlike(ctx context.Context, userID int64) error
	IsLiked(ctx context.Context, userID int64) (bool, error)
}

// Snapshot is the like state handed to subscribers.
type Snapshot struct {
	Version uint64
	// Liked is the effective like set in ascending id order.
	Liked   []int64
	Likes   []models.Like
	Page    models.Page
	Pending []int64
	Loading bool
	Err     string
}

// Has reports whether userID is in the like set.
func (s Snapshot) Has(userID int64) bool {
	_, ok := slices.BinarySearch(s.Liked, userID)
	return ok
}

// mark is a settled like or unlike the list has not caught up with yet.
type mark struct {
	liked bool
	seq   uint64
}

// Option customizes a Store.
type Option func(*Store)

// WithCheckTTL sets how long IsLiked answers are cached.
func WithCheckTTL(ttl time.Duration) Option {
	return func(s *Store) { s.checkTTL = ttl }
}

// WithNowFunc overrides the clock used by the check cache.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is the like state container.
type Store struct {
	api      API
	checkTTL time.Duration
	now      func() time.Time
	checks   *checker
	users    keyedLock

	mu      sync.Mutex
	likes   []models.Like
	listed  map[int64]struct{}
	marks   map[int64]mark
	pending map[int64]bool
	seq     uint64
	page    models.Page
	guard   paging.Guard
	// epoch changes on Reset; like and unlike outcomes from an older epoch
	// are dropped.
	epoch   uint64
	loading bool
	more    bool
	err     string
	version uint64

	hub observe.Hub[Snapshot]
}

// New builds an empty like store.
func New(client API, opts ...Option) *Store {
	if client == nil {
		panic("likes: api is required")
	}
	s := &Store{
		api:      client,
		checkTTL: DefaultCheckTTL,
		now:      time.Now,
		listed:   map[int64]struct{}{},
		marks:    map[int64]mark{},
		pending:  map[int64]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.checks = newChecker(client.IsLiked, s.checkTTL, s.now)
	return s
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

// Has reports whether userID is currently in the like set, counting
// in-flight optimistic changes.
func (s *Store) Has(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasLocked(userID)
}

// Like adds userID to the like set. A duplicate-like rejection is reported as
// success with AlreadyLiked set. A match is returned only by the call that
// produced it.
func (s *Store) Like(ctx context.Context, userID int64) (result models.LikeResult, err error) {
	if userID <= 0 {
		err = apierr.Validation("invalid user id")
		s.recordError(err)
		return models.LikeResult{}, err
	}

	ctx, span := logging.StartSpan(ctx, "likes.like", "user_id", userID)
	defer func() { span.End(err) }()

	epoch := s.currentEpoch()
	release, err := s.users.acquire(ctx, userID)
	if err != nil {
		return models.LikeResult{}, err
	}
	defer release()

	err = s.optimisticUpdate(epoch, userID, true, isDuplicateLike).Run(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = s.api.Like(ctx, userID)
		return callErr
	})

	switch {
	case err == nil:
	case isDuplicateLike(err):
		span.Logger().Info("like already recorded server-side")
		result, err = models.LikeResult{AlreadyLiked: true}, nil
	default:
		s.recordErrorAt(epoch, err)
		return models.LikeResult{}, err
	}

	if !s.settle(ctx, epoch, userID, true) {
		return models.LikeResult{}, ErrReset
	}
	if result.IsMatch {
		span.Logger().Info("like produced a match")
	}
	return result, nil
}

// Unlike removes userID from the like set.
func (s *Store) Unlike(ctx context.Context, userID int64) (err error) {
	if userID <= 0 {
		err = apierr.Validation("invalid user id")
		s.recordError(err)
		return err
	}

	ctx, span := logging.StartSpan(ctx, "likes.unlike", "user_id", userID)
	defer func() { span.End(err) }()

	epoch := s.currentEpoch()
	release, err := s.users.acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	err = s.optimisticUpdate(epoch, userID, false, nil).Run(ctx, func(ctx context.Context) error {
		return s.api.Unlike(ctx, userID)
	})
	if err != nil {
		s.recordErrorAt(epoch, err)
		return err
	}

	if !s.settle(ctx, epoch, userID, false) {
		return ErrReset
	}
	return nil
}

func (s *Store) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// optimisticUpdate marks userID as pending with the desired membership. The
// mark is removed again on restore. Nothing is written once epoch is stale.
func (s *Store) optimisticUpdate(epoch uint64, userID int64, liked bool, keep func(error) bool) optimistic.Update[*bool] {
	return optimistic.Update[*bool]{
		Snapshot: func() *bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			if prev, ok := s.pending[userID]; ok {
				return &prev
			}
			return nil
		},
		Apply: func() {
			s.mu.Lock()
			if s.epoch != epoch {
				s.mu.Unlock()
				return
			}
			s.pending[userID] = liked
			snap := s.bumpLocked()
			s.mu.Unlock()
			s.hub.Publish(snap)
		},
		Restore: func(prev *bool) {
			s.mu.Lock()
			if s.epoch != epoch {
				s.mu.Unlock()
				return
			}
			if prev != nil {
				s.pending[userID] = *prev
			} else {
				delete(s.pending, userID)
			}
			snap := s.bumpLocked()
			s.mu.Unlock()
			s.hub.Publish(snap)
		},
		Keep: keep,
	}
}

// settle turns a pending change into a confirmed mark. It reports false when
// the store was reset since epoch.
func (s *Store) settle(ctx context.Context, epoch uint64, userID int64, liked bool) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	delete(s.pending, userID)
	s.seq++
	s.marks[userID] = mark{liked: liked, seq: s.seq}
	s.err = ""
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.checks.Prime(ctx, userID, liked)
	s.hub.Publish(snap)
	return true
}

// List loads one page of likes. Page 1 replaces the collection; later pages
// append. The like set is recomputed from the collection plus changes that
// settled after the request was issued.
func (s *Store) List(ctx context.Context, page int) (err error) {
	page = paging.NormalizePage(page)
	ctx, span := logging.StartSpan(ctx, "likes.list", "page", page)
	defer func() { span.End(err) }()

	s.mu.Lock()
	var ticket uint64
	if page == 1 {
		ticket = s.guard.Begin()
		s.loading = true
		s.more = false
	} else {
		if s.loading || s.more {
			s.mu.Unlock()
			return nil
		}
		ticket = s.guard.Current()
		s.more = true
	}
	seqAtStart := s.seq
	snap := s.bumpLocked()
	s.mu.Unlock()
	s.hub.Publish(snap)

	res, err := s.api.Likes(ctx, page)

	s.mu.Lock()
	if !s.guard.Valid(ticket) {
		s.mu.Unlock()
		return err
	}
	if page == 1 {
		s.loading = false
	} else {
		s.more = false
	}
	if err != nil {
		s.err = apierr.Message(err)
	} else {
		if page == 1 {
			s.likes = paging.Dedupe(res.Likes, likeKey)
			for id, m := range s.marks {
				if m.seq <= seqAtStart {
					delete(s.marks, id)
				}
			}
		} else {
			s.likes = paging.Merge(s.likes, res.Likes, likeKey)
		}
		s.listed = make(map[int64]struct{}, len(s.likes))
		for _, l := range s.likes {
			s.listed[l.LikedUserID] = struct{}{}
		}
		s.page = res.Page
		s.err = ""
	}
	snap = s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
	return err
}

// Refresh reloads page 1.
func (s *Store) Refresh(ctx context.Context) error {
	return s.List(ctx, 1)
}

// LoadMore appends the next page when one exists.
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	if !page.HasMore() {
		return nil
	}
	return s.List(ctx, page.CurrentPage+1)
}

// IsLiked answers from local state when the like set already knows userID,
// otherwise asks the server through a batching, caching loader.
func (s *Store) IsLiked(ctx context.Context, userID int64) (bool, error) {
	if userID <= 0 {
		return false, apierr.Validation("invalid user id")
	}
	s.mu.Lock()
	liked, known := s.knownLocked(userID)
	s.mu.Unlock()
	if known {
		return liked, nil
	}
	return s.checks.Check(ctx, userID)
}

// ClearError drops the recorded error.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = ""
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

// Reset forgets everything, e.g. on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	s.guard.Begin()
	s.epoch++
	s.likes = nil
	s.listed = map[int64]struct{}{}
	s.marks = map[int64]mark{}
	s.pending = map[int64]bool{}
	s.page = models.Page{}
	s.loading, s.more = false, false
	s.err = ""
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.checks.Forget()
	s.hub.Publish(snap)
}

func (s *Store) recordError(err error) {
	s.mu.Lock()
	s.err = apierr.Message(err)
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

func (s *Store) recordErrorAt(epoch uint64, err error) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.err = apierr.Message(err)
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

// knownLocked reports membership when a pending change, a settled mark or the
// listed collection determines it.
func (s *Store) knownLocked(userID int64) (liked, known bool) {
	if p, ok := s.pending[userID]; ok {
		return p, true
	}
	if m, ok := s.marks[userID]; ok {
		return m.liked, true
	}
	if _, ok := s.listed[userID]; ok {
		return true, true
	}
	return false, false
}

func (s *Store) hasLocked(userID int64) bool {
	liked, _ := s.knownLocked(userID)
	return liked
}

func (s *Store) bumpLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	candidates := make(map[int64]struct{}, len(s.listed)+len(s.marks)+len(s.pending))
	for id := range s.listed {
		candidates[id] = struct{}{}
	}
	for id := range s.marks {
		candidates[id] = struct{}{}
	}
	for id := range s.pending {
		candidates[id] = struct{}{}
	}

	liked := make([]int64, 0, len(candidates))
	for id := range candidates {
		if s.hasLocked(id) {
			liked = append(liked, id)
		}
	}
	slices.Sort(liked)

	pending := make([]int64, 0, len(s.pending))
	for id := range s.pending {
		pending = append(pending, id)
	}
	slices.Sort(pending)

	return Snapshot{
		Version: s.version,
		Liked:   liked,
		Likes:   slices.Clone(s.likes),
		Page:    s.page,
		Pending: pending,
		Loading: s.loading || s.more,
		Err:     s.err,
	}
}

// isDuplicateLike recognizes the server's "already liked" rejection, by code
// or, for older servers, by message.
func isDuplicateLike(err error) bool {
	if errors.Is(err, apierr.ErrDuplicateAction) {
		return true
	}
	var e *apierr.Error
	if !errors.As(err, &e) || e.Kind != apierr.KindApplication {
		return false
	}
	if e.Code == DuplicateLikeCode {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(e.Message))
	return slices.Contains(duplicateLikeMessages, strings.TrimSuffix(msg, "."))
}

func likeKey(l models.Like) int64 {
	if l.ID > 0 {
		return l.ID
	}
	return -l.LikedUserID
}

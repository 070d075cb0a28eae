package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rupesh-2/matrimonial-UI/internal/api"
	"github.com/rupesh-2/matrimonial-UI/internal/apierr"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
)

type call struct {
	limit  int
	page   int
	filter models.Filter
}

type response struct {
	page api.RecommendationPage
	err  error
	gate chan struct{}
}

// scriptedAPI answers each page from a queue. A response with a gate blocks
// until the test closes it.
type scriptedAPI struct {
	mu        sync.Mutex
	responses map[int][]response
	filtered  []response
	calls     []call
}

func newScriptedAPI() *scriptedAPI {
	return &scriptedAPI{responses: map[int][]response{}}
}

func (s *scriptedAPI) queue(page int, r response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[page] = append(s.responses[page], r)
}

func (s *scriptedAPI) Recommendations(_ context.Context, limit, page int) (api.RecommendationPage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{limit: limit, page: page})
	q := s.responses[page]
	if len(q) == 0 {
		s.mu.Unlock()
		return api.RecommendationPage{}, errors.New("unexpected request")
	}
	r := q[0]
	s.responses[page] = q[1:]
	s.mu.Unlock()

	if r.gate != nil {
		<-r.gate
	}
	return r.page, r.err
}

func (s *scriptedAPI) FilteredRecommendations(_ context.Context, f models.Filter, limit int) (api.RecommendationPage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{limit: limit, page: 1, filter: f})
	r := s.filtered[0]
	s.filtered = s.filtered[1:]
	s.mu.Unlock()
	return r.page, r.err
}

func (s *scriptedAPI) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func recs(ids ...int64) []models.Recommendation {
	out := make([]models.Recommendation, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Recommendation{
			Candidate:          models.Candidate{Identity: models.Identity{ID: id}},
			CompatibilityScore: float64(100 - id),
		})
	}
	return out
}

func pageOf(current, last int, ids ...int64) api.RecommendationPage {
	return api.RecommendationPage{Items: recs(ids...), Page: models.Page{CurrentPage: current, LastPage: last}}
}

func ids(entries []models.Recommendation) []int64 {
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Candidate.ID)
	}
	return out
}

func TestLoadMoreDeduplicatesOverlap(t *testing.T) {
	ctx := context.Background()
	stub := newScriptedAPI()
	stub.queue(1, response{page: pageOf(1, 3, 1, 2, 3)})
	stub.queue(2, response{page: pageOf(2, 3, 2, 3, 4)})
	store := New(stub, 10)

	require.NoError(t, store.Fetch(ctx, 10, 1))
	require.NoError(t, store.LoadMore(ctx))

	snap := store.Snapshot()
	require.Equal(t, []int64{1, 2, 3, 4}, ids(snap.Entries))
	require.Equal(t, 2, snap.Page.CurrentPage)
	require.True(t, snap.HasMore())
}

func TestLoadMoreIsNoOpWithoutMorePages(t *testing.T) {
	ctx := context.Background()
	stub := newScriptedAPI()
	stub.queue(1, response{page: pageOf(1, 1, 1)})
	store := New(stub, 10)

	require.NoError(t, store.LoadMore(ctx))
	require.Zero(t, stub.callCount())

	require.NoError(t, store.Fetch(ctx, 10, 1))
	require.NoError(t, store.LoadMore(ctx))
	require.Equal(t, 1, stub.callCount())
}

func TestDismissIsClearedByRefresh(t *testing.T) {
	ctx := context.Background()
	stub := newScriptedAPI()
	stub.queue(1, response{page: pageOf(1, 1, 1, 2, 3)})
	stub.queue(1, response{page: pageOf(1, 1, 1, 2, 3)})
	store := New(stub, 10)

	require.NoError(t, store.Fetch(ctx, 10, 1))
	store.Dismiss(1)
	require.Equal(t, []int64{2, 3}, ids(store.View()))
	require.Equal(t, 1, stub.callCount())

	require.NoError(t, store.Refresh(ctx))
	require.Equal(t, []int64{1, 2, 3}, ids(store.View()))
}

func TestFetchErrorKeepsFeed(t *testing.T) {
	ctx := context.Background()
	stub := newScriptedAPI()
	stub.queue(1, response{page: pageOf(1, 2, 1, 2)})
	stub.queue(1, response{err: apierr.Network(errors.New("connection refused"))})
	store := New(stub, 10)

	require.NoError(t, store.Fetch(ctx, 10, 1))
	err := store.Refresh(ctx)
	require.ErrorIs(t, err, apierr.ErrNetwork)

	snap := store.Snapshot()
	require.Equal(t, []int64{1, 2}, ids(snap.Entries))
	require.NotEmpty(t, snap.Err)
	require.False(t, snap.Loading)

	store.ClearError()
	require.Empty(t, store.Snapshot().Err)
}

func TestLoadMoreIgnoredWhileFirstPageInFlight(t *testing.T) {
	ctx := context.Background()
	stub := newScriptedAPI()
	stub.queue(1, response{page: pageOf(1, 3, 1, 2)})
	gate := make(chan struct{})
	stub.queue(1, response{page: pageOf(1, 3, 5, 6), gate: gate})
	store := New(stub, 10)
	require.NoError(t, store.Fetch(ctx, 10, 1))

	done := make(chan error, 1)
	go func() { done <- store.Refresh(ctx) }()
	require.Eventually(t, func() bool { return stub.callCount() == 2 }, time.Second, time.Millisecond)
	require.True(t, store.Snapshot().Loading)

	require.NoError(t, store.LoadMore(ctx))
	require.Equal(t, 2, stub.callCount())

	close(gate)
	require.NoError(t, <-done)
	require.Equal(t, []int64{5, 6}, ids(store.View()))
}

func TestStalePageTwoIsDiscardedAfterRefresh(t *testing.T) {
	ctx := context.Background()
	stub := newScriptedAPI()
	stub.queue(1, response{page: pageOf(1, 3, 1, 2)})
	pageTwoGate := make(chan struct{})
	stub.queue(2, response{page: pageOf(2, 3, 3, 4), gate: pageTwoGate})
	pageOneGate := make(chan struct{})
	stub.queue(1, response{page: pageOf(1, 3, 7, 8), gate: pageOneGate})
	store := New(stub, 10)
	require.NoError(t, store.Fetch(ctx, 10, 1))

	more := make(chan error, 1)
	go func() { more <- store.LoadMore(ctx) }()
	require.Eventually(t, func() bool { return store.Snapshot().LoadingMore }, time.Second, time.Millisecond)

	refresh := make(chan error, 1)
	go func() { refresh <- store.Refresh(ctx) }()
	require.Eventually(t, func() bool { return store.Snapshot().Loading }, time.Second, time.Millisecond)

	// Page 1 resolves first, the older page 2 arrives afterwards.
	close(pageOneGate)
	require.NoError(t, <-refresh)
	close(pageTwoGate)
	require.NoError(t, <-more)

	snap := store.Snapshot()
	require.Equal(t, []int64{7, 8}, ids(snap.Entries))
	require.Equal(t, 1, snap.Page.CurrentPage)
	require.False(t, snap.LoadingMore)
}

func TestSlowFirstPageLosesToNewerRefresh(t *testing.T) {
	ctx := context.Background()
	stub := newScriptedAPI()
	slow := make(chan struct{})
	stub.queue(1, response{page: pageOf(1, 2, 1, 2), gate: slow})
	stub.queue(1, response{page: pageOf(1, 2, 9)})
	store := New(stub, 10)

	first := make(chan error, 1)
	go func() { first <- store.Fetch(ctx, 10, 1) }()
	require.Eventually(t, func() bool { return stub.callCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, store.Fetch(ctx, 10, 1))
	close(slow)
	require.NoError(t, <-first)

	require.Equal(t, []int64{9}, ids(store.View()))
}

func TestFetchFilteredReplacesAndDisablesLoadMore(t *testing.T) {
	ctx := context.Background()
	stub := newScriptedAPI()
	stub.filtered = []response{{page: pageOf(1, 4, 11, 12)}}
	store := New(stub, 10)

	filter := models.Filter{MinAge: 25, MaxAge: 32, Gender: "female"}
	require.NoError(t, store.FetchFiltered(ctx, filter))

	snap := store.Snapshot()
	require.Equal(t, []int64{11, 12}, ids(snap.Entries))
	require.Equal(t, filter, snap.Filter)
	require.False(t, snap.HasMore())

	require.NoError(t, store.LoadMore(ctx))
	require.Equal(t, 1, stub.callCount())
}

func TestSubscribersSeeVersionedSnapshots(t *testing.T) {
	ctx := context.Background()
	stub := newScriptedAPI()
	stub.queue(1, response{page: pageOf(1, 1, 1)})
	store := New(stub, 10)

	var versions []uint64
	cancel := store.Subscribe(func(s Snapshot) { versions = append(versions, s.Version) })
	require.NoError(t, store.Fetch(ctx, 0, 1))
	store.Dismiss(1)
	cancel()
	store.Reset()

	require.Len(t, versions, 3)
	require.Less(t, versions[0], versions[1])
	require.Less(t, versions[1], versions[2])
	require.Empty(t, store.View())
}

package fakeapi

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestWorld(t *testing.T, users ...SeedUser) (*World, []User) {
	t.Helper()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	w := NewWorld(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}, bcrypt.MinCost)

	created := make([]User, 0, len(users))
	for _, u := range users {
		if u.Password == "" {
			u.Password = "password123"
		}
		got, err := w.CreateUser(u)
		if err != nil {
			t.Fatalf("create %s: %v", u.Email, err)
		}
		created = append(created, got)
	}
	return w, created
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	w, _ := newTestWorld(t, SeedUser{Name: "Asha", Email: "asha@example.com"})
	if _, err := w.CreateUser(SeedUser{Name: "Other", Email: " ASHA@example.com ", Password: "password123"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	w, users := newTestWorld(t, SeedUser{Name: "Asha", Email: "asha@example.com", Password: "secret-pass"})

	got, err := w.Authenticate("Asha@Example.com", "secret-pass")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != users[0].ID {
		t.Fatalf("expected user %d, got %d", users[0].ID, got.ID)
	}
	if _, err := w.Authenticate("asha@example.com", "wrong"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if _, err := w.Authenticate("nobody@example.com", "secret-pass"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestLikeProducesMatchOnSecondLike(t *testing.T) {
	w, users := newTestWorld(t,
		SeedUser{Name: "Asha", Email: "asha@example.com"},
		SeedUser{Name: "Rohan", Email: "rohan@example.com"},
	)
	a, b := users[0].ID, users[1].ID

	matched, err := w.Like(a, b)
	if err != nil || matched {
		t.Fatalf("first like: matched=%v err=%v", matched, err)
	}
	if _, err := w.Like(a, b); !errors.Is(err, ErrAlreadyLiked) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	matched, err = w.Like(b, a)
	if err != nil || !matched {
		t.Fatalf("second like: matched=%v err=%v", matched, err)
	}

	if got := w.Matches(a); len(got) != 1 || got[0].User.ID != b {
		t.Fatalf("unexpected matches %+v", got)
	}
	if err := w.Unmatch(a, b); err != nil {
		t.Fatalf("unmatch: %v", err)
	}
	if w.IsLiked(a, b) || w.IsLiked(b, a) {
		t.Fatal("unmatch should remove both likes")
	}
	if err := w.Unmatch(a, b); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLikeUnknownOrSelf(t *testing.T) {
	w, users := newTestWorld(t, SeedUser{Name: "Asha", Email: "asha@example.com"})
	if _, err := w.Like(users[0].ID, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := w.Like(users[0].ID, users[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected self like rejected, got %v", err)
	}
}

func TestRecommendationsExcludeLikedAndApplyFilter(t *testing.T) {
	w, users := newTestWorld(t,
		SeedUser{Name: "Viewer", Email: "v@example.com", Age: 28, Interests: []string{"music"}},
		SeedUser{Name: "Close", Email: "c@example.com", Gender: "female", Age: 28, Interests: []string{"Music"}},
		SeedUser{Name: "Far", Email: "f@example.com", Gender: "male", Age: 40},
		SeedUser{Name: "Liked", Email: "l@example.com", Gender: "female", Age: 27},
	)
	viewer := users[0].ID
	if _, err := w.Like(viewer, users[3].ID); err != nil {
		t.Fatalf("like: %v", err)
	}

	all := w.Recommendations(viewer, RecommendationFilter{})
	if len(all) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(all))
	}
	if all[0].User.ID != users[1].ID {
		t.Fatalf("expected shared interests ranked first, got %q", all[0].User.Name)
	}
	if all[0].Score <= all[1].Score {
		t.Fatalf("expected descending scores, got %v then %v", all[0].Score, all[1].Score)
	}

	filtered := w.Recommendations(viewer, RecommendationFilter{Gender: "MALE", MinAge: 30})
	if len(filtered) != 1 || filtered[0].User.ID != users[2].ID {
		t.Fatalf("unexpected filtered result %+v", filtered)
	}
	if got := w.Recommendations(viewer, RecommendationFilter{Interests: []string{"cricket"}}); len(got) != 0 {
		t.Fatalf("expected no interest matches, got %d", len(got))
	}
}

func TestMessagingRequiresMatch(t *testing.T) {
	w, users := newTestWorld(t,
		SeedUser{Name: "Asha", Email: "asha@example.com"},
		SeedUser{Name: "Rohan", Email: "rohan@example.com"},
	)
	a, b := users[0].ID, users[1].ID

	if _, err := w.Send(a, b, "hi"); !errors.Is(err, ErrNotMatched) {
		t.Fatalf("expected not matched, got %v", err)
	}
	_, _ = w.Like(a, b)
	_, _ = w.Like(b, a)

	first, err := w.Send(a, b, "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := w.Send(b, a, "hello back"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := w.Send(a, b, "how are you?"); err != nil {
		t.Fatalf("send: %v", err)
	}

	thread := w.Thread(b, a)
	if len(thread) != 3 || thread[0].ID != first.ID {
		t.Fatalf("unexpected thread %+v", thread)
	}

	convs := w.Conversations(b)
	if len(convs) != 1 || convs[0].User.ID != a || convs[0].Unread != 2 || convs[0].LastMessage.Body != "how are you?" {
		t.Fatalf("unexpected conversations %+v", convs)
	}
	if got := w.UnreadCount(b); got != 2 {
		t.Fatalf("expected 2 unread, got %d", got)
	}
	w.MarkRead(b, a)
	if got := w.UnreadCount(b); got != 0 {
		t.Fatalf("expected 0 unread after mark read, got %d", got)
	}

	if err := w.DeleteMessage(b, first.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := w.DeleteMessage(a, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := w.DeleteMessage(a, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateUserReturnsCopy(t *testing.T) {
	w, users := newTestWorld(t, SeedUser{Name: "Asha", Email: "asha@example.com"})
	got, err := w.UpdateUser(users[0].ID, func(u *User) { u.Photos = append(u.Photos, "https://cdn/p1.jpg") })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got.Photos[0] = "mutated"

	stored, _ := w.User(users[0].ID)
	if stored.Photos[0] != "https://cdn/p1.jpg" {
		t.Fatalf("world state leaked through returned copy: %v", stored.Photos)
	}
	if _, err := w.UpdateUser(42, func(*User) {}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

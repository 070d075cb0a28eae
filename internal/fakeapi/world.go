package fakeapi

import (
	"errors"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNotFound indicates the requested user or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the account already exists.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyLiked indicates a repeated like.
	ErrAlreadyLiked = errors.New("already liked")
	// ErrNotMatched indicates a message to a user who is not a match.
	ErrNotMatched = errors.New("not matched")
	// ErrForbidden indicates an action on another user's resource.
	ErrForbidden = errors.New("forbidden")
)

// User is an account held by the fake server.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Gender       string
	Age          int
	Location     string
	Photos       []string
	Bio          string
	Interests    []string
	Occupation   string
	Education    string
	Height       int
	Prefs        Preferences
	CreatedAt    time.Time
}

// Preferences are the stored matching preferences of a user.
type Preferences struct {
	MinAge          int    `json:"min_age"`
	MaxAge          int    `json:"max_age"`
	PreferredGender string `json:"preferred_gender,omitempty"`
	MaxDistance     int    `json:"max_distance,omitempty"`
	ShowOnlineOnly  bool   `json:"show_online_only"`
}

// Like is one outgoing like.
type Like struct {
	ID        int64
	UserID    int64
	LikedID   int64
	CreatedAt time.Time
}

// Message is one stored chat message.
type Message struct {
	ID        int64
	FromID    int64
	ToID      int64
	Body      string
	IsRead    bool
	CreatedAt time.Time
}

// SeedUser describes an account created at startup.
type SeedUser struct {
	Name      string
	Email     string
	Password  string
	Gender    string
	Age       int
	Location  string
	Bio       string
	Interests []string
}

// World is the in-memory state behind every endpoint.
type World struct {
	mu       sync.Mutex
	users    map[int64]*User
	byEmail  map[string]int64
	likes    []Like
	messages []Message
	nextUser int64
	nextLike int64
	nextMsg  int64
	now      func() time.Time
	cost     int
}

// NewWorld builds an empty world. cost is the bcrypt cost for new passwords.
func NewWorld(now func() time.Time, cost int) *World {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &World{
		users:   map[int64]*User{},
		byEmail: map[string]int64{},
		now:     now,
		cost:    cost,
	}
}

// CreateUser registers an account. Email is matched case-insensitively.
func (w *World) CreateUser(seed SeedUser) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), w.cost)
	if err != nil {
		return User{}, err
	}
	email := strings.ToLower(strings.TrimSpace(seed.Email))

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.byEmail[email]; exists {
		return User{}, ErrConflict
	}
	w.nextUser++
	u := &User{
		ID:           w.nextUser,
		Name:         strings.TrimSpace(seed.Name),
		Email:        email,
		PasswordHash: string(hash),
		Gender:       seed.Gender,
		Age:          seed.Age,
		Location:     seed.Location,
		Bio:          seed.Bio,
		Interests:    slices.Clone(seed.Interests),
		Prefs:        Preferences{MinAge: 18, MaxAge: 99},
		CreatedAt:    w.now(),
	}
	w.users[u.ID] = u
	w.byEmail[email] = u.ID
	return cloneUser(u), nil
}

// Authenticate checks email and password.
func (w *World) Authenticate(email, password string) (User, error) {
	w.mu.Lock()
	id, ok := w.byEmail[strings.ToLower(strings.TrimSpace(email))]
	var u User
	if ok {
		u = cloneUser(w.users[id])
	}
	w.mu.Unlock()
	if !ok {
		return User{}, ErrNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrNotFound
	}
	return u, nil
}

// User returns the account with id.
func (w *World) User(id int64) (User, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	u, ok := w.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return cloneUser(u), nil
}

// UpdateUser applies mutate to the stored account.
func (w *World) UpdateUser(id int64, mutate func(*User)) (User, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	u, ok := w.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	mutate(u)
	return cloneUser(u), nil
}

// Recommendation pairs a candidate with its score.
type Recommendation struct {
	User  User
	Score float64
}

// RecommendationFilter narrows Recommendations.
type RecommendationFilter struct {
	MinAge    int
	MaxAge    int
	Gender    string
	Interests []string
}

// Recommendations ranks every other account the viewer has not liked.
func (w *World) Recommendations(viewerID int64, f RecommendationFilter) []Recommendation {
	w.mu.Lock()
	defer w.mu.Unlock()

	viewer, ok := w.users[viewerID]
	if !ok {
		return nil
	}
	liked := w.likedSetLocked(viewerID)

	var out []Recommendation
	for _, u := range w.users {
		if u.ID == viewerID {
			continue
		}
		if _, done := liked[u.ID]; done {
			continue
		}
		if f.MinAge > 0 && u.Age < f.MinAge {
			continue
		}
		if f.MaxAge > 0 && u.Age > f.MaxAge {
			continue
		}
		if f.Gender != "" && !strings.EqualFold(f.Gender, u.Gender) {
			continue
		}
		if len(f.Interests) > 0 && !sharesAny(u.Interests, f.Interests) {
			continue
		}
		out = append(out, Recommendation{User: cloneUser(u), Score: compatibility(viewer, u)})
	}
	slices.SortFunc(out, func(a, b Recommendation) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return int(a.User.ID - b.User.ID)
	})
	return out
}

// Like records a like and reports whether it completed a match.
func (w *World) Like(fromID, toID int64) (matched bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.users[toID]; !ok || fromID == toID {
		return false, ErrNotFound
	}
	if w.hasLikeLocked(fromID, toID) {
		return false, ErrAlreadyLiked
	}
	w.nextLike++
	w.likes = append(w.likes, Like{ID: w.nextLike, UserID: fromID, LikedID: toID, CreatedAt: w.now()})
	return w.hasLikeLocked(toID, fromID), nil
}

// Unlike removes a like. Removing an absent like is not an error.
func (w *World) Unlike(fromID, toID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.likes = slices.DeleteFunc(w.likes, func(l Like) bool { return l.UserID == fromID && l.LikedID == toID })
}

// IsLiked reports whether fromID likes toID.
func (w *World) IsLiked(fromID, toID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hasLikeLocked(fromID, toID)
}

// Likes lists fromID's outgoing likes, newest first.
func (w *World) Likes(fromID int64) []Like {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Like
	for i := len(w.likes) - 1; i >= 0; i-- {
		if w.likes[i].UserID == fromID {
			out = append(out, w.likes[i])
		}
	}
	return out
}

// MatchEntry is a mutual like.
type MatchEntry struct {
	User      User
	MatchedAt time.Time
}

// Matches lists the users who like userID back, newest match first.
func (w *World) Matches(userID int64) []MatchEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []MatchEntry
	for _, l := range w.likes {
		if l.UserID != userID {
			continue
		}
		back, ok := w.likeLocked(l.LikedID, userID)
		if !ok {
			continue
		}
		u, ok := w.users[l.LikedID]
		if !ok {
			continue
		}
		at := l.CreatedAt
		if back.CreatedAt.After(at) {
			at = back.CreatedAt
		}
		out = append(out, MatchEntry{User: cloneUser(u), MatchedAt: at})
	}
	slices.SortStableFunc(out, func(a, b MatchEntry) int { return b.MatchedAt.Compare(a.MatchedAt) })
	return out
}

// Unmatch removes both likes between the users.
func (w *World) Unmatch(userID, otherID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.hasLikeLocked(userID, otherID) || !w.hasLikeLocked(otherID, userID) {
		return ErrNotFound
	}
	w.likes = slices.DeleteFunc(w.likes, func(l Like) bool {
		return (l.UserID == userID && l.LikedID == otherID) || (l.UserID == otherID && l.LikedID == userID)
	})
	return nil
}

// Send stores a message between matched users.
func (w *World) Send(fromID, toID int64, body string) (Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.users[toID]; !ok {
		return Message{}, ErrNotFound
	}
	if !w.hasLikeLocked(fromID, toID) || !w.hasLikeLocked(toID, fromID) {
		return Message{}, ErrNotMatched
	}
	w.nextMsg++
	m := Message{ID: w.nextMsg, FromID: fromID, ToID: toID, Body: body, CreatedAt: w.now()}
	w.messages = append(w.messages, m)
	return m, nil
}

// Thread lists the messages between two users, oldest first.
func (w *World) Thread(userID, otherID int64) []Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Message
	for _, m := range w.messages {
		if (m.FromID == userID && m.ToID == otherID) || (m.FromID == otherID && m.ToID == userID) {
			out = append(out, m)
		}
	}
	return out
}

// ConversationEntry summarizes one thread.
type ConversationEntry struct {
	User        User
	LastMessage Message
	Unread      int
}

// Conversations lists every thread of userID, most recent first.
func (w *World) Conversations(userID int64) []ConversationEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	byOther := map[int64]*ConversationEntry{}
	for _, m := range w.messages {
		var other int64
		switch userID {
		case m.FromID:
			other = m.ToID
		case m.ToID:
			other = m.FromID
		default:
			continue
		}
		entry, ok := byOther[other]
		if !ok {
			u, exists := w.users[other]
			if !exists {
				continue
			}
			entry = &ConversationEntry{User: cloneUser(u)}
			byOther[other] = entry
		}
		entry.LastMessage = m
		if m.ToID == userID && !m.IsRead {
			entry.Unread++
		}
	}
	out := make([]ConversationEntry, 0, len(byOther))
	for _, e := range byOther {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b ConversationEntry) int { return int(b.LastMessage.ID - a.LastMessage.ID) })
	return out
}

// MarkRead marks every message from otherID to userID as read.
func (w *World) MarkRead(userID, otherID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.messages {
		if w.messages[i].FromID == otherID && w.messages[i].ToID == userID {
			w.messages[i].IsRead = true
		}
	}
}

// DeleteMessage removes one of userID's own messages.
func (w *World) DeleteMessage(userID, messageID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := slices.IndexFunc(w.messages, func(m Message) bool { return m.ID == messageID })
	if i < 0 {
		return ErrNotFound
	}
	if w.messages[i].FromID != userID {
		return ErrForbidden
	}
	w.messages = slices.Delete(w.messages, i, i+1)
	return nil
}

// UnreadCount counts unread messages addressed to userID.
func (w *World) UnreadCount(userID int64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, m := range w.messages {
		if m.ToID == userID && !m.IsRead {
			n++
		}
	}
	return n
}

func (w *World) hasLikeLocked(fromID, toID int64) bool {
	_, ok := w.likeLocked(fromID, toID)
	return ok
}

func (w *World) likeLocked(fromID, toID int64) (Like, bool) {
	for _, l := range w.likes {
		if l.UserID == fromID && l.LikedID == toID {
			return l, true
		}
	}
	return Like{}, false
}

func (w *World) likedSetLocked(fromID int64) map[int64]struct{} {
	out := map[int64]struct{}{}
	for _, l := range w.likes {
		if l.UserID == fromID {
			out[l.LikedID] = struct{}{}
		}
	}
	return out
}

// compatibility scores shared interests and age proximity into 0..100.
func compatibility(viewer, candidate *User) float64 {
	score := 50.0
	shared := 0
	for _, i := range candidate.Interests {
		if slices.ContainsFunc(viewer.Interests, func(v string) bool { return strings.EqualFold(v, i) }) {
			shared++
		}
	}
	score += float64(min(shared, 4)) * 10
	if viewer.Age > 0 && candidate.Age > 0 {
		score -= math.Min(10, math.Abs(float64(viewer.Age-candidate.Age)))
	}
	return math.Max(0, math.Min(100, score))
}

func sharesAny(have, want []string) bool {
	for _, w := range want {
		if slices.ContainsFunc(have, func(h string) bool { return strings.EqualFold(h, w) }) {
			return true
		}
	}
	return false
}

func cloneUser(u *User) User {
	out := *u
	out.Photos = slices.Clone(u.Photos)
	out.Interests = slices.Clone(u.Interests)
	return out
}

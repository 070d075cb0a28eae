package models

import (
	"strings"
	"time"
)

// PlaceholderPhoto is used wherever the server omits a photo for a user.
const PlaceholderPhoto = "placeholder://profile-photo"

// Identity is the authenticated user (or any user the server describes).
type Identity struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Email          string   `json:"email,omitempty"`
	Gender         string   `json:"gender,omitempty"`
	Age            int      `json:"age,omitempty"`
	Location       string   `json:"location,omitempty"`
	Photos         []string `json:"photos,omitempty"`
	ProfilePicture string   `json:"profile_picture,omitempty"`
	IsOnline       bool     `json:"is_online,omitempty"`
}

// PrimaryPhoto returns the profile picture, the first photo, or the placeholder.
func (i Identity) PrimaryPhoto() string {
	if p := strings.TrimSpace(i.ProfilePicture); p != "" {
		return p
	}
	for _, p := range i.Photos {
		if strings.TrimSpace(p) != "" {
			return p
		}
	}
	return PlaceholderPhoto
}

// Clone returns a deep copy so stores never share slices with callers.
func (i Identity) Clone() Identity {
	out := i
	out.Photos = append([]string(nil), i.Photos...)
	return out
}

// Candidate is a recommended profile.
type Candidate struct {
	Identity
	Bio        string   `json:"bio,omitempty"`
	Interests  []string `json:"interests,omitempty"`
	Occupation string   `json:"occupation,omitempty"`
	Education  string   `json:"education,omitempty"`
	Height     int      `json:"height,omitempty"`
	Distance   float64  `json:"distance,omitempty"`
}

// Recommendation is one feed entry. Feed order is rank order.
type Recommendation struct {
	Candidate          Candidate `json:"candidate"`
	CompatibilityScore float64   `json:"compatibility_score"`
}

// Filter narrows the recommendation feed.
type Filter struct {
	MinAge      int
	MaxAge      int
	Gender      string
	MaxDistance int
	Interests   []string
}

// IsZero reports whether no filter criteria are set.
func (f Filter) IsZero() bool {
	return f.MinAge == 0 && f.MaxAge == 0 && f.Gender == "" && f.MaxDistance == 0 && len(f.Interests) == 0
}

// Like is a relation from the current user to LikedUserID.
type Like struct {
	ID          int64     `json:"id"`
	LikedUserID int64     `json:"liked_user_id"`
	LikedUser   Identity  `json:"liked_user"`
	CreatedAt   time.Time `json:"created_at"`
}

// LikeResult is the outcome of a like request.
type LikeResult struct {
	AlreadyLiked bool
	IsMatch      bool
	MatchedUser  *Identity
}

// Match is a mutual like.
type Match struct {
	User      Identity  `json:"user"`
	MatchedAt time.Time `json:"matched_at"`
}

// Message is one chat message. ID is assigned by the server.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`
}

// Conversation summarizes the thread with one counterpart.
type Conversation struct {
	Counterpart Identity `json:"counterpart"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

// Page carries the pagination cursor returned by list endpoints.
type Page struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	Total       int `json:"total"`
	PerPage     int `json:"per_page"`
}

// HasMore reports whether a further page exists.
func (p Page) HasMore() bool {
	return p.CurrentPage < p.LastPage
}

// ProfileDetails is the extended profile of the current user.
type ProfileDetails struct {
	UserID     int64    `json:"user_id"`
	Bio        string   `json:"bio,omitempty"`
	Age        int      `json:"age,omitempty"`
	Gender     string   `json:"gender,omitempty"`
	Location   string   `json:"location,omitempty"`
	Photos     []string `json:"photos,omitempty"`
	Interests  []string `json:"interests,omitempty"`
	Height     int      `json:"height,omitempty"`
	Occupation string   `json:"occupation,omitempty"`
	Education  string   `json:"education,omitempty"`
}

// ProfileUpdate lists the fields a profile update may change. Nil fields are left untouched.
type ProfileUpdate struct {
	Name       *string  `json:"name,omitempty"`
	Bio        *string  `json:"bio,omitempty"`
	Age        *int     `json:"age,omitempty"`
	Gender     *string  `json:"gender,omitempty"`
	Location   *string  `json:"location,omitempty"`
	Photos     []string `json:"photos,omitempty"`
	Interests  []string `json:"interests,omitempty"`
	Height     *int     `json:"height,omitempty"`
	Occupation *string  `json:"occupation,omitempty"`
	Education  *string  `json:"education,omitempty"`
}

// Preferences are the matching preferences of the current user.
type Preferences struct {
	MinAge          int    `json:"min_age"`
	MaxAge          int    `json:"max_age"`
	PreferredGender string `json:"preferred_gender,omitempty"`
	MaxDistance     int    `json:"max_distance,omitempty"`
	ShowOnlineOnly  bool   `json:"show_online_only"`
}

package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rupesh-2/matrimonial-UI/internal/models"
)

// The server is loosely typed: ids arrive as numbers or numeric strings, photo
// lists as arrays or JSON-encoded strings, locations as strings or objects.
// The flex types below decode every such variant and fall back to the zero
// value instead of failing the whole response.

type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(int64(n))
	return nil
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(n)
	return nil
}

type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(strings.Trim(string(bytes.TrimSpace(b)), `"`)) {
	case "true", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

type flexStrings []string

func (f *flexStrings) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*f = cleanStrings(list)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "[") && json.Unmarshal([]byte(s), &list) == nil {
			*f = cleanStrings(list)
			return nil
		}
		if s != "" {
			*f = strings.Split(s, ",")
			*f = cleanStrings(*f)
			return nil
		}
	}
	*f = nil
	return nil
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type flexText string

func (f *flexText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexText(strings.TrimSpace(s))
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err == nil {
		for _, key := range []string{"city", "name", "address"} {
			if v, ok := obj[key].(string); ok && v != "" {
				*f = flexText(v)
				return nil
			}
		}
	}
	*f = ""
	return nil
}

type flexTime time.Time

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*f = flexTime{}
		return nil
	}
	*f = flexTime(parseTime(s))
	return nil
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// wireUser covers every user-shaped object the server returns.
type wireUser struct {
	ID             flexInt     `json:"id"`
	UserID         flexInt     `json:"user_id"`
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	Gender         string      `json:"gender"`
	Age            flexInt     `json:"age"`
	Location       flexText    `json:"location"`
	Photos         flexStrings `json:"photos"`
	ProfilePicture string      `json:"profile_picture"`
	IsOnline       flexBool    `json:"is_online"`
	Bio            string      `json:"bio"`
	Interests      flexStrings `json:"interests"`
	Occupation     string      `json:"occupation"`
	Education      string      `json:"education"`
	Height         flexInt     `json:"height"`
	Distance       flexFloat   `json:"distance"`
	Profile        *wireUser   `json:"profile"`
}

func (u *wireUser) identity() models.Identity {
	if u == nil {
		return models.Identity{}
	}
	id := models.Identity{
		ID:             int64(u.ID),
		Name:           strings.TrimSpace(u.Name),
		Email:          strings.TrimSpace(u.Email),
		Gender:         u.Gender,
		Age:            int(u.Age),
		Location:       string(u.Location),
		Photos:         []string(u.Photos),
		ProfilePicture: strings.TrimSpace(u.ProfilePicture),
		IsOnline:       bool(u.IsOnline),
	}
	if id.ID == 0 {
		id.ID = int64(u.UserID)
	}
	if p := u.Profile; p != nil {
		if id.Age == 0 {
			id.Age = int(p.Age)
		}
		if id.Gender == "" {
			id.Gender = p.Gender
		}
		if id.Location == "" {
			id.Location = string(p.Location)
		}
		if len(id.Photos) == 0 {
			id.Photos = []string(p.Photos)
		}
	}
	if id.Name == "" {
		id.Name = "Unknown"
	}
	if id.ProfilePicture == "" && len(id.Photos) == 0 {
		id.ProfilePicture = models.PlaceholderPhoto
	}
	return id
}

func (u *wireUser) candidate() models.Candidate {
	c := models.Candidate{Identity: u.identity()}
	if u == nil {
		return c
	}
	c.Bio = u.Bio
	c.Interests = []string(u.Interests)
	c.Occupation = u.Occupation
	c.Education = u.Education
	c.Height = int(u.Height)
	c.Distance = float64(u.Distance)
	if p := u.Profile; p != nil {
		if c.Bio == "" {
			c.Bio = p.Bio
		}
		if len(c.Interests) == 0 {
			c.Interests = []string(p.Interests)
		}
		if c.Occupation == "" {
			c.Occupation = p.Occupation
		}
	}
	return c
}

// wireMessage accepts both the from/to and the sender/receiver field sets.
type wireMessage struct {
	ID         flexInt  `json:"id"`
	FromUserID flexInt  `json:"from_user_id"`
	ToUserID   flexInt  `json:"to_user_id"`
	SenderID   flexInt  `json:"sender_id"`
	ReceiverID flexInt  `json:"receiver_id"`
	Message    string   `json:"message"`
	Content    string   `json:"content"`
	IsRead     flexBool `json:"is_read"`
	CreatedAt  flexTime `json:"created_at"`
}

func (m wireMessage) model() models.Message {
	out := models.Message{
		ID:         int64(m.ID),
		SenderID:   int64(m.FromUserID),
		ReceiverID: int64(m.ToUserID),
		Content:    m.Message,
		IsRead:     bool(m.IsRead),
		CreatedAt:  time.Time(m.CreatedAt),
	}
	if out.SenderID == 0 {
		out.SenderID = int64(m.SenderID)
	}
	if out.ReceiverID == 0 {
		out.ReceiverID = int64(m.ReceiverID)
	}
	if out.Content == "" {
		out.Content = m.Content
	}
	return out
}

// wirePage is embedded by every paginated envelope.
type wirePage struct {
	CurrentPage flexInt `json:"current_page"`
	LastPage    flexInt `json:"last_page"`
	Total       flexInt `json:"total"`
	PerPage     flexInt `json:"per_page"`
}

// page fills gaps from the request: a missing current page is the requested
// page, a missing last page is derived from total/per_page or else assumed to
// be the current one.
func (p wirePage) page(requested, limit int) models.Page {
	out := models.Page{
		CurrentPage: int(p.CurrentPage),
		LastPage:    int(p.LastPage),
		Total:       int(p.Total),
		PerPage:     int(p.PerPage),
	}
	if out.CurrentPage <= 0 {
		out.CurrentPage = requested
	}
	if out.PerPage <= 0 {
		out.PerPage = limit
	}
	if out.LastPage <= 0 {
		if out.Total > 0 && out.PerPage > 0 {
			out.LastPage = (out.Total + out.PerPage - 1) / out.PerPage
		} else {
			out.LastPage = out.CurrentPage
		}
	}
	return out
}

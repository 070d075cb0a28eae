package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rupesh-2/matrimonial-UI/internal/apierr"
	"github.com/rupesh-2/matrimonial-UI/internal/gateway"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
)

// ProfileResult is the current user's identity together with the extended profile.
type ProfileResult struct {
	Identity models.Identity
	Details  models.ProfileDetails
}

type profileEnvelope struct {
	User    *wireUser `json:"user"`
	Profile *wireUser `json:"profile"`
	Data    *wireUser `json:"data"`
}

func (e profileEnvelope) result() (ProfileResult, error) {
	user := e.User
	if user == nil {
		user = e.Data
	}
	if user == nil {
		return ProfileResult{}, apierr.Application(http.StatusOK, "invalid_response", "server did not return the profile")
	}
	if e.Profile != nil && user.Profile == nil {
		user.Profile = e.Profile
	}

	cand := user.candidate()
	details := models.ProfileDetails{
		UserID:     cand.ID,
		Bio:        cand.Bio,
		Age:        cand.Age,
		Gender:     cand.Gender,
		Location:   cand.Location,
		Photos:     append([]string(nil), cand.Photos...),
		Interests:  cand.Interests,
		Height:     cand.Height,
		Occupation: cand.Occupation,
		Education:  cand.Education,
	}
	if details.Height == 0 && user.Profile != nil {
		details.Height = int(user.Profile.Height)
	}
	if details.Education == "" && user.Profile != nil {
		details.Education = user.Profile.Education
	}
	return ProfileResult{Identity: cand.Identity, Details: details}, nil
}

// Profile fetches the current user's profile.
func (c *Client) Profile(ctx context.Context) (ProfileResult, error) {
	var env profileEnvelope
	if err := c.gw.Do(ctx, gateway.Request{Path: "/api/profile"}, &env); err != nil {
		return ProfileResult{}, err
	}
	return env.result()
}

// UpdateProfile sends the changed fields and returns the stored profile.
func (c *Client) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (ProfileResult, error) {
	var env profileEnvelope
	if err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPut,
		Path:   "/api/profile",
		Body:   update,
	}, &env); err != nil {
		return ProfileResult{}, err
	}
	return env.result()
}

// UpdatePreferences stores the matching preferences.
func (c *Client) UpdatePreferences(ctx context.Context, prefs models.Preferences) (models.Preferences, error) {
	var env struct {
		Preferences *models.Preferences `json:"preferences"`
		Data        *models.Preferences `json:"data"`
	}
	if err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/api/profile/preferences",
		Body:   prefs,
	}, &env); err != nil {
		return models.Preferences{}, err
	}
	switch {
	case env.Preferences != nil:
		return *env.Preferences, nil
	case env.Data != nil:
		return *env.Data, nil
	default:
		return prefs, nil
	}
}

// UploadPhoto sends the photo as multipart field "photo" and returns its URL.
func (c *Client) UploadPhoto(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("photo", filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	var env struct {
		PhotoURL string `json:"photo_url"`
		URL      string `json:"url"`
		Data     *struct {
			PhotoURL string `json:"photo_url"`
			URL      string `json:"url"`
		} `json:"data"`
	}
	if err := c.gw.Do(ctx, gateway.Request{
		Method:      http.MethodPost,
		Path:        "/api/profile/upload-photo",
		Raw:         &buf,
		ContentType: mw.FormDataContentType(),
	}, &env); err != nil {
		return "", err
	}

	candidates := []string{env.PhotoURL, env.URL}
	if env.Data != nil {
		candidates = append(candidates, env.Data.PhotoURL, env.Data.URL)
	}
	for _, u := range candidates {
		if u = strings.TrimSpace(u); u != "" {
			return u, nil
		}
	}
	return "", apierr.Application(http.StatusOK, "invalid_response", "server did not return the photo url")
}

// DeletePhoto removes photoURL from the profile.
func (c *Client) DeletePhoto(ctx context.Context, photoURL string) error {
	return c.gw.Do(ctx, gateway.Request{
		Method: http.MethodDelete,
		Path:   "/api/profile/delete-photo",
		Body:   map[string]string{"photo_url": photoURL},
	}, nil)
}

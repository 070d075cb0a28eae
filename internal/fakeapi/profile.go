package fakeapi

import (
	"encoding/json"
	"io"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/rupesh-2/matrimonial-UI/internal/logging"
)

const maxPhotoBytes = 5 << 20

var photoTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

type profileUpdateRequest struct {
	Name       *string  `json:"name"`
	Bio        *string  `json:"bio"`
	Age        *int     `json:"age"`
	Gender     *string  `json:"gender"`
	Location   *string  `json:"location"`
	Photos     []string `json:"photos"`
	Interests  []string `json:"interests"`
	Height     *int     `json:"height"`
	Occupation *string  `json:"occupation"`
	Education  *string  `json:"education"`
}

// profile handles GET /api/profile.
func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := s.world.User(userIDFrom(ctx))
	if err != nil {
		respondError(ctx, w, http.StatusNotFound, "Profile not found")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"user":        toUserJSON(user, true, s.online(user.ID)),
		"preferences": user.Prefs,
	})
}

// updateProfile handles PUT /api/profile. Absent fields are left untouched.
func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Age != nil && (*req.Age < 18 || *req.Age > 100) {
		respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The age must be between 18 and 100.",
			"errors":  map[string][]string{"age": {"The age must be between 18 and 100."}},
		})
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The name field is required.",
			"errors":  map[string][]string{"name": {"The name field is required."}},
		})
		return
	}

	user, err := s.world.UpdateUser(userIDFrom(ctx), func(u *User) {
		setIf(&u.Name, req.Name)
		setIf(&u.Bio, req.Bio)
		setIf(&u.Age, req.Age)
		setIf(&u.Gender, req.Gender)
		setIf(&u.Location, req.Location)
		setIf(&u.Height, req.Height)
		setIf(&u.Occupation, req.Occupation)
		setIf(&u.Education, req.Education)
		if req.Photos != nil {
			u.Photos = slices.Clone(req.Photos)
		}
		if req.Interests != nil {
			u.Interests = slices.Clone(req.Interests)
		}
	})
	if err != nil {
		respondError(ctx, w, http.StatusNotFound, "Profile not found")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"message": "Profile updated", "user": toUserJSON(user, true, s.online(user.ID))})
}

// updatePreferences handles POST /api/profile/preferences.
func (s *Server) updatePreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var prefs Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if prefs.MinAge < 18 || prefs.MaxAge > 100 || prefs.MinAge > prefs.MaxAge {
		respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The age range is invalid.",
			"errors":  map[string][]string{"min_age": {"The age range is invalid."}},
		})
		return
	}

	user, err := s.world.UpdateUser(userIDFrom(ctx), func(u *User) { u.Prefs = prefs })
	if err != nil {
		respondError(ctx, w, http.StatusNotFound, "Profile not found")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"message": "Preferences updated", "preferences": user.Prefs})
}

// uploadPhoto handles POST /api/profile/upload-photo with multipart field "photo".
func (s *Server) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes+1<<20)
	file, header, err := r.FormFile("photo")
	if err != nil {
		logger.Warn("upload missing photo", "error", err)
		respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The photo field is required.",
			"errors":  map[string][]string{"photo": {"The photo field is required."}},
		})
		return
	}
	defer file.Close()

	ext := strings.ToLower(path.Ext(header.Filename))
	contentType, ok := photoTypes[ext]
	if !ok {
		respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The photo must be an image.",
			"errors":  map[string][]string{"photo": {"The photo must be a file of type: jpeg, png, webp, gif."}},
		})
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes+1))
	if err != nil || len(data) > maxPhotoBytes {
		respondError(ctx, w, http.StatusUnprocessableEntity, "The photo may not be greater than 5 MB.")
		return
	}

	name := uuid.NewString() + ext
	s.photosMu.Lock()
	s.photos[name] = storedPhoto{contentType: contentType, data: data}
	base := s.publicURL
	s.photosMu.Unlock()
	if base == "" {
		base = "http://" + r.Host
	}
	location := base + "/photos/" + name

	if _, err := s.world.UpdateUser(userIDFrom(ctx), func(u *User) { u.Photos = append(u.Photos, location) }); err != nil {
		respondError(ctx, w, http.StatusNotFound, "Profile not found")
		return
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]string{"message": "Photo uploaded", "photo_url": location})
}

// deletePhoto handles DELETE /api/profile/delete-photo.
func (s *Server) deletePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		PhotoURL string `json:"photo_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.PhotoURL) == "" {
		respondError(ctx, w, http.StatusUnprocessableEntity, "The photo url field is required.")
		return
	}

	found := false
	if _, err := s.world.UpdateUser(userIDFrom(ctx), func(u *User) {
		n := len(u.Photos)
		u.Photos = slices.DeleteFunc(u.Photos, func(p string) bool { return p == req.PhotoURL })
		found = len(u.Photos) != n
	}); err != nil || !found {
		respondError(ctx, w, http.StatusNotFound, "Photo not found")
		return
	}

	s.photosMu.Lock()
	delete(s.photos, path.Base(req.PhotoURL))
	s.photosMu.Unlock()
	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "Photo deleted"})
}

// servePhoto handles GET /photos/{name}.
func (s *Server) servePhoto(w http.ResponseWriter, r *http.Request) {
	s.photosMu.RLock()
	p, ok := s.photos[mux.Vars(r)["name"]]
	s.photosMu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", p.contentType)
	_, _ = w.Write(p.data)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

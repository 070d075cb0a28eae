// Package profile manages the current user's extended profile, matching
// preferences and photos. A successful edit replaces the session identity.
package profile

import (
	"context"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/rupesh-2/matrimonial-UI/internal/api"
	"github.com/rupesh-2/matrimonial-UI/internal/apierr"
	"github.com/rupesh-2/matrimonial-UI/internal/logging"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
	"github.com/rupesh-2/matrimonial-UI/internal/observe"
)

// API is the slice of the REST client the profile store needs.
type API interface {
	Profile(ctx context.Context) (api.ProfileResult, error)
	UpdateProfile(ctx context.Context, update models.ProfileUpdate) (api.ProfileResult, error)
	UpdatePreferences(ctx context.Context, prefs models.Preferences) (models.Preferences, error)
	UploadPhoto(ctx context.Context, filename string, r io.Reader) (string, error)
	DeletePhoto(ctx context.Context, photoURL string) error
}

// Session is the view of the session store needed to keep the identity current.
type Session interface {
	Identity() (models.Identity, bool)
	ReplaceIdentity(identity models.Identity) error
}

// PhotoStore uploads photos directly to object storage.
type PhotoStore interface {
	Save(ctx context.Context, ownerID int64, filename string, r io.Reader) (string, error)
	Delete(ctx context.Context, location string) error
}

// Snapshot is the profile state handed to subscribers.
type Snapshot struct {
	Version     uint64
	Details     *models.ProfileDetails
	Preferences *models.Preferences
	Loading     bool
	Saving      bool
	Err         string
}

// Option customizes a Store.
type Option func(*Store)

// WithPhotoStore uploads photos to object storage instead of the API.
func WithPhotoStore(p PhotoStore) Option {
	return func(s *Store) { s.photos = p }
}

// Store is the profile state container.
type Store struct {
	api     API
	session Session
	photos  PhotoStore

	mu      sync.Mutex
	details *models.ProfileDetails
	prefs   *models.Preferences
	loading bool
	saving  int
	err     string
	version uint64

	hub observe.Hub[Snapshot]
}

// New builds a profile store bound to session.
func New(client API, session Session, opts ...Option) *Store {
	if client == nil || session == nil {
		panic("profile: api and session are required")
	}
	s := &Store{api: client, session: session}
	for _, opt := range opts {
		opt(s)
	}
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

// Fetch loads the profile.
func (s *Store) Fetch(ctx context.Context) (details models.ProfileDetails, err error) {
	ctx, span := logging.StartSpan(ctx, "profile.fetch")
	defer func() { span.End(err) }()

	s.update(func() { s.loading = true })
	res, err := s.api.Profile(ctx)
	s.update(func() {
		s.loading = false
		if err != nil {
			s.err = apierr.Message(err)
			return
		}
		d := cloneDetails(res.Details)
		s.details = &d
		s.err = ""
	})
	if err != nil {
		return models.ProfileDetails{}, err
	}
	return cloneDetails(res.Details), nil
}

// Update saves the changed fields and replaces the session identity with the
// stored result.
func (s *Store) Update(ctx context.Context, update models.ProfileUpdate) (identity models.Identity, err error) {
	if err = validateUpdate(update); err != nil {
		s.recordError(err)
		return models.Identity{}, err
	}
	current, ok := s.session.Identity()
	if !ok {
		err = apierr.Validation("not signed in")
		s.recordError(err)
		return models.Identity{}, err
	}

	ctx, span := logging.StartSpan(ctx, "profile.update", "user_id", current.ID)
	defer func() { span.End(err) }()

	s.update(func() { s.saving++ })
	res, err := s.api.UpdateProfile(ctx, update)
	if err == nil {
		identity = mergeIdentity(current, res.Identity)
		err = s.session.ReplaceIdentity(identity)
	}
	s.update(func() {
		s.saving--
		if err != nil {
			s.err = apierr.Message(err)
			return
		}
		d := cloneDetails(res.Details)
		s.details = &d
		s.err = ""
	})
	if err != nil {
		return models.Identity{}, err
	}
	return identity, nil
}

// UpdatePreferences saves the matching preferences.
func (s *Store) UpdatePreferences(ctx context.Context, prefs models.Preferences) (saved models.Preferences, err error) {
	if err = validatePreferences(prefs); err != nil {
		s.recordError(err)
		return models.Preferences{}, err
	}

	ctx, span := logging.StartSpan(ctx, "profile.preferences")
	defer func() { span.End(err) }()

	s.update(func() { s.saving++ })
	saved, err = s.api.UpdatePreferences(ctx, prefs)
	s.update(func() {
		s.saving--
		if err != nil {
			s.err = apierr.Message(err)
			return
		}
		p := saved
		s.prefs = &p
		s.err = ""
	})
	return saved, err
}

// UploadPhoto adds a photo to the profile and returns its URL. With a photo
// store the object is uploaded directly and registered through a profile
// update; otherwise the API receives the file.
func (s *Store) UploadPhoto(ctx context.Context, filename string, r io.Reader) (location string, err error) {
	current, ok := s.session.Identity()
	if !ok {
		err = apierr.Validation("not signed in")
		s.recordError(err)
		return "", err
	}

	ctx, span := logging.StartSpan(ctx, "profile.upload_photo", "user_id", current.ID, "direct", s.photos != nil)
	defer func() { span.End(err) }()

	s.update(func() { s.saving++ })
	defer s.update(func() { s.saving-- })

	if s.photos != nil {
		location, err = s.photos.Save(ctx, current.ID, filename, r)
		if err != nil {
			err = apierr.Application(0, "photo_upload", err.Error())
			s.recordError(err)
			return "", err
		}
		photos := append(s.currentPhotos(current), location)
		if _, err = s.Update(ctx, models.ProfileUpdate{Photos: photos}); err != nil {
			if delErr := s.photos.Delete(ctx, location); delErr != nil {
				span.Logger().Warn("failed to remove orphaned photo", "location", location, "error", delErr)
			}
			return "", err
		}
		return location, nil
	}

	location, err = s.api.UploadPhoto(ctx, filename, r)
	if err != nil {
		s.recordError(err)
		return "", err
	}
	photos := append(s.currentPhotos(current), location)
	s.applyPhotos(current, photos)
	return location, nil
}

// DeletePhoto removes location from the profile.
func (s *Store) DeletePhoto(ctx context.Context, location string) (err error) {
	location = strings.TrimSpace(location)
	if location == "" {
		err = apierr.Validation("photo url is required")
		s.recordError(err)
		return err
	}
	current, ok := s.session.Identity()
	if !ok {
		err = apierr.Validation("not signed in")
		s.recordError(err)
		return err
	}

	ctx, span := logging.StartSpan(ctx, "profile.delete_photo", "user_id", current.ID)
	defer func() { span.End(err) }()

	if err = s.api.DeletePhoto(ctx, location); err != nil {
		s.recordError(err)
		return err
	}
	photos := slices.DeleteFunc(s.currentPhotos(current), func(p string) bool { return p == location })
	s.applyPhotos(current, photos)

	if s.photos != nil {
		if delErr := s.photos.Delete(ctx, location); delErr != nil {
			span.Logger().Warn("failed to remove photo object", "location", location, "error", delErr)
		}
	}
	return nil
}

// ClearError drops the recorded error.
func (s *Store) ClearError() {
	s.update(func() { s.err = "" })
}

// Reset forgets the loaded profile, e.g. on logout.
func (s *Store) Reset() {
	s.update(func() {
		s.details = nil
		s.prefs = nil
		s.loading = false
		s.err = ""
	})
}

func (s *Store) currentPhotos(identity models.Identity) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.details != nil && len(s.details.Photos) > 0 {
		return slices.Clone(s.details.Photos)
	}
	return slices.Clone(identity.Photos)
}

func (s *Store) applyPhotos(identity models.Identity, photos []string) {
	s.update(func() {
		if s.details == nil {
			s.details = &models.ProfileDetails{UserID: identity.ID}
		}
		s.details.Photos = slices.Clone(photos)
		s.err = ""
	})
	identity.Photos = slices.Clone(photos)
	if identity.ProfilePicture == models.PlaceholderPhoto && len(photos) > 0 {
		identity.ProfilePicture = photos[0]
	}
	_ = s.session.ReplaceIdentity(identity)
}

func (s *Store) update(mutate func()) {
	s.mu.Lock()
	mutate()
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

func (s *Store) recordError(err error) {
	s.update(func() { s.err = apierr.Message(err) })
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{Version: s.version, Loading: s.loading, Saving: s.saving > 0, Err: s.err}
	if s.details != nil {
		d := cloneDetails(*s.details)
		snap.Details = &d
	}
	if s.prefs != nil {
		p := *s.prefs
		snap.Preferences = &p
	}
	return snap
}

// mergeIdentity overlays the fields the server returned onto the current
// identity. Defaults filled in for missing fields do not overwrite known values.
func mergeIdentity(current, updated models.Identity) models.Identity {
	out := current.Clone()
	if name := strings.TrimSpace(updated.Name); name != "" && name != "Unknown" {
		out.Name = name
	}
	if updated.Email != "" {
		out.Email = updated.Email
	}
	if updated.Gender != "" {
		out.Gender = updated.Gender
	}
	if updated.Age > 0 {
		out.Age = updated.Age
	}
	if updated.Location != "" {
		out.Location = updated.Location
	}
	if len(updated.Photos) > 0 {
		out.Photos = slices.Clone(updated.Photos)
	}
	if updated.ProfilePicture != "" && updated.ProfilePicture != models.PlaceholderPhoto {
		out.ProfilePicture = updated.ProfilePicture
	}
	out.IsOnline = updated.IsOnline
	return out
}

func cloneDetails(d models.ProfileDetails) models.ProfileDetails {
	d.Photos = slices.Clone(d.Photos)
	d.Interests = slices.Clone(d.Interests)
	return d
}

func validateUpdate(u models.ProfileUpdate) error {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return apierr.Validation("name cannot be empty")
	}
	if u.Age != nil && (*u.Age < 18 || *u.Age > 100) {
		return apierr.Validation("age must be between 18 and 100")
	}
	if u.Height != nil && (*u.Height < 100 || *u.Height > 250) {
		return apierr.Validation("height must be between 100 and 250 cm")
	}
	if u.Bio != nil && len(*u.Bio) > 1000 {
		return apierr.Validation("bio must be at most 1000 characters")
	}
	return nil
}

func validatePreferences(p models.Preferences) error {
	if p.MinAge < 18 || p.MaxAge > 100 {
		return apierr.Validation("age range must be between 18 and 100")
	}
	if p.MinAge > p.MaxAge {
		return apierr.Validation("minimum age cannot exceed maximum age")
	}
	if p.MaxDistance < 0 {
		return apierr.Validation("distance cannot be negative")
	}
	return nil
}

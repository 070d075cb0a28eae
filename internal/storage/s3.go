// Package storage uploads profile photos to an S3-compatible bucket so the
// profile store can register them by URL.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/rupesh-2/matrimonial-UI/internal/config"
)

const photoPrefix = "profiles"

var allowedPhotoExt = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {}, ".gif": {},
}

// objectDeleter is the part of the S3 client used for removal.
type objectDeleter interface {
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// PhotoStore stores profile photos in an S3-compatible bucket.
type PhotoStore struct {
	uploader *manager.Uploader
	client   objectDeleter
	bucket   string
	baseURL  string
	newID    func() string
}

// NewPhotoStore configures an uploader targeting the provided object store.
func NewPhotoStore(ctx context.Context, cfg config.ObjectStoreConfig) (*PhotoStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("photo storage: bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	return &PhotoStore{
		uploader: uploader,
		client:   client,
		bucket:   cfg.Bucket,
		baseURL:  strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		newID:    uuid.NewString,
	}, nil
}

// Save uploads a photo owned by ownerID and returns its public location.
func (s *PhotoStore) Save(ctx context.Context, ownerID int64, filename string, r io.Reader) (string, error) {
	key, err := s.keyFor(ownerID, filename)
	if err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   manager.ReadSeekCloser(r),
		ACL:    s3types.ObjectCannedACLPublicRead,
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("photo storage upload %s: %w", key, err)
	}

	return s.locationOf(key), nil
}

// Delete removes the object behind location. Locations outside this store
// are ignored.
func (s *PhotoStore) Delete(ctx context.Context, location string) error {
	key, ok := s.keyOf(location)
	if !ok {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("photo storage delete %s: %w", key, err)
	}
	return nil
}

func (s *PhotoStore) keyFor(ownerID int64, filename string) (string, error) {
	if ownerID <= 0 {
		return "", fmt.Errorf("photo storage: owner is required")
	}
	ext := strings.ToLower(path.Ext(strings.TrimSpace(filename)))
	if _, ok := allowedPhotoExt[ext]; !ok {
		return "", fmt.Errorf("photo storage: unsupported photo type %q", ext)
	}
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	return fmt.Sprintf("%s/%d/%s%s", photoPrefix, ownerID, s.newID(), ext), nil
}

func (s *PhotoStore) locationOf(key string) string {
	if s.baseURL == "" {
		return key
	}
	return fmt.Sprintf("%s/%s", s.baseURL, key)
}

// keyOf maps a location produced by Save back to its object key.
func (s *PhotoStore) keyOf(location string) (string, bool) {
	location = strings.TrimSpace(location)
	if s.baseURL != "" {
		if !strings.HasPrefix(location, s.baseURL+"/") {
			return "", false
		}
		location = strings.TrimPrefix(location, s.baseURL+"/")
	}
	if u, err := url.Parse(location); err == nil && u.Scheme != "" {
		return "", false
	}
	if !strings.HasPrefix(location, photoPrefix+"/") {
		return "", false
	}
	return location, true
}

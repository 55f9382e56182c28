// Package media validates, names, uploads and removes listing images.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// BucketName is the object storage bucket holding listing images.
	BucketName = "property-images"

	MaxImageSizeMB    = 5
	MaxImageSizeBytes = MaxImageSizeMB * 1024 * 1024

	defaultExt = "jpg"
)

// AllowedTypes are the accepted image MIME types.
var AllowedTypes = []string{"image/jpeg", "image/png", "image/webp"}

var ErrUnsupportedType = errors.New("Only JPG, PNG and WEBP images are allowed")

// Bucket is the object storage holding image blobs.
type Bucket interface {
	// Upload stores r at key and fails if an object already exists there.
	Upload(ctx context.Context, key, contentType string, r io.Reader) error
	// Remove deletes the objects at keys.
	Remove(ctx context.Context, keys []string) error
	PublicURL(key string) string
}

// File is one submitted image.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// FilesFromMultipart converts the file headers of a multipart form.
// Empty file inputs (no name, no bytes) are skipped.
func FilesFromMultipart(headers []*multipart.FileHeader) []File {
	files := make([]File, 0, len(headers))
	for _, fh := range headers {
		if fh.Filename == "" && fh.Size == 0 {
			continue
		}
		fh := fh
		files = append(files, File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return files
}

// ValidateImage checks the declared type and the size of f.
func ValidateImage(f File) error {
	if !allowedType(f.ContentType) {
		return ErrUnsupportedType
	}
	if f.Size > MaxImageSizeBytes {
		return fmt.Errorf("Image %q exceeds the %dMB limit", f.Name, MaxImageSizeMB)
	}
	return nil
}

func allowedType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	for _, t := range AllowedTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// NewImageKey builds a fresh storage key under the property's prefix,
// keeping the lower-cased extension of filename.
func NewImageKey(propertyID, filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		ext = defaultExt
	}
	return fmt.Sprintf("%s/%s.%s", propertyID, uuid.New().String(), ext)
}

// UploadImages validates and uploads files one at a time, in order, and
// returns the new keys. The first failure stops the batch; files uploaded
// before it stay in the bucket.
func UploadImages(ctx context.Context, bucket Bucket, propertyID string, files []File) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, f := range files {
		if err := ValidateImage(f); err != nil {
			return keys, err
		}

		key := NewImageKey(propertyID, f.Name)
		if err := uploadOne(ctx, bucket, key, f); err != nil {
			return keys, fmt.Errorf("Failed to upload %s: %w", f.Name, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func uploadOne(ctx context.Context, bucket Bucket, key string, f File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return bucket.Upload(ctx, key, f.ContentType, rc)
}

// DeleteImages removes keys from the bucket. An empty list does nothing.
func DeleteImages(ctx context.Context, bucket Bucket, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := bucket.Remove(ctx, keys); err != nil {
		return fmt.Errorf("delete images: %w", err)
	}
	return nil
}

// PublicURLs maps keys to their public URLs.
func PublicURLs(bucket Bucket, keys []string) []string {
	urls := make([]string, len(keys))
	for i, k := range keys {
		urls[i] = bucket.PublicURL(k)
	}
	return urls
}

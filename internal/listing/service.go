// Package listing holds the admin operations on properties: create, edit
// and the privileged delete with image cleanup.
package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/edvart/property-listings/internal/media"
	"github.com/edvart/property-listings/internal/store"
)

// ErrMisconfigured means the privileged backend credential is missing.
var ErrMisconfigured = errors.New("server misconfiguration")

// ErrTitleRequired is returned for a property input without a title.
var ErrTitleRequired = errors.New("title is required")

// Opener returns the privileged store and bucket handles. It fails with
// ErrMisconfigured when no privileged credential is configured.
type Opener func() (store.PropertyStore, media.Bucket, error)

// Service runs admin operations through the privileged handles.
type Service struct {
	open   Opener
	logger logrus.FieldLogger
}

func NewService(open Opener, logger logrus.FieldLogger) *Service {
	return &Service{open: open, logger: logger}
}

// DeleteResult reports a completed row delete. CleanupErr is set when the
// images could not be removed afterwards; the row stays deleted.
type DeleteResult struct {
	Deleted    []string
	Images     []string
	CleanupErr error
}

// Delete removes the property row and then, best effort, its images.
// It returns ErrMisconfigured, store.ErrNotFound (row missing before or
// during the delete) or the underlying data error.
func (s *Service) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	properties, bucket, err := s.open()
	if err != nil {
		return nil, err
	}

	images, err := properties.PropertyImages(ctx, id)
	if err != nil {
		return nil, err
	}

	deleted, err := properties.DeleteProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(deleted) == 0 {
		// Deleted by someone else since the image lookup.
		return nil, store.ErrNotFound
	}

	result := &DeleteResult{Deleted: deleted, Images: images}
	if len(images) == 0 {
		return result, nil
	}

	if err := media.DeleteImages(ctx, bucket, images); err != nil {
		s.logger.WithFields(logrus.Fields{
			"property_id": id,
			"images":      len(images),
		}).WithError(err).Warn("Image cleanup failed after property delete")
		result.CleanupErr = err
	}
	return result, nil
}

// Create inserts the property, uploads its images under the new id and
// records them. If an upload fails the row is kept without images.
func (s *Service) Create(ctx context.Context, in store.PropertyInput, files []media.File) (*store.Property, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	properties, bucket, err := s.open()
	if err != nil {
		return nil, err
	}

	p, err := properties.CreateProperty(ctx, store.Slugify(in.Title), in)
	if err != nil {
		return nil, fmt.Errorf("create property: %w", err)
	}

	keys, err := media.UploadImages(ctx, bucket, p.ID, files)
	if err != nil {
		return p, err
	}

	if err := properties.SetPropertyImages(ctx, p.ID, keys); err != nil {
		return p, fmt.Errorf("attach images: %w", err)
	}
	p.Images = keys
	return p, nil
}

// Update uploads new images, removes the current images not listed in keep
// and then saves the fields with the resulting image list.
func (s *Service) Update(ctx context.Context, id string, in store.PropertyInput, keep []string, files []media.File) error {
	if err := validate(in); err != nil {
		return err
	}

	properties, bucket, err := s.open()
	if err != nil {
		return err
	}

	current, err := properties.PropertyImages(ctx, id)
	if err != nil {
		return err
	}

	kept, removed := splitImages(current, keep)

	added, err := media.UploadImages(ctx, bucket, id, files)
	if err != nil {
		return err
	}

	if err := media.DeleteImages(ctx, bucket, removed); err != nil {
		return err
	}

	images := append(kept, added...)
	return properties.UpdateProperty(ctx, id, in, images)
}

// splitImages keeps the current images listed in keep, in their current
// order. Keys in keep that do not belong to the property are ignored.
func splitImages(current, keep []string) (kept, removed []string) {
	wanted := make(map[string]bool, len(keep))
	for _, k := range keep {
		wanted[k] = true
	}

	kept = []string{}
	for _, img := range current {
		if wanted[img] {
			kept = append(kept, img)
		} else {
			removed = append(removed, img)
		}
	}
	return kept, removed
}

func validate(in store.PropertyInput) error {
	if in.Title == "" {
		return ErrTitleRequired
	}
	if !in.Status.Valid() {
		return fmt.Errorf("invalid status %q", in.Status)
	}
	return nil
}

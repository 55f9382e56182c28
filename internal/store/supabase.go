package store

import (
	"context"
	"fmt"

	"github.com/edvart/property-listings/internal/supabase"
)

const propertiesTable = "properties"

// SupabaseStore implements PropertyStore on the hosted PostgREST API.
// Which rows it can see or change is decided by the key of the client it
// wraps.
type SupabaseStore struct {
	db *supabase.DatabaseClient
}

// NewSupabaseStore creates a store backed by client.
func NewSupabaseStore(client *supabase.Client) *SupabaseStore {
	return &SupabaseStore{db: client.Database()}
}

type propertyRow struct {
	PropertyInput
	Slug   string   `json:"slug,omitempty"`
	Images []string `json:"images"`
}

// ListProperties returns properties, newest first.
func (s *SupabaseStore) ListProperties(ctx context.Context, opts ListOptions) ([]Property, error) {
	q := s.db.From(propertiesTable).Select("*")
	if opts.HighlightedOnly {
		q = q.Is("highlighted", true)
	}
	q = q.Order("created_at", supabase.OrderDesc)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	var properties []Property
	if err := q.ExecuteInto(ctx, &properties); err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	return properties, nil
}

// GetProperty retrieves a property by ID.
func (s *SupabaseStore) GetProperty(ctx context.Context, id string) (*Property, error) {
	return s.getProperty(ctx, "id", id)
}

// GetPropertyBySlug retrieves a property by its slug.
func (s *SupabaseStore) GetPropertyBySlug(ctx context.Context, slug string) (*Property, error) {
	return s.getProperty(ctx, "slug", slug)
}

func (s *SupabaseStore) getProperty(ctx context.Context, column, value string) (*Property, error) {
	var p Property
	err := s.db.From(propertiesTable).Select("*").Eq(column, value).Single().ExecuteInto(ctx, &p)
	if supabase.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get property: %w", err)
	}
	return &p, nil
}

// PropertyImages returns the storage paths attached to a property.
func (s *SupabaseStore) PropertyImages(ctx context.Context, id string) ([]string, error) {
	var row struct {
		Images []string `json:"images"`
	}
	err := s.db.From(propertiesTable).Select("images").Eq("id", id).Single().ExecuteInto(ctx, &row)
	if supabase.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if row.Images == nil {
		row.Images = []string{}
	}
	return row.Images, nil
}

// CreateProperty inserts a property with no images.
func (s *SupabaseStore) CreateProperty(ctx context.Context, slug string, in PropertyInput) (*Property, error) {
	var created []Property
	err := s.db.From(propertiesTable).
		Insert(propertyRow{PropertyInput: in, Slug: slug, Images: []string{}}).
		Select("*").
		ExecuteInto(ctx, &created)
	if err != nil {
		return nil, fmt.Errorf("create property: %w", err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("create property: no row returned")
	}
	return &created[0], nil
}

// UpdateProperty overwrites the editable fields and the image list.
func (s *SupabaseStore) UpdateProperty(ctx context.Context, id string, in PropertyInput, images []string) error {
	if images == nil {
		images = []string{}
	}
	return s.update(ctx, id, propertyRow{PropertyInput: in, Images: images})
}

// SetPropertyImages replaces the image list of a property.
func (s *SupabaseStore) SetPropertyImages(ctx context.Context, id string, images []string) error {
	if images == nil {
		images = []string{}
	}
	return s.update(ctx, id, map[string][]string{"images": images})
}

func (s *SupabaseStore) update(ctx context.Context, id string, body any) error {
	var updated []struct {
		ID string `json:"id"`
	}
	err := s.db.From(propertiesTable).Update(body).Select("id").Eq("id", id).ExecuteInto(ctx, &updated)
	if err != nil {
		return fmt.Errorf("update property: %w", err)
	}
	if len(updated) == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProperty removes a property row and returns the deleted ids.
func (s *SupabaseStore) DeleteProperty(ctx context.Context, id string) ([]string, error) {
	var deleted []struct {
		ID string `json:"id"`
	}
	err := s.db.From(propertiesTable).Delete().Select("id").Eq("id", id).ExecuteInto(ctx, &deleted)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(deleted))
	for _, row := range deleted {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

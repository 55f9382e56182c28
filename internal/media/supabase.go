package media

import (
	"context"
	"fmt"
	"io"

	"github.com/edvart/property-listings/internal/supabase"
)

// SupabaseBucket is a Bucket on Supabase Storage.
type SupabaseBucket struct {
	storage *supabase.StorageClient
	name    string
}

func NewSupabaseBucket(client *supabase.Client, name string) *SupabaseBucket {
	return &SupabaseBucket{storage: client.Storage(), name: name}
}

func (b *SupabaseBucket) Upload(ctx context.Context, key, contentType string, r io.Reader) error {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSizeBytes+1))
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	return b.storage.Upload(ctx, b.name, key, data, &supabase.UploadOptions{
		ContentType: contentType,
		Upsert:      false,
	})
}

func (b *SupabaseBucket) Remove(ctx context.Context, keys []string) error {
	return b.storage.Remove(ctx, b.name, keys)
}

func (b *SupabaseBucket) PublicURL(key string) string {
	return b.storage.PublicURL(b.name, key)
}

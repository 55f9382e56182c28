package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// StorageClient handles Supabase Storage operations.
type StorageClient struct {
	client *Client
}

// Upload uploads a file to storage. Without opts.Upsert the request fails
// when an object already exists at filePath.
func (s *StorageClient) Upload(ctx context.Context, bucketID, filePath string, data []byte, opts *UploadOptions) error {
	urlStr := fmt.Sprintf("%s/object/%s/%s", s.client.storageURL, url.PathEscape(bucketID), escapeObjectPath(filePath))

	headers := map[string]string{}
	if opts != nil {
		if opts.ContentType != "" {
			headers["Content-Type"] = opts.ContentType
		}
		if opts.CacheControl != "" {
			headers["Cache-Control"] = opts.CacheControl
		}
		if opts.Upsert {
			headers["x-upsert"] = "true"
		}
	}

	if headers["Content-Type"] == "" {
		headers["Content-Type"] = "application/octet-stream"
	}

	respBody, statusCode, err := s.client.request(ctx, "POST", urlStr, data, headers)
	if err != nil {
		return err
	}

	if statusCode >= 400 {
		return parseError(respBody, statusCode)
	}

	return nil
}

// Remove deletes files from storage.
func (s *StorageClient) Remove(ctx context.Context, bucketID string, filePaths []string) error {
	urlStr := fmt.Sprintf("%s/object/%s", s.client.storageURL, url.PathEscape(bucketID))

	req := map[string]interface{}{
		"prefixes": filePaths,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, statusCode, err := s.client.request(ctx, "DELETE", urlStr, body, nil)
	if err != nil {
		return err
	}

	if statusCode >= 400 {
		return parseError(respBody, statusCode)
	}

	return nil
}

// PublicURL returns the public URL for a file in a public bucket.
func (s *StorageClient) PublicURL(bucketID, filePath string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", s.client.storageURL, url.PathEscape(bucketID), escapeObjectPath(filePath))
}

// escapeObjectPath escapes each segment of an object key, keeping the '/'.
func escapeObjectPath(p string) string {
	segments := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrObjectExists is returned when uploading over an existing key.
var ErrObjectExists = errors.New("object already exists")

// DiskBucket stores images on the local filesystem for the local backend.
type DiskBucket struct {
	root    string
	baseURL string
}

// NewDiskBucket creates root if needed. baseURL is the URL prefix the
// directory is served under, e.g. "/media".
func NewDiskBucket(root, baseURL string) (*DiskBucket, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DiskBucket{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the directory holding the objects.
func (b *DiskBucket) Root() string {
	return b.root
}

func (b *DiskBucket) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(b.root, filepath.FromSlash(clean)), nil
}

func (b *DiskBucket) Upload(ctx context.Context, key, contentType string, r io.Reader) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%s: %w", key, ErrObjectExists)
	}
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(p)
		return err
	}
	return f.Close()
}

// Remove deletes the objects at keys. Missing objects are ignored.
func (b *DiskBucket) Remove(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		p, err := b.path(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *DiskBucket) PublicURL(key string) string {
	return b.baseURL + "/" + strings.TrimLeft(key, "/")
}

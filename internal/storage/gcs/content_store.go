// Package gcs stores built pages in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/staticpub/internal/site"
)

// Config captures the bucket pages are written to.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
}

// ContentStore implements site.ContentStore on a GCS bucket. Objects are
// overwritten in place, so Save always returns the requested name.
type ContentStore struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ site.ContentStore = (*ContentStore)(nil)

// New creates a GCS-backed content store.
func New(client *storage.Client, cfg Config) (*ContentStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &ContentStore{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

func (s *ContentStore) object(name string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + name)
}

// Exists reports whether the object exists.
func (s *ContentStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.object(name).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("object attrs %s: %w", name, err)
	}
}

// Delete removes the object; a missing object is not an error.
func (s *ContentStore) Delete(ctx context.Context, name string) error {
	err := s.object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object %s: %w", name, err)
	}
	return nil
}

// Save uploads content, setting Content-Type from the name's extension.
func (s *ContentStore) Save(ctx context.Context, name string, content io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name is required")
	}
	writer := s.object(name).NewWriter(ctx)
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		writer.ContentType = ct
	}
	if _, err := io.Copy(writer, content); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return name, nil
}

// Open streams the object's content.
func (s *ContentStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := s.object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", site.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", name, err)
	}
	return r, nil
}

// URI returns the gs:// URI of a stored name.
func (s *ContentStore) URI(name string) string {
	return fmt.Sprintf("gs://%s/%s%s", s.bucket, s.prefix, name)
}

// Package bolt stores built pages in a single bbolt database file, which
// suits previews and archival snapshots of a site.
package bolt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/JakeFAU/staticpub/internal/site"
)

const defaultBucket = "pages"

// Config locates the database file and bucket.
type Config struct {
	Path   string
	Bucket string
}

// ContentStore implements site.ContentStore on a bbolt bucket. Keys are
// page names; Save overwrites in place and returns the requested name.
type ContentStore struct {
	db     *bbolt.DB
	bucket []byte
}

var _ site.ContentStore = (*ContentStore)(nil)

// Open opens (or creates) the database and its bucket.
func Open(cfg Config) (*ContentStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("bolt path is required")
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}
	db, err := bbolt.Open(cfg.Path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	s := &ContentStore{db: db, bucket: []byte(bucket)}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return s, nil
}

// Close releases the database file.
func (s *ContentStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close bolt database: %w", err)
	}
	return nil
}

// Exists reports whether a page is stored under name.
func (s *ContentStore) Exists(_ context.Context, name string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(s.bucket).Get([]byte(name)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", name, err)
	}
	return found, nil
}

// Delete removes name.
func (s *ContentStore) Delete(_ context.Context, name string) error {
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(name))
	}); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// Save stores content under name.
func (s *ContentStore) Save(_ context.Context, name string, content io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name is required")
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("read content for %s: %w", name, err)
	}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(name), data)
	}); err != nil {
		return "", fmt.Errorf("put %s: %w", name, err)
	}
	return name, nil
}

// Open returns the stored content. Values are copied out of the
// transaction because bbolt memory is only valid while it is open.
func (s *ContentStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("%w: %s", site.ErrNotFound, name)
		}
		data = bytes.Clone(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Names lists stored names in key order.
func (s *ContentStore) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	return names, nil
}

// Package memory holds in-memory stores used for previews, development,
// and tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/JakeFAU/staticpub/internal/site"
)

// ContentStore keeps built pages in a map. Saving onto an existing name
// stores the content under the next free "name_N.ext" instead.
type ContentStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ site.ContentStore = (*ContentStore)(nil)

// NewContentStore creates an empty in-memory content store.
func NewContentStore() *ContentStore {
	return &ContentStore{data: make(map[string][]byte)}
}

// Exists reports whether name has content.
func (s *ContentStore) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[name]
	return ok, nil
}

// Delete removes name; deleting a missing name is not an error.
func (s *ContentStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}

// Save stores content and returns the name it was stored under.
func (s *ContentStore) Save(_ context.Context, name string, content io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name is required")
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("read content for %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.availableName(name)
	s.data[stored] = data
	return stored, nil
}

// Open returns a reader over a copy of the stored content.
func (s *ContentStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", site.ErrNotFound, name)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

// Names returns the stored names in sorted order.
func (s *ContentStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Bytes returns a copy of the content stored under name.
func (s *ContentStore) Bytes(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[name]
	return bytes.Clone(data), ok
}

func (s *ContentStore) availableName(name string) string {
	if _, taken := s.data[name]; !taken {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, taken := s.data[candidate]; !taken {
			return candidate
		}
	}
}

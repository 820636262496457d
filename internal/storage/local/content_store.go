// Package local stores built pages on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/staticpub/internal/site"
)

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the root directory pages are written under.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// ContentStore writes pages beneath a base directory. When the requested
// name is already taken, Save picks "name_<7 random chars>.ext" instead, so
// the returned name may differ from the requested one.
type ContentStore struct {
	baseDir string
}

// New creates a local filesystem-backed content store, creating BaseDir and
// checking that it is writable.
func New(cfg Config) (*ContentStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}
	probe := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up writable probe: %w", err)
	}
	return &ContentStore{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// BaseDir returns the root directory.
func (s *ContentStore) BaseDir() string {
	return s.baseDir
}

// Exists reports whether a file is stored under name.
func (s *ContentStore) Exists(_ context.Context, name string) (bool, error) {
	full, err := s.resolve(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", name, err)
	}
}

// Delete removes name; deleting a missing file is not an error.
func (s *ContentStore) Delete(_ context.Context, name string) error {
	full, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Save writes content under name, or an available variant of it, and
// returns the name used.
func (s *ContentStore) Save(_ context.Context, name string, content io.Reader) (string, error) {
	if _, err := s.resolve(name); err != nil {
		return "", err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("read content for %s: %w", name, err)
	}
	for attempt := 0; attempt < 100; attempt++ {
		candidate := name
		if attempt > 0 {
			candidate = alternateName(name)
		}
		full, err := s.resolve(candidate)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
			return "", fmt.Errorf("create parent directories for %s: %w", candidate, err)
		}
		f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // published site content
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", candidate, err)
		}
		_, werr := f.Write(data)
		cerr := f.Close()
		if werr != nil {
			return "", fmt.Errorf("write %s: %w", candidate, werr)
		}
		if cerr != nil {
			return "", fmt.Errorf("close %s: %w", candidate, cerr)
		}
		return candidate, nil
	}
	return "", fmt.Errorf("no available name for %s", name)
}

// Open opens the stored file for reading.
func (s *ContentStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	full, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full) //nolint:gosec // path is confined to baseDir by resolve
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", site.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// resolve maps a store name to a path inside baseDir, rejecting traversal.
func (s *ContentStore) resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name is required")
	}
	full := filepath.Clean(filepath.Join(s.baseDir, filepath.FromSlash(name)))
	if !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected for %q", name)
	}
	return full, nil
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func alternateName(name string) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	suffix := make([]byte, 7)
	for i := range suffix {
		suffix[i] = suffixAlphabet[rand.IntN(len(suffixAlphabet))] //nolint:gosec // not security sensitive
	}
	return stem + "_" + string(suffix) + ext
}

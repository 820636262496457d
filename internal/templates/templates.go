// Package templates renders redirect and error pages from an fs.FS of
// html/template files.
package templates

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/JakeFAU/staticpub/internal/site"
)

// Renderer implements site.TemplateRenderer over a file system.
type Renderer struct {
	fsys fs.FS

	mu    sync.RWMutex
	cache map[string]*template.Template
}

var _ site.TemplateRenderer = (*Renderer)(nil)

// New returns a Renderer reading templates from fsys.
func New(fsys fs.FS) *Renderer {
	return &Renderer{fsys: fsys, cache: make(map[string]*template.Template)}
}

// NewDir returns a Renderer over a directory on disk. An empty dir yields a
// Renderer that has no templates.
func NewDir(dir string) *Renderer {
	if dir == "" {
		return New(emptyFS{})
	}
	return New(os.DirFS(dir))
}

// RenderTemplate executes the first candidate that exists.
func (r *Renderer) RenderTemplate(candidates []string, data map[string]any) (string, error) {
	for _, name := range candidates {
		name = strings.TrimPrefix(path.Clean("/"+name), "/")
		tmpl, err := r.lookup(name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("execute template %s: %w", name, err)
		}
		return buf.String(), nil
	}
	return "", fmt.Errorf("%w: %s", site.ErrTemplateNotFound, strings.Join(candidates, ", "))
}

func (r *Renderer) lookup(name string) (*template.Template, error) {
	r.mu.RLock()
	tmpl, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return tmpl, nil
	}
	if _, err := fs.Stat(r.fsys, name); err != nil {
		return nil, err
	}
	tmpl, err := template.ParseFS(r.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	r.mu.Lock()
	r.cache[name] = tmpl
	r.mu.Unlock()
	return tmpl, nil
}

type emptyFS struct{}

func (emptyFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

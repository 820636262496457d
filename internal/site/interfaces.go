package site

import (
	"context"
	"io"
	"time"
)

// Renderer fetches the rendered output of a URL path from the application,
// following redirects internally.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (Response, error)
}

// TemplateRenderer renders the first existing template among candidates.
// It returns ErrTemplateNotFound when none of them exist.
type TemplateRenderer interface {
	RenderTemplate(candidates []string, data map[string]any) (string, error)
}

// ContentStore persists built pages by name. Save may store the content under
// a different name than requested and reports the name actually used.
type ContentStore interface {
	Exists(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) error
	Save(ctx context.Context, name string, content io.Reader) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Hasher computes content fingerprints.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}

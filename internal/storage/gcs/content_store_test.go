package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// fakeGCS answers the subset of the JSON API the store uses.
type fakeGCS struct {
	mu      sync.Mutex
	objects map[string]bool
	uploads []string
	deletes int
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/b/test-bucket/o"):
		body, _ := io.ReadAll(r.Body)
		name := r.URL.Query().Get("name")
		f.uploads = append(f.uploads, string(body))
		f.objects[name] = true
		fmt.Fprintf(w, `{"name":%q,"bucket":"test-bucket"}`, name)
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/b/test-bucket/o/"):
		name := r.URL.Path[strings.Index(r.URL.Path, "/o/")+3:]
		if !f.objects[name] {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":404,"message":"No such object"}}`)
			return
		}
		fmt.Fprintf(w, `{"name":%q,"bucket":"test-bucket"}`, name)
	case r.Method == http.MethodDelete:
		f.deletes++
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func newTestStore(t *testing.T, cfg Config) (*ContentStore, *fakeGCS) {
	t.Helper()
	fake := &fakeGCS{objects: map[string]bool{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, cfg)
	require.NoError(t, err)
	return store, fake
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)
}

func TestContentStoreSaveAndExists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, fake := newTestStore(t, Config{Bucket: "test-bucket", Prefix: "/site/"})

	exists, err := store.Exists(ctx, "content/a/index.html")
	require.NoError(t, err)
	assert.False(t, exists)

	name, err := store.Save(ctx, "content/a/index.html", strings.NewReader("content_a"))
	require.NoError(t, err)
	assert.Equal(t, "content/a/index.html", name)
	require.Len(t, fake.uploads, 1)
	assert.Contains(t, fake.uploads[0], "content_a")
	assert.True(t, fake.objects["site/content/a/index.html"])

	exists, err = store.Exists(ctx, "content/a/index.html")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, "content/a/index.html"))
	assert.Equal(t, 1, fake.deletes)
	assert.Equal(t, "gs://test-bucket/site/content/a/index.html", store.URI("content/a/index.html"))
}

package local_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/staticpub/internal/site"
	"github.com/JakeFAU/staticpub/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "site", "out")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestContentStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "content/a/index.html")
	require.NoError(t, err)
	assert.False(t, exists)

	name, err := store.Save(ctx, "content/a/index.html", strings.NewReader("content_a"))
	require.NoError(t, err)
	assert.Equal(t, "content/a/index.html", name)

	// #nosec G304 -- test reads from the controlled temp directory.
	onDisk, err := os.ReadFile(filepath.Join(dir, "content", "a", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "content_a", string(onDisk))

	rc, err := store.Open(ctx, name)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "content_a", string(data))

	require.NoError(t, store.Delete(ctx, name))
	require.NoError(t, store.Delete(ctx, name))
	exists, err = store.Exists(ctx, name)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Open(ctx, name)
	assert.ErrorIs(t, err, site.ErrNotFound)
}

func TestContentStoreCollisionRenames(t *testing.T) {
	ctx := context.Background()
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	first, err := store.Save(ctx, "404.html", strings.NewReader("a"))
	require.NoError(t, err)
	second, err := store.Save(ctx, "404.html", strings.NewReader("b"))
	require.NoError(t, err)

	assert.Equal(t, "404.html", first)
	assert.Regexp(t, regexp.MustCompile(`^404_[A-Za-z0-9]{7}\.html$`), second)
}

func TestContentStoreRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Save(ctx, "../escape.html", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = store.Exists(ctx, "../../etc/passwd")
	assert.Error(t, err)
	_, err = store.Save(ctx, "", strings.NewReader("x"))
	assert.Error(t, err)
}

package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, StatusQueued.Terminal())
	require.False(t, StatusRunning.Terminal())
	require.True(t, StatusSucceeded.Terminal())
	require.True(t, StatusFailed.Terminal())
	require.True(t, StatusCanceled.Terminal())
}

func TestKindValid(t *testing.T) {
	t.Parallel()

	require.True(t, KindSite.Valid())
	require.True(t, KindURLs.Valid())
	require.True(t, KindErrorPages.Valid())
	require.False(t, Kind("crawl").Valid())
}

func TestTrackerCancel(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	ctx, done := tr.Start(context.Background(), "job-1")
	require.Equal(t, 1, tr.Running())

	require.True(t, tr.Cancel("job-1"))
	require.ErrorIs(t, ctx.Err(), context.Canceled)
	require.False(t, tr.Cancel("job-2"))

	done()
	require.Zero(t, tr.Running())
	require.False(t, tr.Cancel("job-1"))
}

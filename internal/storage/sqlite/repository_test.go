package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coupon-clipper/internal/observability"
	"coupon-clipper/internal/storage"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "progress.db"), 5000, observability.NewDiscard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSaveLoadUpsert(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	state, err := repo.Load(ctx, "harris_teeter")
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, repo.Save(ctx, &storage.RunState{SessionID: "a", Site: "harris_teeter", Clipped: 3, Marker: "abc"}))
	require.NoError(t, repo.Save(ctx, &storage.RunState{SessionID: "b", Site: "harris_teeter", Clipped: 7, AlreadyClipped: 2, Position: 9, RateLimitDetection: true}))

	state, err = repo.Load(ctx, "harris_teeter")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "b", state.SessionID)
	assert.Equal(t, 7, state.Clipped)
	assert.Equal(t, 2, state.AlreadyClipped)
	assert.Equal(t, 9, state.Position)
	assert.Equal(t, "", state.Marker)
	assert.True(t, state.RateLimitDetection)
}

func TestLastSiteAndReset(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	base := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	require.NoError(t, repo.Save(ctx, &storage.RunState{Site: "weis"}))
	require.NoError(t, repo.Save(ctx, &storage.RunState{Site: "walmart"}))

	last, err := repo.LastSite(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "walmart", last.Site)
	assert.Equal(t, base.Add(2*time.Second), last.UpdatedAt)

	require.NoError(t, repo.Reset(ctx, "walmart"))
	last, err = repo.LastSite(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "weis", last.Site)
}

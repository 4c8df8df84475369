package backend

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coupon-clipper/internal/config"
	"coupon-clipper/internal/observability"
	"coupon-clipper/internal/storage"
	"coupon-clipper/internal/storage/filestore"
	"coupon-clipper/internal/storage/sqlite"
)

func TestOpenSelectsDriver(t *testing.T) {
	dir := t.TempDir()
	logger := observability.NewDiscard()

	repo, err := Open(config.StorageConfig{Driver: "file", Path: filepath.Join(dir, "state.json")}, logger)
	require.NoError(t, err)
	assert.IsType(t, &filestore.Repository{}, repo)

	repo, err = Open(config.StorageConfig{Driver: "sqlite", Path: filepath.Join(dir, "state.db"), CommandTimeoutMS: 1000}, logger)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Repository{}, repo)
	require.NoError(t, repo.Close())

	_, err = Open(config.StorageConfig{Driver: "redis"}, logger)
	assert.ErrorIs(t, err, storage.ErrUnknownDriver)
}

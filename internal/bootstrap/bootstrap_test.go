package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gunnforge/internal/config"
	"gunnforge/internal/storage"
)

func testConfig(t *testing.T, backend string) config.Config {
	t.Helper()
	dir := t.TempDir()
	var cfg config.Config
	cfg.Data.Backend = backend
	cfg.Data.UsersFile = filepath.Join(dir, "users.json")
	cfg.Data.ManifestFile = filepath.Join(dir, "member-files.json")
	cfg.Database.Path = filepath.Join(dir, "db", "gunnforge.db")
	cfg.Storage.Backend = config.StorageLocal
	cfg.Storage.Root = filepath.Join(dir, "member-files")
	return cfg
}

func TestOpenRepositories(t *testing.T) {
	for _, backend := range []string{config.BackendJSON, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			repos, err := OpenRepositories(ctx, testConfig(t, backend))
			require.NoError(t, err)
			t.Cleanup(func() { repos.Close() })

			users, err := repos.Users.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, users)

			files, err := repos.Files.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, files)

			if backend == config.BackendJSON {
				assert.Len(t, repos.Watchable(), 2)
			} else {
				assert.Empty(t, repos.Watchable())
			}
		})
	}
}

func TestBuildStorage_Local(t *testing.T) {
	cfg := testConfig(t, config.BackendJSON)
	logger := logrus.New()

	svc, err := BuildStorage(context.Background(), cfg, logger)
	require.NoError(t, err)
	local, ok := svc.(*storage.LocalService)
	require.True(t, ok)
	assert.Equal(t, cfg.Storage.Root, local.Root())
}

func TestBuildS3_RequiresBucket(t *testing.T) {
	cfg := testConfig(t, config.BackendJSON)
	cfg.Storage.Backend = config.StorageS3

	_, err := BuildS3(context.Background(), cfg, logrus.New())
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, NewLogger("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger("loud").GetLevel())
}

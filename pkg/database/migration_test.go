package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestMigrationVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000001_init.up.sql", "000001_init.down.sql", "000003_chat.up.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- noop"), 0o600))
	}

	latest, err := LatestMigrationVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, latest)
}

func TestLatestMigrationVersionEmptyFolder(t *testing.T) {
	_, err := LatestMigrationVersion(t.TempDir())
	assert.Error(t, err)
}

func TestRepositoryMigrationsAreDiscoverable(t *testing.T) {
	latest, err := LatestMigrationVersion(filepath.Join("..", "..", "db", "pg"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latest, 1)
}

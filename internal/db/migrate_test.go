package db

import (
	"bytes"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func columnExists(t *testing.T, db *DB, table, column string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	).Scan(&n))
	return n > 0
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := getMigrationsFS()
	require.NoError(t, err)

	ups, err := fs.Glob(migrations, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrations, "*.down.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups), "every migration can be rolled back")

	latest, err := LatestMigrationVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(len(ups)), latest)
}

func TestMigrateDownAndUp(t *testing.T) {
	db := setupTestDB(t)
	migrations, err := getMigrationsFS()
	require.NoError(t, err)
	latest, err := LatestMigrationVersion(migrations)
	require.NoError(t, err)

	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.False(t, dirty)
	assert.True(t, columnExists(t, db, "flow_windows", "fps"))

	require.NoError(t, db.MigrateDown(migrations))
	version, _, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, latest-1, version)
	assert.False(t, columnExists(t, db, "flow_windows", "fps"))

	require.NoError(t, db.MigrateUp(migrations))
	assert.True(t, columnExists(t, db, "flow_windows", "fps"))

	require.NoError(t, db.MigrateTo(migrations, 1))
	version, _, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestMigrateVersion_Fresh(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer db.Close()
	migrations, err := getMigrationsFS()
	require.NoError(t, err)

	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)
}

func TestMigrate_NilFS(t *testing.T) {
	db := setupTestDB(t)
	assert.Error(t, db.MigrateUp(nil))
}

func TestDevModeMigrations(t *testing.T) {
	orig, origDir := DevMode, MigrationsDir
	t.Cleanup(func() { DevMode, MigrationsDir = orig, origDir })
	DevMode, MigrationsDir = true, "migrations"

	migrations, err := getMigrationsFS()
	require.NoError(t, err)
	latest, err := LatestMigrationVersion(migrations)
	require.NoError(t, err)
	assert.Positive(t, latest)
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.db")
	var out bytes.Buffer

	require.NoError(t, RunMigrateCommand(&out, []string{"status"}, path))
	assert.Contains(t, out.String(), "Current version: 0")
	assert.Contains(t, out.String(), "behind")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"up"}, path))
	assert.Contains(t, out.String(), "(dirty: false)")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"status"}, path))
	assert.Contains(t, out.String(), "up to date")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"version", "1"}, path))
	assert.Contains(t, out.String(), "Current version: 1")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"force", "2"}, path))
	assert.Contains(t, out.String(), "Current version: 2")
}

func TestRunMigrateCommand_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.db")
	var out bytes.Buffer

	assert.Error(t, RunMigrateCommand(&out, nil, path))
	assert.Contains(t, out.String(), "Usage: flow migrate")
	assert.Error(t, RunMigrateCommand(&out, []string{"sideways"}, path))
	assert.Error(t, RunMigrateCommand(&out, []string{"version"}, path))
	assert.Error(t, RunMigrateCommand(&out, []string{"version", "x"}, path))
	assert.Error(t, RunMigrateCommand(&out, []string{"force", "-"}, path))
	assert.NoError(t, RunMigrateCommand(&out, []string{"help"}, path))
}

package journal

import (
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db")+"?_journal_mode=WAL")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestRunMigrations_FreshDB(t *testing.T) {
	db := testDB(t)
	require.NoError(t, RunMigrations(db, quietLogger()))

	v, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)

	for _, name := range []string{"turns", "schema_version"} {
		var got string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&got)
		require.NoError(t, err, "table %s", name)
	}
	var idx string
	require.NoError(t, db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_turns_chat'").Scan(&idx))
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, RunMigrations(db, quietLogger()))
	require.NoError(t, RunMigrations(db, quietLogger()))

	var rows int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&rows))
	assert.Equal(t, len(migrations), rows)
}

func TestRunMigrations_UpgradesFromV1(t *testing.T) {
	db := testDB(t)
	_, err := db.Exec(`CREATE TABLE schema_version (version INTEGER PRIMARY KEY, description TEXT, applied_at DATETIME DEFAULT CURRENT_TIMESTAMP)`)
	require.NoError(t, err)
	require.NoError(t, applyMigration(db, migrations[0]))

	v, err := GetSchemaVersion(db)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	require.NoError(t, RunMigrations(db, quietLogger()))
	v, err = GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestSplitSQL(t *testing.T) {
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a(x)"},
		splitSQL("\n CREATE TABLE a (x INT);\n CREATE INDEX i ON a(x);\n"))
}

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarGzRoundTrip(t *testing.T) {
	src := t.TempDir()
	cfgPath := filepath.Join(src, "config.yaml")
	dbPath := filepath.Join(src, "journal.db")
	require.NoError(t, os.WriteFile(cfgPath, []byte("general:\n  logLevel: debug\n"), 0o600))
	require.NoError(t, os.WriteFile(dbPath, []byte("sqlite-bytes"), 0o600))
	require.NoError(t, os.WriteFile(dbPath+"-wal", []byte("wal"), 0o600))

	files := backupFiles(cfgPath, dbPath)
	assert.Equal(t, []string{dbPath, dbPath + "-wal", cfgPath}, files)

	archive := filepath.Join(t.TempDir(), "backup.tar.gz")
	require.NoError(t, createTarGz(archive, files))

	dst := t.TempDir()
	restoredCfg := filepath.Join(dst, "conf", "config.yaml")
	restoredDB := filepath.Join(dst, "data", "turns.db")
	restored, err := extractTarGz(archive, restoredDB, restoredCfg)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{restoredDB, restoredDB + "-wal", restoredCfg}, restored)

	data, err := os.ReadFile(restoredDB)
	require.NoError(t, err)
	assert.Equal(t, "sqlite-bytes", string(data))
	data, err = os.ReadFile(restoredCfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "logLevel: debug")
}

func TestExtractTarGz_NotGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o600))
	_, err := extractTarGz(path, "x.db", "config.yaml")
	assert.Error(t, err)
}

func TestResolveDBPath_FromConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	dbPath := filepath.Join(dir, "custom.db")
	require.NoError(t, os.WriteFile(cfgPath, []byte("journal:\n  dbPath: "+dbPath+"\n"), 0o600))
	assert.Equal(t, dbPath, resolveDBPath(cfgPath))
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.5 KB", humanSize(1536))
	assert.Equal(t, "2.0 MB", humanSize(2<<20))
	assert.Equal(t, "1.0 GB", humanSize(1<<30))
}

func TestRenderServiceTemplate(t *testing.T) {
	unit := renderServiceTemplate(systemdTemplate, map[string]string{
		"EXEC": "/usr/local/bin/replybot", "CONFIG": "/home/u/.replybot/config.yaml", "WORKDIR": "/home/u/.replybot",
	})
	assert.Contains(t, unit, "ExecStart=/usr/local/bin/replybot run --config /home/u/.replybot/config.yaml")
	assert.Contains(t, unit, "WorkingDirectory=/home/u/.replybot")
	assert.NotContains(t, unit, "{{")
}
